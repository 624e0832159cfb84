package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Name
		ok   bool
	}{
		{"free", Free, true},
		{" PRO ", Pro, true},
		{"enterprise", Enterprise, true},
		{"Patron", Enterprise, true},
		{"", "", false},
		{"gold", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLookup(t *testing.T) {
	free, ok := Lookup("free")
	assert.True(t, ok)
	assert.Equal(t, int64(3), free.MaxCollections)
	assert.Equal(t, int64(50), free.MaxItemsPerCollection)
	assert.False(t, free.CanCreateTemplates)

	patron, ok := Lookup("patron")
	assert.True(t, ok)
	assert.True(t, IsUnlimited(patron.MaxCollections))
	assert.Equal(t, int64(51200), patron.MaxStorageMB)

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}

func TestRankIsOrdered(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.Greater(t, Rank(all[i].Name), Rank(all[i-1].Name))
	}
}
