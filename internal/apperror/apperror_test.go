package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorCollectsAll(t *testing.T) {
	ve := &ValidationError{}
	require.NoError(t, ve.OrNil())

	ve.Add("Year", CodeTypeMismatch, "expected a number, got %q", "abc")
	ve.Add("Condition", CodeInvalidOption, "%q is not an option", "Fair")

	err := fmt.Errorf("create item: %w", ve.OrNil())
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrQuotaExceeded))

	got, ok := AsValidation(err)
	require.True(t, ok)
	assert.Len(t, got.Violations, 2)
	assert.True(t, got.Has("Condition", CodeInvalidOption))
	assert.Contains(t, err.Error(), "Year: expected a number")
}

func TestQuotaExceededError(t *testing.T) {
	err := fmt.Errorf("create collection: %w", &QuotaExceededError{
		Operation: "create_collection",
		Limit:     "maxCollections",
		Max:       3,
		Current:   3,
	})
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	qe, ok := AsQuota(err)
	require.True(t, ok)
	assert.Equal(t, int64(3), qe.Max)
	assert.Contains(t, qe.Error(), "maxCollections")
}
