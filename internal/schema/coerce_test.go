package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
)

func mustTemplate(t *testing.T, fields ...FieldDefinition) *Template {
	t.Helper()
	specs, err := Definition{Name: "Test", Description: "test template", Fields: fields}.Build()
	require.NoError(t, err)
	return &Template{ID: "test", Fields: specs, State: StateActive}
}

func TestCoerceNumberFromString(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Year", Type: "number"})

	out, err := ValidateAndCoerce(tmpl, map[string]any{"Year": "1998"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Year": float64(1998)}, out)
}

func TestCoerceSelectRejectsUnknownOption(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Condition", Type: "select", Options: []string{"Mint", "Good"}})

	_, err := ValidateAndCoerce(tmpl, map[string]any{"Condition": "Fair"})
	require.ErrorIs(t, err, apperror.ErrValidation)

	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("Condition", apperror.CodeInvalidOption))

	_, err = ValidateAndCoerce(tmpl, map[string]any{"Condition": "mint"})
	assert.ErrorIs(t, err, apperror.ErrValidation, "options are case-sensitive")
}

func TestCoerceTagsSplitsAndTrims(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Tags", Type: "tags"})

	out, err := ValidateAndCoerce(tmpl, map[string]any{"Tags": "rare, vintage, ,  signed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rare", "vintage", "signed"}, out["Tags"])

	out, err = ValidateAndCoerce(tmpl, map[string]any{"Tags": []any{" a ", "", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out["Tags"])
}

func TestCoerceCollectsEveryViolation(t *testing.T) {
	tmpl := mustTemplate(t,
		FieldDefinition{Name: "Title", Type: "text", Required: true},
		FieldDefinition{Name: "Year", Type: "number"},
		FieldDefinition{Name: "Price", Type: "currency"},
		FieldDefinition{Name: "Released", Type: "date"},
		FieldDefinition{Name: "Grade", Type: "select", Options: []string{"A"}},
	)

	_, err := ValidateAndCoerce(tmpl, map[string]any{
		"Title":    "   ",
		"Year":     "nineteen",
		"Price":    -4.5,
		"Released": "last tuesday",
		"Grade":    "B",
	})
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, ve.Violations, 5)
	assert.True(t, ve.Has("Title", apperror.CodeRequired))
	assert.True(t, ve.Has("Year", apperror.CodeTypeMismatch))
	assert.True(t, ve.Has("Price", apperror.CodeOutOfRange))
	assert.True(t, ve.Has("Released", apperror.CodeTypeMismatch))
	assert.True(t, ve.Has("Grade", apperror.CodeInvalidOption))
}

func TestCoerceRequiredMissing(t *testing.T) {
	tmpl := mustTemplate(t,
		FieldDefinition{Name: "Artist", Type: "text", Required: true},
		FieldDefinition{Name: "Signed", Type: "boolean", Required: true},
	)

	_, err := ValidateAndCoerce(tmpl, map[string]any{})
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("Artist", apperror.CodeRequired))
	assert.True(t, ve.Has("Signed", apperror.CodeRequired))
}

func TestCoerceBoolean(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Signed", Type: "boolean"})

	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{float64(1), true},
		{json.Number("2"), true},
		{false, false},
		{"false", false},
		{"0", false},
		{float64(0), false},
		{"banana", false},
	}
	for _, tc := range cases {
		out, err := ValidateAndCoerce(tmpl, map[string]any{"Signed": tc.in})
		require.NoError(t, err)
		assert.Equal(t, tc.want, out["Signed"], "input %v", tc.in)
	}

	out, err := ValidateAndCoerce(tmpl, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, false, out["Signed"])
}

func TestCoerceDate(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Acquired", Type: "date"})

	out, err := ValidateAndCoerce(tmpl, map[string]any{"Acquired": "2021-03-04"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), out["Acquired"])

	out, err = ValidateAndCoerce(tmpl, map[string]any{"Acquired": "2021-03-04T10:00:00+02:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 4, 8, 0, 0, 0, time.UTC), out["Acquired"])

	out, err = ValidateAndCoerce(tmpl, map[string]any{"Acquired": ""})
	require.NoError(t, err)
	assert.NotContains(t, out, "Acquired")
}

func TestCoerceDropsUnknownKeys(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Title", Type: "text"})

	out, err := ValidateAndCoerce(tmpl, map[string]any{"Title": "Kind of Blue", "Injected": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Title": "Kind of Blue"}, out)
}

func TestCoerceNumberRejectsNonFinite(t *testing.T) {
	tmpl := mustTemplate(t, FieldDefinition{Name: "Weight", Type: "number"})

	_, err := ValidateAndCoerce(tmpl, map[string]any{"Weight": "NaN"})
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("Weight", apperror.CodeTypeMismatch))
}

func TestCoerceIsIdempotent(t *testing.T) {
	tmpl := mustTemplate(t,
		FieldDefinition{Name: "Title", Type: "text", Required: true},
		FieldDefinition{Name: "Notes", Type: "paragraph"},
		FieldDefinition{Name: "Link", Type: "url"},
		FieldDefinition{Name: "Year", Type: "number"},
		FieldDefinition{Name: "Price", Type: "currency"},
		FieldDefinition{Name: "Acquired", Type: "date"},
		FieldDefinition{Name: "Signed", Type: "boolean"},
		FieldDefinition{Name: "Condition", Type: "dropdown", Options: []string{"Mint", "Good"}},
		FieldDefinition{Name: "Tags", Type: "tags"},
	)

	first, err := ValidateAndCoerce(tmpl, map[string]any{
		"Title":     "Blue Train",
		"Notes":     "first pressing",
		"Link":      "https://example.org/blue-train",
		"Year":      "1957",
		"Price":     "120.50",
		"Acquired":  "2019-06-01",
		"Signed":    "yes",
		"Condition": "Mint",
		"Tags":      "jazz, blue note",
	})
	require.NoError(t, err)

	second, err := ValidateAndCoerce(tmpl, first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
