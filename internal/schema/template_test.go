package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
)

func TestBuildRejectsDuplicateFieldNames(t *testing.T) {
	_, err := Definition{
		Name:        "Coins",
		Description: "coin collection",
		Fields: []FieldDefinition{
			{Name: "Year", Type: "number"},
			{Name: "Mint", Type: "text"},
			{Name: "Year", Type: "text"},
		},
	}.Build()

	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("fields[2].name", apperror.CodeDuplicateField))
}

func TestBuildNamesAreCaseSensitive(t *testing.T) {
	fields, err := Definition{
		Name:        "Coins",
		Description: "coin collection",
		Fields: []FieldDefinition{
			{Name: "year", Type: "number"},
			{Name: "Year", Type: "number"},
		},
	}.Build()
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestBuildRequiresSelectOptions(t *testing.T) {
	_, err := Definition{
		Name:        "Cards",
		Description: "trading cards",
		Fields: []FieldDefinition{
			{Name: "Grade", Type: "select", Options: []string{" ", ""}},
		},
	}.Build()

	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("fields[0].options", apperror.CodeMissingOptions))
}

func TestBuildReportsEveryProblem(t *testing.T) {
	_, err := Definition{
		Fields: []FieldDefinition{
			{Name: "", Type: "text"},
			{Name: "Size", Type: "hologram"},
		},
	}.Build()

	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("name", apperror.CodeInvalidDefinition))
	assert.True(t, ve.Has("description", apperror.CodeInvalidDefinition))
	assert.True(t, ve.Has("fields[0].name", apperror.CodeInvalidDefinition))
	assert.True(t, ve.Has("fields[1].type", apperror.CodeUnknownType))
	assert.Len(t, ve.Violations, 4)
}

func TestBuildRequiresAtLeastOneField(t *testing.T) {
	_, err := Definition{Name: "Empty", Description: "nothing"}.Build()

	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("fields", apperror.CodeInvalidDefinition))
}

func TestBuildNormalizesLegacyTypes(t *testing.T) {
	fields, err := Definition{
		Name:        "Legacy",
		Description: "old builder output",
		Fields: []FieldDefinition{
			{Name: "Condition", Type: "dropdown", Options: []string{"Mint"}},
			{Name: "Notes", Type: "textarea", Options: []string{"ignored"}},
		},
	}.Build()
	require.NoError(t, err)

	assert.Equal(t, TypeSelect, fields[0].Type())
	assert.Equal(t, []string{"Mint"}, fields[0].Options())
	assert.Equal(t, TypeParagraph, fields[1].Type())
	assert.Nil(t, fields[1].Options())
}

func TestFieldSpecJSONRoundTrip(t *testing.T) {
	in := FieldSpec{Name: "Condition", Kind: SelectKind{Options: []string{"Mint", "Good"}}, Required: true}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Condition","type":"select","required":true,"options":["Mint","Good"],"description":""}`, string(data))

	var out FieldSpec
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestTemplateDefinitionRebuilds(t *testing.T) {
	fields, err := Definition{
		Name:        "Vinyl",
		Description: "records",
		Fields: []FieldDefinition{
			{Name: "Artist", Type: "text", Required: true},
			{Name: "Condition", Type: "select", Options: []string{"Mint", "Good"}},
		},
	}.Build()
	require.NoError(t, err)

	tmpl := &Template{Name: "Vinyl", Description: "records", Fields: fields}
	rebuilt, err := tmpl.Definition().Build()
	require.NoError(t, err)
	assert.Equal(t, fields, rebuilt)
}
