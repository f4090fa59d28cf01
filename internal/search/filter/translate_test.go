package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

func newTestTranslator(excluded ...string) *Translator {
	return NewTranslator(fields.NewResolver(fields.DefaultProperties(), excluded))
}

func translateJSON(t *testing.T, tr *Translator, raw string) map[string]interface{} {
	t.Helper()
	expr, err := Parse(json.RawMessage(raw))
	require.NoError(t, err)
	clause, err := tr.Translate(expr)
	require.NoError(t, err)
	return clause
}

func TestTranslateEqBecomesTerm(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"=","args":[{"property":"collection"},"landsat"]}`)

	term := clause["term"].(map[string]interface{})
	inner := term["collection"].(map[string]interface{})
	assert.Equal(t, "landsat", inner["value"])
}

func TestTranslateNeqBecomesMustNot(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"<>","args":[{"property":"collection"},"landsat"]}`)

	boolClause := clause["bool"].(map[string]interface{})
	mustNot := boolClause["must_not"].([]interface{})
	require.Len(t, mustNot, 1)
	assert.Contains(t, mustNot[0].(map[string]interface{}), "term")
}

func TestTranslateRangeOperators(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"<=","args":[{"property":"eo:cloud_cover"},20]}`)

	rng := clause["range"].(map[string]interface{})
	inner := rng["properties.eo:cloud_cover"].(map[string]interface{})
	assert.Equal(t, json.Number("20"), inner["lte"])
}

func TestTranslateAndOr(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(), `{
		"op":"or","args":[
			{"op":"=","args":[{"property":"platform"},"sentinel-2a"]},
			{"op":"=","args":[{"property":"platform"},"sentinel-2b"]}
		]}`)

	boolClause := clause["bool"].(map[string]interface{})
	should := boolClause["should"].([]interface{})
	assert.Len(t, should, 2)
	assert.Equal(t, 1, boolClause["minimum_should_match"])
}

func TestTranslateLikeBecomesWildcard(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"like","args":[{"property":"platform"},"sentinel-%"]}`)

	wc := clause["wildcard"].(map[string]interface{})
	inner := wc["properties.platform"].(map[string]interface{})
	assert.Equal(t, "sentinel-*", inner["value"])
}

func TestTranslateLikeRejectsNonString(t *testing.T) {
	expr, err := Parse(json.RawMessage(`{"op":"like","args":[{"property":"eo:cloud_cover"},"1%"]}`))
	require.NoError(t, err)

	_, err = newTestTranslator().Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOperatorUnsupported))
}

func TestTranslateInBecomesTerms(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"in","args":[{"property":"collection"},["a","b","c"]]}`)

	terms := clause["terms"].(map[string]interface{})
	assert.Len(t, terms["collection"], 3)
}

func TestTranslateBetweenBecomesRange(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"between","args":[{"property":"gsd"},10,30]}`)

	rng := clause["range"].(map[string]interface{})
	inner := rng["properties.gsd"].(map[string]interface{})
	assert.Equal(t, json.Number("10"), inner["gte"])
	assert.Equal(t, json.Number("30"), inner["lte"])
}

func TestTranslateIsNullBecomesMustNotExists(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"isNull","args":[{"property":"eo:cloud_cover"}]}`)

	boolClause := clause["bool"].(map[string]interface{})
	mustNot := boolClause["must_not"].([]interface{})
	exists := mustNot[0].(map[string]interface{})["exists"].(map[string]interface{})
	assert.Equal(t, "properties.eo:cloud_cover", exists["field"])
}

func TestTranslateIntersects(t *testing.T) {
	clause := translateJSON(t, newTestTranslator(),
		`{"op":"s_intersects","args":[{"property":"geometry"},{"type":"Point","coordinates":[5.0,52.0]}]}`)

	gs := clause["geo_shape"].(map[string]interface{})
	inner := gs["geometry"].(map[string]interface{})
	assert.Equal(t, "intersects", inner["relation"])
	assert.NotNil(t, inner["shape"])
}

func TestTranslateIntersectsRejectsInvalidGeometry(t *testing.T) {
	expr, err := Parse(json.RawMessage(
		`{"op":"s_intersects","args":[{"property":"geometry"},{"type":"Nonagon","coordinates":[1]}]}`))
	require.NoError(t, err)

	_, err = newTestTranslator().Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidFilter))
}

func TestTranslateLiteralTypeMismatch(t *testing.T) {
	// A string where the declared type is number.
	expr, err := Parse(json.RawMessage(`{"op":"=","args":[{"property":"eo:cloud_cover"},"ten"]}`))
	require.NoError(t, err)

	_, err = newTestTranslator().Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLiteralTypeMismatch))
}

func TestTranslateDatetimeLiteralValidated(t *testing.T) {
	expr, err := Parse(json.RawMessage(`{"op":">","args":[{"property":"datetime"},"not-a-date"]}`))
	require.NoError(t, err)

	_, err = newTestTranslator().Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLiteralTypeMismatch))
}

func TestTranslateExcludedFieldFails(t *testing.T) {
	expr, err := Parse(json.RawMessage(`{"op":"=","args":[{"property":"platform"},"x"]}`))
	require.NoError(t, err)

	_, err = newTestTranslator("platform").Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFieldNotQueryable))
}

func TestTranslateRangeOnBooleanRejected(t *testing.T) {
	props := fields.DefaultProperties()
	props["active"] = fields.TypeBoolean
	tr := NewTranslator(fields.NewResolver(props, nil))

	expr, err := Parse(json.RawMessage(`{"op":"<","args":[{"property":"active"},true]}`))
	require.NoError(t, err)

	_, err = tr.Translate(expr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOperatorUnsupported))
}

func TestParseDatetimeForms(t *testing.T) {
	for _, ok := range []string{
		"2024-06-01T12:00:00Z",
		"2024-06-01T12:00:00.123456Z",
		"2024-06-01T12:00:00+02:00",
		"2024-06-01",
	} {
		_, err := ParseDatetime(ok)
		assert.NoError(t, err, ok)
	}
	_, err := ParseDatetime("06/01/2024")
	assert.Error(t, err)
}
