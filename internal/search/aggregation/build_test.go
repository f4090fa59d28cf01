package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultRegistry(), fields.NewResolver(fields.DefaultProperties(), nil))
}

func precisionOf(p int) *int {
	return &p
}

func TestLookupUnknownName(t *testing.T) {
	_, err := newTestEngine().Lookup("median_cloudiness", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedAggregation))
}

func TestLookupHonorsCollectionDeclaration(t *testing.T) {
	e := newTestEngine()

	_, err := e.Lookup("total_count", []string{"total_count", "datetime_min"})
	assert.NoError(t, err)

	_, err = e.Lookup("platform_frequency", []string{"total_count"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedAggregation))

	// A nil declaration list means no restriction.
	_, err = e.Lookup("platform_frequency", nil)
	assert.NoError(t, err)
}

func TestBuildMetric(t *testing.T) {
	e := newTestEngine()

	body, err := e.Build(Request{Name: "total_count"}, nil)
	require.NoError(t, err)
	vc := body["value_count"].(map[string]interface{})
	assert.Equal(t, "id", vc["field"])

	body, err = e.Build(Request{Name: "datetime_min"}, nil)
	require.NoError(t, err)
	m := body["min"].(map[string]interface{})
	assert.Equal(t, "properties.datetime", m["field"])
}

func TestBuildTermsFrequency(t *testing.T) {
	body, err := newTestEngine().Build(Request{Name: "platform_frequency"}, nil)
	require.NoError(t, err)

	terms := body["terms"].(map[string]interface{})
	assert.Equal(t, "properties.platform", terms["field"])
	assert.Equal(t, defaultFrequencySize, terms["size"])
}

func TestBuildNumericHistogramFrequency(t *testing.T) {
	body, err := newTestEngine().Build(Request{Name: "cloud_cover_frequency"}, nil)
	require.NoError(t, err)

	hist := body["histogram"].(map[string]interface{})
	assert.Equal(t, "properties.eo:cloud_cover", hist["field"])
	assert.Equal(t, float64(5), hist["interval"])
}

func TestBuildDatetimeFrequency(t *testing.T) {
	e := newTestEngine()

	body, err := e.Build(Request{Name: "datetime_frequency"}, nil)
	require.NoError(t, err)
	dh := body["date_histogram"].(map[string]interface{})
	assert.Equal(t, DefaultInterval, dh["calendar_interval"])
	assert.Equal(t, "yyyy-MM", dh["format"])

	body, err = e.Build(Request{Name: "datetime_frequency", Interval: "year"}, nil)
	require.NoError(t, err)
	dh = body["date_histogram"].(map[string]interface{})
	assert.Equal(t, "year", dh["calendar_interval"])

	_, err = e.Build(Request{Name: "datetime_frequency", Interval: "fortnight"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAggregationParameter))
}

func TestBuildDatetimeFrequencyFormatTracksInterval(t *testing.T) {
	e := newTestEngine()

	// Day buckets need day-distinct keys: a month-only format would collapse
	// every day of a month into one colliding key.
	for interval, format := range map[string]string{
		"day":   "yyyy-MM-dd",
		"week":  "yyyy-MM-dd",
		"month": "yyyy-MM",
		"year":  "yyyy",
	} {
		body, err := e.Build(Request{Name: "datetime_frequency", Interval: interval}, nil)
		require.NoError(t, err, interval)
		dh := body["date_histogram"].(map[string]interface{})
		assert.Equal(t, interval, dh["calendar_interval"])
		assert.Equal(t, format, dh["format"], interval)
	}
}

func TestBuildIntervalRejectedOnNonDatetime(t *testing.T) {
	_, err := newTestEngine().Build(Request{Name: "platform_frequency", Interval: "month"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAggregationParameter))
}

func TestBuildGeoGridPrecisionBounds(t *testing.T) {
	e := newTestEngine()

	// Default precision applies when the request leaves it unset.
	body, err := e.Build(Request{Name: "centroid_geohash_grid_frequency"}, nil)
	require.NoError(t, err)
	grid := body["geohash_grid"].(map[string]interface{})
	assert.Equal(t, "centroid", grid["field"])
	assert.Equal(t, 2, grid["precision"])

	// The maximum of the range is valid; one past it is not.
	_, err = e.Build(Request{Name: "centroid_geohash_grid_frequency", Precision: precisionOf(12)}, nil)
	assert.NoError(t, err)

	_, err = e.Build(Request{Name: "centroid_geohash_grid_frequency", Precision: precisionOf(13)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAggregationParameter))

	_, err = e.Build(Request{Name: "centroid_geohex_grid_frequency", Precision: precisionOf(16)}, nil)
	require.Error(t, err)

	_, err = e.Build(Request{Name: "geometry_geotile_grid_frequency", Precision: precisionOf(29)}, nil)
	assert.NoError(t, err)

	_, err = e.Build(Request{Name: "geometry_geotile_grid_frequency", Precision: precisionOf(30)}, nil)
	require.Error(t, err)
}

func TestBuildGeoGridPrecisionZero(t *testing.T) {
	e := newTestEngine()

	// Zero is the bottom of the geotile and geohex ranges: a request asking
	// for it gets it, never the default.
	body, err := e.Build(Request{Name: "geometry_geotile_grid_frequency", Precision: precisionOf(0)}, nil)
	require.NoError(t, err)
	grid := body["geotile_grid"].(map[string]interface{})
	assert.Equal(t, 0, grid["precision"])

	body, err = e.Build(Request{Name: "centroid_geohex_grid_frequency", Precision: precisionOf(0)}, nil)
	require.NoError(t, err)
	grid = body["geohex_grid"].(map[string]interface{})
	assert.Equal(t, 0, grid["precision"])

	// Geohash starts at 1, so zero is out of range there.
	_, err = e.Build(Request{Name: "centroid_geohash_grid_frequency", Precision: precisionOf(0)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAggregationParameter))
}

func TestBuildGeoGridBypassesResolver(t *testing.T) {
	// centroid is indexed but deliberately not queryable; the registry path
	// must reach it anyway.
	body, err := newTestEngine().Build(Request{Name: "centroid_geotile_grid_frequency"}, nil)
	require.NoError(t, err)
	grid := body["geotile_grid"].(map[string]interface{})
	assert.Equal(t, "centroid", grid["field"])
}

func TestBuildAll(t *testing.T) {
	e := newTestEngine()

	aggs, err := e.BuildAll([]Request{
		{Name: "total_count"},
		{Name: "collection_frequency"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, aggs, 2)
	assert.Contains(t, aggs, "total_count")
	assert.Contains(t, aggs, "collection_frequency")

	_, err = e.BuildAll([]Request{
		{Name: "total_count"},
		{Name: "bogus"},
	}, nil)
	require.Error(t, err)
}

func TestRegistryNamesSorted(t *testing.T) {
	names := DefaultRegistry().Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Contains(t, names, "total_count")
	assert.Contains(t, names, "grid_code_frequency")
}
