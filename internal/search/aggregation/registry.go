// Package aggregation builds typed aggregation requests from a closed
// registry and reshapes the engine's heterogeneous aggregation responses into
// one uniform result record.
package aggregation

import (
	"sort"
)

// Kind partitions registry entries by the shape of their result.
type Kind int

const (
	// KindMetric yields a single value (min, max, count).
	KindMetric Kind = iota
	// KindFrequency yields bucketed value→count pairs over string, numeric,
	// or datetime values.
	KindFrequency
	// KindGeoGrid yields counts per spatial grid cell at a precision.
	KindGeoGrid
)

// Grid types for KindGeoGrid entries.
const (
	GridGeohash = "geohash"
	GridGeohex  = "geohex"
	GridGeotile = "geotile"
)

// Datetime frequency intervals accepted by the registry, each paired with the
// key format matching its granularity so bucket keys stay distinct.
var intervalFormats = map[string]string{
	"day":   "yyyy-MM-dd",
	"week":  "yyyy-MM-dd",
	"month": "yyyy-MM",
	"year":  "yyyy",
}

// DefaultInterval is the datetime frequency bucketing applied when the
// caller does not override it.
const DefaultInterval = "month"

// defaultFrequencySize caps the bucket count of terms frequencies.
const defaultFrequencySize = 100

// Entry describes one registered aggregation.
type Entry struct {
	Name string
	Kind Kind

	// Field is the logical field name, resolved through the field resolver.
	// Path, when set, bypasses resolution for internal-only fields (the
	// derived centroid point is indexed but not queryable).
	Field string
	Path  string

	// DataType is the published data_type of the formatted result.
	DataType string

	// Grid configuration (KindGeoGrid only). Each grid type enforces its own
	// valid precision range.
	GridType         string
	MinPrecision     int
	MaxPrecision     int
	DefaultPrecision int

	// NumericInterval is the histogram bucket width for numeric frequencies.
	NumericInterval float64
}

// Registry is the closed set of aggregations the service can compute.
type Registry map[string]Entry

// DefaultRegistry returns the registry of the standard catalog schema.
func DefaultRegistry() Registry {
	entries := []Entry{
		{Name: "total_count", Kind: KindMetric, Field: "id", DataType: "integer"},
		{Name: "datetime_min", Kind: KindMetric, Field: "datetime", DataType: "datetime"},
		{Name: "datetime_max", Kind: KindMetric, Field: "datetime", DataType: "datetime"},

		{Name: "collection_frequency", Kind: KindFrequency, Field: "collection", DataType: "frequency_distribution"},
		{Name: "platform_frequency", Kind: KindFrequency, Field: "platform", DataType: "frequency_distribution"},
		{Name: "grid_code_frequency", Kind: KindFrequency, Field: "grid:code", DataType: "frequency_distribution"},
		{Name: "datetime_frequency", Kind: KindFrequency, Field: "datetime", DataType: "frequency_distribution"},

		{Name: "cloud_cover_frequency", Kind: KindFrequency, Field: "eo:cloud_cover", DataType: "frequency_distribution", NumericInterval: 5},
		{Name: "sun_elevation_frequency", Kind: KindFrequency, Field: "view:sun_elevation", DataType: "frequency_distribution", NumericInterval: 5},
		{Name: "sun_azimuth_frequency", Kind: KindFrequency, Field: "view:sun_azimuth", DataType: "frequency_distribution", NumericInterval: 5},
		{Name: "off_nadir_frequency", Kind: KindFrequency, Field: "view:off_nadir", DataType: "frequency_distribution", NumericInterval: 5},

		{Name: "centroid_geohash_grid_frequency", Kind: KindGeoGrid, Path: "centroid", DataType: "frequency_distribution",
			GridType: GridGeohash, MinPrecision: 1, MaxPrecision: 12, DefaultPrecision: 2},
		{Name: "centroid_geohex_grid_frequency", Kind: KindGeoGrid, Path: "centroid", DataType: "frequency_distribution",
			GridType: GridGeohex, MinPrecision: 0, MaxPrecision: 15, DefaultPrecision: 2},
		{Name: "centroid_geotile_grid_frequency", Kind: KindGeoGrid, Path: "centroid", DataType: "frequency_distribution",
			GridType: GridGeotile, MinPrecision: 0, MaxPrecision: 29, DefaultPrecision: 5},
		{Name: "geometry_geohash_grid_frequency", Kind: KindGeoGrid, Path: "geometry", DataType: "frequency_distribution",
			GridType: GridGeohash, MinPrecision: 1, MaxPrecision: 12, DefaultPrecision: 2},
		{Name: "geometry_geotile_grid_frequency", Kind: KindGeoGrid, Path: "geometry", DataType: "frequency_distribution",
			GridType: GridGeotile, MinPrecision: 0, MaxPrecision: 29, DefaultPrecision: 5},
	}

	reg := make(Registry, len(entries))
	for _, e := range entries {
		reg[e.Name] = e
	}
	return reg
}

// Names returns the registered aggregation names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
