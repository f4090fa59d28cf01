package aggregation

import (
	"fmt"

	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

// Request names one registry aggregation plus optional overrides. A nil
// Precision or empty Interval selects the registry default; zero is a valid
// precision for the grid types whose range starts there.
type Request struct {
	Name      string
	Precision *int
	Interval  string
}

// Engine validates aggregation requests against the registry and builds the
// engine's native aggregation bodies. It is read-only after construction and
// safe for concurrent use.
type Engine struct {
	registry Registry
	resolver *fields.Resolver
}

// NewEngine returns an Engine over the given registry and field resolver.
func NewEngine(registry Registry, resolver *fields.Resolver) *Engine {
	return &Engine{registry: registry, resolver: resolver}
}

// Registry exposes the engine's registry (for capability listings).
func (e *Engine) Registry() Registry {
	return e.registry
}

// Lookup validates that name is registered and, when supported is non-nil,
// that the target collection declares it. Validation happens before any
// request body is built so malformed input never reaches the backend.
func (e *Engine) Lookup(name string, supported []string) (Entry, error) {
	entry, ok := e.registry[name]
	if !ok {
		return Entry{}, errors.New(errors.ErrCodeUnsupportedAggregation, "unknown aggregation").
			WithDetail(name)
	}
	if supported != nil {
		declared := false
		for _, s := range supported {
			if s == name {
				declared = true
				break
			}
		}
		if !declared {
			return Entry{}, errors.New(errors.ErrCodeUnsupportedAggregation,
				"aggregation not declared by the target collection").WithDetail(name)
		}
	}
	return entry, nil
}

// Build turns one request into its native aggregation body. Precision and
// interval bounds are enforced here: out-of-range values fail fast rather
// than being clamped.
func (e *Engine) Build(req Request, supported []string) (map[string]interface{}, error) {
	entry, err := e.Lookup(req.Name, supported)
	if err != nil {
		return nil, err
	}

	path := entry.Path
	if path == "" {
		ref, err := e.resolver.Resolve(entry.Field)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnsupportedAggregation,
				"aggregation field is not resolvable").WithDetail(entry.Field)
		}
		path = ref.Path
	}

	switch entry.Kind {
	case KindMetric:
		return buildMetric(entry, path)
	case KindFrequency:
		return e.buildFrequency(entry, path, req)
	case KindGeoGrid:
		return buildGeoGrid(entry, path, req)
	default:
		return nil, errors.Newf(errors.ErrCodeInternal, "unhandled aggregation kind %d", entry.Kind)
	}
}

// BuildAll builds the named aggregations into a single "aggs" body keyed by
// aggregation name. Any invalid request fails the whole build.
func (e *Engine) BuildAll(reqs []Request, supported []string) (map[string]interface{}, error) {
	aggs := make(map[string]interface{}, len(reqs))
	for _, req := range reqs {
		body, err := e.Build(req, supported)
		if err != nil {
			return nil, err
		}
		aggs[req.Name] = body
	}
	return aggs, nil
}

func buildMetric(entry Entry, path string) (map[string]interface{}, error) {
	var op string
	switch entry.Name {
	case "total_count":
		op = "value_count"
	case "datetime_min":
		op = "min"
	case "datetime_max":
		op = "max"
	default:
		return nil, errors.Newf(errors.ErrCodeInternal, "metric aggregation %q has no operator", entry.Name)
	}
	return map[string]interface{}{
		op: map[string]interface{}{"field": path},
	}, nil
}

func (e *Engine) buildFrequency(entry Entry, path string, req Request) (map[string]interface{}, error) {
	// Datetime frequency is a calendar histogram; interval overrides are
	// limited to the registry's fixed set.
	if entry.Field == "datetime" {
		interval := req.Interval
		if interval == "" {
			interval = DefaultInterval
		}
		format, ok := intervalFormats[interval]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidAggregationParameter, "unsupported datetime interval").
				WithDetail(fmt.Sprintf("aggregation %q, interval %q", entry.Name, interval))
		}
		return map[string]interface{}{
			"date_histogram": map[string]interface{}{
				"field":             path,
				"calendar_interval": interval,
				"format":            format,
				"min_doc_count":     1,
			},
		}, nil
	}

	if req.Interval != "" {
		return nil, errors.New(errors.ErrCodeInvalidAggregationParameter, "interval is only valid for datetime frequencies").
			WithDetail(entry.Name)
	}

	if entry.NumericInterval > 0 {
		return map[string]interface{}{
			"histogram": map[string]interface{}{
				"field":         path,
				"interval":      entry.NumericInterval,
				"min_doc_count": 1,
			},
		}, nil
	}

	return map[string]interface{}{
		"terms": map[string]interface{}{
			"field": path,
			"size":  defaultFrequencySize,
		},
	}, nil
}

func buildGeoGrid(entry Entry, path string, req Request) (map[string]interface{}, error) {
	precision := entry.DefaultPrecision
	if req.Precision != nil {
		precision = *req.Precision
	}
	if precision < entry.MinPrecision || precision > entry.MaxPrecision {
		return nil, errors.New(errors.ErrCodeInvalidAggregationParameter, "precision out of range").
			WithDetail(fmt.Sprintf("aggregation %q, precision %d, valid range [%d, %d]",
				entry.Name, precision, entry.MinPrecision, entry.MaxPrecision))
	}

	var agg string
	switch entry.GridType {
	case GridGeohash:
		agg = "geohash_grid"
	case GridGeohex:
		agg = "geohex_grid"
	case GridGeotile:
		agg = "geotile_grid"
	default:
		return nil, errors.Newf(errors.ErrCodeInternal, "unhandled grid type %q", entry.GridType)
	}

	return map[string]interface{}{
		agg: map[string]interface{}{
			"field":     path,
			"precision": precision,
		},
	}, nil
}
