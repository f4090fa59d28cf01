// Package search orchestrates item searches: it turns validated request
// parameters into one engine query, executes it, and shapes the response page
// with its continuation token.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	"github.com/cloudvista/geocatalog/internal/search/aggregation"
	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/internal/search/filter"
	"github.com/cloudvista/geocatalog/internal/search/page"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// Params is one validated search request.
type Params struct {
	Collections []string
	IDs         []string
	Bbox        []float64
	Intersects  json.RawMessage
	// Datetime is an instant or an interval "start/end" where either side may
	// be ".." for open-ended.
	Datetime   string
	Limit      int
	Token      string
	SortBy     []catalog.SortField
	Filter     json.RawMessage
	FilterLang string
	// FreeText matches against title, description, and keywords.
	FreeText string
}

// Service executes item searches and aggregations.
type Service struct {
	executor   *opensearch.Executor
	indices    *opensearch.IndexManager
	resolver   *fields.Resolver
	translator *filter.Translator
	aggs       *aggregation.Engine
	adapter    aggregation.ResponseAdapter
	cfg        config.CatalogConfig
	metrics    *prometheus.AppMetrics
	logger     logging.Logger
}

// NewService wires the search orchestrator.
func NewService(
	executor *opensearch.Executor,
	indices *opensearch.IndexManager,
	resolver *fields.Resolver,
	aggs *aggregation.Engine,
	adapter aggregation.ResponseAdapter,
	cfg config.CatalogConfig,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *Service {
	return &Service{
		executor:   executor,
		indices:    indices,
		resolver:   resolver,
		translator: filter.NewTranslator(resolver),
		aggs:       aggs,
		adapter:    adapter,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// defaultSort orders newest first with deterministic tie-breaks; the trailing
// keys guarantee a total order so cursor pagination never skips or repeats
// items whose datetimes collide.
func defaultSort() []catalog.SortField {
	return []catalog.SortField{
		{Field: "datetime", Direction: catalog.SortDesc},
		{Field: "id", Direction: catalog.SortDesc},
		{Field: "collection", Direction: catalog.SortDesc},
	}
}

// Search runs one search and returns a page of items.
func (s *Service) Search(ctx context.Context, params Params) (*catalog.ItemPage, error) {
	timer := prometheus.NewTimer(s.metrics.SearchDuration.WithLabelValues("items"))
	defer timer.ObserveDuration()

	limit, err := s.pageSize(params.Limit)
	if err != nil {
		return nil, err
	}

	start, end, err := ParseInterval(params.Datetime)
	if err != nil {
		return nil, err
	}

	query, err := s.buildQuery(params, start, end)
	if err != nil {
		return nil, err
	}

	sortFields := params.SortBy
	if len(sortFields) == 0 {
		sortFields = defaultSort()
	}
	sortFields = ensureTieBreak(sortFields)
	sort, err := s.buildSort(sortFields)
	if err != nil {
		return nil, err
	}

	var searchAfter []interface{}
	if params.Token != "" {
		searchAfter, err = page.Decode(params.Token)
		if err != nil {
			s.metrics.PaginationTokenErrs.WithLabelValues().Inc()
			return nil, err
		}
		if len(searchAfter) != len(sort) {
			s.metrics.PaginationTokenErrs.WithLabelValues().Inc()
			return nil, errors.New(errors.ErrCodeInvalidPaginationToken,
				"token does not match the requested sort").
				WithDetail(fmt.Sprintf("token carries %d values, sort has %d keys", len(searchAfter), len(sort)))
		}
	}

	targets, err := s.indices.ResolveReadTargets(ctx, params.Collections, start, end)
	if err != nil {
		return nil, err
	}

	out, err := s.executor.Search(ctx, opensearch.SearchInput{
		Indices:     targets,
		Query:       query,
		Sort:        sort,
		SearchAfter: searchAfter,
		Size:        limit,
	})
	if err != nil {
		return nil, err
	}

	result := &catalog.ItemPage{
		Items:   make([]*catalog.Item, 0, len(out.Hits)),
		Matched: out.Total,
	}
	for _, hit := range out.Hits {
		var item catalog.Item
		if err := json.Unmarshal(hit.Source, &item); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "stored item is not decodable").
				WithDetail(hit.ID)
		}
		result.Items = append(result.Items, &item)
	}

	// A full page may have more behind it; a short page never does.
	if len(out.Hits) == limit && limit > 0 {
		token, err := page.Encode(out.Hits[len(out.Hits)-1].Sort)
		if err != nil {
			return nil, err
		}
		result.NextToken = token
	}

	s.metrics.SearchResultCount.WithLabelValues("items").Observe(float64(len(result.Items)))
	return result, nil
}

func (s *Service) pageSize(limit int) (int, error) {
	if limit < 0 {
		return 0, errors.Newf(errors.ErrCodeValidation, "limit must be >= 0, got %d", limit)
	}
	if limit == 0 {
		return s.cfg.DefaultPageSize, nil
	}
	if limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize, nil
	}
	return limit, nil
}

// buildQuery composes the request's predicates into one bool query. Absent
// parameters contribute nothing; a request with no predicates matches all.
func (s *Service) buildQuery(params Params, start, end *time.Time) (map[string]interface{}, error) {
	var must []interface{}

	if len(params.Collections) > 0 {
		must = append(must, map[string]interface{}{
			"terms": map[string]interface{}{"collection": params.Collections},
		})
	}
	if len(params.IDs) > 0 {
		must = append(must, map[string]interface{}{
			"terms": map[string]interface{}{"id": params.IDs},
		})
	}

	if start != nil || end != nil {
		bounds := map[string]interface{}{}
		if start != nil {
			bounds["gte"] = start.Format(time.RFC3339Nano)
		}
		if end != nil {
			bounds["lte"] = end.Format(time.RFC3339Nano)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"properties.datetime": bounds},
		})
	}

	if len(params.Bbox) > 0 {
		clause, err := bboxClause(params.Bbox)
		if err != nil {
			return nil, err
		}
		must = append(must, clause)
	}

	if len(params.Intersects) > 0 {
		clause, err := s.translator.Translate(filter.SpatialIntersects{
			Field:    "geometry",
			Geometry: params.Intersects,
		})
		if err != nil {
			return nil, err
		}
		must = append(must, clause)
	}

	if len(params.Filter) > 0 {
		expr, err := filter.ParseWithLang(params.Filter, params.FilterLang)
		if err != nil {
			return nil, err
		}
		clause, err := s.translator.Translate(expr)
		if err != nil {
			return nil, err
		}
		must = append(must, clause)
	}

	if params.FreeText != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  params.FreeText,
				"fields": []string{"properties.title", "properties.description", "properties.keywords"},
			},
		})
	}

	if len(must) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}, nil
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"must": must},
	}, nil
}

func (s *Service) buildSort(sortFields []catalog.SortField) ([]map[string]interface{}, error) {
	sort := make([]map[string]interface{}, 0, len(sortFields))
	for _, sf := range sortFields {
		ref, err := s.resolver.Resolve(sf.Field)
		if err != nil {
			return nil, err
		}
		dir := string(sf.Direction)
		if dir == "" {
			dir = string(catalog.SortAsc)
		}
		sort = append(sort, map[string]interface{}{
			ref.Path: map[string]interface{}{"order": dir},
		})
	}
	return sort, nil
}

// ensureTieBreak appends an id sort key when the caller's sort lacks one, so
// every sort is total and tokens stay unambiguous.
func ensureTieBreak(sortFields []catalog.SortField) []catalog.SortField {
	for _, sf := range sortFields {
		if sf.Field == "id" {
			return sortFields
		}
	}
	return append(sortFields, catalog.SortField{Field: "id", Direction: catalog.SortDesc})
}

func bboxClause(bbox []float64) (map[string]interface{}, error) {
	switch len(bbox) {
	case 4:
	case 6:
		// 3D bbox: drop the elevation bounds.
		bbox = []float64{bbox[0], bbox[1], bbox[3], bbox[4]}
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "bbox must have 4 or 6 values, got %d", len(bbox))
	}
	if bbox[1] > bbox[3] {
		return nil, errors.New(errors.ErrCodeValidation, "bbox south bound exceeds north bound")
	}
	return map[string]interface{}{
		"geo_shape": map[string]interface{}{
			"geometry": map[string]interface{}{
				"shape": map[string]interface{}{
					"type": "envelope",
					// Engine envelopes are [top-left, bottom-right].
					"coordinates": [][]float64{{bbox[0], bbox[3]}, {bbox[2], bbox[1]}},
				},
				"relation": "intersects",
			},
		},
	}, nil
}

// ParseInterval parses a datetime instant or interval. An instant yields
// equal bounds; ".." on either side leaves that bound open. Both sides open
// is rejected.
func ParseInterval(s string) (*time.Time, *time.Time, error) {
	if s == "" {
		return nil, nil, nil
	}

	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		ts, err := filter.ParseDatetime(parts[0])
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid datetime").WithDetail(s)
		}
		return &ts, &ts, nil
	}

	var start, end *time.Time
	if parts[0] != ".." && parts[0] != "" {
		ts, err := filter.ParseDatetime(parts[0])
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid interval start").WithDetail(s)
		}
		start = &ts
	}
	if parts[1] != ".." && parts[1] != "" {
		ts, err := filter.ParseDatetime(parts[1])
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid interval end").WithDetail(s)
		}
		end = &ts
	}
	if start == nil && end == nil {
		return nil, nil, errors.New(errors.ErrCodeValidation, "interval cannot be open on both sides").WithDetail(s)
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, errors.New(errors.ErrCodeValidation, "interval end precedes start").WithDetail(s)
	}
	return start, end, nil
}

// ParseSortBy parses the "+field,-field" sort syntax; a bare field sorts
// ascending.
func ParseSortBy(s string) []catalog.SortField {
	if s == "" {
		return nil
	}
	var out []catalog.SortField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch part[0] {
		case '-':
			out = append(out, catalog.SortField{Field: part[1:], Direction: catalog.SortDesc})
		case '+':
			out = append(out, catalog.SortField{Field: part[1:], Direction: catalog.SortAsc})
		default:
			out = append(out, catalog.SortField{Field: part, Direction: catalog.SortAsc})
		}
	}
	return out
}

// ParseBbox parses a comma-separated bbox parameter.
func ParseBbox(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "bbox values must be numbers").WithDetail(s)
		}
		out = append(out, f)
	}
	return out, nil
}
