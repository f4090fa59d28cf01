package search

import (
	"context"
	"encoding/json"

	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	"github.com/cloudvista/geocatalog/internal/search/aggregation"
	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

// AggParams is one aggregation request: the same predicate surface as a
// search plus the aggregations to compute over the matching set.
type AggParams struct {
	Params
	Aggregations []aggregation.Request
}

// Aggregate computes the requested aggregations over the items matching the
// predicates. No items are returned; only the shaped aggregation results.
func (s *Service) Aggregate(ctx context.Context, params AggParams) ([]aggregation.Result, error) {
	timer := prometheus.NewTimer(s.metrics.SearchDuration.WithLabelValues("aggregations"))
	defer timer.ObserveDuration()

	if len(params.Aggregations) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no aggregations requested")
	}

	start, end, err := ParseInterval(params.Datetime)
	if err != nil {
		return nil, err
	}
	query, err := s.buildQuery(params.Params, start, end)
	if err != nil {
		return nil, err
	}

	supported, err := s.declaredAggregations(ctx, params.Collections)
	if err != nil {
		return nil, err
	}

	bodies, err := s.aggs.BuildAll(params.Aggregations, supported)
	if err != nil {
		for _, req := range params.Aggregations {
			s.metrics.AggregationsTotal.WithLabelValues(req.Name, "rejected").Inc()
		}
		return nil, err
	}

	targets, err := s.indices.ResolveReadTargets(ctx, params.Collections, start, end)
	if err != nil {
		return nil, err
	}

	out, err := s.executor.Search(ctx, opensearch.SearchInput{
		Indices: targets,
		Query:   query,
		Size:    0,
		Aggs:    bodies,
	})
	if err != nil {
		return nil, err
	}

	results := make([]aggregation.Result, 0, len(params.Aggregations))
	for _, req := range params.Aggregations {
		entry, err := s.aggs.Lookup(req.Name, supported)
		if err != nil {
			return nil, err
		}
		raw, ok := out.Aggregations[req.Name]
		if !ok {
			return nil, errors.New(errors.ErrCodeAggregationResponseMalformed,
				"engine response is missing a requested aggregation").WithDetail(req.Name)
		}
		result, err := s.adapter.Format(entry, raw)
		if err != nil {
			s.metrics.AggregationsTotal.WithLabelValues(req.Name, "error").Inc()
			return nil, err
		}
		s.metrics.AggregationsTotal.WithLabelValues(req.Name, "ok").Inc()
		results = append(results, result)
	}
	return results, nil
}

// declaredAggregations reads the capability lists of the scoped collections.
// A nil result means no scoped collection restricts its aggregations; when
// several do, only aggregations every one of them declares stay allowed.
func (s *Service) declaredAggregations(ctx context.Context, collections []string) ([]string, error) {
	var supported []string
	declared := false
	for _, id := range collections {
		source, found, err := s.executor.GetDocument(ctx, s.indices.CollectionsIndex(), id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var doc struct {
			Aggregations []string `json:"aggregations"`
		}
		if err := json.Unmarshal(source, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "stored collection is not decodable").
				WithDetail(id)
		}
		if doc.Aggregations == nil {
			continue
		}
		if !declared {
			supported = doc.Aggregations
			declared = true
			continue
		}
		supported = intersectNames(supported, doc.Aggregations)
	}
	return supported, nil
}

func intersectNames(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, name := range b {
		inB[name] = true
	}
	out := make([]string, 0, len(a))
	for _, name := range a {
		if inB[name] {
			out = append(out, name)
		}
	}
	return out
}

// AggregationNames lists the aggregations the service can compute.
func (s *Service) AggregationNames() []string {
	return s.aggs.Registry().Names()
}

// Queryables lists the externally queryable fields.
func (s *Service) Queryables() []fields.Queryable {
	return s.resolver.Queryables()
}
