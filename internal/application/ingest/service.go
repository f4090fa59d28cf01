// Package ingest coordinates bulk item writes: validation, document
// derivation, routing to per-collection indices, and partial-failure
// reporting.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	"github.com/cloudvista/geocatalog/internal/search/filter"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// Service is the bulk ingest coordinator.
type Service struct {
	writer   *opensearch.BulkWriter
	executor *opensearch.Executor
	indices  *opensearch.IndexManager
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

// NewService wires the ingest coordinator.
func NewService(
	writer *opensearch.BulkWriter,
	executor *opensearch.Executor,
	indices *opensearch.IndexManager,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) *Service {
	return &Service{
		writer:   writer,
		executor: executor,
		indices:  indices,
		metrics:  metrics,
		logger:   logger,
	}
}

// BulkUpsert writes the items. Invalid items become failed outcomes without
// aborting the rest; only engine-level failures (unreachable cluster,
// rejected request) surface as errors. With refresh set the writes are
// searchable on return.
func (s *Service) BulkUpsert(ctx context.Context, items []*catalog.Item, refresh bool) (*catalog.BulkResult, error) {
	timer := prometheus.NewTimer(s.metrics.BulkDuration.WithLabelValues("upsert"))
	defer timer.ObserveDuration()
	s.metrics.BulkBatchSize.WithLabelValues("upsert").Observe(float64(len(items)))

	result := &catalog.BulkResult{Outcomes: make([]catalog.BulkOutcome, 0, len(items))}
	ops := make([]opensearch.BulkOp, 0, len(items))

	for _, item := range items {
		op, err := s.upsertOp(ctx, item)
		if err != nil {
			result.Failed++
			result.Outcomes = append(result.Outcomes, catalog.BulkOutcome{
				ItemID:     item.Id,
				Collection: item.Collection,
				Reason:     err.Error(),
			})
			continue
		}
		ops = append(ops, op)
	}

	written, err := s.writer.Execute(ctx, ops, refresh)
	if err != nil {
		return result, err
	}

	result.Succeeded = written.Succeeded
	result.Failed += written.Failed
	result.Outcomes = append(result.Outcomes, written.Outcomes...)

	s.metrics.BulkItemsTotal.WithLabelValues("upsert", "succeeded").Add(float64(result.Succeeded))
	s.metrics.BulkItemsTotal.WithLabelValues("upsert", "failed").Add(float64(result.Failed))
	if result.HasFailures() {
		s.logger.Warn("bulk upsert had failures",
			logging.Int("succeeded", result.Succeeded),
			logging.Int("failed", result.Failed))
	}
	return result, nil
}

// BulkDelete removes the referenced items. Deleting an item that does not
// exist is a no-op success. Refs are deleted through the collection alias so
// callers never need to know the physical index an item landed in.
func (s *Service) BulkDelete(ctx context.Context, refs []catalog.ItemRef, refresh bool) (*catalog.BulkResult, error) {
	timer := prometheus.NewTimer(s.metrics.BulkDuration.WithLabelValues("delete"))
	defer timer.ObserveDuration()
	s.metrics.BulkBatchSize.WithLabelValues("delete").Observe(float64(len(refs)))

	result := &catalog.BulkResult{Outcomes: make([]catalog.BulkOutcome, 0, len(refs))}

	byCollection := make(map[string][]string)
	for _, ref := range refs {
		if ref.Collection == "" || ref.ItemID == "" {
			result.Failed++
			result.Outcomes = append(result.Outcomes, catalog.BulkOutcome{
				ItemID:     ref.ItemID,
				Collection: ref.Collection,
				Reason:     "collection and id are required",
			})
			continue
		}
		byCollection[ref.Collection] = append(byCollection[ref.Collection], ref.ItemID)
	}

	for collection, ids := range byCollection {
		query := map[string]interface{}{
			"terms": map[string]interface{}{"id": ids},
		}
		_, err := s.executor.DeleteByQuery(ctx, []string{s.indices.ItemsAlias(collection)}, query, refresh)
		for _, id := range ids {
			outcome := catalog.BulkOutcome{ItemID: id, Collection: collection, Success: err == nil}
			if err != nil {
				outcome.Reason = err.Error()
				result.Failed++
			} else {
				result.Succeeded++
			}
			result.Outcomes = append(result.Outcomes, outcome)
		}
		if err != nil && errors.IsCode(err, errors.ErrCodeBackendUnavailable) {
			return result, err
		}
	}

	s.metrics.BulkItemsTotal.WithLabelValues("delete", "succeeded").Add(float64(result.Succeeded))
	s.metrics.BulkItemsTotal.WithLabelValues("delete", "failed").Add(float64(result.Failed))
	return result, nil
}

// upsertOp validates one item and builds its write operation, deriving the
// centroid point and bbox the index mapping expects.
func (s *Service) upsertOp(ctx context.Context, item *catalog.Item) (opensearch.BulkOp, error) {
	if item.Id == "" {
		return opensearch.BulkOp{}, errors.New(errors.ErrCodeValidation, "item is missing id")
	}
	if item.Collection == "" {
		return opensearch.BulkOp{}, errors.New(errors.ErrCodeValidation, "item is missing collection")
	}

	datetime, err := itemDatetime(item)
	if err != nil {
		return opensearch.BulkOp{}, err
	}

	doc, err := buildDocument(item)
	if err != nil {
		return opensearch.BulkOp{}, err
	}

	target, err := s.indices.ResolveWriteTarget(ctx, item.Collection, datetime)
	if err != nil {
		return opensearch.BulkOp{}, err
	}

	return opensearch.BulkOp{
		Index:      target,
		ID:         item.Id,
		Collection: item.Collection,
		Doc:        doc,
	}, nil
}

// itemDatetime reads the item's datetime property, falling back to
// start_datetime for range items.
func itemDatetime(item *catalog.Item) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		raw, ok := item.Properties[key]
		if !ok || raw == nil {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			return time.Time{}, errors.Newf(errors.ErrCodeValidation, "item property %q is not a string", key)
		}
		ts, err := filter.ParseDatetime(str)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, errors.ErrCodeValidation, "item property %q is not a datetime", key)
		}
		return ts, nil
	}
	return time.Time{}, errors.New(errors.ErrCodeValidation, "item has no datetime property")
}

// buildDocument turns an item into its indexed form: the item's own fields
// plus the derived centroid geo_point and bbox.
func buildDocument(item *catalog.Item) (map[string]interface{}, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal item")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to rebuild item document")
	}

	g, err := itemGeometry(item)
	if err != nil {
		return nil, err
	}
	if g != nil {
		bounds := g.Bounds()
		if len(item.Bbox) == 0 {
			doc["bbox"] = []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}
		}
		doc["centroid"] = map[string]float64{
			"lon": (bounds.Min(0) + bounds.Max(0)) / 2,
			"lat": (bounds.Min(1) + bounds.Max(1)) / 2,
		}
	}
	return doc, nil
}

func itemGeometry(item *catalog.Item) (geom.T, error) {
	if item.Geometry == nil {
		return nil, nil
	}
	raw, err := json.Marshal(item.Geometry)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "item geometry is not valid JSON")
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation,
			fmt.Sprintf("item %q has invalid GeoJSON geometry", item.Id))
	}
	return g, nil
}
