// Package collections manages collection metadata and the per-collection
// index lifecycle behind it.
package collections

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// Collection ids become part of index names, so the charset is restricted to
// what index names accept.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// Service manages collections: the metadata document and the item indices.
type Service struct {
	executor *opensearch.Executor
	indices  *opensearch.IndexManager
	metrics  *prometheus.AppMetrics
	// knownAggs is the registry's aggregation names; collections may only
	// declare capabilities the catalog can actually compute.
	knownAggs map[string]bool
	logger    logging.Logger
}

// NewService wires the collections service. knownAggregations is the set of
// aggregation names collections may declare as capabilities.
func NewService(
	executor *opensearch.Executor,
	indices *opensearch.IndexManager,
	metrics *prometheus.AppMetrics,
	knownAggregations []string,
	logger logging.Logger,
) *Service {
	known := make(map[string]bool, len(knownAggregations))
	for _, name := range knownAggregations {
		known[name] = true
	}
	return &Service{
		executor:  executor,
		indices:   indices,
		metrics:   metrics,
		knownAggs: known,
		logger:    logger,
	}
}

// Create registers a collection: its metadata document plus the alias and
// first index its items will live in. aggregations is the capability list the
// collection declares; nil leaves it unrestricted.
func (s *Service) Create(ctx context.Context, coll *catalog.Collection, aggregations []string) error {
	if coll.Id == "" {
		return errors.New(errors.ErrCodeValidation, "collection is missing id")
	}
	if !idPattern.MatchString(coll.Id) {
		return errors.New(errors.ErrCodeValidation,
			"collection id must be lowercase alphanumeric with _ . -").WithDetail(coll.Id)
	}
	for _, name := range aggregations {
		if !s.knownAggs[name] {
			return errors.New(errors.ErrCodeValidation,
				"declared aggregation is not computable by this catalog").WithDetail(name)
		}
	}

	_, exists, err := s.executor.GetDocument(ctx, s.indices.CollectionsIndex(), coll.Id)
	if err != nil {
		return err
	}
	if exists {
		return errors.New(errors.ErrCodeConflict, "collection already exists").WithDetail(coll.Id)
	}

	doc, err := collectionDocument(coll, aggregations)
	if err != nil {
		return err
	}

	if err := s.indices.CreateCollectionIndex(ctx, coll.Id); err != nil {
		s.metrics.IndexOpsTotal.WithLabelValues("create", "error").Inc()
		return err
	}
	if err := s.executor.IndexDocument(ctx, s.indices.CollectionsIndex(), coll.Id, doc); err != nil {
		return err
	}

	s.metrics.IndexOpsTotal.WithLabelValues("create", "ok").Inc()
	s.logger.Info("collection created", logging.String("collection", coll.Id))
	return nil
}

// collectionDocument inlines the catalog's own settings next to the STAC
// collection fields so one engine document carries both.
func collectionDocument(coll *catalog.Collection, aggregations []string) (map[string]interface{}, error) {
	raw, err := json.Marshal(coll)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal collection").
			WithDetail(coll.Id)
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal collection").
			WithDetail(coll.Id)
	}
	if len(aggregations) > 0 {
		doc["aggregations"] = aggregations
	}
	return doc, nil
}

// Get fetches one collection's metadata.
func (s *Service) Get(ctx context.Context, id string) (*catalog.Collection, error) {
	source, found, err := s.executor.GetDocument(ctx, s.indices.CollectionsIndex(), id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(errors.ErrCodeNotFound, "collection not found").WithDetail(id)
	}

	var coll catalog.Collection
	if err := json.Unmarshal(source, &coll); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "stored collection is not decodable").
			WithDetail(id)
	}
	return &coll, nil
}

// List returns every collection's metadata.
func (s *Service) List(ctx context.Context) ([]*catalog.Collection, error) {
	out, err := s.executor.Search(ctx, opensearch.SearchInput{
		Indices: []string{s.indices.CollectionsIndex()},
		Query:   map[string]interface{}{"match_all": map[string]interface{}{}},
		Size:    1000,
	})
	if err != nil {
		// A catalog with no collections yet has no collections index.
		if errors.IsCode(err, errors.ErrCodeIndexNotFound) {
			return nil, nil
		}
		return nil, err
	}

	colls := make([]*catalog.Collection, 0, len(out.Hits))
	for _, hit := range out.Hits {
		var coll catalog.Collection
		if err := json.Unmarshal(hit.Source, &coll); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "stored collection is not decodable").
				WithDetail(hit.ID)
		}
		colls = append(colls, &coll)
	}
	return colls, nil
}

// Delete removes a collection: every item index behind its alias, then the
// metadata document. Indices go first so a failure leaves the collection
// visible rather than orphaning unreachable item indices.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.indices.DeleteCollectionIndices(ctx, id); err != nil {
		if !errors.IsCode(err, errors.ErrCodeIndexNotFound) {
			s.metrics.IndexOpsTotal.WithLabelValues("delete", "error").Inc()
			return err
		}
	}
	if err := s.executor.DeleteDocument(ctx, s.indices.CollectionsIndex(), id); err != nil {
		return err
	}

	s.metrics.IndexOpsTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.Warn("collection deleted", logging.String("collection", id))
	return nil
}
