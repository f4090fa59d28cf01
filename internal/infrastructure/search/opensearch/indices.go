package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

const (
	itemsAliasInfix  = "items_"
	collectionsInfix = "collections"

	// firstIndexSuffix names the initial physical index behind a collection
	// alias when datetime partitioning is off.
	firstIndexSuffix = "-000001"

	// monthSuffixLayout is the physical index suffix under datetime
	// partitioning, one index per calendar month of item datetime.
	monthSuffixLayout = "2006.01"
)

// IndexManager owns the catalog's index layout: one alias per collection in
// front of one or more physical indices, an index template applied to every
// items index, and the collections metadata index. Readers and writers never
// see physical index names.
type IndexManager struct {
	client *Client
	cfg    config.CatalogConfig
	logger logging.Logger

	// mu guards the per-collection creation locks; each collection gets its
	// own lock so concurrent first-writes to different collections do not
	// serialize.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIndexManager returns an IndexManager over the given client.
func NewIndexManager(client *Client, cfg config.CatalogConfig, logger logging.Logger) *IndexManager {
	return &IndexManager{
		client: client,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// ItemsAlias is the read/write alias of a collection's items.
func (m *IndexManager) ItemsAlias(collection string) string {
	return m.cfg.IndexPrefix + itemsAliasInfix + collection
}

// ItemsWildcard matches the aliases of every collection.
func (m *IndexManager) ItemsWildcard() string {
	return m.cfg.IndexPrefix + itemsAliasInfix + "*"
}

// CollectionsIndex is the metadata index holding collection documents.
func (m *IndexManager) CollectionsIndex() string {
	return m.cfg.IndexPrefix + collectionsInfix
}

func (m *IndexManager) collectionLock(collection string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		m.locks[collection] = l
	}
	return l
}

// EnsureTemplates registers the items index template and creates the
// collections index if missing. The service treats failure here as fatal:
// indices created without the template would carry wrong mappings, which is
// far harder to repair than a failed start.
func (m *IndexManager) EnsureTemplates(ctx context.Context) error {
	tmpl := map[string]interface{}{
		"index_patterns": []string{m.ItemsWildcard()},
		"template": map[string]interface{}{
			"settings": m.itemsSettings(),
			"mappings": itemsMappings(),
		},
	}
	body, err := json.Marshal(tmpl)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal items index template")
	}

	name := m.cfg.IndexPrefix + "items"
	req := opensearchapi.IndicesPutIndexTemplateRequest{
		Name: name,
		Body: bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "index template request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return engineError(resp, errors.ErrCodeTemplateRegistration, "index template registration rejected")
	}
	m.logger.Info("items index template registered", logging.String("template", name))

	return m.ensureCollectionsIndex(ctx)
}

func (m *IndexManager) ensureCollectionsIndex(ctx context.Context) error {
	exists, err := m.indexExists(ctx, m.CollectionsIndex())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	mapping := catalog.IndexMapping{
		Settings: m.itemsSettings(),
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"id":          map[string]interface{}{"type": "keyword"},
				"title":       map[string]interface{}{"type": "text"},
				"description": map[string]interface{}{"type": "text"},
				"keywords":    map[string]interface{}{"type": "keyword"},
				"license":     map[string]interface{}{"type": "keyword"},
			},
		},
	}
	return m.createIndex(ctx, m.CollectionsIndex(), mapping, "")
}

// CreateCollectionIndex creates the first physical index and alias of a new
// collection. Under datetime partitioning indices are instead created lazily
// per month on first write, so this only verifies the alias is free.
func (m *IndexManager) CreateCollectionIndex(ctx context.Context, collection string) error {
	alias := m.ItemsAlias(collection)

	lock := m.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	exists, err := m.aliasExists(ctx, alias)
	if err != nil {
		return err
	}
	if exists {
		return errors.New(errors.ErrCodeIndexAlreadyExists, "collection index already exists").
			WithDetail(collection)
	}
	if m.cfg.DatetimePartitioning {
		return nil
	}
	return m.createIndex(ctx, alias+firstIndexSuffix, catalog.IndexMapping{}, alias)
}

// DeleteCollectionIndices removes every physical index behind a collection's
// alias in one call; the alias disappears with its last index, so readers
// never observe a half-deleted collection.
func (m *IndexManager) DeleteCollectionIndices(ctx context.Context, collection string) error {
	alias := m.ItemsAlias(collection)

	req := opensearchapi.IndicesDeleteRequest{
		Index:             []string{alias + "*"},
		ExpandWildcards:   "open",
		AllowNoIndices:    opensearchapi.BoolPtr(false),
		IgnoreUnavailable: opensearchapi.BoolPtr(false),
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "delete indices request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return errors.New(errors.ErrCodeIndexNotFound, "collection has no indices").WithDetail(collection)
	}
	if resp.IsError() {
		return engineError(resp, errors.ErrCodeEngineResponse, "delete indices rejected")
	}

	m.logger.Warn("collection indices deleted", logging.String("collection", collection))
	return nil
}

// ResolveWriteTarget returns the index name a new or updated item document
// must be written to, creating the monthly partition on first use. datetime
// is the item's datetime property.
func (m *IndexManager) ResolveWriteTarget(ctx context.Context, collection string, datetime time.Time) (string, error) {
	alias := m.ItemsAlias(collection)
	if !m.cfg.DatetimePartitioning {
		return alias, nil
	}

	target := alias + "-" + datetime.UTC().Format(monthSuffixLayout)

	lock := m.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	exists, err := m.indexExists(ctx, target)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := m.createIndex(ctx, target, catalog.IndexMapping{}, alias); err != nil {
			// Lost a create race against another node.
			if !errors.IsCode(err, errors.ErrCodeIndexAlreadyExists) {
				return "", err
			}
		}
	}
	return target, nil
}

// ResolveReadTargets returns the index names a search over the given
// collections must cover. An empty collection list means all collections.
// Under datetime partitioning a bounded datetime interval narrows the list
// to the months that can hold matching items; an index whose temporal
// coverage cannot be determined is always included.
func (m *IndexManager) ResolveReadTargets(ctx context.Context, collections []string, start, end *time.Time) ([]string, error) {
	aliases := make([]string, 0, len(collections))
	if len(collections) == 0 {
		aliases = append(aliases, m.ItemsWildcard())
	} else {
		for _, c := range collections {
			aliases = append(aliases, m.ItemsAlias(c))
		}
	}

	if !m.cfg.DatetimePartitioning || (start == nil && end == nil) {
		return aliases, nil
	}

	backing, err := m.aliasIndices(ctx, aliases)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(backing))
	for _, idx := range backing {
		if monthOverlaps(idx, start, end) {
			targets = append(targets, idx)
		}
	}
	// The datetime filter in the query is what guarantees correctness; when
	// narrowing leaves nothing the aliases still yield an empty, valid search.
	if len(targets) == 0 {
		return aliases, nil
	}
	return targets, nil
}

// monthOverlaps reports whether the index's month suffix intersects the
// interval. Indices without a parseable month suffix are included: unknown
// coverage must never exclude results.
func monthOverlaps(index string, start, end *time.Time) bool {
	pos := strings.LastIndex(index, "-")
	if pos < 0 {
		return true
	}
	month, err := time.Parse(monthSuffixLayout, index[pos+1:])
	if err != nil {
		return true
	}
	monthStart := month
	monthEnd := month.AddDate(0, 1, 0)

	if start != nil && !monthEnd.After(*start) {
		return false
	}
	if end != nil && monthStart.After(*end) {
		return false
	}
	return true
}

func (m *IndexManager) aliasIndices(ctx context.Context, aliases []string) ([]string, error) {
	req := opensearchapi.IndicesGetAliasRequest{
		Name: aliases,
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "get alias request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, engineError(resp, errors.ErrCodeEngineResponse, "get alias rejected")
	}

	var body map[string]struct {
		Aliases map[string]interface{} `json:"aliases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEngineResponse, "failed to decode alias response")
	}

	indices := make([]string, 0, len(body))
	for name := range body {
		indices = append(indices, name)
	}
	return indices, nil
}

func (m *IndexManager) createIndex(ctx context.Context, name string, mapping catalog.IndexMapping, alias string) error {
	doc := map[string]interface{}{}
	if mapping.Settings != nil {
		doc["settings"] = mapping.Settings
	}
	if mapping.Mappings != nil {
		doc["mappings"] = mapping.Mappings
	}
	if alias != "" {
		doc["aliases"] = map[string]interface{}{alias: map[string]interface{}{}}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index body")
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendUnavailable, "create index request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 400 {
		// resource_already_exists_exception on a create race.
		return engineError(resp, errors.ErrCodeIndexAlreadyExists, "index already exists")
	}
	if resp.IsError() {
		return engineError(resp, errors.ErrCodeIndexCreationFailed, "index creation rejected")
	}

	m.logger.Info("index created", logging.String("index", name), logging.String("alias", alias))
	return nil
}

func (m *IndexManager) indexExists(ctx context.Context, name string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{name},
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "index exists request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, engineError(resp, errors.ErrCodeEngineResponse, "index exists check failed")
}

func (m *IndexManager) aliasExists(ctx context.Context, alias string) (bool, error) {
	req := opensearchapi.IndicesExistsAliasRequest{
		Name: []string{alias},
	}
	resp, err := req.Do(ctx, m.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeBackendUnavailable, "alias exists request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, engineError(resp, errors.ErrCodeEngineResponse, "alias exists check failed")
}

func (m *IndexManager) itemsSettings() map[string]interface{} {
	return map[string]interface{}{
		"number_of_shards":   m.cfg.NumberOfShards,
		"number_of_replicas": m.cfg.NumberOfReplicas,
	}
}

// itemsMappings is the field layout of every items index: keyword identity
// fields, geo_shape geometry with a derived geo_point centroid for grid
// aggregations, and dynamic templates typing item properties by value shape.
func itemsMappings() map[string]interface{} {
	return map[string]interface{}{
		"dynamic_templates": []interface{}{
			map[string]interface{}{
				"strings_as_keywords": map[string]interface{}{
					"match_mapping_type": "string",
					"path_match":         "properties.*",
					"mapping":            map[string]interface{}{"type": "keyword"},
				},
			},
		},
		"properties": map[string]interface{}{
			"id":         map[string]interface{}{"type": "keyword"},
			"collection": map[string]interface{}{"type": "keyword"},
			"geometry":   map[string]interface{}{"type": "geo_shape"},
			"centroid":   map[string]interface{}{"type": "geo_point"},
			"bbox":       map[string]interface{}{"type": "float"},
			"assets":     map[string]interface{}{"type": "object", "enabled": false},
			"links":      map[string]interface{}{"type": "object", "enabled": false},
			"properties": map[string]interface{}{
				"properties": map[string]interface{}{
					"datetime":        map[string]interface{}{"type": "date"},
					"start_datetime":  map[string]interface{}{"type": "date"},
					"end_datetime":    map[string]interface{}{"type": "date"},
					"created":         map[string]interface{}{"type": "date"},
					"updated":         map[string]interface{}{"type": "date"},
					"title":           map[string]interface{}{"type": "text"},
					"description":     map[string]interface{}{"type": "text"},
					"keywords":        map[string]interface{}{"type": "keyword"},
					"eo:cloud_cover":  map[string]interface{}{"type": "float"},
					"view:off_nadir":  map[string]interface{}{"type": "float"},
					"view:sun_azimuth": map[string]interface{}{
						"type": "float",
					},
					"view:sun_elevation": map[string]interface{}{
						"type": "float",
					},
					"gsd": map[string]interface{}{"type": "float"},
				},
			},
		},
	}
}

// engineError turns a non-2xx engine response into a typed error carrying the
// engine's own error type and reason when the body is parseable.
func engineError(resp *opensearchapi.Response, code errors.ErrorCode, msg string) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.New(code, msg).
			WithDetail(fmt.Sprintf("%s: %s", errResp.Error.Type, errResp.Error.Reason))
	}
	return errors.New(code, msg).WithDetail(fmt.Sprintf("status %d", resp.StatusCode))
}
