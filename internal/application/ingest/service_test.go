package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

func validItem(id string) *catalog.Item {
	return &catalog.Item{
		Id:         id,
		Collection: "sentinel-2",
		Properties: map[string]interface{}{"datetime": "2024-06-14T16:00:00Z"},
		Geometry: map[string]interface{}{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{0, 0}, {4, 0}, {4, 2}, {0, 2}, {0, 0}}},
		},
	}
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))

	nop := logging.NewNopLogger()
	client, err := opensearch.NewClient(config.OpenSearchConfig{
		Addresses:           []string{server.URL},
		HealthCheckInterval: time.Hour,
	}, nop)
	require.NoError(t, err)

	cfg := config.CatalogConfig{IndexPrefix: "geocat_", BulkBatchSize: 500}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nop)
	require.NoError(t, err)

	svc := NewService(
		opensearch.NewBulkWriter(client, cfg, nop),
		opensearch.NewExecutor(client, config.OpenSearchConfig{}, nop),
		opensearch.NewIndexManager(client, cfg, nop),
		prometheus.NewAppMetrics(collector),
		nop,
	)
	return svc, func() {
		client.Close()
		server.Close()
	}
}

func TestBulkUpsert(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		w.Write([]byte(`{"errors":false,"items":[
			{"index":{"_id":"item-1","status":201}},
			{"index":{"_id":"item-2","status":201}}
		]}`))
	})
	defer done()

	result, err := svc.BulkUpsert(context.Background(), []*catalog.Item{
		validItem("item-1"),
		validItem("item-2"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.False(t, result.HasFailures())
}

func TestBulkUpsertInvalidItemFailsAlone(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":false,"items":[{"index":{"_id":"item-1","status":201}}]}`))
	})
	defer done()

	noID := validItem("")
	result, err := svc.BulkUpsert(context.Background(), []*catalog.Item{
		noID,
		validItem("item-1"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 2)
	assert.Contains(t, result.Outcomes[0].Reason, "missing id")
}

func TestBulkUpsertMissingDatetime(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":false,"items":[]}`))
	})
	defer done()

	item := validItem("item-1")
	item.Properties = map[string]interface{}{}

	result, err := svc.BulkUpsert(context.Background(), []*catalog.Item{item}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Outcomes[0].Reason, "datetime")
}

func TestBulkDeleteGroupsByCollection(t *testing.T) {
	var targets []string
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		targets = append(targets, r.URL.Path)
		w.Write([]byte(`{"deleted": 2}`))
	})
	defer done()

	result, err := svc.BulkDelete(context.Background(), []catalog.ItemRef{
		{Collection: "s2", ItemID: "a"},
		{Collection: "s2", ItemID: "b"},
		{Collection: "landsat", ItemID: "c"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)

	// One delete-by-query per collection alias.
	require.Len(t, targets, 2)
	assert.ElementsMatch(t, []string{
		"/geocat_items_s2/_delete_by_query",
		"/geocat_items_landsat/_delete_by_query",
	}, targets)
}

func TestBulkDeleteRejectsIncompleteRefs(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deleted": 0}`))
	})
	defer done()

	result, err := svc.BulkDelete(context.Background(), []catalog.ItemRef{
		{Collection: "", ItemID: "a"},
		{Collection: "s2", ItemID: ""},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Succeeded)
}

func TestItemDatetime(t *testing.T) {
	item := validItem("x")
	ts, err := itemDatetime(item)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 14, 16, 0, 0, 0, time.UTC), ts.UTC())

	// Range items fall back to start_datetime.
	item.Properties = map[string]interface{}{
		"datetime":       nil,
		"start_datetime": "2024-06-01T00:00:00Z",
		"end_datetime":   "2024-06-30T00:00:00Z",
	}
	ts, err = itemDatetime(item)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ts.UTC())

	item.Properties = map[string]interface{}{"datetime": "yesterday"}
	_, err = itemDatetime(item)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	item.Properties = map[string]interface{}{"datetime": 12345}
	_, err = itemDatetime(item)
	require.Error(t, err)
}

func TestBuildDocumentDerivesCentroidAndBbox(t *testing.T) {
	doc, err := buildDocument(validItem("item-1"))
	require.NoError(t, err)

	centroid, ok := doc["centroid"].(map[string]float64)
	require.True(t, ok)
	assert.InDelta(t, 2.0, centroid["lon"], 1e-9)
	assert.InDelta(t, 1.0, centroid["lat"], 1e-9)

	bbox, ok := doc["bbox"].([]float64)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 4, 2}, bbox)
}

func TestBuildDocumentKeepsExplicitBbox(t *testing.T) {
	item := validItem("item-1")
	item.Bbox = []float64{-1, -1, 5, 3}

	doc, err := buildDocument(item)
	require.NoError(t, err)

	// The item's own bbox survives marshalling untouched.
	_, derived := doc["bbox"].([]float64)
	assert.False(t, derived, "derived bbox must not overwrite the item's own")
	assert.NotNil(t, doc["bbox"])
}

func TestBuildDocumentRejectsBadGeometry(t *testing.T) {
	item := validItem("item-1")
	item.Geometry = map[string]interface{}{"type": "Nonagon", "coordinates": []float64{1}}

	_, err := buildDocument(item)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestBuildDocumentWithoutGeometry(t *testing.T) {
	item := validItem("item-1")
	item.Geometry = nil

	doc, err := buildDocument(item)
	require.NoError(t, err)
	assert.NotContains(t, doc, "centroid")
}
