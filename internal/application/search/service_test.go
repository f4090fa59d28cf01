package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// newTestService wires a Service against a httptest engine. The handler only
// needs to answer search requests; the connectivity ping is handled here.
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

	cfg := config.CatalogConfig{
		IndexPrefix:     "geocat_",
		DefaultPageSize: 10,
		MaxPageSize:     100,
		BulkBatchSize:   500,
	}
	resolver := fields.NewResolver(fields.DefaultProperties(), nil)
	aggs := aggregation.NewEngine(aggregation.DefaultRegistry(), resolver)
	adapter, err := aggregation.NewAdapter("opensearch")
	require.NoError(t, err)

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nop)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	svc := NewService(
		opensearch.NewExecutor(client, config.OpenSearchConfig{}, nop),
		opensearch.NewIndexManager(client, cfg, nop),
		resolver,
		aggs,
		adapter,
		cfg,
		metrics,
		nop,
	)
	return svc, func() {
		client.Close()
		server.Close()
	}
}

func searchEngineResponse(hits ...string) string {
	return `{"hits":{"total":{"value":` + `42},"hits":[` + strings.Join(hits, ",") + `]}}`
}

func hitJSON(id string, sortValues string) string {
	return `{"_id":"` + id + `","_index":"geocat_items_s2","_source":{"id":"` + id + `","collection":"s2"},"sort":` + sortValues + `}`
}

func TestSearchFullPageEmitsToken(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchEngineResponse(
			hitJSON("item-1", `[1718380800000,"item-1","s2"]`),
			hitJSON("item-2", `[1718294400000,"item-2","s2"]`),
		)))
	})
	defer done()

	result, err := svc.Search(context.Background(), Params{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.Matched)
	require.Len(t, result.Items, 2)
	require.NotEmpty(t, result.NextToken)

	// The token reproduces the last hit's sort tuple.
	values, err := page.Decode(result.NextToken)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, json.Number("1718294400000"), values[0])
	assert.Equal(t, "item-2", values[1])
}

func TestSearchShortPageHasNoToken(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchEngineResponse(
			hitJSON("item-1", `[1718380800000,"item-1","s2"]`),
		)))
	})
	defer done()

	result, err := svc.Search(context.Background(), Params{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Empty(t, result.NextToken)
}

func TestSearchSendsDecodedTokenAsSearchAfter(t *testing.T) {
	token, err := page.Encode([]interface{}{json.Number("1718380800000"), "item-9", "s2"})
	require.NoError(t, err)

	var body map[string]interface{}
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(searchEngineResponse()))
	})
	defer done()

	_, err = svc.Search(context.Background(), Params{Token: token})
	require.NoError(t, err)

	after, ok := body["search_after"].([]interface{})
	require.True(t, ok, "search_after missing from request body")
	require.Len(t, after, 3)
	assert.Equal(t, float64(1718380800000), after[0])
	assert.Equal(t, "item-9", after[1])
}

func TestSearchTokenSortMismatch(t *testing.T) {
	// Default sort has three keys; a one-value token cannot belong to it.
	token, err := page.Encode([]interface{}{"lonely"})
	require.NoError(t, err)

	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the engine")
	})
	defer done()

	_, err = svc.Search(context.Background(), Params{Token: token})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidPaginationToken))
}

func TestSearchGarbageToken(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the engine")
	})
	defer done()

	_, err := svc.Search(context.Background(), Params{Token: "!!not-a-token!!"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidPaginationToken))
}

func TestSearchLimitHandling(t *testing.T) {
	var body map[string]interface{}
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(searchEngineResponse()))
	})
	defer done()

	// Zero selects the default page size.
	_, err := svc.Search(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, float64(10), body["size"])

	// Oversized limits clamp to the maximum.
	_, err = svc.Search(context.Background(), Params{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, float64(100), body["size"])

	// Negative limits are rejected outright.
	_, err = svc.Search(context.Background(), Params{Limit: -1})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestSearchDefaultSort(t *testing.T) {
	var body map[string]interface{}
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(searchEngineResponse()))
	})
	defer done()

	_, err := svc.Search(context.Background(), Params{})
	require.NoError(t, err)

	sort, ok := body["sort"].([]interface{})
	require.True(t, ok)
	require.Len(t, sort, 3)
	first := sort[0].(map[string]interface{})
	assert.Contains(t, first, "properties.datetime")
}

func newQueryBuilder() *Service {
	resolver := fields.NewResolver(fields.DefaultProperties(), nil)
	return &Service{
		resolver:   resolver,
		translator: filter.NewTranslator(resolver),
		cfg:        config.CatalogConfig{DefaultPageSize: 10, MaxPageSize: 100},
	}
}

func TestBuildQueryMatchAllWhenEmpty(t *testing.T) {
	query, err := newQueryBuilder().buildQuery(Params{}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, query, "match_all")
}

func TestBuildQueryComposesPredicates(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	query, err := newQueryBuilder().buildQuery(Params{
		Collections: []string{"s2"},
		IDs:         []string{"item-1"},
		FreeText:    "flood",
	}, &start, nil)
	require.NoError(t, err)

	must := query["bool"].(map[string]interface{})["must"].([]interface{})
	require.Len(t, must, 4)
}

func TestBuildQueryRejectsBadFilter(t *testing.T) {
	_, err := newQueryBuilder().buildQuery(Params{
		Filter: json.RawMessage(`{"op":"=","args":[{"property":"no:such_field"},"x"]}`),
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFieldNotQueryable))
}

func TestBboxClause(t *testing.T) {
	clause, err := bboxClause([]float64{-10, 40, 5, 52})
	require.NoError(t, err)

	shape := clause["geo_shape"].(map[string]interface{})["geometry"].(map[string]interface{})["shape"].(map[string]interface{})
	assert.Equal(t, "envelope", shape["type"])
	coords := shape["coordinates"].([][]float64)
	assert.Equal(t, []float64{-10, 52}, coords[0])
	assert.Equal(t, []float64{5, 40}, coords[1])
}

func TestBboxClause3D(t *testing.T) {
	clause, err := bboxClause([]float64{-10, 40, 0, 5, 52, 1000})
	require.NoError(t, err)

	shape := clause["geo_shape"].(map[string]interface{})["geometry"].(map[string]interface{})["shape"].(map[string]interface{})
	coords := shape["coordinates"].([][]float64)
	assert.Equal(t, []float64{-10, 52}, coords[0])
	assert.Equal(t, []float64{5, 40}, coords[1])
}

func TestBboxClauseErrors(t *testing.T) {
	_, err := bboxClause([]float64{1, 2, 3})
	require.Error(t, err)

	_, err = bboxClause([]float64{0, 50, 10, 40})
	require.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	start, end, err := ParseInterval("2024-06-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.True(t, start.Equal(*end))

	start, end, err = ParseInterval("2024-06-01T00:00:00Z/2024-07-01T00:00:00Z")
	require.NoError(t, err)
	assert.True(t, start.Before(*end))

	start, end, err = ParseInterval("../2024-07-01T00:00:00Z")
	require.NoError(t, err)
	assert.Nil(t, start)
	require.NotNil(t, end)

	start, end, err = ParseInterval("2024-06-01T00:00:00Z/..")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.Nil(t, end)

	start, end, err = ParseInterval("")
	require.NoError(t, err)
	assert.Nil(t, start)
	assert.Nil(t, end)

	_, _, err = ParseInterval("../..")
	require.Error(t, err)

	_, _, err = ParseInterval("2024-07-01T00:00:00Z/2024-06-01T00:00:00Z")
	require.Error(t, err)

	_, _, err = ParseInterval("not-a-date")
	require.Error(t, err)
}

func TestParseSortBy(t *testing.T) {
	assert.Nil(t, ParseSortBy(""))

	got := ParseSortBy("-datetime,+id,collection")
	require.Len(t, got, 3)
	assert.Equal(t, catalog.SortField{Field: "datetime", Direction: catalog.SortDesc}, got[0])
	assert.Equal(t, catalog.SortField{Field: "id", Direction: catalog.SortAsc}, got[1])
	assert.Equal(t, catalog.SortField{Field: "collection", Direction: catalog.SortAsc}, got[2])
}

func TestParseBbox(t *testing.T) {
	got, err := ParseBbox("-10.5, 40, 5, 52")
	require.NoError(t, err)
	assert.Equal(t, []float64{-10.5, 40, 5, 52}, got)

	_, err = ParseBbox("-10,forty,5,52")
	require.Error(t, err)

	got, err = ParseBbox("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnsureTieBreak(t *testing.T) {
	got := ensureTieBreak([]catalog.SortField{{Field: "datetime", Direction: catalog.SortDesc}})
	require.Len(t, got, 2)
	assert.Equal(t, "id", got[1].Field)

	// A sort already containing id is left alone.
	in := []catalog.SortField{{Field: "id", Direction: catalog.SortAsc}}
	assert.Equal(t, in, ensureTieBreak(in))
}
