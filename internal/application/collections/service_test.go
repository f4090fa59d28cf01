package collections

import (
	"context"
	"encoding/json"
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
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

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

	cfg := config.CatalogConfig{IndexPrefix: "geocat_", NumberOfShards: 1}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nop)
	require.NoError(t, err)

	svc := NewService(
		opensearch.NewExecutor(client, config.OpenSearchConfig{}, nop),
		opensearch.NewIndexManager(client, cfg, nop),
		prometheus.NewAppMetrics(collector),
		aggregation.DefaultRegistry().Names(),
		nop,
	)
	return svc, func() {
		client.Close()
		server.Close()
	}
}

func TestCreateCollection(t *testing.T) {
	var indexed bool
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/geocat_collections/_doc/"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"found":false}`))
		case r.Method == "HEAD" && strings.HasPrefix(r.URL.Path, "/_alias/"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "PUT" && r.URL.Path == "/geocat_items_landsat-c2-000001":
			w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == "PUT" && r.URL.Path == "/geocat_collections/_doc/landsat-c2":
			indexed = true
			w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	defer done()

	err := svc.Create(context.Background(), &catalog.Collection{Id: "landsat-c2", Title: "Landsat Collection 2"}, nil)
	require.NoError(t, err)
	assert.True(t, indexed)
}

func TestCreateCollectionStoresCapabilities(t *testing.T) {
	var stored map[string]interface{}
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/geocat_collections/_doc/"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"found":false}`))
		case r.Method == "HEAD" && strings.HasPrefix(r.URL.Path, "/_alias/"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "PUT" && r.URL.Path == "/geocat_items_landsat-c2-000001":
			w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == "PUT" && r.URL.Path == "/geocat_collections/_doc/landsat-c2":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	defer done()

	err := svc.Create(context.Background(),
		&catalog.Collection{Id: "landsat-c2", Title: "Landsat Collection 2"},
		[]string{"total_count", "datetime_frequency"})
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, "landsat-c2", stored["id"])
	assert.Equal(t, []interface{}{"total_count", "datetime_frequency"}, stored["aggregations"])
}

func TestCreateCollectionRejectsUnknownCapability(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no engine request expected", r.URL.Path)
	})
	defer done()

	err := svc.Create(context.Background(), &catalog.Collection{Id: "landsat-c2"},
		[]string{"median_cloudiness"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestCreateCollectionValidatesID(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	defer done()

	for _, id := range []string{"", "UPPER", "has space", "-leading-dash", "emoji✨"} {
		err := svc.Create(context.Background(), &catalog.Collection{Id: id}, nil)
		require.Error(t, err, id)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), id)
	}
}

func TestCreateCollectionConflict(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"found":true,"_source":{"id":"landsat-c2"}}`))
	})
	defer done()

	err := svc.Create(context.Background(), &catalog.Collection{Id: "landsat-c2"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestGetCollection(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"found":false}`))
			return
		}
		w.Write([]byte(`{"found":true,"_source":{"id":"sentinel-2-l2a","title":"Sentinel-2 L2A"}}`))
	})
	defer done()

	coll, err := svc.Get(context.Background(), "sentinel-2-l2a")
	require.NoError(t, err)
	assert.Equal(t, "sentinel-2-l2a", coll.Id)
	assert.Equal(t, "Sentinel-2 L2A", coll.Title)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestListCollections(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/_search"))
		w.Write([]byte(`{"hits":{"total":{"value":2},"hits":[
			{"_id":"a","_source":{"id":"a"}},
			{"_id":"b","_source":{"id":"b"}}
		]}}`))
	})
	defer done()

	colls, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, colls, 2)
	assert.Equal(t, "a", colls[0].Id)
}

func TestListCollectionsEmptyCatalog(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"}}`))
	})
	defer done()

	colls, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func TestDeleteCollection(t *testing.T) {
	var deletedIndices, deletedDoc bool
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/geocat_collections/_doc/"):
			w.Write([]byte(`{"found":true,"_source":{"id":"landsat-c2"}}`))
		case r.Method == "DELETE" && r.URL.Path == "/geocat_items_landsat-c2*":
			deletedIndices = true
			w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == "DELETE" && r.URL.Path == "/geocat_collections/_doc/landsat-c2":
			deletedDoc = true
			w.Write([]byte(`{"result":"deleted"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	defer done()

	require.NoError(t, svc.Delete(context.Background(), "landsat-c2"))
	assert.True(t, deletedIndices)
	assert.True(t, deletedDoc)
}

func TestDeleteUnknownCollection(t *testing.T) {
	svc, done := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"found":false}`))
	})
	defer done()

	err := svc.Delete(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
