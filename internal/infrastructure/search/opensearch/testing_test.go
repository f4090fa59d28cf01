package opensearch

import (
	"testing"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
)

// newTestClient builds a Client against a httptest server without going
// through NewClient, which would ping and start the health probe.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	osClient, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses: []string{serverURL},
	})
	require.NoError(t, err)

	c := &Client{
		client: osClient,
		config: config.OpenSearchConfig{Addresses: []string{serverURL}},
		logger: logging.NewNopLogger(),
		cancel: func() {},
	}
	c.healthy.Store(true)
	return c
}

func testCatalogConfig() config.CatalogConfig {
	return config.CatalogConfig{
		IndexPrefix:      "geocat_",
		NumberOfShards:   1,
		NumberOfReplicas: 0,
		BulkBatchSize:    500,
		DefaultPageSize:  10,
		MaxPageSize:      10000,
	}
}
