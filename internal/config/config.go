// Package config defines all configuration structures for the geocatalog
// service. No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OpenSearchConfig holds search engine cluster connection parameters.
type OpenSearchConfig struct {
	Addresses           []string      `mapstructure:"addresses"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	TLSEnabled          bool          `mapstructure:"tls_enabled"`
	TLSInsecure         bool          `mapstructure:"tls_insecure"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	// Flavor selects the aggregation response adapter: "opensearch" (default)
	// or "elasticsearch".
	Flavor string `mapstructure:"flavor"`
}

// CatalogConfig holds the catalog's index layout and query policy settings.
type CatalogConfig struct {
	// IndexPrefix is prepended to every physical index and alias name,
	// separating environments sharing one cluster.
	IndexPrefix string `mapstructure:"index_prefix"`

	// DatetimePartitioning creates one physical index per calendar month of
	// item datetime instead of a single rollover index per collection.
	DatetimePartitioning bool `mapstructure:"datetime_partitioning"`

	// ExcludedFields lists property names (and thereby their nested
	// descendants) that are never queryable or listed in queryables.
	ExcludedFields []string `mapstructure:"excluded_fields"`

	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`

	NumberOfShards   int `mapstructure:"number_of_shards"`
	NumberOfReplicas int `mapstructure:"number_of_replicas"`

	// BulkBatchSize caps the number of operations sent per bulk request;
	// larger inputs are split into successive requests.
	BulkBatchSize int `mapstructure:"bulk_batch_size"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config is the root configuration for the geocatalog service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        logging.Config   `mapstructure:"log"`
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("opensearch.addresses must not be empty")
	}
	switch c.OpenSearch.Flavor {
	case "opensearch", "elasticsearch":
	default:
		return fmt.Errorf("opensearch.flavor must be \"opensearch\" or \"elasticsearch\", got %q", c.OpenSearch.Flavor)
	}
	if c.Catalog.DefaultPageSize <= 0 {
		return fmt.Errorf("catalog.default_page_size must be > 0, got %d", c.Catalog.DefaultPageSize)
	}
	if c.Catalog.MaxPageSize < c.Catalog.DefaultPageSize {
		return fmt.Errorf("catalog.max_page_size (%d) must be >= catalog.default_page_size (%d)",
			c.Catalog.MaxPageSize, c.Catalog.DefaultPageSize)
	}
	if c.Catalog.BulkBatchSize <= 0 {
		return fmt.Errorf("catalog.bulk_batch_size must be > 0, got %d", c.Catalog.BulkBatchSize)
	}
	return nil
}
