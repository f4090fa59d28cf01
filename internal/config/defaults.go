package config

import "time"

// ApplyDefaults fills every unset field of cfg with its production default.
// It never overwrites a value that is already set.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8082
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.OpenSearch.MaxRetries == 0 {
		cfg.OpenSearch.MaxRetries = 3
	}
	if cfg.OpenSearch.RetryBackoff == 0 {
		cfg.OpenSearch.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.OpenSearch.RequestTimeout == 0 {
		cfg.OpenSearch.RequestTimeout = 30 * time.Second
	}
	if cfg.OpenSearch.MaxIdleConnsPerHost == 0 {
		cfg.OpenSearch.MaxIdleConnsPerHost = 10
	}
	if cfg.OpenSearch.HealthCheckInterval == 0 {
		cfg.OpenSearch.HealthCheckInterval = 30 * time.Second
	}
	if cfg.OpenSearch.Flavor == "" {
		cfg.OpenSearch.Flavor = "opensearch"
	}

	if cfg.Catalog.IndexPrefix == "" {
		cfg.Catalog.IndexPrefix = "geocat_"
	}
	if cfg.Catalog.DefaultPageSize == 0 {
		cfg.Catalog.DefaultPageSize = 10
	}
	if cfg.Catalog.MaxPageSize == 0 {
		cfg.Catalog.MaxPageSize = 10000
	}
	if cfg.Catalog.NumberOfShards == 0 {
		cfg.Catalog.NumberOfShards = 1
	}
	// NumberOfReplicas zero is a valid production value for single-node
	// clusters, so it is left untouched.
	if cfg.Catalog.BulkBatchSize == 0 {
		cfg.Catalog.BulkBatchSize = 500
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
