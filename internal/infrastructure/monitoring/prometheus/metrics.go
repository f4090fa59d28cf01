package prometheus

// AppMetrics holds the catalog service's metrics.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Search layer
	SearchDuration      HistogramVec
	SearchResultCount   HistogramVec
	AggregationsTotal   CounterVec
	PaginationTokenErrs CounterVec

	// Ingest layer
	BulkItemsTotal   CounterVec
	BulkBatchSize    HistogramVec
	BulkDuration     HistogramVec
	IndexOpsTotal    CounterVec
	EngineHealthy    GaugeVec
}

// Histogram bucket presets.
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultSearchDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultResultCountBuckets    = []float64{0, 1, 10, 50, 100, 500, 1000, 10000}
	DefaultBatchSizeBuckets      = []float64{1, 10, 50, 100, 500, 1000, 5000}
)

// NewAppMetrics registers the service's metrics against the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.SearchDuration = collector.RegisterHistogram("search_duration_seconds", "Item search duration", DefaultSearchDurationBuckets, "kind")
	m.SearchResultCount = collector.RegisterHistogram("search_result_count", "Items returned per search page", DefaultResultCountBuckets, "kind")
	m.AggregationsTotal = collector.RegisterCounter("aggregations_total", "Aggregation computations", "name", "status")
	m.PaginationTokenErrs = collector.RegisterCounter("pagination_token_errors_total", "Rejected pagination tokens")

	m.BulkItemsTotal = collector.RegisterCounter("bulk_items_total", "Bulk ingest items", "operation", "status")
	m.BulkBatchSize = collector.RegisterHistogram("bulk_batch_size", "Items per bulk request", DefaultBatchSizeBuckets, "operation")
	m.BulkDuration = collector.RegisterHistogram("bulk_duration_seconds", "Bulk request duration", DefaultSearchDurationBuckets, "operation")
	m.IndexOpsTotal = collector.RegisterCounter("index_ops_total", "Index management operations", "operation", "status")
	m.EngineHealthy = collector.RegisterGauge("engine_healthy", "Engine health as seen by the background probe", "cluster")

	return m
}
