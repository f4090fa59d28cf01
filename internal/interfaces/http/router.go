// Package http assembles the catalog's HTTP surface: routes, middleware, and
// the server lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/interfaces/http/handlers"
	"github.com/cloudvista/geocatalog/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	SearchHandler      *handlers.SearchHandler
	CollectionsHandler *handlers.CollectionsHandler
	IngestHandler      *handlers.IngestHandler
	HealthHandler      *handlers.HealthHandler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector

	// Mode is the gin mode: "debug", "release", or "test".
	Mode string
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	if h := cfg.SearchHandler; h != nil {
		r.GET("/search", h.SearchGET)
		r.POST("/search", h.SearchPOST)
		r.GET("/aggregate", h.AggregateGET)
		r.POST("/aggregate", h.AggregatePOST)
		r.GET("/aggregations", h.Aggregations)
		r.GET("/queryables", h.Queryables)
	}

	if h := cfg.CollectionsHandler; h != nil {
		r.GET("/collections", h.List)
		r.POST("/collections", h.Create)
		r.GET("/collections/:collectionId", h.Get)
		r.DELETE("/collections/:collectionId", h.Delete)
		r.GET("/collections/:collectionId/items/:itemId", h.Item)
		if cfg.SearchHandler != nil {
			r.GET("/collections/:collectionId/items", cfg.SearchHandler.SearchGET)
		}
	}

	if h := cfg.IngestHandler; h != nil {
		r.POST("/ingest/items", h.Upsert)
		r.POST("/ingest/items/delete", h.Delete)
	}

	return r
}
