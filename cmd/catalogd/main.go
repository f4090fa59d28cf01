// Command catalogd runs the geospatial catalog API service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudvista/geocatalog/internal/application/collections"
	"github.com/cloudvista/geocatalog/internal/application/ingest"
	appsearch "github.com/cloudvista/geocatalog/internal/application/search"
	"github.com/cloudvista/geocatalog/internal/config"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/logging"
	"github.com/cloudvista/geocatalog/internal/infrastructure/monitoring/prometheus"
	"github.com/cloudvista/geocatalog/internal/infrastructure/search/opensearch"
	httpserver "github.com/cloudvista/geocatalog/internal/interfaces/http"
	"github.com/cloudvista/geocatalog/internal/interfaces/http/handlers"
	"github.com/cloudvista/geocatalog/internal/search/aggregation"
	"github.com/cloudvista/geocatalog/internal/search/fields"
)

func main() {
	root := &cobra.Command{
		Use:          "catalogd",
		Short:        "Geospatial catalog API service",
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (env-only when empty)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(ensureTemplatesCmd(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromEnv()
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			client, err := opensearch.NewClient(cfg.OpenSearch, logger.Named("engine"))
			if err != nil {
				return err
			}
			defer client.Close()

			indices := opensearch.NewIndexManager(client, cfg.Catalog, logger.Named("indices"))
			// Missing templates at startup are fatal: indices created without
			// them would carry wrong mappings.
			if err := indices.EnsureTemplates(cmd.Context()); err != nil {
				return err
			}

			collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
				Namespace:            "geocatalog",
				EnableProcessMetrics: true,
				EnableGoMetrics:      true,
			}, logger.Named("metrics"))
			if err != nil {
				return err
			}
			metrics := prometheus.NewAppMetrics(collector)

			resolver := fields.NewResolver(fields.DefaultProperties(), cfg.Catalog.ExcludedFields)
			adapter, err := aggregation.NewAdapter(cfg.OpenSearch.Flavor)
			if err != nil {
				return err
			}
			aggEngine := aggregation.NewEngine(aggregation.DefaultRegistry(), resolver)

			executor := opensearch.NewExecutor(client, cfg.OpenSearch, logger.Named("executor"))
			writer := opensearch.NewBulkWriter(client, cfg.Catalog, logger.Named("bulk"))

			searchSvc := appsearch.NewService(executor, indices, resolver, aggEngine, adapter,
				cfg.Catalog, metrics, logger.Named("search"))
			ingestSvc := ingest.NewService(writer, executor, indices, metrics, logger.Named("ingest"))
			collSvc := collections.NewService(executor, indices, metrics,
				aggEngine.Registry().Names(), logger.Named("collections"))

			router := httpserver.NewRouter(httpserver.RouterConfig{
				SearchHandler:      handlers.NewSearchHandler(searchSvc),
				CollectionsHandler: handlers.NewCollectionsHandler(collSvc, searchSvc),
				IngestHandler:      handlers.NewIngestHandler(ingestSvc),
				HealthHandler:      handlers.NewHealthHandler(client),
				Logger:             logger.Named("http"),
				Metrics:            metrics,
				MetricsCollector:   collector,
				Mode:               cfg.Server.Mode,
			})
			server := httpserver.NewServer(cfg.Server, router, logger.Named("http"))

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logger.Info("shutdown signal received", logging.String("signal", sig.String()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Stop(ctx)
		},
	}
}

func ensureTemplatesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-templates",
		Short: "Register index templates and the collections index, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			client, err := opensearch.NewClient(cfg.OpenSearch, logger.Named("engine"))
			if err != nil {
				return err
			}
			defer client.Close()

			indices := opensearch.NewIndexManager(client, cfg.Catalog, logger.Named("indices"))
			return indices.EnsureTemplates(cmd.Context())
		},
	}
}
