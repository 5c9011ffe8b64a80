package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ratefeed/internal/adapters"
	"ratefeed/internal/adapters/cache"
	"ratefeed/internal/adapters/httpclient"
	"ratefeed/internal/adapters/postgres"
	"ratefeed/internal/api"
	"ratefeed/internal/config"
	"ratefeed/internal/export"
	"ratefeed/internal/feed"
	"ratefeed/internal/fetch"
	"ratefeed/internal/metrics"
	"ratefeed/internal/normalize"
	"ratefeed/internal/pipeline"
	"ratefeed/internal/platform/db"
	httpserver "ratefeed/internal/platform/http"
)

// Run wires the application components, starts the pipeline and HTTP server
func Run() error {
	appCfg, err := config.Init()
	if err != nil {
		return err
	}
	// Logger
	logrus.SetOutput(os.Stdout)
	cfgLevel := appCfg.Logging.Level
	if parsedLvl, parseErr := logrus.ParseLevel(cfgLevel); parseErr != nil {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(parsedLvl)
	}
	logrus.Info("✅ Config initialization successful")

	// Root context bound to OS signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bounded context for startup operations (DB connect, migrations)
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Metrics registry
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	// Optional cycle-history sink
	var history adapters.CycleRepository
	if appCfg.DbServer.Enabled {
		pool, poolErr := db.CreatePoolAndPing(startupCtx, appCfg.DbServer)
		if poolErr != nil {
			logrus.WithError(poolErr).Error("Error connecting to db")
			return poolErr
		}
		defer pool.Close()
		if migrateErr := db.Migrate(startupCtx, pool); migrateErr != nil {
			logrus.WithError(migrateErr).Error("Error applying migrations")
			return migrateErr
		}
		history = postgres.NewCycleRepository(pool)
		logrus.Info("✅ Postgres connection successful")
	}

	// Base HTTP client shared by all sources (configurable timeout)
	httpTimeout := appCfg.Network.Timeout()
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	baseHTTPClient := &http.Client{Timeout: httpTimeout}

	// External sources
	sources := make([]adapters.RateSource, 0, len(appCfg.Sources))
	for _, src := range appCfg.Sources {
		sources = append(sources, httpclient.NewAPISource(
			baseHTTPClient, src.ID, src.Name, src.URL, src.Enabled, appCfg.Network.UserAgent,
		))
	}
	if len(sources) == 0 {
		logrus.Warn("No sources configured, feed will stay empty")
	}

	// Last-known-good cache with expiry accounting
	rawCache, err := cache.NewRawRateCache(int64(len(sources))+1, collector.RecordCacheExpired)
	if err != nil {
		logrus.WithError(err).Error("Failed to create rate cache")
		return err
	}
	defer rawCache.Close()

	// Fetch layer
	limiters := fetch.NewSourceLimiters(appCfg.Network.CallsPerSecond)
	retry := fetch.RetryPolicy{
		MaxRetries: uint64(appCfg.Network.MaxRetries),
		BaseDelay:  appCfg.Network.RetryBaseDelay(),
		MaxDelay:   appCfg.Network.RetryMaxDelay(),
	}
	fetcher := fetch.NewSourceFetcher(limiters, retry, appCfg.Network.Timeout())
	orchestrator := fetch.NewOrchestrator(fetcher, rawCache, collector, appCfg.Pipeline.MaxCacheAge())

	// Normalization and export
	normalizer := normalize.NewRateNormalizer(normalize.NewCurrencyNormalizer(nil), normalize.Defaults{
		Reserve:   appCfg.Defaults.Amount,
		MinAmount: appCfg.Defaults.MinAmount,
		MaxAmount: appCfg.Defaults.MaxAmount,
		Param:     appCfg.Defaults.Param,
	})
	exporter := export.NewExporter(appCfg.Output.Path, appCfg.Output.Validate)

	// Pipeline
	service := pipeline.NewService(
		orchestrator, normalizer, exporter, collector, history, sources,
		appCfg.Pipeline.UpdateInterval(),
	)
	// Ensure pipeline stops before the DB pool closes
	defer func() {
		if shutDownErr := service.Shutdown(); shutDownErr != nil {
			logrus.Errorf("Pipeline shutdown error: %v", shutDownErr)
		}
	}()
	// Start pipeline tied to root context
	if startErr := service.Start(ctx); startErr != nil {
		logrus.WithError(startErr).Error("Failed to start pipeline")
		return startErr
	}
	logrus.Info("✅ Pipeline activation successful")

	if !appCfg.HTTPServer.Enabled {
		logrus.Info("HTTP server disabled, running pipeline only")
		<-ctx.Done()
		return nil
	}

	// Handlers and router
	feedHandler := feed.NewHandler(exporter)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router := api.NewRouter(feedHandler, metricsHandler)

	logrus.Info("Starting http server")
	// Block until context is canceled, then perform graceful shutdown.
	if serverErr := httpserver.Start(ctx, appCfg.HTTPServer, router); serverErr != nil {
		// Cancel the root context to stop the pipeline and other in-flight work
		stop()
		logrus.Errorf("HTTP server error: %v", serverErr)
		return serverErr
	}
	return nil
}
