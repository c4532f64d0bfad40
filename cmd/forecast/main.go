package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/harborfresh/order-forecast/internal/adapter/http"
	kafkaadapter "github.com/harborfresh/order-forecast/internal/adapter/kafka"
	"github.com/harborfresh/order-forecast/internal/adapter/postgres"
	"github.com/harborfresh/order-forecast/internal/adapter/weathercache"
	"github.com/harborfresh/order-forecast/internal/config"
	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
	"github.com/harborfresh/order-forecast/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	scenarios, err := config.LoadScenarios(cfg.ScenariosPath)
	if err != nil {
		logger.Error("failed to load scenarios", "error", err)
		os.Exit(1)
	}
	logger.Info("scenarios loaded", "count", len(scenarios))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres carries the order sink and the weather observations
	// (feature-flagged via POSTGRES_ENABLED / POSTGRES_DSN).
	var weather domain.WeatherLookup
	var store *postgres.Store
	if cfg.PostgresEnabled {
		store, err = postgres.Open(cfg, logger)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		weather = weathercache.New(postgres.NewWeatherSource(store), cfg.WeatherCacheSize, metrics)
		logger.Info("postgres enabled", "weather_cache_size", cfg.WeatherCacheSize)
	} else {
		logger.Info("postgres disabled, weather pass off")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	sinks := []pipeline.RecordSink{writer}
	if store != nil {
		sinks = append(sinks, store)
	}

	engine := pipeline.NewEngine(weather, logger, metrics)
	runner := pipeline.NewRunner(engine, scenarios, cfg.WorkerCount, logger)
	assembler := pipeline.NewAssembler(clockwork.NewRealClock(), cfg.BatchFlushInterval)
	svc := pipeline.NewService(reader, assembler, runner, sinks, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start forecast service.
	go func() {
		if err := svc.Run(ctx); err != nil {
			logger.Error("forecast service error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
