package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/quake-map-etl/internal/adapter/http"
	"github.com/couchcryptid/quake-map-etl/internal/adapter/ingv"
	kafkaadapter "github.com/couchcryptid/quake-map-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-map-etl/internal/config"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/couchcryptid/quake-map-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, cfg.LayerWindowSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the feed poller (feature-flagged via INGV_POLL_INTERVAL).
	var publisher *kafkaadapter.FeaturePublisher
	if cfg.INGVPollInterval > 0 {
		client := ingv.NewClient(cfg.INGVBaseURL, cfg.INGVTimeout, metrics, logger)
		source := ingv.NewCachedSource(client, cfg.INGVCacheSize, cfg.INGVCacheTTL, nil, metrics)
		publisher = kafkaadapter.NewFeaturePublisher(cfg, logger)
		poller := ingv.NewPoller(source, publisher, ingv.PollerConfig{
			Interval: cfg.INGVPollInterval,
			Lookback: cfg.INGVPollLookback,
			MinMag:   cfg.INGVMinMag,
		}, nil, logger)

		go func() {
			if err := poller.Run(ctx); err != nil {
				logger.Error("ingv poller error", "error", err)
			}
		}()
	} else {
		logger.Info("ingv poller disabled")
	}

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
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
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
