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

	"github.com/couchcryptid/ride-hazard-service/internal/adapter/clusterfeed"
	httpadapter "github.com/couchcryptid/ride-hazard-service/internal/adapter/http"
	"github.com/couchcryptid/ride-hazard-service/internal/adapter/incidentfeed"
	kafkaadapter "github.com/couchcryptid/ride-hazard-service/internal/adapter/kafka"
	"github.com/couchcryptid/ride-hazard-service/internal/adapter/mapbox"
	"github.com/couchcryptid/ride-hazard-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/ride-hazard-service/internal/adapter/sqlite"
	"github.com/couchcryptid/ride-hazard-service/internal/aggregator"
	"github.com/couchcryptid/ride-hazard-service/internal/config"
	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/kvstore"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
	"github.com/couchcryptid/ride-hazard-service/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	kv := kvstore.NewSQLite(db)

	dataset, err := sqlite.NewDatasetStore(db, logger).LoadDataset(ctx)
	if err != nil {
		logger.Error("failed to load historical dataset", "error", err)
		os.Exit(1)
	}
	if dataset.Len() == 0 {
		logger.Warn("historical dataset is empty; risk falls back to weather heuristics")
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, mapbox.CacheConfig{
			MaxEntries: cfg.MapboxCacheSize,
			TTL:        cfg.MapboxCacheTTL,
		}, clock, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "cache_ttl", cfg.MapboxCacheTTL, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var clusters aggregator.ClusterSource
	if cfg.ClusterFeedURL != "" {
		clusters = clusterfeed.NewClient(cfg.ClusterFeedURL, cfg.FetchTimeout, logger)
	} else {
		logger.Info("cluster feed disabled")
	}

	incidents := make([]aggregator.IncidentSource, 0, len(cfg.IncidentFeeds))
	for _, feed := range cfg.IncidentFeeds {
		incidents = append(incidents, incidentfeed.NewClient(feed.Name, feed.URL, cfg.FetchTimeout, clock, logger))
	}

	agg := aggregator.New(aggregator.Config{
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
	}, clusters, incidents, kv, clock, logger, metrics)

	provider := openmeteo.NewClient(cfg.WeatherAPIURL, cfg.FetchTimeout, logger)
	synth := weather.NewSynthesizer(provider, geocoder, dataset, kv, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, agg, synth, kv, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := agg.Start(ctx); err != nil {
		logger.Error("aggregator start failed", "error", err)
		os.Exit(1)
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		snapshots, unsubscribe := agg.Subscribe()
		defer unsubscribe()
		go writer.Run(ctx, snapshots)

		reader = kafkaadapter.NewReader(cfg, logger)
		go agg.WatchSignals(ctx, reader)

		logger.Info("kafka enabled",
			"brokers", cfg.KafkaBrokers,
			"snapshot_topic", cfg.KafkaSnapshotTopic,
			"signal_topic", cfg.KafkaSignalTopic,
		)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	agg.Stop()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
