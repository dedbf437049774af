// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package main is the entry point for the Fretsonar engine.
//
// Fretsonar watches vintage-instrument dealer listings, learns
// appreciation rates from observed market ranges, detects sales by
// listing disappearance, and produces ranked buy recommendations plus
// periodic valuations of the owned collection.
//
// # Application Architecture
//
// The engine initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file and environment (Koanf v2)
//  2. Badger: durable store for price history, sold-candidate state and models
//  3. Knowledge base: curated brand/model/iconic files from the knowledge dir
//  4. Feeds: the JSON exchange directory shared with the external scrapers
//  5. Ingest: in-process pub/sub routing crawl snapshots to the sold detector
//  6. Supervisor tree: learner, trainer, ingest router, scorer and metrics
//     listener under restart supervision
//
// # Data Flow
//
// The scrapers maintain listings.json, priceguide.json and sold.json in
// the feed directory and publish crawl snapshots. Fretsonar writes back
// recommendations.json, sold confirmations into the listings ledger and
// refreshed values into collection.json.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: services drain within
// the supervisor shutdown timeout and badger is closed last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fretsonar/fretsonar/internal/config"
	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/ingest"
	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/logging"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/ml"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
	"github.com/fretsonar/fretsonar/internal/rank"
	"github.com/fretsonar/fretsonar/internal/solddetect"
	"github.com/fretsonar/fretsonar/internal/supervisor"
	"github.com/fretsonar/fretsonar/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger: config (and its logging section) is not available.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("store_dir", cfg.Store.Dir).
		Bool("in_memory", cfg.Store.InMemory).
		Str("feed_dir", cfg.Feed.Dir).
		Str("knowledge_dir", cfg.Knowledge.Dir).
		Msg("Starting Fretsonar")

	db, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Curated knowledge degrades to empty sections on missing files, so
	// a bare install still scores on price and condition.
	kb := knowledge.Load(cfg.Knowledge.Dir, logger)

	feeds := feed.NewDir(cfg.Feed.Dir, logger)

	history := pricehistory.NewStore(db, logger)
	modelStore := ml.NewModelStore(db)
	collector := ml.NewCollector(db, logger)
	trainer := ml.NewTrainer(ml.DefaultTrainerConfig(), modelStore, kb, logger)

	// Market data is served from the crawler-maintained feeds, wrapped
	// in the rate-limited breaker so a corrupt guide file cannot hammer
	// every pass.
	feedLookup := feed.NewLookup(feeds)
	lookup := market.NewResilientLookup(feedLookup, feedLookup, market.ResilientLookupConfig{
		MinInterval:             cfg.Lookup.MinInterval,
		BreakerFailureThreshold: cfg.Lookup.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.Lookup.BreakerOpenTimeout,
	}, logger)

	soldState := solddetect.NewBadgerStore(db)
	detector := solddetect.New(solddetect.Config{GracePeriod: cfg.Detector.GracePeriod}, soldState, logger)

	bus := ingest.NewBus(ingest.Config{Buffer: cfg.Ingest.Buffer}, logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing snapshot bus")
		}
	}()

	router, err := ingest.NewRouter(ingest.RouterConfig{
		RetryMaxRetries:      cfg.Ingest.RetryMaxRetries,
		RetryInitialInterval: cfg.Ingest.RetryInitialInterval,
		RetryMaxInterval:     cfg.Ingest.RetryMaxInterval,
	}, bus, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create snapshot router")
	}
	router.AddSnapshotHandler("sold-detector",
		services.NewDetectorSink(detector, soldState, feeds, logger))
	// A fresh crawl also advances price history. Recording is idempotent
	// per calendar day, so frequent crawls cost nothing extra.
	router.AddSnapshotHandler("history-recorder",
		ingest.SnapshotHandlerFunc(func(ctx context.Context, snap *market.CrawlSnapshot) error {
			listings, err := feeds.Listings()
			if err != nil {
				return err
			}
			day := snap.ObservedAt
			if day.IsZero() {
				day = time.Now()
			}
			_, err = history.RecordSnapshots(ctx, listings, day)
			return err
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	tree.AddPipelineService(services.NewIngestService(router))
	tree.AddPipelineService(services.NewLearnerService(feeds, history, services.LearnerServiceConfig{
		Interval:    cfg.History.LearnInterval,
		MinSpanDays: cfg.History.MinSpanDays,
	}, logger))
	tree.AddPipelineService(services.NewTrainerService(trainer, collector, feeds, history, lookup, modelStore,
		services.TrainerServiceConfig{
			Interval:       cfg.Training.Interval,
			TrainOnStartup: cfg.Training.TrainOnStartup,
		}, logger))
	logging.Info().Msg("Ingest, learner and trainer services added to supervisor tree")

	tree.AddScoringService(services.NewScorerService(kb, history, lookup, modelStore, feeds,
		services.ScorerServiceConfig{
			PassInterval: cfg.Engine.PassInterval,
			Rank: rank.Config{
				Weights:           cfg.Engine.Weights,
				TopN:              cfg.Engine.TopN,
				MLEnabled:         cfg.Engine.MLEnabled,
				MLBlend:           cfg.Engine.MLBlend,
				BudgetTotal:       cfg.Engine.BudgetTotal,
				BudgetSpent:       cfg.Engine.BudgetSpent,
				LookupConcurrency: cfg.Engine.LookupConcurrency,
			},
		}, logger))
	logging.Info().
		Dur("pass_interval", cfg.Engine.PassInterval).
		Int("top_n", cfg.Engine.TopN).
		Bool("ml_enabled", cfg.Engine.MLEnabled).
		Msg("Scorer service added to supervisor tree")

	if cfg.Server.Enabled {
		tree.AddScoringService(services.NewMetricsService(cfg.Server.Addr, 10*time.Second))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("Metrics listener added to supervisor tree")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Engine stopped gracefully")
}

// openStore opens the shared badger database. Badger's own logger is
// muted; store components log through zerolog instead.
func openStore(cfg *config.Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.Store.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Store.Dir)
	}
	opts.Logger = nil
	return badger.Open(opts)
}
