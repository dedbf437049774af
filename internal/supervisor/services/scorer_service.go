// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/metrics"
	"github.com/fretsonar/fretsonar/internal/ml"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
	"github.com/fretsonar/fretsonar/internal/rank"
)

// ScorerServiceConfig holds configuration for the periodic scorer.
type ScorerServiceConfig struct {
	// PassInterval is how often a full scoring pass runs.
	PassInterval time.Duration

	// ValuationInterval is how often the owned collection is revalued.
	// Valuation is lookup-heavy, so it runs far less often than passes.
	ValuationInterval time.Duration

	// Rank is the per-pass engine configuration.
	Rank rank.Config
}

// ScorerService runs scoring passes on a fixed cadence, persisting the
// ranked result for the dashboard and notification collaborators. A
// fresh predictor is built per pass so newly trained models are picked
// up without a restart.
type ScorerService struct {
	kb         *knowledge.Base
	history    *pricehistory.Store
	lookup     market.LookupClient
	modelStore *ml.ModelStore
	feeds      *feed.Dir
	config     ScorerServiceConfig
	logger     zerolog.Logger
	name       string

	lastValuation time.Time
}

// NewScorerService creates the scorer service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScorerService(
	kb *knowledge.Base,
	history *pricehistory.Store,
	lookup market.LookupClient,
	modelStore *ml.ModelStore,
	feeds *feed.Dir,
	cfg ScorerServiceConfig,
	logger zerolog.Logger,
) *ScorerService {
	if cfg.PassInterval <= 0 {
		cfg.PassInterval = time.Hour
	}
	if cfg.ValuationInterval <= 0 {
		cfg.ValuationInterval = 24 * time.Hour
	}
	return &ScorerService{
		kb:         kb,
		history:    history,
		lookup:     lookup,
		modelStore: modelStore,
		feeds:      feeds,
		config:     cfg,
		logger:     logger.With().Str("service", "scorer").Logger(),
		name:       "scorer",
	}
}

// Serve implements suture.Service. One pass on startup, then on every
// tick.
func (s *ScorerService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("pass_interval", s.config.PassInterval).
		Bool("ml_enabled", s.config.Rank.MLEnabled).
		Msg("scorer starting")

	if err := s.pass(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.PassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pass(ctx); err != nil {
				return err
			}
		}
	}
}

// pass runs one scoring pass and, when due, a collection valuation.
// Feed corruption is logged and skipped; engine errors other than
// cancellation are counted and skipped so a transient failure does not
// thrash the supervisor.
func (s *ScorerService) pass(ctx context.Context) error {
	listings, err := s.feeds.Listings()
	if err != nil {
		s.logger.Error().Err(err).Msg("listings feed unreadable, skipping pass")
		metrics.RecordPassError()
		return nil
	}
	collection, err := s.feeds.Collection()
	if err != nil {
		s.logger.Error().Err(err).Msg("collection feed unreadable, scoring without fit context")
		collection = nil
	}

	predictor := ml.NewPredictor(s.modelStore, s.logger)
	engine := rank.NewEngine(s.kb, s.history, s.lookup, predictor, s.logger)

	start := time.Now()
	result, err := engine.Rank(ctx, s.config.Rank, listings, collection)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordPassError()
		s.logger.Error().Err(err).Msg("scoring pass failed")
		return nil
	}
	metrics.RecordPass(time.Since(start), result.ListingsScored)

	if err := s.feeds.WriteRecommendations(result); err != nil {
		s.logger.Error().Err(err).Msg("persisting recommendations failed")
	}

	if time.Since(s.lastValuation) >= s.config.ValuationInterval && len(collection) > 0 {
		if err := s.revalue(ctx, engine, collection); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("collection valuation failed")
		} else {
			s.lastValuation = time.Now()
		}
	}
	return nil
}

func (s *ScorerService) revalue(ctx context.Context, engine *rank.Engine, collection []market.CollectionEntry) error {
	updated, err := engine.ValueCollection(ctx, s.config.Rank, collection)
	if err != nil {
		return err
	}
	if updated == 0 {
		return nil
	}
	return s.feeds.WriteCollection(collection)
}

// String implements fmt.Stringer for suture logs.
func (s *ScorerService) String() string {
	return s.name
}
