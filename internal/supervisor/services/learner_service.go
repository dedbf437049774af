// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package services wraps the engine's long-lived components as suture
// services.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/metrics"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

// LearnerServiceConfig holds configuration for the price-history
// learner.
type LearnerServiceConfig struct {
	// Interval between learning cycles. The snapshot store is
	// idempotent per calendar day, so sub-daily intervals only catch
	// listings that appeared since the last cycle.
	Interval time.Duration

	// MinSpanDays is the minimum snapshot span before a rate is learned.
	MinSpanDays int
}

// LearnerService periodically records market-range snapshots from the
// listings ledger and recomputes learned appreciation rates.
type LearnerService struct {
	feeds  *feed.Dir
	store  *pricehistory.Store
	config LearnerServiceConfig
	logger zerolog.Logger
	name   string
}

// NewLearnerService creates the learner service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewLearnerService(feeds *feed.Dir, store *pricehistory.Store, cfg LearnerServiceConfig, logger zerolog.Logger) *LearnerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.MinSpanDays <= 0 {
		cfg.MinSpanDays = 30
	}
	return &LearnerService{
		feeds:  feeds,
		store:  store,
		config: cfg,
		logger: logger.With().Str("service", "learner").Logger(),
		name:   "history-learner",
	}
}

// Serve implements suture.Service. It runs one learning cycle on
// startup, then on every tick.
func (s *LearnerService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.config.Interval).Msg("learner starting")

	if err := s.learn(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.learn(ctx); err != nil {
				return err
			}
		}
	}
}

// learn runs one snapshot + rate-computation cycle. A corrupt listings
// feed is logged and skipped; the cycle retries next tick. Store errors
// restart the service.
func (s *LearnerService) learn(ctx context.Context) error {
	listings, err := s.feeds.Listings()
	if err != nil {
		s.logger.Error().Err(err).Msg("listings feed unreadable, skipping cycle")
		return nil
	}

	recorded, err := s.store.RecordSnapshots(ctx, listings, time.Now())
	if err != nil {
		return err
	}
	rates, err := s.store.ComputeRates(ctx, s.config.MinSpanDays)
	if err != nil {
		return err
	}

	metrics.RecordLearning(recorded, rates)
	s.logger.Info().
		Int("snapshots", recorded).
		Int("learned_rates", rates).
		Msg("learning cycle complete")
	return nil
}

// String implements fmt.Stringer for suture logs.
func (s *LearnerService) String() string {
	return s.name
}
