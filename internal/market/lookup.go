// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package market

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/fretsonar/fretsonar/internal/metrics"
)

// ErrNoMarketData indicates the price guide has no range for a brand+model.
// It is an expected outcome, not a failure: callers score with neutral
// defaults.
var ErrNoMarketData = errors.New("market: no price guide data")

// PriceRange is a price-guide low/high estimate for a brand+model.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Mid returns the range midpoint.
func (r PriceRange) Mid() float64 {
	return (r.Low + r.High) / 2
}

// LookupClient fetches the current price-guide range for a brand+model.
// Implementations live outside this module (the scraper adapters); the
// engine only depends on this interface.
type LookupClient interface {
	MarketRange(ctx context.Context, brand, model, year string) (*PriceRange, error)
}

// SoldLookupClient fetches historical completed sales for a brand+model.
// Used by the training-data collector.
type SoldLookupClient interface {
	SoldTransactions(ctx context.Context, brand, model string) ([]SoldTransaction, error)
}

// ResilientLookupConfig tunes the breaker and rate limiter wrapped around a
// lookup client.
type ResilientLookupConfig struct {
	// MinInterval is the minimum spacing between upstream calls.
	// Default: 500ms.
	MinInterval time.Duration

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the breaker. Default: 5.
	BreakerFailureThreshold uint32

	// BreakerOpenTimeout is how long the breaker stays open before
	// probing again. Default: 30s.
	BreakerOpenTimeout time.Duration
}

func (c *ResilientLookupConfig) applyDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = 500 * time.Millisecond
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 30 * time.Second
	}
}

// ResilientLookup wraps a LookupClient (and optionally a SoldLookupClient)
// with a rate limiter and a circuit breaker. Lookups are idempotent and
// retryable; a failure yields "no data" for that listing and never corrupts
// engine state.
type ResilientLookup struct {
	inner     LookupClient
	soldInner SoldLookupClient
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*PriceRange]
	soldCB    *gobreaker.CircuitBreaker[[]SoldTransaction]
	logger    zerolog.Logger
}

// NewResilientLookup wraps inner with rate limiting and circuit breaking.
// soldInner may be nil when sold-transaction queries are not needed.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewResilientLookup(inner LookupClient, soldInner SoldLookupClient, cfg ResilientLookupConfig, logger zerolog.Logger) *ResilientLookup {
	cfg.applyDefaults()

	trip := func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
	}
	// ErrNoMarketData is a valid answer, not an upstream failure.
	successful := func(err error) bool {
		return err == nil || errors.Is(err, ErrNoMarketData)
	}

	return &ResilientLookup{
		inner:     inner,
		soldInner: soldInner,
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker: gobreaker.NewCircuitBreaker[*PriceRange](gobreaker.Settings{
			Name:         "market-range",
			Timeout:      cfg.BreakerOpenTimeout,
			ReadyToTrip:  trip,
			IsSuccessful: successful,
		}),
		soldCB: gobreaker.NewCircuitBreaker[[]SoldTransaction](gobreaker.Settings{
			Name:         "sold-transactions",
			Timeout:      cfg.BreakerOpenTimeout,
			ReadyToTrip:  trip,
			IsSuccessful: successful,
		}),
		logger: logger.With().Str("component", "market-lookup").Logger(),
	}
}

// MarketRange fetches the price-guide range through the limiter and breaker.
func (r *ResilientLookup) MarketRange(ctx context.Context, brand, model, year string) (*PriceRange, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rng, err := r.breaker.Execute(func() (*PriceRange, error) {
		return r.inner.MarketRange(ctx, brand, model, year)
	})
	if err != nil && !errors.Is(err, ErrNoMarketData) {
		metrics.RecordLookupFailure("range")
		r.logger.Debug().
			Str("brand", brand).
			Str("model", model).
			Err(err).
			Msg("market range lookup failed")
	}
	return rng, err
}

// SoldTransactions fetches completed sales through the limiter and breaker.
func (r *ResilientLookup) SoldTransactions(ctx context.Context, brand, model string) ([]SoldTransaction, error) {
	if r.soldInner == nil {
		return nil, ErrNoMarketData
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	txs, err := r.soldCB.Execute(func() ([]SoldTransaction, error) {
		return r.soldInner.SoldTransactions(ctx, brand, model)
	})
	if err != nil && !errors.Is(err, ErrNoMarketData) {
		metrics.RecordLookupFailure("sold")
		r.logger.Debug().
			Str("brand", brand).
			Str("model", model).
			Err(err).
			Msg("sold transaction lookup failed")
	}
	return txs, err
}

// Interface checks.
var (
	_ LookupClient     = (*ResilientLookup)(nil)
	_ SoldLookupClient = (*ResilientLookup)(nil)
)
