// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

// SnapshotHandler consumes decoded crawl snapshots. A returned error
// triggers the router's retry policy; errors persisting past the final
// retry nack the message.
type SnapshotHandler interface {
	HandleSnapshot(ctx context.Context, snap *market.CrawlSnapshot) error
}

// SnapshotHandlerFunc adapts a plain function to SnapshotHandler.
type SnapshotHandlerFunc func(ctx context.Context, snap *market.CrawlSnapshot) error

// HandleSnapshot calls f.
func (f SnapshotHandlerFunc) HandleSnapshot(ctx context.Context, snap *market.CrawlSnapshot) error {
	return f(ctx, snap)
}

// RouterConfig holds configuration for the snapshot router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for in-flight handlers on close.
	CloseTimeout time.Duration

	// RetryMaxRetries bounds redelivery of a failing snapshot.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultRouterConfig returns production defaults for the router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         10 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
	}
}

// Router fans crawl snapshots out to registered handlers with panic
// recovery and retry. Each handler gets its own subscription, so a slow
// consumer does not starve the others.
type Router struct {
	router *message.Router
	bus    *Bus
	logger zerolog.Logger
}

// NewRouter creates the snapshot router over the given bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRouter(cfg RouterConfig, bus *Bus, logger zerolog.Logger) (*Router, error) {
	def := DefaultRouterConfig()
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.RetryMaxRetries <= 0 {
		cfg.RetryMaxRetries = def.RetryMaxRetries
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = def.RetryMaxInterval
	}

	routerLogger := logger.With().Str("component", "ingest-router").Logger()
	wmLogger := newLoggerAdapter(routerLogger)

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("ingest: create router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      2.0,
		Logger:          wmLogger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	return &Router{router: wmRouter, bus: bus, logger: routerLogger}, nil
}

// AddSnapshotHandler subscribes a named handler to the snapshot topic.
// Malformed payloads are logged and dropped rather than retried; a
// snapshot that cannot decode now never will.
func (r *Router) AddSnapshotHandler(name string, h SnapshotHandler) {
	r.router.AddConsumerHandler(name, TopicCrawlSnapshot, r.bus.Subscriber(),
		func(msg *message.Message) error {
			snap, err := DecodeSnapshot(msg)
			if err != nil {
				r.logger.Error().
					Str("handler", name).
					Str("message_id", msg.UUID).
					Err(err).
					Msg("dropping malformed snapshot")
				return nil
			}
			return h.HandleSnapshot(msg.Context(), snap)
		})
}

// Run starts the router and blocks until ctx is cancelled or Close is
// called. Handlers must be registered before Run.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once all handlers are consuming.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting up to CloseTimeout for in-flight
// snapshots.
func (r *Router) Close() error {
	return r.router.Close()
}
