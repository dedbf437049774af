// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package ingest carries crawl snapshots from the scraper boundary to
// the engine's consumers over an in-process pub/sub bus. Fanning the
// snapshot stream through the bus keeps each badger store behind a
// single writing subscriber.
package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

// TopicCrawlSnapshot carries one market.CrawlSnapshot per message.
const TopicCrawlSnapshot = "crawl.snapshot"

// metadata keys set on published snapshot messages.
const (
	MetaSource     = "source"
	MetaObservedAt = "observed_at"
)

// Config holds configuration for the snapshot bus.
type Config struct {
	// Buffer is the per-subscriber channel depth. Publishing blocks once
	// a subscriber falls this far behind. Typical range: 16-256.
	Buffer int64
}

// DefaultConfig returns production defaults for the bus.
func DefaultConfig() Config {
	return Config{Buffer: 64}
}

// Bus is the in-process snapshot pub/sub. One Bus per process; crawl
// adapters publish, the sold detector and snapshot recorder subscribe.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewBus creates the snapshot bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(cfg Config, logger zerolog.Logger) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	busLogger := logger.With().Str("component", "ingest").Logger()
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: cfg.Buffer},
			newLoggerAdapter(busLogger),
		),
		logger: busLogger,
	}
}

// PublishSnapshot encodes and publishes one crawl snapshot.
func (b *Bus) PublishSnapshot(snap *market.CrawlSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ingest: encode snapshot: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaSource, snap.Source)
	msg.Metadata.Set(MetaObservedAt, snap.ObservedAt.Format("2006-01-02T15:04:05Z07:00"))

	if err := b.pubsub.Publish(TopicCrawlSnapshot, msg); err != nil {
		return fmt.Errorf("ingest: publish snapshot: %w", err)
	}
	b.logger.Debug().
		Str("source", snap.Source).
		Int("ids", len(snap.IDs)).
		Msg("snapshot published")
	return nil
}

// Subscriber exposes the bus for router wiring.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Close shuts the bus down; blocked publishers and subscribers unblock.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeSnapshot decodes a crawl snapshot from a bus message.
func DecodeSnapshot(msg *message.Message) (*market.CrawlSnapshot, error) {
	var snap market.CrawlSnapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		return nil, fmt.Errorf("ingest: decode snapshot: %w", err)
	}
	if snap.Source == "" {
		return nil, fmt.Errorf("ingest: snapshot without source (message %s)", msg.UUID)
	}
	return &snap, nil
}
