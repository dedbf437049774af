// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/metrics"
	"github.com/fretsonar/fretsonar/internal/solddetect"
)

// DetectorSink feeds crawl snapshots into the sold detector and applies
// confirmed sales back to the listings ledger. It is the single writer
// of both the detector state store and the ledger's sold markers.
type DetectorSink struct {
	detector *solddetect.Detector
	state    solddetect.StateStore
	feeds    *feed.Dir
	logger   zerolog.Logger
}

// NewDetectorSink creates the sink.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDetectorSink(detector *solddetect.Detector, state solddetect.StateStore, feeds *feed.Dir, logger zerolog.Logger) *DetectorSink {
	return &DetectorSink{
		detector: detector,
		state:    state,
		feeds:    feeds,
		logger:   logger.With().Str("component", "detector-sink").Logger(),
	}
}

// HandleSnapshot implements ingest.SnapshotHandler. Returned errors are
// retried by the router; the detector state machine is idempotent under
// redelivery of the same snapshot.
func (s *DetectorSink) HandleSnapshot(ctx context.Context, snap *market.CrawlSnapshot) error {
	metrics.RecordSnapshotIngested(snap.Source)

	listings, err := s.feeds.Listings()
	if err != nil {
		return err
	}

	tracked := make([]string, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		if l.Source == snap.Source && l.Active() {
			tracked = append(tracked, l.ID)
		}
	}

	confirmations, err := s.detector.Observe(ctx, snap, tracked)
	if err != nil {
		return err
	}
	if len(confirmations) > 0 {
		if err := s.applyConfirmations(listings, confirmations); err != nil {
			return err
		}
	}

	if count, err := s.state.CandidateCount(); err == nil {
		metrics.UpdateSoldCandidates(count)
	}
	return nil
}

// applyConfirmations stamps sold dates on the ledger and persists it.
func (s *DetectorSink) applyConfirmations(listings []market.Listing, confirmations []solddetect.Confirmation) error {
	byID := make(map[string]*market.Listing, len(listings))
	for i := range listings {
		l := &listings[i]
		byID[l.Source+":"+l.ID] = l
	}

	for _, c := range confirmations {
		metrics.RecordSoldConfirmation(c.Source)
		l, ok := byID[c.Source+":"+c.ID]
		if !ok {
			s.logger.Warn().
				Str("source", c.Source).
				Str("id", c.ID).
				Msg("confirmed sale for listing missing from ledger")
			continue
		}
		confirmedAt := c.ConfirmedAt
		l.SoldDate = &confirmedAt
		s.logger.Info().
			Str("source", c.Source).
			Str("id", c.ID).
			Str("brand", l.Brand).
			Str("model", l.Model).
			Time("first_absent", c.FirstAbsent).
			Msg("listing confirmed sold")
	}

	return s.feeds.WriteListings(listings)
}
