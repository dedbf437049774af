// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package solddetect implements the grace-period sold detector: a per-id
// state machine over successive full-crawl snapshots. A listing missing
// from a single crawl is only a candidate; it is confirmed sold once it
// has stayed absent for the whole grace period, and the confirmation is
// emitted exactly once even across process restarts.
package solddetect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

// State names for one tracked listing id.
type State string

// A candidate and a confirmation are mutually exclusive for the same id;
// the store enforces that on promotion.
const (
	StateAbsent    State = "absent"
	StateCandidate State = "candidate"
	StateConfirmed State = "confirmed_sold"
)

// Candidate is a listing id first missed at Since, still inside its grace
// period.
type Candidate struct {
	Source string    `json:"source"`
	ID     string    `json:"id"`
	Since  time.Time `json:"since"`
}

// Confirmation is an exactly-once sold event.
type Confirmation struct {
	Source      string    `json:"source"`
	ID          string    `json:"id"`
	FirstAbsent time.Time `json:"first_absent"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// StateStore is the durable backing for the state machine. Implementations
// must survive a crash mid-grace-period.
type StateStore interface {
	// Candidate returns the first-absence time for an id, if tracked.
	Candidate(source, id string) (since time.Time, ok bool, err error)

	// PutCandidate starts or keeps a grace period.
	PutCandidate(c Candidate) error

	// DeleteCandidate clears a grace period (the id reappeared).
	DeleteCandidate(source, id string) error

	// Confirmed reports whether the id was already confirmed sold.
	Confirmed(source, id string) (bool, error)

	// Promote atomically records the confirmation and removes the
	// candidate, so the two states never coexist.
	Promote(c Confirmation) error

	// CandidateCount returns how many ids are inside a grace period.
	CandidateCount() (int, error)
}

// Config contains configuration for the detector.
type Config struct {
	// GracePeriod is the minimum absence before a listing is confirmed
	// sold. Two crawl intervals is the working default: one missed crawl
	// is routinely a site hiccup, two is a departure.
	GracePeriod time.Duration
}

// DefaultConfig returns the default detector configuration for a daily
// crawl cycle.
func DefaultConfig() Config {
	return Config{GracePeriod: 48 * time.Hour}
}

// Detector runs the state machine over crawl snapshots.
type Detector struct {
	cfg    Config
	store  StateStore
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a detector over a state store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg Config, store StateStore, logger zerolog.Logger) *Detector {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultConfig().GracePeriod
	}
	return &Detector{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "solddetect").Logger(),
		now:    time.Now,
	}
}

// Observe advances the state machine with one full-crawl snapshot.
// tracked is the set of listing ids the engine currently follows for the
// snapshot's source; ids already confirmed sold are ignored. Returns the
// confirmations this snapshot produced, each exactly once.
func (d *Detector) Observe(ctx context.Context, snap *market.CrawlSnapshot, tracked []string) ([]Confirmation, error) {
	present := snap.IDSet()
	now := d.now()
	if !snap.ObservedAt.IsZero() {
		now = snap.ObservedAt
	}

	var confirmed []Confirmation
	for _, id := range tracked {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}

		done, err := d.store.Confirmed(snap.Source, id)
		if err != nil {
			return confirmed, fmt.Errorf("solddetect: confirmed lookup %s: %w", id, err)
		}
		if done {
			continue
		}

		if _, ok := present[id]; ok {
			// Back on site: any grace period ends.
			if err := d.store.DeleteCandidate(snap.Source, id); err != nil {
				return confirmed, fmt.Errorf("solddetect: clear candidate %s: %w", id, err)
			}
			continue
		}

		since, isCandidate, err := d.store.Candidate(snap.Source, id)
		if err != nil {
			return confirmed, fmt.Errorf("solddetect: candidate lookup %s: %w", id, err)
		}

		switch {
		case !isCandidate:
			// First miss starts the grace period.
			err = d.store.PutCandidate(Candidate{Source: snap.Source, ID: id, Since: now})
			if err != nil {
				return confirmed, fmt.Errorf("solddetect: start grace %s: %w", id, err)
			}
		case now.Sub(since) >= d.cfg.GracePeriod:
			c := Confirmation{Source: snap.Source, ID: id, FirstAbsent: since, ConfirmedAt: now}
			if err := d.store.Promote(c); err != nil {
				return confirmed, fmt.Errorf("solddetect: promote %s: %w", id, err)
			}
			confirmed = append(confirmed, c)
			d.logger.Info().
				Str("source", c.Source).
				Str("id", c.ID).
				Time("first_absent", c.FirstAbsent).
				Msg("listing confirmed sold")
		}
		// Inside the grace period: wait, keeping the original Since.
	}

	return confirmed, nil
}

// StateOf reports the current state of one id, for diagnostics.
func (d *Detector) StateOf(source, id string) (State, error) {
	done, err := d.store.Confirmed(source, id)
	if err != nil {
		return "", err
	}
	if done {
		return StateConfirmed, nil
	}
	if _, ok, err := d.store.Candidate(source, id); err != nil {
		return "", err
	} else if ok {
		return StateCandidate, nil
	}
	return StateAbsent, nil
}
