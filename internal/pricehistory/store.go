// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package pricehistory persists per-model market price snapshots and derives
// learned annual appreciation rates from them.
//
// Snapshots are keyed by the lowercase "brand|model" key, at most one per
// key per calendar day, append-only and chronologically ordered. The learned
// rate table is recomputed wholesale on every learning pass and supersedes
// the static era/tier priors wherever present.
package pricehistory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

// Badger key prefixes.
const (
	snapshotKeyPrefix = "snap:"
	rateKeyPrefix     = "rate:"
)

// dateLayout is the calendar-day format used by snapshot idempotence.
const dateLayout = "2006-01-02"

// Learned rates are clamped to this range regardless of how extreme the
// observed price movement is.
const (
	RateFloor   = -0.20
	RateCeiling = 0.30
)

// ErrCorruptState reports persisted history that previously held data but no
// longer parses. It must surface to the operator; silently reinitializing
// would wipe accumulated history.
var ErrCorruptState = errors.New("pricehistory: corrupt persisted state")

// Snapshot is one market price-range observation for a model key.
type Snapshot struct {
	// Date is the calendar day, "YYYY-MM-DD".
	Date string  `json:"date"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Mid  float64 `json:"mid"`
}

// Store is the durable price history. Writers must be serialized by the
// surrounding scheduler (single daily learning job); readers are safe at any
// time.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewStore creates a price history store on an open badger database.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "pricehistory").Logger(),
	}
}

// RecordSnapshots upserts today's price range for every listing that has a
// brand, a model and both market bounds. A key that already holds an entry
// for today is skipped, so re-running the daily job is idempotent. Returns
// the count of newly recorded snapshots.
func (s *Store) RecordSnapshots(ctx context.Context, listings []market.Listing, today time.Time) (int, error) {
	day := today.Format(dateLayout)
	recorded := 0

	for i := range listings {
		l := &listings[i]
		if err := ctx.Err(); err != nil {
			return recorded, err
		}
		if l.Brand == "" || l.Model == "" || !l.HasMarketRange() {
			continue
		}

		added, err := s.recordOne(l.ModelKey(), Snapshot{
			Date: day,
			Low:  *l.MarketLow,
			High: *l.MarketHigh,
			Mid:  l.MarketMid(),
		})
		if err != nil {
			return recorded, err
		}
		if added {
			recorded++
		}
	}

	s.logger.Info().
		Str("date", day).
		Int("recorded", recorded).
		Int("listings", len(listings)).
		Msg("price snapshots recorded")

	return recorded, nil
}

// recordOne appends snap under key unless that calendar day already has an
// entry. The read-modify-write runs in a single badger transaction.
func (s *Store) recordOne(key string, snap Snapshot) (bool, error) {
	added := false
	err := s.db.Update(func(txn *badger.Txn) error {
		history, err := readSnapshots(txn, key)
		if err != nil {
			return err
		}

		for i := range history {
			if history[i].Date == snap.Date {
				return nil // already recorded today
			}
		}

		history = append(history, snap)
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("marshal snapshots: %w", err)
		}
		added = true
		return txn.Set([]byte(snapshotKeyPrefix+key), data)
	})
	return added, err
}

// Snapshots returns the chronological snapshot list for a model key.
// A key never seen returns an empty slice, not an error.
func (s *Store) Snapshots(key string) ([]Snapshot, error) {
	var history []Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		history, err = readSnapshots(txn, key)
		return err
	})
	return history, err
}

// Keys lists every model key with at least one snapshot.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

// ComputeRates recomputes the learned appreciation rate for every key whose
// history has at least two snapshots spanning at least minDays. The rate is
// the annualized midpoint growth, clamped to [RateFloor, RateCeiling] and
// rounded to 4 decimals. The whole rate keyspace is replaced, not merged:
// keys whose history shrank below the threshold lose their rate. Returns the
// number of keys with a computed rate.
func (s *Store) ComputeRates(ctx context.Context, minDays int) (int, error) {
	if minDays <= 0 {
		minDays = 30
	}

	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}

	rates := make(map[string]float64)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		history, err := s.Snapshots(key)
		if err != nil {
			return 0, err
		}
		if rate, ok := annualizedRate(history, minDays); ok {
			rates[key] = rate
		}
	}

	if err := s.replaceRates(rates); err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("keys", len(keys)).
		Int("rates", len(rates)).
		Int("min_days", minDays).
		Msg("learned rates recomputed")

	return len(rates), nil
}

// replaceRates atomically swaps the rate keyspace for the given table.
func (s *Store) replaceRates(rates map[string]float64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		prefix := []byte(rateKeyPrefix)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("clear learned rate: %w", err)
			}
		}

		for key, rate := range rates {
			data, err := json.Marshal(rate)
			if err != nil {
				return fmt.Errorf("marshal rate: %w", err)
			}
			if err := txn.Set([]byte(rateKeyPrefix+key), data); err != nil {
				return fmt.Errorf("set learned rate: %w", err)
			}
		}
		return nil
	})
}

// LearnedRates loads the full learned-rate table. Loaded once per scoring
// pass and handed to the Estimator as a read-only cache.
func (s *Store) LearnedRates() (map[string]float64, error) {
	rates := make(map[string]float64)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(rateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				var rate float64
				if err := json.Unmarshal(val, &rate); err != nil {
					return fmt.Errorf("%w: rate %q: %v", ErrCorruptState, key, err)
				}
				rates[key] = rate
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// readSnapshots loads and decodes the snapshot list for key inside txn.
// A missing key is an empty history; a value that fails to decode is
// corruption and surfaces as ErrCorruptState.
func readSnapshots(txn *badger.Txn, key string) ([]Snapshot, error) {
	item, err := txn.Get([]byte(snapshotKeyPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}

	var history []Snapshot
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &history); err != nil {
			return fmt.Errorf("%w: snapshots %q: %v", ErrCorruptState, key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// annualizedRate computes (last/first)^(365/days) - 1 over the earliest and
// latest snapshot, clamped and rounded. ok is false when fewer than two
// snapshots exist, the span is under minDays, or the dates/midpoints are
// unusable.
func annualizedRate(history []Snapshot, minDays int) (float64, bool) {
	if len(history) < 2 {
		return 0, false
	}

	first, last := history[0], history[len(history)-1]
	firstDate, err1 := time.Parse(dateLayout, first.Date)
	lastDate, err2 := time.Parse(dateLayout, last.Date)
	if err1 != nil || err2 != nil {
		return 0, false
	}

	days := lastDate.Sub(firstDate).Hours() / 24
	if days < float64(minDays) || first.Mid <= 0 || last.Mid <= 0 {
		return 0, false
	}

	rate := math.Pow(last.Mid/first.Mid, 365/days) - 1
	if rate < RateFloor {
		rate = RateFloor
	}
	if rate > RateCeiling {
		rate = RateCeiling
	}
	return math.Round(rate*10000) / 10000, true
}
