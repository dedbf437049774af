// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

const (
	soldKeyPrefix     = "train:sold:"
	decisionKeyPrefix = "train:decision:"
)

// Collector accumulates the training corpus: confirmed historical sales,
// deduplicated by listing id, and explicit operator buy/skip decisions.
type Collector struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewCollector creates a collector on an open badger database.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCollector(db *badger.DB, logger zerolog.Logger) *Collector {
	return &Collector{
		db:     db,
		logger: logger.With().Str("component", "ml.collector").Logger(),
	}
}

// AddSold records sold transactions, skipping ids already collected.
// Returns the number of newly stored records.
func (c *Collector) AddSold(txns []market.SoldTransaction) (int, error) {
	added := 0
	for i := range txns {
		t := &txns[i]
		if t.ID == "" {
			continue
		}
		stored, err := c.addOneSold(t)
		if err != nil {
			return added, err
		}
		if stored {
			added++
		}
	}
	if added > 0 {
		c.logger.Info().Int("added", added).Msg("sold transactions collected")
	}
	return added, nil
}

func (c *Collector) addOneSold(t *market.SoldTransaction) (bool, error) {
	key := []byte(soldKeyPrefix + t.Source + ":" + t.ID)
	stored := false
	err := c.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already collected
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get sold %s: %w", t.ID, err)
		}
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal sold %s: %w", t.ID, err)
		}
		stored = true
		return txn.Set(key, data)
	})
	return stored, err
}

// Harvest pulls completed sales for every known brand+model key through
// the sold lookup client and collects the new ones. Per-key failures
// are logged and skipped so one bad query never loses the rest of the
// harvest. Returns the number of newly stored transactions.
func (c *Collector) Harvest(ctx context.Context, lookup market.SoldLookupClient, keys []string) (int, error) {
	if lookup == nil {
		return 0, nil
	}

	added := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		brand, model, ok := market.SplitModelKey(key)
		if !ok {
			continue
		}

		txns, err := lookup.SoldTransactions(ctx, brand, model)
		if errors.Is(err, market.ErrNoMarketData) {
			continue
		}
		if err != nil {
			c.logger.Warn().
				Str("brand", brand).
				Str("model", model).
				Err(err).
				Msg("sold transaction harvest failed for key")
			continue
		}

		n, err := c.AddSold(txns)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

// RecordDecision appends one operator buy/skip call.
func (c *Collector) RecordDecision(d market.Decision) error {
	if d.Action != market.DecisionBuy && d.Action != market.DecisionSkip {
		return fmt.Errorf("collector: unknown decision action %q", d.Action)
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	key := []byte(decisionKeyPrefix + uuid.NewString())
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Sold loads every collected sold transaction.
func (c *Collector) Sold() ([]market.SoldTransaction, error) {
	var out []market.SoldTransaction
	err := c.scan(soldKeyPrefix, func(val []byte) error {
		var t market.SoldTransaction
		if err := json.Unmarshal(val, &t); err != nil {
			return fmt.Errorf("decode sold transaction: %w", err)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// Decisions loads every recorded operator decision.
func (c *Collector) Decisions() ([]market.Decision, error) {
	var out []market.Decision
	err := c.scan(decisionKeyPrefix, func(val []byte) error {
		var d market.Decision
		if err := json.Unmarshal(val, &d); err != nil {
			return fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (c *Collector) scan(prefix string, fn func(val []byte) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
