// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package rank

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fretsonar/fretsonar/internal/market"
)

// ValueCollection revalues every owned instrument against the current
// price guide and appreciation rates, mutating entries in place. Entries
// missing brand, model or year are left untouched, as are entries the
// price guide has no range for. Returns the number of entries updated.
func (e *Engine) ValueCollection(ctx context.Context, cfg Config, collection []market.CollectionEntry) (int, error) {
	if e.lookup == nil {
		return 0, errors.New("rank: collection valuation requires a lookup client")
	}

	est, err := e.estimator()
	if err != nil {
		return 0, err
	}

	limit := cfg.LookupConcurrency
	if limit <= 0 {
		limit = DefaultConfig().LookupConcurrency
	}

	today := time.Now().Format("2006-01-02")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	updated := make([]bool, len(collection))
	for i := range collection {
		entry := &collection[i]
		if entry.Brand == "" || entry.Model == "" || entry.Year == "" {
			continue
		}
		done := &updated[i]
		g.Go(func() error {
			pr, err := e.lookup.MarketRange(ctx, entry.Brand, entry.Model, entry.Year)
			switch {
			case errors.Is(err, market.ErrNoMarketData):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				e.logger.Warn().
					Str("brand", entry.Brand).
					Str("model", entry.Model).
					Err(err).
					Msg("valuation lookup failed, keeping previous value")
				return nil
			}

			current := math.Round(pr.Mid()*100) / 100
			entry.CurrentValue = &current
			if v, ok := est.Project(current, entry.Brand, entry.Model, entry.Year, 1); ok {
				entry.Value1Y = &v
			}
			if v, ok := est.Project(current, entry.Brand, entry.Model, entry.Year, 2); ok {
				entry.Value2Y = &v
			}
			entry.LastUpdated = today
			*done = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	for _, ok := range updated {
		if ok {
			count++
		}
	}
	e.logger.Info().Int("updated", count).Int("total", len(collection)).Msg("collection revalued")
	return count, nil
}
