// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package feed

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fretsonar/fretsonar/internal/market"
)

const priceGuideFile = "priceguide.json"

// PriceGuideEntry is one row of the crawler-maintained price guide feed.
// Year is optional; a year-less entry is the brand+model fallback.
type PriceGuideEntry struct {
	Brand string  `json:"brand"`
	Model string  `json:"model"`
	Year  string  `json:"year,omitempty"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// Lookup serves market ranges and sold comparables from the feed
// directory, so the engine runs without network access of its own. The
// scrapers refresh priceguide.json and sold.json on their side; every
// call re-reads the files and sees updates immediately.
type Lookup struct {
	dir *Dir
}

// NewLookup returns a feed-backed lookup over dir.
func NewLookup(dir *Dir) *Lookup {
	return &Lookup{dir: dir}
}

// MarketRange answers from the price guide feed. An exact
// brand+model+year row wins over a year-less brand+model row; no row at
// all is ErrNoMarketData.
func (l *Lookup) MarketRange(ctx context.Context, brand, model, year string) (*market.PriceRange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := readFeed[PriceGuideEntry](filepath.Join(l.dir.root, priceGuideFile))
	if err != nil {
		return nil, err
	}

	var fallback *market.PriceRange
	for i := range entries {
		e := &entries[i]
		if !strings.EqualFold(e.Brand, brand) || !strings.EqualFold(e.Model, model) {
			continue
		}
		if e.Year == year {
			return &market.PriceRange{Low: e.Low, High: e.High}, nil
		}
		if e.Year == "" && fallback == nil {
			fallback = &market.PriceRange{Low: e.Low, High: e.High}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, market.ErrNoMarketData
}

// SoldTransactions answers from the sold feed, filtered to brand+model.
func (l *Lookup) SoldTransactions(ctx context.Context, brand, model string) ([]market.SoldTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := l.dir.SoldTransactions()
	if err != nil {
		return nil, err
	}

	var matched []market.SoldTransaction
	for _, tx := range all {
		if strings.EqualFold(tx.Brand, brand) && strings.EqualFold(tx.Model, model) {
			matched = append(matched, tx)
		}
	}
	return matched, nil
}
