// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package feed adapts the engine's JSON file inputs: the listings
// ledger maintained by the external scrapers, the owned-instrument
// collection and the operator decision log. A file that has never
// existed is an empty feed; a file that exists but does not parse is
// corrupt operational state and errors out rather than silently
// starting over.
package feed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
)

// ErrCorrupt marks a feed file that exists but cannot be parsed.
var ErrCorrupt = errors.New("feed: corrupt feed file")

// File names inside the feed directory.
const (
	listingsFile   = "listings.json"
	collectionFile = "collection.json"
	decisionsFile  = "decisions.json"
	soldFile       = "sold.json"

	recommendationsFile = "recommendations.json"
	modelStatusFile     = "models.json"
)

// Dir is a feed directory. All reads and writes go through it.
type Dir struct {
	root   string
	logger zerolog.Logger
}

// NewDir opens a feed directory. The directory is created on first
// write, not here; a missing directory reads as all-empty feeds.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDir(root string, logger zerolog.Logger) *Dir {
	return &Dir{
		root:   root,
		logger: logger.With().Str("component", "feed").Logger(),
	}
}

// Listings reads the listings ledger.
func (d *Dir) Listings() ([]market.Listing, error) {
	return readFeed[market.Listing](filepath.Join(d.root, listingsFile))
}

// WriteListings persists the listings ledger atomically.
func (d *Dir) WriteListings(listings []market.Listing) error {
	return d.writeFeed(listingsFile, listings)
}

// Collection reads the owned-instrument collection.
func (d *Dir) Collection() ([]market.CollectionEntry, error) {
	return readFeed[market.CollectionEntry](filepath.Join(d.root, collectionFile))
}

// WriteCollection persists the collection, typically after a valuation
// pass has refreshed the value columns.
func (d *Dir) WriteCollection(entries []market.CollectionEntry) error {
	return d.writeFeed(collectionFile, entries)
}

// Decisions reads the operator decision log.
func (d *Dir) Decisions() ([]market.Decision, error) {
	return readFeed[market.Decision](filepath.Join(d.root, decisionsFile))
}

// SoldTransactions reads locally staged sold transactions, used to seed
// the training collector without network access.
func (d *Dir) SoldTransactions() ([]market.SoldTransaction, error) {
	return readFeed[market.SoldTransaction](filepath.Join(d.root, soldFile))
}

// WriteRecommendations persists the latest scoring pass result for the
// downstream dashboard and notification collaborators. v is typically a
// *rank.Result; the adapter stays agnostic of the engine types.
func (d *Dir) WriteRecommendations(v any) error {
	return d.writeFeed(recommendationsFile, v)
}

// WriteModelStatus persists the per-model availability report after a
// training cycle, for the monitoring collaborator.
func (d *Dir) WriteModelStatus(v any) error {
	return d.writeFeed(modelStatusFile, v)
}

// readFeed loads one feed file. Absent means empty; malformed means
// ErrCorrupt.
func readFeed[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w", path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return items, nil
}

// writeFeed writes via a temp file and rename so readers never observe
// a half-written feed.
func (d *Dir) writeFeed(name string, v any) error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("feed: create dir %s: %w", d.root, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("feed: encode %s: %w", name, err)
	}

	path := filepath.Join(d.root, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("feed: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("feed: replace %s: %w", path, err)
	}

	d.logger.Debug().Str("file", name).Int("bytes", len(data)).Msg("feed written")
	return nil
}
