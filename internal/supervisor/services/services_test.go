// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/logging"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/ml"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
	"github.com/fretsonar/fretsonar/internal/rank"
	"github.com/fretsonar/fretsonar/internal/solddetect"
)

func setupDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return db
}

func fptr(v float64) *float64 { return &v }

func TestDetectorSinkConfirmsAndMarksLedger(t *testing.T) {
	db := setupDB(t)
	feeds := feed.NewDir(t.TempDir(), logging.NewTestLogger())

	ledger := []market.Listing{
		{Source: "retrofret", ID: "g-1", Brand: "Gibson", Model: "ES-335", Year: "1964", Price: fptr(12000)},
		{Source: "retrofret", ID: "g-2", Brand: "Fender", Model: "Jazzmaster", Year: "1962", Price: fptr(8000)},
		{Source: "woodstore", ID: "w-1", Brand: "Martin", Model: "D-28", Year: "1955", Price: fptr(15000)},
	}
	if err := feeds.WriteListings(ledger); err != nil {
		t.Fatal(err)
	}

	state := solddetect.NewBadgerStore(db)
	detector := solddetect.New(solddetect.Config{GracePeriod: 48 * time.Hour}, state, logging.NewTestLogger())
	sink := NewDetectorSink(detector, state, feeds, logging.NewTestLogger())

	base := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// g-2 goes missing: candidate, not yet sold.
	err := sink.HandleSnapshot(ctx, &market.CrawlSnapshot{
		Source: "retrofret", ObservedAt: base, IDs: []string{"g-1"},
	})
	if err != nil {
		t.Fatalf("HandleSnapshot() error = %v", err)
	}

	// Still missing past the grace period: confirmed and marked.
	err = sink.HandleSnapshot(ctx, &market.CrawlSnapshot{
		Source: "retrofret", ObservedAt: base.Add(49 * time.Hour), IDs: []string{"g-1"},
	})
	if err != nil {
		t.Fatalf("HandleSnapshot() error = %v", err)
	}

	got, err := feeds.Listings()
	if err != nil {
		t.Fatalf("Listings() error = %v", err)
	}
	byID := make(map[string]market.Listing, len(got))
	for _, l := range got {
		byID[l.Source+":"+l.ID] = l
	}

	if byID["retrofret:g-2"].SoldDate == nil {
		t.Error("g-2 not marked sold after grace period")
	}
	if byID["retrofret:g-1"].SoldDate != nil {
		t.Error("present listing g-1 marked sold")
	}
	if byID["woodstore:w-1"].SoldDate != nil {
		t.Error("other-source listing marked sold by retrofret snapshot")
	}
}

func TestLearnerServiceCycle(t *testing.T) {
	db := setupDB(t)
	feeds := feed.NewDir(t.TempDir(), logging.NewTestLogger())
	store := pricehistory.NewStore(db, logging.NewTestLogger())

	listings := []market.Listing{
		{Source: "retrofret", ID: "g-1", Brand: "Gibson", Model: "ES-335",
			MarketLow: fptr(10000), MarketHigh: fptr(16000)},
	}
	if err := feeds.WriteListings(listings); err != nil {
		t.Fatal(err)
	}

	svc := NewLearnerService(feeds, store, LearnerServiceConfig{}, logging.NewTestLogger())
	if err := svc.learn(context.Background()); err != nil {
		t.Fatalf("learn() error = %v", err)
	}

	snaps, err := store.Snapshots(market.ModelKey("Gibson", "ES-335"))
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Mid != 13000 {
		t.Errorf("Mid = %v, want 13000", snaps[0].Mid)
	}
}

func TestScorerServicePassWritesRecommendations(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()
	feeds := feed.NewDir(dir, logging.NewTestLogger())

	listings := []market.Listing{
		{Source: "retrofret", ID: "g-1", Brand: "Gibson", Model: "ES-335", Year: "1964",
			Price: fptr(11000), MarketLow: fptr(10000), MarketHigh: fptr(16000), Condition: "excellent"},
	}
	if err := feeds.WriteListings(listings); err != nil {
		t.Fatal(err)
	}

	svc := NewScorerService(
		knowledge.NewBase(nil, nil, nil, nil),
		pricehistory.NewStore(db, logging.NewTestLogger()),
		nil,
		ml.NewModelStore(db),
		feeds,
		ScorerServiceConfig{Rank: rank.DefaultConfig()},
		logging.NewTestLogger(),
	)

	if err := svc.pass(context.Background()); err != nil {
		t.Fatalf("pass() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "recommendations.json")); err != nil {
		t.Fatalf("recommendations not persisted: %v", err)
	}
}

func TestTrainerServiceCycleWithSparseData(t *testing.T) {
	db := setupDB(t)
	feeds := feed.NewDir(t.TempDir(), logging.NewTestLogger())
	history := pricehistory.NewStore(db, logging.NewTestLogger())
	collector := ml.NewCollector(db, logging.NewTestLogger())
	modelStore := ml.NewModelStore(db)
	trainer := ml.NewTrainer(ml.DefaultTrainerConfig(), modelStore, nil, logging.NewTestLogger())

	svc := NewTrainerService(trainer, collector, feeds, history, nil, modelStore,
		TrainerServiceConfig{}, logging.NewTestLogger())

	// Nearly no data: every model skips, the cycle still succeeds.
	if err := svc.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}
}
