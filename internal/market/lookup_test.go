// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fretsonar/fretsonar/internal/logging"
)

type scriptedLookup struct {
	calls int
	err   error
	rng   *PriceRange
}

func (s *scriptedLookup) MarketRange(_ context.Context, _, _, _ string) (*PriceRange, error) {
	s.calls++
	return s.rng, s.err
}

func newTestLookup(inner LookupClient) *ResilientLookup {
	return NewResilientLookup(inner, nil, ResilientLookupConfig{
		MinInterval:             time.Nanosecond,
		BreakerFailureThreshold: 3,
		BreakerOpenTimeout:      time.Minute,
	}, logging.NewTestLogger())
}

func TestResilientLookupPassesThrough(t *testing.T) {
	inner := &scriptedLookup{rng: &PriceRange{Low: 10000, High: 16000}}
	lookup := newTestLookup(inner)

	rng, err := lookup.MarketRange(context.Background(), "Gibson", "ES-335", "1964")
	if err != nil {
		t.Fatalf("MarketRange() error = %v", err)
	}
	if rng.Mid() != 13000 {
		t.Errorf("Mid() = %v, want 13000", rng.Mid())
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestResilientLookupBreakerOpensOnFailures(t *testing.T) {
	inner := &scriptedLookup{err: errors.New("upstream down")}
	lookup := newTestLookup(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := lookup.MarketRange(ctx, "Gibson", "ES-335", "1964"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	// Threshold reached: the breaker now rejects without touching upstream.
	_, err := lookup.MarketRange(ctx, "Gibson", "ES-335", "1964")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestResilientLookupNoDataDoesNotTrip(t *testing.T) {
	inner := &scriptedLookup{err: ErrNoMarketData}
	lookup := newTestLookup(inner)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := lookup.MarketRange(ctx, "Rickenbacker", "360", "1966"); !errors.Is(err, ErrNoMarketData) {
			t.Fatalf("call %d: error = %v, want ErrNoMarketData", i, err)
		}
	}
	if inner.calls != 10 {
		t.Errorf("inner calls = %d, want 10 (breaker must stay closed)", inner.calls)
	}
}

func TestResilientLookupNilSoldInner(t *testing.T) {
	lookup := newTestLookup(&scriptedLookup{})
	if _, err := lookup.SoldTransactions(context.Background(), "Gibson", "ES-335"); !errors.Is(err, ErrNoMarketData) {
		t.Errorf("error = %v, want ErrNoMarketData", err)
	}
}
