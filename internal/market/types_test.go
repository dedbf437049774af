// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package market

import (
	"testing"
	"time"
)

func TestConditionScore(t *testing.T) {
	tests := []struct {
		condition string
		want      float64
	}{
		{"mint", 100},
		{"Near Mint", 95},
		{"excellent+", 90},
		{"Excellent Plus", 90},
		{"very good-", 50},
		{"Very Good Minus", 50},
		{"player grade, good condition", 30},
		{"poor", 0},
		{"", 50},
		{"relic'd custom shop", 50},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			if got := ConditionScore(tt.condition); got != tt.want {
				t.Errorf("ConditionScore(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestParseInstrumentType(t *testing.T) {
	tests := []struct {
		in   string
		want InstrumentType
	}{
		{"Electric Guitar", TypeElectric},
		{"Electric Bass", TypeBass},
		{"acoustic flat-top", TypeAcoustic},
		{"lap steel", TypeUnknown},
	}
	for _, tt := range tests {
		if got := ParseInstrumentType(tt.in); got != tt.want {
			t.Errorf("ParseInstrumentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModelKeyRoundTrip(t *testing.T) {
	key := ModelKey(" Gibson ", "ES-335")
	if key != "gibson|es-335" {
		t.Fatalf("ModelKey() = %q", key)
	}
	brand, model, ok := SplitModelKey(key)
	if !ok || brand != "gibson" || model != "es-335" {
		t.Errorf("SplitModelKey() = %q, %q, %v", brand, model, ok)
	}
	if _, _, ok := SplitModelKey("no separator"); ok {
		t.Error("SplitModelKey accepted a key without separator")
	}
}

func TestListingActive(t *testing.T) {
	sold := time.Now()
	tests := []struct {
		name    string
		listing Listing
		want    bool
	}{
		{"plain", Listing{}, true},
		{"on hold", Listing{OnHold: true}, false},
		{"sold", Listing{SoldDate: &sold}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.listing.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDesirability(t *testing.T) {
	p := func(v float64) *float64 { return &v }

	tx := SoldTransaction{ListedPrice: p(10000), SoldPrice: p(9000)}
	if got, ok := tx.Desirability(); !ok || got != 90 {
		t.Errorf("Desirability() = %v, %v, want 90, true", got, ok)
	}

	// Over-ask sale caps at 100.
	tx = SoldTransaction{ListedPrice: p(10000), SoldPrice: p(12000)}
	if got, ok := tx.Desirability(); !ok || got != 100 {
		t.Errorf("Desirability() = %v, %v, want 100, true", got, ok)
	}

	tx = SoldTransaction{SoldPrice: p(9000)}
	if _, ok := tx.Desirability(); ok {
		t.Error("Desirability() ok for missing listed price")
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"1965", 1965, true},
		{"c.1965", 1965, true},
		{"1960s", 1960, true},
		{"early sixties", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseYear(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseYear(%q) = %d, %v, want %d, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
