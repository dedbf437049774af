// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"testing"
	"time"

	"github.com/fretsonar/fretsonar/internal/market"
)

func TestExtract(t *testing.T) {
	collection := []market.CollectionEntry{
		{Brand: "Gibson", Model: "SG", Type: market.TypeElectric},
	}
	ex := NewExtractor(nil, collection)

	l := &market.Listing{
		Brand:      "Gibson",
		Model:      "ES-335",
		Year:       "1964",
		Type:       market.TypeElectric,
		Price:      fptr(12000),
		MarketLow:  fptr(8500),
		MarketHigh: fptr(14000),
		Condition:  "Excellent",
	}

	f := ex.Extract(l)

	expect := map[string]float64{
		"year_numeric":         1964,
		"age":                  float64(time.Now().Year() - 1964),
		"price":                12000,
		"market_low":           8500,
		"market_high":          14000,
		"market_mid":           11250,
		"market_spread":        5500,
		"price_vs_market_mid":  0.0667,
		"price_vs_market_low":  0.4118,
		"brand_tier":           2,
		"condition_score":      85,
		"is_golden_era":        0,
		"iconic_boost":         0,
		"guitarist_score":      50,
		"type_electric":        1,
		"type_acoustic":        0,
		"type_bass":            0,
		"era_bucket":           1,
		"collection_has_brand": 1,
	}
	for name, want := range expect {
		if got := f[name]; got != want {
			t.Errorf("feature %s = %v, want %v", name, got, want)
		}
	}

	if len(f) != len(FeatureOrder) {
		t.Errorf("extracted %d features, want %d", len(f), len(FeatureOrder))
	}
}

func TestExtractMissingInputs(t *testing.T) {
	ex := NewExtractor(nil, nil)
	f := ex.Extract(&market.Listing{})

	if f["year_numeric"] != defaultYear {
		t.Errorf("year_numeric = %v, want default %d", f["year_numeric"], defaultYear)
	}
	for _, name := range []string{"price", "market_mid", "price_vs_market_mid", "collection_has_brand"} {
		if f[name] != 0 {
			t.Errorf("feature %s = %v, want 0", name, f[name])
		}
	}
	if f["condition_score"] != 50 {
		t.Errorf("condition_score = %v, want neutral 50", f["condition_score"])
	}
}

func TestFeatureSubsets(t *testing.T) {
	if len(FeatureOrder) != 19 {
		t.Errorf("len(FeatureOrder) = %d, want 19", len(FeatureOrder))
	}
	if len(PriceFeatures) != 16 {
		t.Errorf("len(PriceFeatures) = %d, want 16", len(PriceFeatures))
	}
	for _, leak := range []string{"price", "price_vs_market_mid", "price_vs_market_low"} {
		for _, name := range PriceFeatures {
			if name == leak {
				t.Errorf("price feature set leaks %s", leak)
			}
		}
	}
	for _, banned := range []string{"price", "market_low", "market_high", "market_mid", "market_spread"} {
		for _, name := range AppreciationFeatures {
			if name == banned {
				t.Errorf("appreciation feature set includes market field %s", banned)
			}
		}
	}
}
