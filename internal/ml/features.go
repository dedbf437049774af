// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package ml implements the statistical blending layer: four independently
// trainable models over listing feature vectors, each optional, with
// explicit per-model outcomes at inference time. When no model is trained
// the layer degrades to pure rule-based scoring.
package ml

import (
	"math"
	"strings"
	"time"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

// FeatureVersion stamps persisted model artifacts. A model trained under a
// different feature layout must not be loaded for inference.
const FeatureVersion = 1

// defaultYear substitutes for an unparsable build year during feature
// extraction.
const defaultYear = 1970

// FeatureOrder is the canonical feature layout. Persisted models depend on
// this exact sequence; reordering is a FeatureVersion bump.
var FeatureOrder = []string{
	"year_numeric",
	"age",
	"price",
	"market_low",
	"market_high",
	"market_mid",
	"market_spread",
	"price_vs_market_mid",
	"price_vs_market_low",
	"brand_tier",
	"condition_score",
	"is_golden_era",
	"iconic_boost",
	"guitarist_score",
	"type_electric",
	"type_acoustic",
	"type_bass",
	"era_bucket",
	"collection_has_brand",
}

// PriceFeatures is the price-predictor subset: the asking price and every
// price-derived ratio are excluded so the label cannot leak into the input.
var PriceFeatures = excluding(FeatureOrder,
	"price", "price_vs_market_mid", "price_vs_market_low")

// AppreciationFeatures is the purely structural subset used by the
// appreciation predictor: no asking price and no market-range fields.
var AppreciationFeatures = []string{
	"year_numeric", "age", "brand_tier", "is_golden_era", "iconic_boost",
	"guitarist_score", "type_electric", "type_acoustic", "type_bass",
	"era_bucket", "condition_score",
}

func excluding(names []string, drop ...string) []string {
	dropped := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		dropped[d] = struct{}{}
	}
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := dropped[n]; !ok {
			kept = append(kept, n)
		}
	}
	return kept
}

// Features is one extracted feature map, keyed by FeatureOrder names.
type Features map[string]float64

// Vector flattens the map into the given layout, 0 for absent names.
func (f Features) Vector(layout []string) []float64 {
	vec := make([]float64, len(layout))
	for i, name := range layout {
		vec[i] = f[name]
	}
	return vec
}

// Extractor converts listings into numeric feature maps against a fixed
// knowledge base and owned-brand set. Safe for concurrent use.
type Extractor struct {
	kb          *knowledge.Base
	ownedBrands map[string]struct{}
	refYear     int
}

// NewExtractor builds an extractor. The reference year anchors the age
// feature to the current date so persisted models age consistently.
func NewExtractor(kb *knowledge.Base, collection []market.CollectionEntry) *Extractor {
	if kb == nil {
		kb = knowledge.NewBase(nil, nil, nil, nil)
	}
	owned := make(map[string]struct{}, len(collection))
	for i := range collection {
		owned[strings.ToLower(strings.TrimSpace(collection[i].Brand))] = struct{}{}
	}
	return &Extractor{
		kb:          kb,
		ownedBrands: owned,
		refYear:     time.Now().Year(),
	}
}

// Extract computes the full feature map for a listing. It never fails:
// missing inputs extract as zeros or neutral scores.
func (e *Extractor) Extract(l *market.Listing) Features {
	year, ok := market.ParseYear(l.Year)
	if !ok {
		year = defaultYear
	}

	var price, lo, hi float64
	if l.Price != nil {
		price = *l.Price
	}
	if l.MarketLow != nil {
		lo = *l.MarketLow
	}
	if l.MarketHigh != nil {
		hi = *l.MarketHigh
	}

	var mid, spread float64
	if lo > 0 && hi > 0 {
		mid = (lo + hi) / 2
		spread = hi - lo
	}

	var priceVsMid, priceVsLo float64
	if mid > 0 {
		priceVsMid = round4((price - mid) / mid)
	}
	if lo > 0 {
		priceVsLo = round4((price - lo) / lo)
	}

	var isGolden, boost float64
	if iconic := e.kb.MatchIconic(l.Brand, l.Model); iconic != nil {
		boost = iconic.Boost
		if iconic.InGoldenEra(year) {
			isGolden = 1
		}
	}

	var hasBrand float64
	if _, ok := e.ownedBrands[strings.ToLower(strings.TrimSpace(l.Brand))]; ok {
		hasBrand = 1
	}

	return Features{
		"year_numeric":         float64(year),
		"age":                  float64(e.refYear - year),
		"price":                price,
		"market_low":           lo,
		"market_high":          hi,
		"market_mid":           mid,
		"market_spread":        spread,
		"price_vs_market_mid":  priceVsMid,
		"price_vs_market_low":  priceVsLo,
		"brand_tier":           e.kb.BrandTier(l.Brand).Ordinal(),
		"condition_score":      market.ConditionScore(l.Condition),
		"is_golden_era":        isGolden,
		"iconic_boost":         boost,
		"guitarist_score":      e.kb.IconicScore(l.Brand, l.Model),
		"type_electric":        oneHot(l.Type == market.TypeElectric),
		"type_acoustic":        oneHot(l.Type == market.TypeAcoustic),
		"type_bass":            oneHot(l.Type == market.TypeBass),
		"era_bucket":           float64(pricehistory.EraBucket(year)),
		"collection_has_brand": hasBrand,
	}
}

// ListingFromSold reshapes a historical sale into the listing form the
// extractor consumes. The asking price stays out of the features, matching
// live listings whose price feature the price predictor never sees.
func ListingFromSold(t *market.SoldTransaction) market.Listing {
	return market.Listing{
		Source:     t.Source,
		ID:         t.ID,
		Brand:      t.Brand,
		Model:      t.Model,
		Type:       t.Type,
		Year:       t.Year,
		Condition:  t.Condition,
		MarketLow:  t.MarketLow,
		MarketHigh: t.MarketHigh,
	}
}

// ListingFromCollection reshapes an owned instrument for feature extraction
// when it serves as a positive classifier example.
func ListingFromCollection(c *market.CollectionEntry) market.Listing {
	return market.Listing{
		Brand: c.Brand,
		Model: c.Model,
		Type:  c.Type,
		Year:  c.Year,
	}
}

func oneHot(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
