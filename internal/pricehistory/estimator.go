// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package pricehistory

import (
	"math"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
)

// FallbackRate applies when the year cannot be parsed and no learned rate
// exists for the model.
const FallbackRate = 0.02

// Era bucket indexes, ordered oldest to newest.
const (
	EraPre1950 = iota
	Era1950s
	Era1965to79
	Era1980to99
	EraModern
	eraBucketCount
)

// staticRates is the prior appreciation table, tier by era bucket. Rates
// decrease with recency and with lower brand tier; the premium pre-1950
// ceiling equals the scorer's full-marks appreciation rate.
var staticRates = map[knowledge.Tier][eraBucketCount]float64{
	knowledge.TierPremium: {0.12, 0.10, 0.07, 0.04, 0.02},
	knowledge.TierMajor:   {0.10, 0.08, 0.05, 0.03, 0.01},
	knowledge.TierMinor:   {0.05, 0.04, 0.03, 0.02, 0.00},
}

// EraBucket maps a build year onto the static-table era index.
func EraBucket(year int) int {
	switch {
	case year < 1950:
		return EraPre1950
	case year < 1965:
		return Era1950s
	case year < 1980:
		return Era1965to79
	case year < 2000:
		return Era1980to99
	default:
		return EraModern
	}
}

// Estimator resolves the annual appreciation rate for an instrument:
// learned rate when the model has sufficient price history, otherwise the
// static era/tier prior, otherwise the flat fallback.
//
// The learned table is a read-only copy loaded once per scoring pass
// (Store.LearnedRates), so an Estimator is safe for concurrent use.
type Estimator struct {
	learned map[string]float64
	kb      *knowledge.Base
}

// NewEstimator builds an estimator over a learned-rate table and the brand
// knowledge base. Either may be nil/empty; resolution degrades to the static
// table and fallback.
func NewEstimator(learned map[string]float64, kb *knowledge.Base) *Estimator {
	if learned == nil {
		learned = map[string]float64{}
	}
	return &Estimator{learned: learned, kb: kb}
}

// Rate returns the annual appreciation rate for a brand, model and raw year
// string, with learned rates taking precedence over the static priors.
func (e *Estimator) Rate(brand, model, year string) float64 {
	if model != "" {
		if rate, ok := e.learned[market.ModelKey(brand, model)]; ok {
			return rate
		}
	}
	return e.staticRate(brand, year)
}

// Learned reports the learned rate for a model key, if one exists.
func (e *Estimator) Learned(brand, model string) (float64, bool) {
	rate, ok := e.learned[market.ModelKey(brand, model)]
	return rate, ok
}

// staticRate resolves the era/tier prior, or FallbackRate when the year is
// unparsable.
func (e *Estimator) staticRate(brand, year string) float64 {
	y, ok := market.ParseYear(year)
	if !ok {
		return FallbackRate
	}

	tier := knowledge.TierMinor
	if e.kb != nil {
		tier = e.kb.BrandTier(brand)
	}
	return staticRates[tier][EraBucket(y)]
}

// Project compounds a base value forward by whole years at the resolved
// rate, rounded to cents. ok is false for a non-positive base.
func (e *Estimator) Project(base float64, brand, model, year string, years int) (float64, bool) {
	if base <= 0 {
		return 0, false
	}
	rate := e.Rate(brand, model, year)
	projected := base * math.Pow(1+rate, float64(years))
	return math.Round(projected*100) / 100, true
}
