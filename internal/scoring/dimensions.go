// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package scoring

import (
	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

// AppreciationCeiling is the annual rate that maps to a full appreciation
// sub-score.
const AppreciationCeiling = 0.12

// GoldenEraBonus is added to the appreciation sub-score when the listing
// year falls inside a matched iconic model's golden era.
const GoldenEraBonus = 20.0

// underRepresentedShare is the collection share below which an instrument
// type earns the diversification bonus.
const underRepresentedShare = 0.25

// ValueScore rates the asking price against the market range on 0-100.
// At or below the low bound it is 100, at the midpoint 75, at the high
// bound 50, then it falls linearly with the overshoot fraction above the
// high bound, floored at 0. Missing price or range is neutral 50.
func ValueScore(price, low, high *float64) float64 {
	if price == nil || low == nil || high == nil {
		return market.NeutralScore
	}
	p, lo, hi := *price, *low, *high
	mid := (lo + hi) / 2

	switch {
	case p <= lo:
		return 100
	case p <= mid:
		return 100 - 25*(p-lo)/(mid-lo)
	case p <= hi:
		return 75 - 25*(p-mid)/(hi-mid)
	default:
		overshoot := (p - hi) / hi
		return max(0, 50-50*overshoot)
	}
}

// AppreciationScore rescales the resolved annual rate onto 0-100 against
// AppreciationCeiling, with the golden-era bonus for iconic models, capped
// at 100 and floored at 0 (a learned negative rate would otherwise push
// the sub-score below the scale).
func AppreciationScore(l *market.Listing, kb *knowledge.Base, est *pricehistory.Estimator) float64 {
	rate := est.Rate(l.Brand, l.Model, l.Year)
	score := min(100, rate/AppreciationCeiling*100)

	if iconic := kb.MatchIconic(l.Brand, l.Model); iconic != nil {
		if year, ok := market.ParseYear(l.Year); ok && iconic.InGoldenEra(year) {
			score = min(100, score+GoldenEraBonus)
		}
	}

	return max(0, score)
}

// collectionProfile is the owned-collection summary the fit dimension
// scores against, computed once per Scorer.
type collectionProfile struct {
	size       int
	brands     map[string]struct{}
	models     map[string]struct{}
	typeCounts map[market.InstrumentType]int
}

func newCollectionProfile(collection []market.CollectionEntry) *collectionProfile {
	p := &collectionProfile{
		size:       len(collection),
		brands:     make(map[string]struct{}, len(collection)),
		models:     make(map[string]struct{}, len(collection)),
		typeCounts: make(map[market.InstrumentType]int),
	}
	for i := range collection {
		c := &collection[i]
		p.brands[lower(c.Brand)] = struct{}{}
		p.models[market.ModelKey(c.Brand, c.Model)] = struct{}{}
		if c.Type != "" && c.Type != market.TypeUnknown {
			p.typeCounts[c.Type]++
		}
	}
	return p
}

// OwnsBrand reports whether any owned instrument carries the brand.
func (p *collectionProfile) OwnsBrand(brand string) bool {
	_, ok := p.brands[lower(brand)]
	return ok
}

// OwnsModel reports whether the exact brand+model is already owned.
func (p *collectionProfile) OwnsModel(brand, model string) bool {
	_, ok := p.models[market.ModelKey(brand, model)]
	return ok
}

// TypeShare returns the fraction of the collection with the given type.
func (p *collectionProfile) TypeShare(typ market.InstrumentType) float64 {
	if p.size == 0 {
		return 0
	}
	return float64(p.typeCounts[typ]) / float64(p.size)
}

// FitScore rates how well a listing diversifies the owned collection.
// Starts at 50; an exact duplicate costs 25, otherwise a brand new to the
// collection earns 20; an under-represented type earns 15; a matched iconic
// model adds its popularity boost. Clamped to [0,100]. With an empty
// collection only the iconic boost applies.
func FitScore(l *market.Listing, profile *collectionProfile, kb *knowledge.Base) float64 {
	score := market.NeutralScore

	if profile.size > 0 {
		if profile.OwnsModel(l.Brand, l.Model) {
			score -= 25
		} else if !profile.OwnsBrand(l.Brand) {
			score += 20
		}
		if l.Type != "" && l.Type != market.TypeUnknown && profile.TypeShare(l.Type) < underRepresentedShare {
			score += 15
		}
	}

	if iconic := kb.MatchIconic(l.Brand, l.Model); iconic != nil {
		score += iconic.Boost
	}

	return max(0, min(100, score))
}
