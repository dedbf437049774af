// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package scoring implements the rule-based multi-dimensional listing
// scorer: five independent 0-100 sub-scores combined by a configurable
// weighted sum.
//
// The dimension set is an explicit ordered registry built from the
// configured weight map at construction. A weight key absent from the
// configuration excludes that dimension entirely, so older 3- and
// 4-dimension weight files keep producing the totals they always did.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

// Canonical dimension names, in registry (and learned-weight vector) order.
const (
	DimValue      = "value"
	DimAppreciate = "appreciate"
	DimFit        = "fit"
	DimCondition  = "condition"
	DimIconic     = "iconic"
)

// DimensionOrder is the canonical ordering of all known dimensions. The
// weight optimizer's coefficient vector follows this exact sequence.
var DimensionOrder = []string{DimValue, DimAppreciate, DimFit, DimCondition, DimIconic}

// Dimension is one scoring axis: a name, its configured weight and the
// sub-score function.
type Dimension struct {
	Name    string
	Weight  float64
	Compute func(l *market.Listing) float64
}

// Breakdown is the scored result for one listing. Sub holds the 0-100
// sub-score for every registered dimension; RuleTotal is the weighted sum.
type Breakdown struct {
	Sub       map[string]float64 `json:"sub"`
	RuleTotal float64            `json:"rule_total"`
}

// Vector returns the sub-scores in DimensionOrder, with a neutral 50 for
// any dimension missing from the registry. Model feature extraction and
// the weight optimizer depend on this fixed layout.
func (b *Breakdown) Vector() []float64 {
	vec := make([]float64, len(DimensionOrder))
	for i, name := range DimensionOrder {
		if s, ok := b.Sub[name]; ok {
			vec[i] = s
		} else {
			vec[i] = market.NeutralScore
		}
	}
	return vec
}

// Scorer scores listings against a fixed collection, knowledge base and
// appreciation estimator. Construct one per scoring pass; it is immutable
// and safe for concurrent use afterwards.
type Scorer struct {
	dims    []Dimension
	kb      *knowledge.Base
	est     *pricehistory.Estimator
	profile *collectionProfile
}

// NewScorer builds the dimension registry from the weight map. Unknown
// weight keys and negative weights are rejected; missing keys silently
// exclude their dimension.
func NewScorer(
	weights map[string]float64,
	kb *knowledge.Base,
	est *pricehistory.Estimator,
	collection []market.CollectionEntry,
) (*Scorer, error) {
	if kb == nil {
		kb = knowledge.NewBase(nil, nil, nil, nil)
	}
	if est == nil {
		est = pricehistory.NewEstimator(nil, kb)
	}

	s := &Scorer{
		kb:      kb,
		est:     est,
		profile: newCollectionProfile(collection),
	}

	compute := map[string]func(*market.Listing) float64{
		DimValue: func(l *market.Listing) float64 {
			return ValueScore(l.Price, l.MarketLow, l.MarketHigh)
		},
		DimAppreciate: func(l *market.Listing) float64 {
			return AppreciationScore(l, s.kb, s.est)
		},
		DimFit: func(l *market.Listing) float64 {
			return FitScore(l, s.profile, s.kb)
		},
		DimCondition: func(l *market.Listing) float64 {
			return market.ConditionScore(l.Condition)
		},
		DimIconic: func(l *market.Listing) float64 {
			return s.kb.IconicScore(l.Brand, l.Model)
		},
	}

	for name := range weights {
		if _, ok := compute[name]; !ok {
			return nil, fmt.Errorf("scoring: unknown dimension %q", name)
		}
		if weights[name] < 0 {
			return nil, fmt.Errorf("scoring: negative weight for dimension %q", name)
		}
	}

	for _, name := range DimensionOrder {
		w, ok := weights[name]
		if !ok {
			continue
		}
		s.dims = append(s.dims, Dimension{Name: name, Weight: w, Compute: compute[name]})
	}
	if len(s.dims) == 0 {
		return nil, fmt.Errorf("scoring: no dimensions configured")
	}

	return s, nil
}

// Dimensions returns the registered dimension names in order.
func (s *Scorer) Dimensions() []string {
	names := make([]string, len(s.dims))
	for i := range s.dims {
		names[i] = s.dims[i].Name
	}
	return names
}

// Score computes the breakdown for one listing. It never fails: missing
// inputs score neutral per dimension.
func (s *Scorer) Score(l *market.Listing) Breakdown {
	b := Breakdown{Sub: make(map[string]float64, len(s.dims))}
	for i := range s.dims {
		d := &s.dims[i]
		sub := round1(d.Compute(l))
		b.Sub[d.Name] = sub
		b.RuleTotal += d.Weight * sub
	}
	b.RuleTotal = round1(b.RuleTotal)
	return b
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
