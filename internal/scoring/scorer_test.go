// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package scoring

import (
	"math"
	"testing"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

func fptr(v float64) *float64 { return &v }

func TestValueScore(t *testing.T) {
	lo, hi := fptr(8500), fptr(14000)

	tests := []struct {
		name  string
		price *float64
		want  float64
	}{
		{"below market low", fptr(8000), 100},
		{"at market low", fptr(8500), 100},
		{"at midpoint", fptr(11250), 75},
		{"at market high", fptr(14000), 50},
		{"half over high", fptr(21000), 25},
		{"double the high", fptr(28000), 0},
		{"far above high floors at zero", fptr(100000), 0},
		{"missing price is neutral", nil, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueScore(tt.price, lo, hi); got != tt.want {
				t.Errorf("ValueScore() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("missing range is neutral", func(t *testing.T) {
		if got := ValueScore(fptr(9000), nil, hi); got != 50 {
			t.Errorf("ValueScore() = %v, want 50", got)
		}
	})

	t.Run("monotonically non-increasing in price", func(t *testing.T) {
		prev := math.Inf(1)
		for p := 1000.0; p <= 40000; p += 250 {
			price := p
			got := ValueScore(&price, lo, hi)
			if got > prev {
				t.Fatalf("ValueScore(%v) = %v rose above %v", p, got, prev)
			}
			prev = got
		}
	})
}

func strat() knowledge.IconicModel {
	return knowledge.IconicModel{
		Brand:     "Fender",
		Model:     "Stratocaster",
		GoldenEra: [2]int{1958, 1965},
		Boost:     15,
	}
}

func TestAppreciationScore(t *testing.T) {
	kb := knowledge.NewBase(nil, nil, []knowledge.IconicModel{strat()}, nil)

	t.Run("rescales rate against the ceiling", func(t *testing.T) {
		est := pricehistory.NewEstimator(map[string]float64{"gibson|sg": 0.06}, kb)
		l := &market.Listing{Brand: "Gibson", Model: "SG", Year: "1970"}
		if got := AppreciationScore(l, kb, est); got != 50 {
			t.Errorf("AppreciationScore() = %v, want 50", got)
		}
	})

	t.Run("golden era year adds the bonus", func(t *testing.T) {
		est := pricehistory.NewEstimator(map[string]float64{"fender|stratocaster": 0.072}, kb)
		l := &market.Listing{Brand: "Fender", Model: "Stratocaster", Year: "1964"}
		got := AppreciationScore(l, kb, est)
		if math.Abs(got-80) > 1e-9 {
			t.Errorf("AppreciationScore() = %v, want 80", got)
		}
	})

	t.Run("bonus caps at 100", func(t *testing.T) {
		est := pricehistory.NewEstimator(map[string]float64{"fender|stratocaster": 0.12}, kb)
		l := &market.Listing{Brand: "Fender", Model: "Stratocaster", Year: "1964"}
		if got := AppreciationScore(l, kb, est); got != 100 {
			t.Errorf("AppreciationScore() = %v, want 100", got)
		}
	})

	t.Run("outside golden era no bonus", func(t *testing.T) {
		est := pricehistory.NewEstimator(map[string]float64{"fender|stratocaster": 0.072}, kb)
		l := &market.Listing{Brand: "Fender", Model: "Stratocaster", Year: "1975"}
		got := AppreciationScore(l, kb, est)
		if math.Abs(got-60) > 1e-9 {
			t.Errorf("AppreciationScore() = %v, want 60", got)
		}
	})

	t.Run("negative learned rate floors at zero", func(t *testing.T) {
		est := pricehistory.NewEstimator(map[string]float64{"gibson|sg": -0.10}, kb)
		l := &market.Listing{Brand: "Gibson", Model: "SG", Year: "1990"}
		if got := AppreciationScore(l, kb, est); got != 0 {
			t.Errorf("AppreciationScore() = %v, want 0", got)
		}
	})
}

func TestFitScore(t *testing.T) {
	iconicKB := knowledge.NewBase(nil, nil, []knowledge.IconicModel{strat()}, nil)
	plainKB := knowledge.NewBase(nil, nil, nil, nil)

	collection := []market.CollectionEntry{
		{Brand: "Gibson", Model: "Les Paul", Type: market.TypeElectric},
		{Brand: "Gibson", Model: "ES-335", Type: market.TypeElectric},
		{Brand: "Martin", Model: "D-28", Type: market.TypeAcoustic},
	}

	tests := []struct {
		name    string
		kb      *knowledge.Base
		owned   []market.CollectionEntry
		listing market.Listing
		want    float64
	}{
		{
			name:    "new brand well represented type",
			kb:      plainKB,
			owned:   collection,
			listing: market.Listing{Brand: "Rickenbacker", Model: "360", Type: market.TypeElectric},
			want:    70,
		},
		{
			name:    "exact duplicate penalized",
			kb:      plainKB,
			owned:   collection,
			listing: market.Listing{Brand: "Gibson", Model: "Les Paul", Type: market.TypeElectric},
			want:    25,
		},
		{
			name:    "owned brand new model no brand bonus",
			kb:      plainKB,
			owned:   collection,
			listing: market.Listing{Brand: "Gibson", Model: "SG", Type: market.TypeElectric},
			want:    50,
		},
		{
			name:    "under-represented type bonus stacks",
			kb:      plainKB,
			owned:   collection,
			listing: market.Listing{Brand: "Hofner", Model: "500/1", Type: market.TypeBass},
			want:    85,
		},
		{
			name:    "iconic boost stacks on top",
			kb:      iconicKB,
			owned:   collection,
			listing: market.Listing{Brand: "Fender", Model: "Stratocaster 1962", Type: market.TypeElectric},
			want:    85,
		},
		{
			name:    "empty collection applies only the iconic boost",
			kb:      iconicKB,
			listing: market.Listing{Brand: "Fender", Model: "Stratocaster", Type: market.TypeElectric},
			want:    65,
		},
		{
			name:    "empty collection non-iconic stays neutral",
			kb:      plainKB,
			listing: market.Listing{Brand: "Fender", Model: "Stratocaster", Type: market.TypeElectric},
			want:    50,
		},
		{
			name:    "unknown type earns no diversification bonus",
			kb:      plainKB,
			owned:   collection,
			listing: market.Listing{Brand: "Supro", Model: "Dual Tone", Type: market.TypeUnknown},
			want:    70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := newCollectionProfile(tt.owned)
			if got := FitScore(&tt.listing, profile, tt.kb); got != tt.want {
				t.Errorf("FitScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestScorer(t *testing.T, weights map[string]float64) *Scorer {
	t.Helper()
	kb := knowledge.NewBase(nil, nil, nil, nil)
	est := pricehistory.NewEstimator(nil, kb)
	s, err := NewScorer(weights, kb, est, nil)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	return s
}

func TestNewScorer(t *testing.T) {
	t.Run("rejects unknown dimension", func(t *testing.T) {
		_, err := NewScorer(map[string]float64{"sparkle": 1}, nil, nil, nil)
		if err == nil {
			t.Fatal("NewScorer() error = nil, want unknown-dimension error")
		}
	})

	t.Run("rejects negative weight", func(t *testing.T) {
		_, err := NewScorer(map[string]float64{DimValue: -0.5}, nil, nil, nil)
		if err == nil {
			t.Fatal("NewScorer() error = nil, want negative-weight error")
		}
	})

	t.Run("rejects empty weight map", func(t *testing.T) {
		_, err := NewScorer(nil, nil, nil, nil)
		if err == nil {
			t.Fatal("NewScorer() error = nil, want no-dimensions error")
		}
	})

	t.Run("missing keys exclude dimensions", func(t *testing.T) {
		s := newTestScorer(t, map[string]float64{DimValue: 0.5, DimCondition: 0.5})
		got := s.Dimensions()
		want := []string{DimValue, DimCondition}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("Dimensions() = %v, want %v", got, want)
		}
	})
}

func TestScorerScore(t *testing.T) {
	t.Run("weighted total over registered dimensions", func(t *testing.T) {
		s := newTestScorer(t, map[string]float64{DimValue: 0.6, DimCondition: 0.4})
		l := &market.Listing{
			Brand:      "Gibson",
			Model:      "Les Paul",
			Price:      fptr(8000),
			MarketLow:  fptr(8500),
			MarketHigh: fptr(14000),
			Condition:  "Excellent",
		}

		b := s.Score(l)
		if b.Sub[DimValue] != 100 {
			t.Errorf("value sub = %v, want 100", b.Sub[DimValue])
		}
		if b.Sub[DimCondition] != 85 {
			t.Errorf("condition sub = %v, want 85", b.Sub[DimCondition])
		}
		if b.RuleTotal != 94 {
			t.Errorf("RuleTotal = %v, want 94", b.RuleTotal)
		}
		if _, ok := b.Sub[DimFit]; ok {
			t.Error("unconfigured fit dimension leaked into breakdown")
		}
	})

	t.Run("empty listing scores all neutral", func(t *testing.T) {
		weights := map[string]float64{
			DimValue: 0.25, DimAppreciate: 0.20, DimFit: 0.20,
			DimCondition: 0.20, DimIconic: 0.15,
		}
		s := newTestScorer(t, weights)

		b := s.Score(&market.Listing{})
		for _, name := range []string{DimValue, DimCondition, DimIconic} {
			if b.Sub[name] != 50 {
				t.Errorf("%s sub = %v, want neutral 50", name, b.Sub[name])
			}
		}
	})

	t.Run("vector follows canonical order with neutral fill", func(t *testing.T) {
		s := newTestScorer(t, map[string]float64{DimValue: 1})
		l := &market.Listing{
			Price:      fptr(11250),
			MarketLow:  fptr(8500),
			MarketHigh: fptr(14000),
		}

		b := s.Score(l)
		vec := b.Vector()
		if len(vec) != 5 {
			t.Fatalf("len(Vector()) = %d, want 5", len(vec))
		}
		if vec[0] != 75 {
			t.Errorf("vec[0] = %v, want 75", vec[0])
		}
		for i := 1; i < 5; i++ {
			if vec[i] != 50 {
				t.Errorf("vec[%d] = %v, want neutral 50", i, vec[i])
			}
		}
	})
}
