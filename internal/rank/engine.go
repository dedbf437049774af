// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package rank assembles the full scoring pipeline into ranked
// recommendation passes: market-range backfill, rule-based scoring,
// optional statistical blending, budget gating and value projections.
package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/ml"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
	"github.com/fretsonar/fretsonar/internal/scoring"
)

// Config contains configuration for a scoring pass.
type Config struct {
	// Weights maps dimension name to its non-negative weight. A missing
	// key excludes the dimension.
	Weights map[string]float64

	// TopN bounds the recommendation list.
	TopN int

	// MLEnabled gates the blending layer; when false the rule total is
	// the final score regardless of trained models.
	MLEnabled bool

	// MLBlend in [0,1] mixes the learned-weight total into the final
	// score. Operator-tunable, not learned.
	MLBlend float64

	// BudgetTotal and BudgetSpent gate the over-budget flag; listings
	// priced above the remainder are flagged, never dropped.
	BudgetTotal float64
	BudgetSpent float64

	// LookupConcurrency bounds parallel market-range lookups.
	LookupConcurrency int
}

// DefaultConfig returns the default pass configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			scoring.DimValue:      0.25,
			scoring.DimAppreciate: 0.20,
			scoring.DimFit:        0.20,
			scoring.DimCondition:  0.20,
			scoring.DimIconic:     0.15,
		},
		TopN:              10,
		MLBlend:           0.3,
		BudgetTotal:       20000,
		LookupConcurrency: 3,
	}
}

// Recommendation is one ranked entry of a pass.
type Recommendation struct {
	Rank    int            `json:"rank"`
	Listing market.Listing `json:"listing"`

	Breakdown scoring.Breakdown `json:"breakdown"`
	ML        *ml.Prediction    `json:"ml,omitempty"`

	// FinalScore is the blended total when the ML layer contributed,
	// otherwise the rule total.
	FinalScore float64 `json:"final_score"`

	// Value1Y/Value2Y project the market midpoint (or asking price when
	// no range exists) at the applicable appreciation rate.
	Value1Y *float64 `json:"value_1y,omitempty"`
	Value2Y *float64 `json:"value_2y,omitempty"`

	// OverBudget flags listings priced above the remaining budget.
	OverBudget bool `json:"over_budget"`
}

// Result is one complete scoring pass.
type Result struct {
	PassID          string           `json:"pass_id"`
	GeneratedAt     time.Time        `json:"generated_at"`
	ListingsScored  int              `json:"listings_scored"`
	BudgetRemaining float64          `json:"budget_remaining"`
	MLActive        bool             `json:"ml_active"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Engine runs scoring passes. Long-lived; each pass re-reads learned
// rates and rebuilds its scorer so daily learning lands without restarts.
type Engine struct {
	kb        *knowledge.Base
	history   *pricehistory.Store
	lookup    market.LookupClient
	predictor *ml.Predictor
	logger    zerolog.Logger
}

// NewEngine creates a ranking engine. lookup and predictor may be nil:
// without a lookup client listings keep whatever range they carry, and
// without a predictor the pass is pure rule-based.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(
	kb *knowledge.Base,
	history *pricehistory.Store,
	lookup market.LookupClient,
	predictor *ml.Predictor,
	logger zerolog.Logger,
) *Engine {
	if kb == nil {
		kb = knowledge.NewBase(nil, nil, nil, nil)
	}
	return &Engine{
		kb:        kb,
		history:   history,
		lookup:    lookup,
		predictor: predictor,
		logger:    logger.With().Str("component", "rank").Logger(),
	}
}

// Rank scores every active listing and returns the top-N pass result.
func (e *Engine) Rank(
	ctx context.Context,
	cfg Config,
	listings []market.Listing,
	collection []market.CollectionEntry,
) (*Result, error) {
	active := make([]market.Listing, 0, len(listings))
	for i := range listings {
		if listings[i].Active() {
			active = append(active, listings[i])
		}
	}

	if err := e.backfillRanges(ctx, cfg, active); err != nil {
		return nil, err
	}

	est, err := e.estimator()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(cfg.Weights, e.kb, est, collection)
	if err != nil {
		return nil, err
	}

	mlActive := cfg.MLEnabled && e.predictor != nil && e.predictor.Available()
	extractor := ml.NewExtractor(e.kb, collection)
	remaining := cfg.BudgetTotal - cfg.BudgetSpent

	recs := make([]Recommendation, 0, len(active))
	for i := range active {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := &active[i]
		rec := Recommendation{Listing: *l, Breakdown: scorer.Score(l)}
		rec.FinalScore = rec.Breakdown.RuleTotal

		if mlActive {
			pred := e.predictor.Predict(extractor, l, &rec.Breakdown)
			rec.ML = &pred
			rec.FinalScore = ml.Blend(rec.Breakdown.RuleTotal, pred.MLTotal, cfg.MLBlend)
		}

		base := l.MarketMid()
		if base == 0 && l.Price != nil {
			base = *l.Price
		}
		if v, ok := est.Project(base, l.Brand, l.Model, l.Year, 1); ok {
			rec.Value1Y = &v
		}
		if v, ok := est.Project(base, l.Brand, l.Model, l.Year, 2); ok {
			rec.Value2Y = &v
		}

		rec.OverBudget = l.Price != nil && *l.Price > remaining
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].FinalScore > recs[j].FinalScore
	})
	topN := cfg.TopN
	if topN <= 0 || topN > len(recs) {
		topN = len(recs)
	}
	recs = recs[:topN]
	for i := range recs {
		recs[i].Rank = i + 1
	}

	result := &Result{
		PassID:          uuid.NewString(),
		GeneratedAt:     time.Now(),
		ListingsScored:  len(active),
		BudgetRemaining: remaining,
		MLActive:        mlActive,
		Recommendations: recs,
	}

	e.logger.Info().
		Str("pass_id", result.PassID).
		Int("scored", result.ListingsScored).
		Int("top_n", len(recs)).
		Bool("ml_active", mlActive).
		Msg("scoring pass complete")

	return result, nil
}

// estimator resolves the appreciation estimator for this pass: learned
// rates when a history store exists, static priors otherwise.
func (e *Engine) estimator() (*pricehistory.Estimator, error) {
	if e.history == nil {
		return pricehistory.NewEstimator(nil, e.kb), nil
	}
	learned, err := e.history.LearnedRates()
	if err != nil {
		return nil, fmt.Errorf("rank: load learned rates: %w", err)
	}
	return pricehistory.NewEstimator(learned, e.kb), nil
}

// backfillRanges fills missing market ranges in place with bounded
// concurrency. A listing the guide has no data for keeps a nil range
// and scores neutral; transient lookup failures degrade the same way
// rather than failing the pass. Only context cancellation aborts.
func (e *Engine) backfillRanges(ctx context.Context, cfg Config, listings []market.Listing) error {
	if e.lookup == nil {
		return nil
	}

	limit := cfg.LookupConcurrency
	if limit <= 0 {
		limit = DefaultConfig().LookupConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range listings {
		l := &listings[i]
		if l.HasMarketRange() || l.Brand == "" || l.Model == "" {
			continue
		}
		g.Go(func() error {
			pr, err := e.lookup.MarketRange(ctx, l.Brand, l.Model, l.Year)
			switch {
			case errors.Is(err, market.ErrNoMarketData):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				e.logger.Warn().
					Str("brand", l.Brand).
					Str("model", l.Model).
					Err(err).
					Msg("market range unavailable, scoring without it")
				return nil
			}
			l.MarketLow, l.MarketHigh = &pr.Low, &pr.High
			return nil
		})
	}
	return g.Wait()
}
