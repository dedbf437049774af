// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/scoring"
)

// Outcome classifies one model's contribution to a prediction. Inference
// never fails a scoring pass; it reports per-model outcomes instead.
type Outcome string

// Per-model inference outcomes.
const (
	// OutcomeSuccess: the model was loaded and produced a value.
	OutcomeSuccess Outcome = "success"
	// OutcomeAbsent: the model has never been trained.
	OutcomeAbsent Outcome = "absent"
	// OutcomeFailed: the artifact exists but could not be loaded or
	// applied (corrupt artifact, feature-version mismatch).
	OutcomeFailed Outcome = "failed"
)

// Prediction is the blending layer's output for one listing. Nil fields
// mean the corresponding model did not contribute; Outcomes says why.
type Prediction struct {
	MLTotal               *float64           `json:"ml_total,omitempty"`
	LearnedWeights        map[string]float64 `json:"ml_weights,omitempty"`
	PredictedPrice        *float64           `json:"ml_price,omitempty"`
	PredictedAppreciation *float64           `json:"ml_appreciation,omitempty"`
	BuyProbability        *float64           `json:"ml_buy_prob,omitempty"`

	Outcomes map[string]Outcome `json:"-"`
}

// ModelStatus reports one model's availability for diagnostics.
type ModelStatus struct {
	Available bool               `json:"available"`
	Error     string             `json:"error,omitempty"`
	TrainedAt time.Time          `json:"trained_at"`
	Samples   int                `json:"samples"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Predictor is the model capability object: constructed once at process
// start, loaded lazily on first use, then immutable and safe for
// concurrent scoring. Missing models degrade to absent outcomes; the rule
// total always survives.
type Predictor struct {
	store  *ModelStore
	logger zerolog.Logger

	once sync.Once

	weightMeta *Meta
	price      *BoostedRegressor
	priceMeta  *Meta
	appr       *Forest
	apprMeta   *Meta
	buy        *BoostedClassifier
	buyMeta    *Meta

	loadErr map[string]string
}

// NewPredictor creates a predictor over the model store. Nothing is read
// until the first prediction or status call.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPredictor(store *ModelStore, logger zerolog.Logger) *Predictor {
	return &Predictor{
		store:   store,
		logger:  logger.With().Str("component", "ml.predictor").Logger(),
		loadErr: make(map[string]string),
	}
}

func (p *Predictor) load() {
	p.once.Do(func() {
		p.weightMeta = p.loadMetaChecked(ModelWeightOptimizer)
		if p.weightMeta != nil && len(p.weightMeta.LearnedWeights) == 0 {
			p.fail(ModelWeightOptimizer, "meta carries no learned weights")
			p.weightMeta = nil
		}

		var price BoostedRegressor
		if p.loadModel(ModelPricePredictor, &price) {
			p.price = &price
			p.priceMeta = p.loadMetaChecked(ModelPricePredictor)
			if p.priceMeta == nil {
				p.price = nil
			}
		}

		var appr Forest
		if p.loadModel(ModelAppreciationPredictor, &appr) {
			p.appr = &appr
			p.apprMeta = p.loadMetaChecked(ModelAppreciationPredictor)
			if p.apprMeta == nil {
				p.appr = nil
			}
		}

		var buy BoostedClassifier
		if p.loadModel(ModelBuyClassifier, &buy) {
			p.buy = &buy
			p.buyMeta = p.loadMetaChecked(ModelBuyClassifier)
			if p.buyMeta == nil {
				p.buy = nil
			}
		}
	})
}

// loadModel reads one artifact; a decode failure is recorded, not raised.
func (p *Predictor) loadModel(name string, dst any) bool {
	found, err := p.store.Load(name, dst)
	if err != nil {
		p.fail(name, err.Error())
		return false
	}
	return found
}

// loadMetaChecked reads a model's meta and enforces the feature-version
// contract: a model trained under another layout must not serve.
func (p *Predictor) loadMetaChecked(name string) *Meta {
	meta, err := p.store.LoadMeta(name)
	if err != nil {
		p.fail(name, err.Error())
		return nil
	}
	if meta == nil {
		return nil
	}
	if meta.FeatureVersion != FeatureVersion {
		p.fail(name, "feature version mismatch")
		return nil
	}
	return meta
}

func (p *Predictor) fail(name, reason string) {
	p.loadErr[name] = reason
	p.logger.Warn().Str("model", name).Str("reason", reason).Msg("model unusable")
}

// Available reports whether at least one model can serve predictions.
func (p *Predictor) Available() bool {
	p.load()
	return p.weightMeta != nil || p.price != nil || p.appr != nil || p.buy != nil
}

// LearnedWeights returns the weight optimizer's normalized dimension
// weights, or nil when unavailable.
func (p *Predictor) LearnedWeights() map[string]float64 {
	p.load()
	if p.weightMeta == nil {
		return nil
	}
	return p.weightMeta.LearnedWeights
}

// Status reports every model's availability, for the operator report.
func (p *Predictor) Status() map[string]ModelStatus {
	p.load()
	status := make(map[string]ModelStatus, len(ModelNames))

	metas := map[string]*Meta{
		ModelWeightOptimizer:       p.weightMeta,
		ModelPricePredictor:        p.priceMeta,
		ModelAppreciationPredictor: p.apprMeta,
		ModelBuyClassifier:         p.buyMeta,
	}
	for _, name := range ModelNames {
		s := ModelStatus{Error: p.loadErr[name]}
		if meta := metas[name]; meta != nil {
			s.Available = true
			s.TrainedAt = meta.TrainedAt
			s.Samples = meta.Samples
			s.Metrics = meta.Metrics
		}
		status[name] = s
	}
	return status
}

// Predict runs every available model against one listing. The breakdown
// supplies the rule sub-scores for the learned-weight total; the extractor
// supplies feature vectors for the three feature models.
func (p *Predictor) Predict(ex *Extractor, l *market.Listing, b *scoring.Breakdown) Prediction {
	p.load()

	pred := Prediction{Outcomes: make(map[string]Outcome, len(ModelNames))}
	for _, name := range ModelNames {
		if p.loadErr[name] != "" {
			pred.Outcomes[name] = OutcomeFailed
		} else {
			pred.Outcomes[name] = OutcomeAbsent
		}
	}

	if p.weightMeta != nil {
		vec := b.Vector()
		var total float64
		for i, name := range scoring.DimensionOrder {
			total += p.weightMeta.LearnedWeights[name] * vec[i]
		}
		total = round1(total)
		pred.MLTotal = &total
		pred.LearnedWeights = p.weightMeta.LearnedWeights
		pred.Outcomes[ModelWeightOptimizer] = OutcomeSuccess
	}

	var feats Features
	if p.price != nil || p.appr != nil || p.buy != nil {
		feats = ex.Extract(l)
	}

	if p.price != nil {
		v := round2(math.Max(0, p.price.Predict(feats.Vector(PriceFeatures))))
		pred.PredictedPrice = &v
		pred.Outcomes[ModelPricePredictor] = OutcomeSuccess
	}
	if p.appr != nil {
		v := round2(p.appr.Predict(feats.Vector(AppreciationFeatures)))
		pred.PredictedAppreciation = &v
		pred.Outcomes[ModelAppreciationPredictor] = OutcomeSuccess
	}
	if p.buy != nil {
		v := round1(p.buy.PredictProb(feats.Vector(FeatureOrder)) * 100)
		pred.BuyProbability = &v
		pred.Outcomes[ModelBuyClassifier] = OutcomeSuccess
	}

	return pred
}

// Blend mixes the rule-based total with the learned-weight total. Without
// an ML total the rule total passes through unchanged. The blend factor is
// operator-tunable and clamped to [0,1].
func Blend(ruleTotal float64, mlTotal *float64, blend float64) float64 {
	if mlTotal == nil {
		return ruleTotal
	}
	blend = math.Min(math.Max(blend, 0), 1)
	return round1((1-blend)*ruleTotal + blend*(*mlTotal))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
