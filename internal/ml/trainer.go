// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/knowledge"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
	"github.com/fretsonar/fretsonar/internal/scoring"
)

// Minimum sample counts per model. Training below these thresholds is
// skipped, never attempted with a degenerate fit.
const (
	MinWeightOptimizer = 30
	MinPricePredictor  = 50
	MinAppreciation    = 20
	MinBuySkip         = 30
	MinPerClass        = 10
)

// testFraction is the held-out share for reported error metrics.
const testFraction = 0.2

// splitSeed fixes the train/test shuffle so reruns report comparable
// metrics.
const splitSeed = 42

// positiveSaleRatio labels a historical sale a positive classifier example
// when it closed at or above this share of asking.
const positiveSaleRatio = 0.95

// TrainingData is everything one training pass consumes.
type TrainingData struct {
	Sold         []market.SoldTransaction
	Decisions    []market.Decision
	Collection   []market.CollectionEntry
	LearnedRates map[string]float64
}

// ModelReport summarizes one model's training outcome.
type ModelReport struct {
	Trained     bool               `json:"trained"`
	SkipReason  string             `json:"skip_reason,omitempty"`
	Samples     int                `json:"samples"`
	TestSamples int                `json:"test_samples,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Report maps model name to its training outcome.
type Report map[string]ModelReport

// TrainedCount returns how many models trained successfully.
func (r Report) TrainedCount() int {
	n := 0
	for _, m := range r {
		if m.Trained {
			n++
		}
	}
	return n
}

// TrainerConfig contains configuration for the training pass.
type TrainerConfig struct {
	Ridge  RidgeConfig
	Boost  BoostConfig
	Forest ForestConfig
}

// DefaultTrainerConfig returns the default per-model configurations.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Ridge:  DefaultRidgeConfig(),
		Boost:  DefaultBoostConfig(),
		Forest: DefaultForestConfig(),
	}
}

// Trainer fits the four blending-layer models and persists the artifacts.
type Trainer struct {
	cfg    TrainerConfig
	store  *ModelStore
	kb     *knowledge.Base
	logger zerolog.Logger
}

// NewTrainer creates a trainer writing artifacts to store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainer(cfg TrainerConfig, store *ModelStore, kb *knowledge.Base, logger zerolog.Logger) *Trainer {
	if kb == nil {
		kb = knowledge.NewBase(nil, nil, nil, nil)
	}
	return &Trainer{
		cfg:    cfg,
		store:  store,
		kb:     kb,
		logger: logger.With().Str("component", "ml.trainer").Logger(),
	}
}

// TrainAll runs every model's training step. Each model checks its own
// sample threshold; a skipped model is reported, not an error. Persistence
// failures abort the pass.
func (t *Trainer) TrainAll(ctx context.Context, data TrainingData) (Report, error) {
	report := Report{}

	steps := []struct {
		name  string
		train func(TrainingData) (ModelReport, error)
	}{
		{ModelWeightOptimizer, t.trainWeightOptimizer},
		{ModelPricePredictor, t.trainPricePredictor},
		{ModelAppreciationPredictor, t.trainAppreciationPredictor},
		{ModelBuyClassifier, t.trainBuyClassifier},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, err := step.train(data)
		if err != nil {
			return report, fmt.Errorf("train %s: %w", step.name, err)
		}
		report[step.name] = r

		ev := t.logger.Info().Str("model", step.name).Int("samples", r.Samples)
		if r.Trained {
			ev.Msg("model trained")
		} else {
			ev.Str("reason", r.SkipReason).Msg("model skipped")
		}
	}

	return report, nil
}

// subScorer builds a 5-dimension scorer used only for sub-score vectors;
// the weights are irrelevant to the vector.
func (t *Trainer) subScorer(data TrainingData) (*scoring.Scorer, error) {
	uniform := map[string]float64{}
	for _, name := range scoring.DimensionOrder {
		uniform[name] = 0.2
	}
	est := pricehistory.NewEstimator(data.LearnedRates, t.kb)
	return scoring.NewScorer(uniform, t.kb, est, data.Collection)
}

// trainWeightOptimizer fits ridge regression from the five rule sub-scores
// to observed desirability on historical sales.
func (t *Trainer) trainWeightOptimizer(data TrainingData) (ModelReport, error) {
	scorer, err := t.subScorer(data)
	if err != nil {
		return ModelReport{}, err
	}

	var x [][]float64
	var y []float64
	for i := range data.Sold {
		s := &data.Sold[i]
		target, ok := s.Desirability()
		if !ok {
			continue
		}
		l := ListingFromSold(s)
		l.Price = s.ListedPrice
		b := scorer.Score(&l)
		x = append(x, b.Vector())
		y = append(y, target)
	}

	if len(x) < MinWeightOptimizer {
		return skipped(len(x), MinWeightOptimizer), nil
	}

	model, err := FitRidge(t.cfg.Ridge, x, y)
	if err != nil {
		return ModelReport{}, err
	}

	weights := model.NormalizedWeights()
	learned := make(map[string]float64, len(weights))
	for i, name := range scoring.DimensionOrder {
		learned[name] = weights[i]
	}

	preds := make([]float64, len(x))
	for i := range x {
		preds[i] = model.Predict(x[i])
	}
	metrics := map[string]float64{
		"r2":  round4(r2Score(y, preds)),
		"mae": round2(meanAbsError(y, preds)),
	}

	meta := Meta{
		TrainedAt:      time.Now(),
		Samples:        len(x),
		Metrics:        metrics,
		LearnedWeights: learned,
		FeatureVersion: FeatureVersion,
	}
	if err := t.store.Save(ModelWeightOptimizer, model, meta); err != nil {
		return ModelReport{}, err
	}
	return ModelReport{Trained: true, Samples: len(x), Metrics: metrics}, nil
}

// trainPricePredictor fits boosted trees from leakage-free features to the
// realized sold price.
func (t *Trainer) trainPricePredictor(data TrainingData) (ModelReport, error) {
	ex := NewExtractor(t.kb, data.Collection)

	var x [][]float64
	var y []float64
	for i := range data.Sold {
		s := &data.Sold[i]
		if s.SoldPrice == nil || *s.SoldPrice <= 0 {
			continue
		}
		l := ListingFromSold(s)
		x = append(x, ex.Extract(&l).Vector(PriceFeatures))
		y = append(y, *s.SoldPrice)
	}

	if len(x) < MinPricePredictor {
		return skipped(len(x), MinPricePredictor), nil
	}

	trainIdx, testIdx := splitIndices(len(x), testFraction, splitSeed)
	model, err := FitBoostedRegressor(t.cfg.Boost, gather(x, trainIdx), gatherY(y, trainIdx))
	if err != nil {
		return ModelReport{}, err
	}

	testPreds := make([]float64, len(testIdx))
	testY := gatherY(y, testIdx)
	for i, idx := range testIdx {
		testPreds[i] = model.Predict(x[idx])
	}

	mae := meanAbsError(testY, testPreds)
	metrics := map[string]float64{
		"mae":     round2(mae),
		"mae_pct": round2(percentOfMean(mae, testY)),
		"r2":      round4(r2Score(testY, testPreds)),
	}

	meta := Meta{
		TrainedAt:      time.Now(),
		Samples:        len(x),
		TestSamples:    len(testIdx),
		Metrics:        metrics,
		FeatureVersion: FeatureVersion,
	}
	if err := t.store.Save(ModelPricePredictor, model, meta); err != nil {
		return ModelReport{}, err
	}
	return ModelReport{Trained: true, Samples: len(x), TestSamples: len(testIdx), Metrics: metrics}, nil
}

// trainAppreciationPredictor fits a bagged-tree regressor from structural
// features to the learned annual rate, in percentage points.
func (t *Trainer) trainAppreciationPredictor(data TrainingData) (ModelReport, error) {
	ex := NewExtractor(t.kb, nil)

	var x [][]float64
	var y []float64
	for key, rate := range data.LearnedRates {
		brand, model, ok := market.SplitModelKey(key)
		if !ok {
			continue
		}
		l := market.Listing{Brand: brand, Model: model, Type: market.TypeElectric}
		x = append(x, ex.Extract(&l).Vector(AppreciationFeatures))
		y = append(y, rate*100)
	}

	if len(x) < MinAppreciation {
		return skipped(len(x), MinAppreciation), nil
	}

	model, err := FitForest(t.cfg.Forest, x, y)
	if err != nil {
		return ModelReport{}, err
	}

	preds := make([]float64, len(x))
	for i := range x {
		preds[i] = model.Predict(x[i])
	}
	metrics := map[string]float64{
		"mae_pct_points": round2(meanAbsError(y, preds)),
		"r2":             round4(r2Score(y, preds)),
	}

	meta := Meta{
		TrainedAt:      time.Now(),
		Samples:        len(x),
		Metrics:        metrics,
		FeatureVersion: FeatureVersion,
	}
	if err := t.store.Save(ModelAppreciationPredictor, model, meta); err != nil {
		return ModelReport{}, err
	}
	return ModelReport{Trained: true, Samples: len(x), Metrics: metrics}, nil
}

// trainBuyClassifier fits the boosted binary classifier. Positive class:
// owned instruments, sales closing at >= 95% of asking, and explicit buy
// decisions. Negative class: the remaining sales and skip decisions.
func (t *Trainer) trainBuyClassifier(data TrainingData) (ModelReport, error) {
	ex := NewExtractor(t.kb, data.Collection)

	var x [][]float64
	var y []float64
	addExample := func(l market.Listing, label float64) {
		x = append(x, ex.Extract(&l).Vector(FeatureOrder))
		y = append(y, label)
	}

	for i := range data.Collection {
		c := &data.Collection[i]
		if c.Brand != "" && c.Model != "" {
			addExample(ListingFromCollection(c), 1)
		}
	}
	for i := range data.Sold {
		s := &data.Sold[i]
		if s.ListedPrice == nil || s.SoldPrice == nil || *s.ListedPrice <= 0 || *s.SoldPrice <= 0 {
			continue
		}
		l := ListingFromSold(s)
		l.Price = s.ListedPrice
		if *s.SoldPrice / *s.ListedPrice >= positiveSaleRatio {
			addExample(l, 1)
		} else {
			addExample(l, 0)
		}
	}
	for i := range data.Decisions {
		d := &data.Decisions[i]
		switch d.Action {
		case market.DecisionBuy:
			addExample(d.Listing, 1)
		case market.DecisionSkip:
			addExample(d.Listing, 0)
		}
	}

	pos, neg := 0, 0
	for _, label := range y {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}

	if len(x) < MinBuySkip || pos < MinPerClass || neg < MinPerClass {
		r := skipped(len(x), MinBuySkip)
		r.SkipReason = fmt.Sprintf("%d buy + %d skip samples, need %d total with %d per class",
			pos, neg, MinBuySkip, MinPerClass)
		return r, nil
	}

	trainIdx, testIdx := stratifiedSplit(y, testFraction, splitSeed)
	model, err := FitBoostedClassifier(t.cfg.Boost, gather(x, trainIdx), gatherY(y, trainIdx))
	if err != nil {
		return ModelReport{}, err
	}

	var tp, fp, fn float64
	for _, idx := range testIdx {
		pred := 0.0
		if model.PredictProb(x[idx]) >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && y[idx] == 1:
			tp++
		case pred == 1 && y[idx] == 0:
			fp++
		case pred == 0 && y[idx] == 1:
			fn++
		}
	}
	precision := safeDiv(tp, tp+fp)
	recall := safeDiv(tp, tp+fn)
	metrics := map[string]float64{
		"precision": round4(precision),
		"recall":    round4(recall),
		"f1":        round4(safeDiv(2*precision*recall, precision+recall)),
	}

	meta := Meta{
		TrainedAt:      time.Now(),
		Samples:        len(x),
		TestSamples:    len(testIdx),
		Metrics:        metrics,
		ClassBalance:   map[string]int{"buy": pos, "skip": neg},
		FeatureVersion: FeatureVersion,
	}
	if err := t.store.Save(ModelBuyClassifier, model, meta); err != nil {
		return ModelReport{}, err
	}
	return ModelReport{Trained: true, Samples: len(x), TestSamples: len(testIdx), Metrics: metrics}, nil
}

func skipped(have, need int) ModelReport {
	return ModelReport{
		Samples:    have,
		SkipReason: fmt.Sprintf("%d samples below minimum %d", have, need),
	}
}

// splitIndices shuffles 0..n-1 deterministically and carves off the test
// fraction (at least one sample each side).
func splitIndices(n int, frac float64, seed int64) (train, test []int) {
	idx := allIndices(n)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not cryptography
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	cut := int(float64(n) * frac)
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return idx[cut:], idx[:cut]
}

// stratifiedSplit splits each class separately so the held-out set keeps
// the class balance.
func stratifiedSplit(labels []float64, frac float64, seed int64) (train, test []int) {
	var posIdx, negIdx []int
	for i, label := range labels {
		if label == 1 {
			posIdx = append(posIdx, i)
		} else {
			negIdx = append(negIdx, i)
		}
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not cryptography
	for _, class := range [][]int{posIdx, negIdx} {
		class := class
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		cut := int(float64(len(class)) * frac)
		if cut < 1 && len(class) > 1 {
			cut = 1
		}
		test = append(test, class[:cut]...)
		train = append(train, class[cut:]...)
	}
	return train, test
}

func gather(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func gatherY(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func meanAbsError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

func r2Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		ssRes += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		ssTot += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func percentOfMean(mae float64, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	if mean == 0 {
		return 0
	}
	return mae / mean * 100
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
