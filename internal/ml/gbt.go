// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"fmt"
	"math"
)

// BoostConfig contains configuration for gradient-boosted trees.
type BoostConfig struct {
	// NumTrees is the boosting round count. Typical range: 50-200.
	NumTrees int

	// MaxDepth bounds each tree. Shallow trees (3-5) generalize best on
	// small tabular sets.
	MaxDepth int

	// LearningRate shrinks each tree's contribution. Typical range:
	// 0.05-0.2.
	LearningRate float64

	// MinSamplesSplit is the smallest node that may still split.
	MinSamplesSplit int
}

// DefaultBoostConfig returns the default boosting configuration.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		NumTrees:        100,
		MaxDepth:        4,
		LearningRate:    0.1,
		MinSamplesSplit: 2,
	}
}

func (c BoostConfig) normalized() BoostConfig {
	if c.NumTrees <= 0 {
		c.NumTrees = 100
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 4
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = 2
	}
	return c
}

// BoostedRegressor is a least-squares gradient-boosted tree ensemble:
// a mean baseline plus shrunken trees fit to the running residuals.
type BoostedRegressor struct {
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
}

// FitBoostedRegressor trains the ensemble on the given samples.
func FitBoostedRegressor(cfg BoostConfig, x [][]float64, y []float64) (*BoostedRegressor, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("boost: %d samples, %d targets", len(x), len(y))
	}
	cfg = cfg.normalized()

	idx := allIndices(len(x))
	model := &BoostedRegressor{
		Base:         mean(y, idx),
		LearningRate: cfg.LearningRate,
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = model.Base
	}

	residual := make([]float64, len(y))
	tcfg := treeConfig{maxDepth: cfg.MaxDepth, minSamples: cfg.MinSamplesSplit}

	for round := 0; round < cfg.NumTrees; round++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(tcfg, x, residual, idx)
		model.Trees = append(model.Trees, *tree)

		for i := range pred {
			pred[i] += cfg.LearningRate * tree.Predict(x[i])
		}
	}
	return model, nil
}

// Predict evaluates the ensemble on one feature vector.
func (m *BoostedRegressor) Predict(x []float64) float64 {
	pred := m.Base
	for i := range m.Trees {
		pred += m.LearningRate * m.Trees[i].Predict(x)
	}
	return pred
}

// BoostedClassifier is a binary gradient-boosted classifier under logistic
// loss: trees fit the probability residuals and leaves take a Newton step.
type BoostedClassifier struct {
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
}

// FitBoostedClassifier trains the classifier; y must be 0/1 labels.
func FitBoostedClassifier(cfg BoostConfig, x [][]float64, y []float64) (*BoostedClassifier, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("boost: %d samples, %d targets", len(x), len(y))
	}
	cfg = cfg.normalized()

	idx := allIndices(len(x))
	pos := mean(y, idx)
	// Clamp away from 0/1 so the initial log-odds stay finite on a
	// single-class degenerate set.
	pos = math.Min(math.Max(pos, 1e-6), 1-1e-6)

	model := &BoostedClassifier{
		Base:         math.Log(pos / (1 - pos)),
		LearningRate: cfg.LearningRate,
	}

	score := make([]float64, len(y))
	for i := range score {
		score[i] = model.Base
	}

	residual := make([]float64, len(y))
	tcfg := treeConfig{maxDepth: cfg.MaxDepth, minSamples: cfg.MinSamplesSplit}

	for round := 0; round < cfg.NumTrees; round++ {
		for i := range y {
			residual[i] = y[i] - sigmoid(score[i])
		}
		tree := fitTree(tcfg, x, residual, idx)
		newtonLeaves(tree, x, y, score, idx)
		model.Trees = append(model.Trees, *tree)

		for i := range score {
			score[i] += cfg.LearningRate * tree.Predict(x[i])
		}
	}
	return model, nil
}

// PredictProb returns the positive-class probability for one vector.
func (m *BoostedClassifier) PredictProb(x []float64) float64 {
	score := m.Base
	for i := range m.Trees {
		score += m.LearningRate * m.Trees[i].Predict(x)
	}
	return sigmoid(score)
}

// newtonLeaves replaces each leaf's mean-residual value with the logistic
// Newton step sum(y-p) / sum(p(1-p)) over the samples landing in it.
func newtonLeaves(t *Tree, x [][]float64, y, score []float64, idx []int) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for _, i := range idx {
		leaf := t.leafIndex(x[i])
		p := sigmoid(score[i])
		num[leaf] += y[i] - p
		den[leaf] += p * (1 - p)
	}
	for leaf, n := range num {
		if d := den[leaf]; d > 1e-12 {
			t.Nodes[leaf].Value = n / d
		}
	}
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
