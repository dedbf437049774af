// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"fmt"
	"math/rand"
)

// ForestConfig contains configuration for the bagged-tree regressor.
type ForestConfig struct {
	// NumTrees is the ensemble size. Typical range: 50-200.
	NumTrees int

	// MaxDepth bounds each tree. Typical range: 4-10.
	MaxDepth int

	// MinSamplesSplit is the smallest node that may still split.
	MinSamplesSplit int

	// Seed fixes the bootstrap sampling so training is reproducible.
	Seed int64
}

// DefaultForestConfig returns the default forest configuration.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:        100,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// Forest is a bagged ensemble of regression trees; prediction is the mean
// over trees.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// FitForest trains the ensemble, each tree on a bootstrap resample.
func FitForest(cfg ForestConfig, x [][]float64, y []float64) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d samples, %d targets", len(x), len(y))
	}
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 100
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 6
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible sampling, not cryptography
	tcfg := treeConfig{maxDepth: cfg.MaxDepth, minSamples: cfg.MinSamplesSplit}

	forest := &Forest{Trees: make([]Tree, 0, cfg.NumTrees)}
	n := len(x)
	for t := 0; t < cfg.NumTrees; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		forest.Trees = append(forest.Trees, *fitTree(tcfg, x, y, sample))
	}
	return forest, nil
}

// Predict returns the mean prediction over all trees.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}
