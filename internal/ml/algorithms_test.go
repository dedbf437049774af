// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"math"
	"testing"
)

func TestFitRidge(t *testing.T) {
	t.Run("recovers a linear relationship", func(t *testing.T) {
		// y = 2x + 1 with a light penalty.
		var x [][]float64
		var y []float64
		for i := 0.0; i < 40; i++ {
			x = append(x, []float64{i})
			y = append(y, 2*i+1)
		}

		model, err := FitRidge(RidgeConfig{Alpha: 0.001}, x, y)
		if err != nil {
			t.Fatalf("FitRidge() error = %v", err)
		}
		if got := model.Predict([]float64{10}); math.Abs(got-21) > 0.1 {
			t.Errorf("Predict(10) = %v, want ~21", got)
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := FitRidge(DefaultRidgeConfig(), nil, nil); err == nil {
			t.Fatal("FitRidge() error = nil, want error")
		}
	})

	t.Run("handles constant features via the penalty", func(t *testing.T) {
		x := [][]float64{{1, 1}, {1, 1}, {1, 1}}
		y := []float64{5, 5, 5}
		model, err := FitRidge(DefaultRidgeConfig(), x, y)
		if err != nil {
			t.Fatalf("FitRidge() error = %v", err)
		}
		if got := model.Predict([]float64{1, 1}); math.Abs(got-5) > 1e-9 {
			t.Errorf("Predict() = %v, want 5", got)
		}
	})
}

func TestRidgeNormalizedWeights(t *testing.T) {
	tests := []struct {
		name string
		coef []float64
		want []float64
	}{
		{
			name: "clips negatives and renormalizes",
			coef: []float64{3, -1, 1},
			want: []float64{0.75, 0, 0.25},
		},
		{
			name: "all non-positive falls back to uniform",
			coef: []float64{-1, 0, -2, 0},
			want: []float64{0.25, 0.25, 0.25, 0.25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Ridge{Coef: tt.coef}
			got := r.NormalizedWeights()
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("weight[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFitTree(t *testing.T) {
	// A step function: y = 10 for x > 5, else 0.
	var x [][]float64
	var y []float64
	for i := 0.0; i < 20; i++ {
		x = append(x, []float64{i})
		if i > 5 {
			y = append(y, 10)
		} else {
			y = append(y, 0)
		}
	}

	tree := fitTree(treeConfig{maxDepth: 2, minSamples: 2}, x, y, allIndices(len(x)))

	if got := tree.Predict([]float64{2}); got != 0 {
		t.Errorf("Predict(2) = %v, want 0", got)
	}
	if got := tree.Predict([]float64{9}); got != 10 {
		t.Errorf("Predict(9) = %v, want 10", got)
	}
}

func TestFitTreeConstantTarget(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	y := []float64{7, 7, 7}
	tree := fitTree(treeConfig{maxDepth: 3, minSamples: 2}, x, y, allIndices(3))
	if got := tree.Predict([]float64{2}); got != 7 {
		t.Errorf("Predict() = %v, want 7", got)
	}
}

func TestFitBoostedRegressor(t *testing.T) {
	// y = 3*x0 + noiseless step on x1.
	var x [][]float64
	var y []float64
	for i := 0.0; i < 60; i++ {
		x = append(x, []float64{i, math.Mod(i, 7)})
		y = append(y, 3*i)
	}

	cfg := BoostConfig{NumTrees: 50, MaxDepth: 3, LearningRate: 0.2}
	model, err := FitBoostedRegressor(cfg, x, y)
	if err != nil {
		t.Fatalf("FitBoostedRegressor() error = %v", err)
	}

	var worst float64
	for i := range x {
		if d := math.Abs(model.Predict(x[i]) - y[i]); d > worst {
			worst = d
		}
	}
	if worst > 10 {
		t.Errorf("worst training error = %v, want <= 10", worst)
	}
}

func TestFitBoostedClassifier(t *testing.T) {
	// Linearly separable on the first feature.
	var x [][]float64
	var y []float64
	for i := 0.0; i < 40; i++ {
		x = append(x, []float64{i, 1})
		if i >= 20 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	cfg := BoostConfig{NumTrees: 30, MaxDepth: 2, LearningRate: 0.3}
	model, err := FitBoostedClassifier(cfg, x, y)
	if err != nil {
		t.Fatalf("FitBoostedClassifier() error = %v", err)
	}

	if p := model.PredictProb([]float64{35, 1}); p < 0.9 {
		t.Errorf("PredictProb(positive) = %v, want >= 0.9", p)
	}
	if p := model.PredictProb([]float64{3, 1}); p > 0.1 {
		t.Errorf("PredictProb(negative) = %v, want <= 0.1", p)
	}
}

func TestFitForest(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0.0; i < 50; i++ {
		x = append(x, []float64{i})
		if i > 25 {
			y = append(y, 8)
		} else {
			y = append(y, 2)
		}
	}

	model, err := FitForest(DefaultForestConfig(), x, y)
	if err != nil {
		t.Fatalf("FitForest() error = %v", err)
	}

	if got := model.Predict([]float64{5}); math.Abs(got-2) > 1 {
		t.Errorf("Predict(5) = %v, want ~2", got)
	}
	if got := model.Predict([]float64{45}); math.Abs(got-8) > 1 {
		t.Errorf("Predict(45) = %v, want ~8", got)
	}

	t.Run("deterministic under a fixed seed", func(t *testing.T) {
		again, err := FitForest(DefaultForestConfig(), x, y)
		if err != nil {
			t.Fatalf("FitForest() error = %v", err)
		}
		probe := []float64{17}
		if model.Predict(probe) != again.Predict(probe) {
			t.Error("two fits with the same seed disagree")
		}
	})
}
