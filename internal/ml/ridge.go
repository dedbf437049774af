// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"fmt"
	"math"
)

// RidgeConfig contains configuration for L2-regularized linear regression.
type RidgeConfig struct {
	// Alpha is the L2 regularization strength. The intercept is not
	// penalized. Typical range: 0.1-10.
	Alpha float64
}

// DefaultRidgeConfig returns the default ridge configuration.
func DefaultRidgeConfig() RidgeConfig {
	return RidgeConfig{Alpha: 1.0}
}

// Ridge is a closed-form L2-regularized linear regression. Features and
// target are mean-centered, the normal equations (X'X + alpha*I) w = X'y
// are solved by Gaussian elimination, and the intercept is recovered from
// the means.
type Ridge struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// FitRidge trains a ridge model on the given samples.
func FitRidge(cfg RidgeConfig, x [][]float64, y []float64) (*Ridge, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("ridge: %d samples, %d targets", len(x), len(y))
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 1.0
	}

	n := len(x)
	dim := len(x[0])
	for i := range x {
		if len(x[i]) != dim {
			return nil, fmt.Errorf("ridge: ragged sample %d", i)
		}
	}

	// Center features and target so the intercept stays unpenalized.
	xMean := make([]float64, dim)
	for _, row := range x {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	// Normal equations on centered data.
	gram := make([][]float64, dim)
	for j := range gram {
		gram[j] = make([]float64, dim)
	}
	xty := make([]float64, dim)

	for i, row := range x {
		yc := y[i] - yMean
		for j := 0; j < dim; j++ {
			xj := row[j] - xMean[j]
			xty[j] += xj * yc
			for k := j; k < dim; k++ {
				gram[j][k] += xj * (row[k] - xMean[k])
			}
		}
	}
	for j := 0; j < dim; j++ {
		gram[j][j] += cfg.Alpha
		for k := j + 1; k < dim; k++ {
			gram[k][j] = gram[j][k]
		}
	}

	coef, err := solveLinear(gram, xty)
	if err != nil {
		return nil, fmt.Errorf("ridge: %w", err)
	}

	intercept := yMean
	for j := range coef {
		intercept -= coef[j] * xMean[j]
	}

	return &Ridge{Coef: coef, Intercept: intercept}, nil
}

// Predict evaluates the linear model on one feature vector.
func (r *Ridge) Predict(x []float64) float64 {
	pred := r.Intercept
	for j := range r.Coef {
		if j < len(x) {
			pred += r.Coef[j] * x[j]
		}
	}
	return pred
}

// NormalizedWeights clips negative coefficients to zero and renormalizes
// the rest to sum to 1, rounded to 4 decimals. When every coefficient is
// non-positive the result is uniform.
func (r *Ridge) NormalizedWeights() []float64 {
	clipped := make([]float64, len(r.Coef))
	var total float64
	for j, c := range r.Coef {
		if c > 0 {
			clipped[j] = c
			total += c
		}
	}
	if total <= 0 {
		uniform := round4(1 / float64(len(r.Coef)))
		for j := range clipped {
			clipped[j] = uniform
		}
		return clipped
	}
	for j := range clipped {
		clipped[j] = round4(clipped[j] / total)
	}
	return clipped
}

// solveLinear solves a*w = b in place by Gaussian elimination with partial
// pivoting. a must be square and well-conditioned enough for the pivot
// check; the ridge penalty guarantees that for any alpha > 0.
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	w := make([]float64, n)
	for col := n - 1; col >= 0; col-- {
		sum := b[col]
		for k := col + 1; k < n; k++ {
			sum -= a[col][k] * w[k]
		}
		w[col] = sum / a[col][col]
	}
	return w, nil
}
