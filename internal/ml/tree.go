// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"math"
	"sort"
)

// Node is one node of a regression tree, stored in a flat slice so trees
// serialize as plain JSON.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	// Left and Right index into the tree's node slice; -1 marks a leaf.
	Left  int     `json:"l"`
	Right int     `json:"r"`
	Value float64 `json:"v"`
}

// Tree is a binary regression tree over dense feature vectors.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	return t.Nodes[t.leafIndex(x)].Value
}

// leafIndex returns the index of the leaf x falls into.
func (t *Tree) leafIndex(x []float64) int {
	i := 0
	for t.Nodes[i].Left >= 0 {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// treeConfig bounds tree growth.
type treeConfig struct {
	maxDepth   int
	minSamples int
}

// fitTree grows a least-squares regression tree on the samples selected by
// idx. Splits minimize the summed squared error of the two children;
// thresholds are midpoints between consecutive distinct feature values.
func fitTree(cfg treeConfig, x [][]float64, y []float64, idx []int) *Tree {
	if cfg.maxDepth <= 0 {
		cfg.maxDepth = 3
	}
	if cfg.minSamples < 2 {
		cfg.minSamples = 2
	}
	t := &Tree{}
	t.grow(cfg, x, y, idx, 0)
	return t
}

// grow appends the subtree for idx and returns its root node index.
func (t *Tree) grow(cfg treeConfig, x [][]float64, y []float64, idx []int, depth int) int {
	node := Node{Left: -1, Right: -1, Value: mean(y, idx)}
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)

	if depth >= cfg.maxDepth || len(idx) < cfg.minSamples {
		return self
	}

	feature, threshold, ok := bestSplit(x, y, idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	t.Nodes[self].Feature = feature
	t.Nodes[self].Threshold = threshold
	t.Nodes[self].Left = t.grow(cfg, x, y, left, depth+1)
	t.Nodes[self].Right = t.grow(cfg, x, y, right, depth+1)
	return self
}

// bestSplit scans every feature for the threshold with the lowest child
// SSE. ok is false when no feature varies across the samples.
func bestSplit(x [][]float64, y []float64, idx []int) (feature int, threshold float64, ok bool) {
	bestSSE := math.Inf(1)
	dim := len(x[idx[0]])

	order := make([]int, len(idx))
	for f := 0; f < dim; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		// Prefix sums let each candidate split evaluate in O(1).
		var sumL, sqL float64
		var sumR, sqR float64
		for _, i := range order {
			sumR += y[i]
			sqR += y[i] * y[i]
		}

		for pos := 0; pos < len(order)-1; pos++ {
			yi := y[order[pos]]
			sumL += yi
			sqL += yi * yi
			sumR -= yi
			sqR -= yi * yi

			cur, next := x[order[pos]][f], x[order[pos+1]][f]
			if cur == next {
				continue
			}

			nL, nR := float64(pos+1), float64(len(order)-pos-1)
			sse := (sqL - sumL*sumL/nL) + (sqR - sumR*sumR/nR)
			if sse < bestSSE {
				bestSSE = sse
				feature = f
				threshold = (cur + next) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func mean(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}
