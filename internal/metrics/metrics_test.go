// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPass(t *testing.T) {
	before := testutil.ToFloat64(PassesTotal)
	RecordPass(2*time.Second, 120)
	if got := testutil.ToFloat64(PassesTotal); got != before+1 {
		t.Errorf("PassesTotal = %v, want %v", got, before+1)
	}
}

func TestRecordSoldDetection(t *testing.T) {
	RecordSoldConfirmation("retrofret")
	RecordSoldConfirmation("retrofret")
	if got := testutil.ToFloat64(SoldConfirmations.WithLabelValues("retrofret")); got < 2 {
		t.Errorf("SoldConfirmations = %v, want >= 2", got)
	}

	UpdateSoldCandidates(7)
	if got := testutil.ToFloat64(SoldCandidates); got != 7 {
		t.Errorf("SoldCandidates = %v, want 7", got)
	}
}

func TestRecordTraining(t *testing.T) {
	RecordTraining(
		map[string]bool{"price_predictor": true, "buy_classifier": false},
		map[string]int{"price_predictor": 64},
	)

	if got := testutil.ToFloat64(ModelAvailable.WithLabelValues("price_predictor")); got != 1 {
		t.Errorf("ModelAvailable[price_predictor] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ModelAvailable.WithLabelValues("buy_classifier")); got != 0 {
		t.Errorf("ModelAvailable[buy_classifier] = %v, want 0", got)
	}
	if got := testutil.ToFloat64(ModelTrainingSamples.WithLabelValues("price_predictor")); got != 64 {
		t.Errorf("ModelTrainingSamples = %v, want 64", got)
	}
}

func TestRecordLearning(t *testing.T) {
	RecordLearning(15, 4)
	if got := testutil.ToFloat64(LearnedRates); got != 4 {
		t.Errorf("LearnedRates = %v, want 4", got)
	}
}
