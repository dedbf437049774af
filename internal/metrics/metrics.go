// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package metrics exposes the engine's prometheus instrumentation:
// scoring passes, price-history learning, sold detection, model
// training and market lookups.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scoring pass metrics.
	PassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fretsonar_passes_total",
			Help: "Total number of completed scoring passes",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fretsonar_pass_duration_seconds",
			Help:    "Scoring pass duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ListingsScored = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fretsonar_pass_listings_scored",
			Help:    "Active listings scored per pass",
			Buckets: []float64{0, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	PassErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fretsonar_pass_errors_total",
			Help: "Total number of failed scoring passes",
		},
	)

	// Price-history learning metrics.
	SnapshotsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fretsonar_snapshots_recorded_total",
			Help: "Total market-range snapshots written to the history store",
		},
	)

	LearnedRates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fretsonar_learned_rates",
			Help: "Brand+model keys with a learned appreciation rate",
		},
	)

	// Sold detection metrics.
	SoldCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fretsonar_sold_candidates",
			Help: "Listings currently inside the sold-detection grace period",
		},
	)

	SoldConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fretsonar_sold_confirmations_total",
			Help: "Listings confirmed sold after the grace period",
		},
		[]string{"source"},
	)

	SnapshotsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fretsonar_crawl_snapshots_total",
			Help: "Crawl snapshots consumed from the ingest bus",
		},
		[]string{"source"},
	)

	// Model training metrics.
	TrainingRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fretsonar_training_runs_total",
			Help: "Total training cycles across all models",
		},
	)

	ModelAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fretsonar_model_available",
			Help: "Whether a named model has a loadable trained artifact (1/0)",
		},
		[]string{"model"},
	)

	ModelTrainingSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fretsonar_model_training_samples",
			Help: "Sample count used in the most recent training of a model",
		},
		[]string{"model"},
	)

	// Market lookup metrics.
	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fretsonar_lookup_failures_total",
			Help: "Market lookups that failed past the breaker and retries",
		},
		[]string{"kind"},
	)
)

// RecordPass records one completed scoring pass.
func RecordPass(duration time.Duration, listings int) {
	PassesTotal.Inc()
	PassDuration.Observe(duration.Seconds())
	ListingsScored.Observe(float64(listings))
}

// RecordPassError records a failed scoring pass.
func RecordPassError() {
	PassErrors.Inc()
}

// RecordLearning records one snapshot/learning cycle.
func RecordLearning(snapshots, rates int) {
	SnapshotsRecorded.Add(float64(snapshots))
	LearnedRates.Set(float64(rates))
}

// RecordSnapshotIngested records one crawl snapshot consumed.
func RecordSnapshotIngested(source string) {
	SnapshotsIngested.WithLabelValues(source).Inc()
}

// RecordSoldConfirmation records one confirmed sale.
func RecordSoldConfirmation(source string) {
	SoldConfirmations.WithLabelValues(source).Inc()
}

// UpdateSoldCandidates sets the current grace-period candidate count.
func UpdateSoldCandidates(count int) {
	SoldCandidates.Set(float64(count))
}

// RecordTraining records a training cycle and per-model outcomes.
func RecordTraining(models map[string]bool, samples map[string]int) {
	TrainingRuns.Inc()
	for name, trained := range models {
		v := 0.0
		if trained {
			v = 1.0
		}
		ModelAvailable.WithLabelValues(name).Set(v)
	}
	for name, n := range samples {
		ModelTrainingSamples.WithLabelValues(name).Set(float64(n))
	}
}

// RecordLookupFailure records a market lookup failure. kind is
// "market_range" or "sold_transactions".
func RecordLookupFailure(kind string) {
	LookupFailures.WithLabelValues(kind).Inc()
}
