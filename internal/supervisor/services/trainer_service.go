// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fretsonar/fretsonar/internal/feed"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/metrics"
	"github.com/fretsonar/fretsonar/internal/ml"
	"github.com/fretsonar/fretsonar/internal/pricehistory"
)

// TrainerServiceConfig holds configuration for the model trainer.
type TrainerServiceConfig struct {
	Interval       time.Duration
	TrainOnStartup bool
}

// TrainerService periodically harvests training data and retrains the
// model suite. Models that lack data are skipped, never failed.
type TrainerService struct {
	trainer    *ml.Trainer
	collector  *ml.Collector
	feeds      *feed.Dir
	history    *pricehistory.Store
	lookup     market.SoldLookupClient
	modelStore *ml.ModelStore
	config     TrainerServiceConfig
	logger     zerolog.Logger
	name       string
}

// NewTrainerService creates the trainer service. lookup may be nil;
// training then runs on collected and staged data alone.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainerService(
	trainer *ml.Trainer,
	collector *ml.Collector,
	feeds *feed.Dir,
	history *pricehistory.Store,
	lookup market.SoldLookupClient,
	modelStore *ml.ModelStore,
	cfg TrainerServiceConfig,
	logger zerolog.Logger,
) *TrainerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &TrainerService{
		trainer:    trainer,
		collector:  collector,
		feeds:      feeds,
		history:    history,
		lookup:     lookup,
		modelStore: modelStore,
		config:     cfg,
		logger:     logger.With().Str("service", "trainer").Logger(),
		name:       "model-trainer",
	}
}

// Serve implements suture.Service.
func (s *TrainerService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("train_on_startup", s.config.TrainOnStartup).
		Msg("trainer starting")

	if s.config.TrainOnStartup {
		if err := s.cycle(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup training failed, retrying on schedule")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn().Err(err).Msg("training cycle failed")
			}
		}
	}
}

// cycle harvests fresh sold data, assembles the corpus and retrains.
func (s *TrainerService) cycle(ctx context.Context) error {
	start := time.Now()

	keys, err := s.history.Keys()
	if err != nil {
		return err
	}
	harvested, err := s.collector.Harvest(ctx, s.lookup, keys)
	if err != nil {
		return err
	}

	staged, err := s.feeds.SoldTransactions()
	if err != nil {
		s.logger.Error().Err(err).Msg("staged sold feed unreadable, continuing without it")
	} else if len(staged) > 0 {
		if _, err := s.collector.AddSold(staged); err != nil {
			return err
		}
	}

	data, err := s.trainingData()
	if err != nil {
		return err
	}

	report, err := s.trainer.TrainAll(ctx, data)
	if err != nil {
		return err
	}

	trained := make(map[string]bool, len(report))
	samples := make(map[string]int, len(report))
	for name, r := range report {
		trained[name] = r.Trained
		if r.Trained {
			samples[name] = r.Samples
		}
	}
	metrics.RecordTraining(trained, samples)

	// Fresh predictor over the just-written artifacts: its Status view
	// is what the monitoring side reads.
	status := ml.NewPredictor(s.modelStore, s.logger).Status()
	if err := s.feeds.WriteModelStatus(status); err != nil {
		s.logger.Error().Err(err).Msg("model status feed write failed")
	}

	s.logger.Info().
		Int("harvested", harvested).
		Int("sold_corpus", len(data.Sold)).
		Int("trained", report.TrainedCount()).
		Dur("duration", time.Since(start)).
		Msg("training cycle complete")
	return nil
}

func (s *TrainerService) trainingData() (ml.TrainingData, error) {
	sold, err := s.collector.Sold()
	if err != nil {
		return ml.TrainingData{}, err
	}
	decisions, err := s.collector.Decisions()
	if err != nil {
		return ml.TrainingData{}, err
	}
	if fed, err := s.feeds.Decisions(); err != nil {
		s.logger.Error().Err(err).Msg("decisions feed unreadable, continuing without it")
	} else {
		decisions = append(decisions, fed...)
	}

	collection, err := s.feeds.Collection()
	if err != nil {
		s.logger.Error().Err(err).Msg("collection feed unreadable, continuing without it")
		collection = nil
	}
	rates, err := s.history.LearnedRates()
	if err != nil {
		return ml.TrainingData{}, err
	}

	return ml.TrainingData{
		Sold:         sold,
		Decisions:    decisions,
		Collection:   collection,
		LearnedRates: rates,
	}, nil
}

// String implements fmt.Stringer for suture logs.
func (s *TrainerService) String() string {
	return s.name
}
