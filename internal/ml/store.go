// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Model names, also the persistence keys.
const (
	ModelWeightOptimizer       = "weight_optimizer"
	ModelPricePredictor        = "price_predictor"
	ModelAppreciationPredictor = "appreciation_predictor"
	ModelBuyClassifier         = "buy_classifier"
)

// ModelNames lists every model the trainer may produce, in training order.
var ModelNames = []string{
	ModelWeightOptimizer,
	ModelPricePredictor,
	ModelAppreciationPredictor,
	ModelBuyClassifier,
}

const (
	modelKeyPrefix = "model:"
	metaKeySuffix  = ":meta"
)

// Meta describes one persisted model artifact.
type Meta struct {
	TrainedAt      time.Time          `json:"trained_at"`
	Samples        int                `json:"samples"`
	TestSamples    int                `json:"test_samples,omitempty"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	LearnedWeights map[string]float64 `json:"learned_weights,omitempty"`
	ClassBalance   map[string]int     `json:"class_balance,omitempty"`
	FeatureVersion int                `json:"feature_version"`
}

// ModelStore persists trained model artifacts in badger. Artifacts are
// plain JSON; each model carries a Meta record beside it.
type ModelStore struct {
	db *badger.DB
}

// NewModelStore creates a model store on an open badger database.
func NewModelStore(db *badger.DB) *ModelStore {
	return &ModelStore{db: db}
}

// Save persists a model artifact and its metadata atomically.
func (s *ModelStore) Save(name string, model any, meta Meta) error {
	artifact, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("marshal model %s: %w", name, err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta %s: %w", name, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(modelKeyPrefix+name), artifact); err != nil {
			return fmt.Errorf("set model %s: %w", name, err)
		}
		return txn.Set([]byte(modelKeyPrefix+name+metaKeySuffix), metaData)
	})
}

// Load decodes the named artifact into dst. found is false when the model
// has never been trained; a present but undecodable artifact is an error.
func (s *ModelStore) Load(name string, dst any) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(modelKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get model %s: %w", name, err)
		}
		found = true
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, dst); err != nil {
				return fmt.Errorf("decode model %s: %w", name, err)
			}
			return nil
		})
	})
	return found, err
}

// LoadMeta reads the metadata for a model, if any.
func (s *ModelStore) LoadMeta(name string) (*Meta, error) {
	var meta *Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(modelKeyPrefix + name + metaKeySuffix))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get meta %s: %w", name, err)
		}
		return item.Value(func(val []byte) error {
			meta = &Meta{}
			if err := json.Unmarshal(val, meta); err != nil {
				return fmt.Errorf("decode meta %s: %w", name, err)
			}
			return nil
		})
	})
	return meta, err
}

// Delete removes a model and its metadata. Absent keys are not an error.
func (s *ModelStore) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(modelKeyPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(modelKeyPrefix + name + metaKeySuffix))
	})
}
