// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package solddetect

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	candidateKeyPrefix = "cand:"
	confirmedKeyPrefix = "sold:"
)

// BadgerStore persists detector state in badger so grace periods survive
// process restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a state store on an open badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

var _ StateStore = (*BadgerStore)(nil)

func candidateKey(source, id string) []byte {
	return []byte(candidateKeyPrefix + source + ":" + id)
}

func confirmedKey(source, id string) []byte {
	return []byte(confirmedKeyPrefix + source + ":" + id)
}

// Candidate returns the stored first-absence time for an id.
func (s *BadgerStore) Candidate(source, id string) (time.Time, bool, error) {
	var c Candidate
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(candidateKey(source, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get candidate: %w", err)
		}
		found = true
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("decode candidate %s:%s: %w", source, id, err)
			}
			return nil
		})
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return c.Since, found, nil
}

// PutCandidate stores a grace-period start.
func (s *BadgerStore) PutCandidate(c Candidate) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(candidateKey(c.Source, c.ID), data)
	})
}

// DeleteCandidate removes a grace-period entry; absent keys are fine.
func (s *BadgerStore) DeleteCandidate(source, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(candidateKey(source, id))
	})
}

// Confirmed reports whether a confirmation record exists for the id.
func (s *BadgerStore) Confirmed(source, id string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(confirmedKey(source, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get confirmation: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

// Promote writes the confirmation and deletes the candidate in one
// transaction, keeping the two states mutually exclusive.
func (s *BadgerStore) Promote(c Confirmation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(confirmedKey(c.Source, c.ID), data); err != nil {
			return fmt.Errorf("set confirmation: %w", err)
		}
		return txn.Delete(candidateKey(c.Source, c.ID))
	})
}

// CandidateCount counts ids currently inside a grace period.
func (s *BadgerStore) CandidateCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(candidateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
