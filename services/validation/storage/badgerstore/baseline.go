// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/vigil/services/validation/baseline"
)

const (
	baselinePrefix = "baseline/"
	activePrefix   = "active/"

	// saveRetries bounds retry attempts on transaction conflicts.
	saveRetries = 5
)

// BaselineStore is a BadgerDB-backed baseline.Store.
//
// Description:
//
//	Snapshots live under baseline/<id> and are never deleted. The active
//	winner per key is a pointer under active/<key>, swapped inside the
//	same transaction as the snapshot write. Badger's serializable
//	transactions reject racing pointer swaps with a conflict, which the
//	store retries, so concurrent saves converge to one winner.
//
// Thread Safety: Safe for concurrent use.
type BaselineStore struct {
	db *badger.DB
}

// NewBaselineStore creates a baseline store over an open database.
func NewBaselineStore(db *badger.DB) *BaselineStore {
	return &BaselineStore{db: db}
}

// Save implements baseline.Store.
func (s *BaselineStore) Save(ctx context.Context, b *baseline.Baseline) error {
	if b == nil {
		return errors.New("baseline must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline %s: %w", b.ID, err)
	}

	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Set([]byte(baselinePrefix+b.ID), payload); err != nil {
				return err
			}
			if b.Status != baseline.StatusActive {
				return nil
			}
			return s.updateWinner(txn, b)
		})
		if !errors.Is(lastErr, badger.ErrConflict) {
			break
		}
	}
	if lastErr != nil {
		return fmt.Errorf("save baseline %s: %w", b.ID, lastErr)
	}
	return nil
}

// updateWinner swaps the active pointer when the saved baseline is not
// older than the current winner. Ties go to the later save.
func (s *BaselineStore) updateWinner(txn *badger.Txn, b *baseline.Baseline) error {
	activeKey := []byte(activePrefix + b.Key())

	item, err := txn.Get(activeKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return txn.Set(activeKey, []byte(b.ID))
	}
	if err != nil {
		return err
	}

	currentID, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	current, err := s.loadBaseline(txn, string(currentID))
	if err != nil {
		return err
	}

	if !b.CreatedAt.Before(current.CreatedAt) {
		return txn.Set(activeKey, []byte(b.ID))
	}
	return nil
}

// Active implements baseline.Store.
func (s *BaselineStore) Active(ctx context.Context, subjectID, configHash string) (*baseline.Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var winner *baseline.Baseline
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activePrefix + baseline.Key(subjectID, configHash)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return baseline.ErrNoBaseline
		}
		if err != nil {
			return err
		}

		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		winner, err = s.loadBaseline(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return winner, nil
}

// List implements baseline.Store.
func (s *BaselineStore) List(ctx context.Context, filter baseline.Filter) ([]*baseline.Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matches []*baseline.Baseline
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(baselinePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var b baseline.Baseline
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return fmt.Errorf("decode baseline %s: %w", it.Item().Key(), err)
			}

			if filter.SubjectID != "" && b.SubjectID != filter.SubjectID {
				continue
			}
			if filter.Status != nil && b.Status != *filter.Status {
				continue
			}
			copied := b
			matches = append(matches, &copied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// loadBaseline reads and decodes one snapshot inside a transaction.
func (s *BaselineStore) loadBaseline(txn *badger.Txn, id string) (*baseline.Baseline, error) {
	item, err := txn.Get([]byte(baselinePrefix + id))
	if err != nil {
		return nil, fmt.Errorf("load baseline %s: %w", id, err)
	}

	var b baseline.Baseline
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	}); err != nil {
		return nil, fmt.Errorf("decode baseline %s: %w", id, err)
	}
	return &b, nil
}

var _ baseline.Store = (*BaselineStore)(nil)
