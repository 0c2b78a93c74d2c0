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
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/vigil/services/validation/decision"
)

const decisionPrefix = "decision/"

// DecisionStore is a BadgerDB-backed decision.Store.
//
// Description:
//
//	Decisions are keyed by timestamp so lexical key order matches
//	chronological order; Recent walks the keyspace in reverse. Records
//	are append-only and never rewritten.
//
// Thread Safety: Safe for concurrent use.
type DecisionStore struct {
	db *badger.DB
}

// NewDecisionStore creates a decision store over an open database.
func NewDecisionStore(db *badger.DB) *DecisionStore {
	return &DecisionStore{db: db}
}

// Append implements decision.Store.
func (s *DecisionStore) Append(ctx context.Context, d decision.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", d.ID, err)
	}

	key := fmt.Sprintf("%s%020d/%s", decisionPrefix, ts.UnixNano(), d.ID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	}); err != nil {
		return fmt.Errorf("append decision %s: %w", d.ID, err)
	}
	return nil
}

// Recent implements decision.Store.
func (s *DecisionStore) Recent(ctx context.Context, limit int) ([]decision.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []decision.Decision
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(decisionPrefix)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key in the prefix.
		seek := append([]byte(decisionPrefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var d decision.Decision
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return fmt.Errorf("decode decision %s: %w", it.Item().Key(), err)
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ decision.Store = (*DecisionStore)(nil)
