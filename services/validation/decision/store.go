// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"context"
	"sync"
)

// DefaultHistoryCapacity bounds the in-memory decision history.
const DefaultHistoryCapacity = 1000

// Store persists decisions.
//
// Decisions are append-only: implementations never mutate or delete a
// recorded decision within the retention window.
type Store interface {
	// Append records a decision.
	Append(ctx context.Context, d Decision) error

	// Recent returns up to limit decisions, newest first. limit <= 0
	// returns all retained decisions.
	Recent(ctx context.Context, limit int) ([]Decision, error)
}

// MemoryStore is a capped in-memory decision history.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions []Decision
	capacity  int
}

// NewMemoryStore creates a memory store retaining up to capacity
// decisions. capacity <= 0 uses DefaultHistoryCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append records a decision, evicting the oldest past the cap.
func (s *MemoryStore) Append(_ context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.decisions) >= s.capacity {
		s.decisions = s.decisions[1:]
	}
	s.decisions = append(s.decisions, d)
	return nil
}

// Recent returns up to limit decisions, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Decision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.decisions[i])
	}
	return out, nil
}
