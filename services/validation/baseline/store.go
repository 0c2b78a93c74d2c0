// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package baseline

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Filter narrows a baseline listing.
type Filter struct {
	// SubjectID restricts results to one subject when non-empty.
	SubjectID string

	// Status restricts results to one lifecycle state when non-nil.
	Status *Status

	// Limit caps the number of results. <= 0 means no limit.
	Limit int
}

// Store persists baseline snapshots.
//
// Description:
//
//	Save appends a snapshot; snapshots are never deleted. When the saved
//	baseline is active, it becomes the single active baseline for its key
//	if and only if its CreatedAt is not older than the current winner's.
//	Concurrent saves for the same key must converge to exactly one active
//	baseline.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a new baseline snapshot.
	Save(ctx context.Context, b *Baseline) error

	// Active returns the winning active baseline for the key.
	// Returns ErrNoBaseline when none exists.
	Active(ctx context.Context, subjectID, configHash string) (*Baseline, error)

	// List returns baselines matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Baseline, error)
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// MemoryStore keeps baselines in process memory.
//
// Description:
//
//	MemoryStore is the system of record for tests and single-process
//	deployments. The active winner per key is a pointer swapped under the
//	store lock, so racing saves always converge to one retrievable winner
//	while both snapshots persist for audit.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	all    []*Baseline
	byID   map[string]*Baseline
	active map[string]string // key -> winning baseline id
}

// NewMemoryStore creates an empty in-memory baseline store.
//
// Outputs:
//   - *MemoryStore: The new store. Never nil.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Baseline),
		active: make(map[string]string),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, b *Baseline) error {
	if b == nil {
		return errors.New("baseline must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *b
	m.all = append(m.all, &stored)
	m.byID[stored.ID] = &stored

	if stored.Status != StatusActive {
		return nil
	}

	key := stored.Key()
	currentID, ok := m.active[key]
	if !ok {
		m.active[key] = stored.ID
		return nil
	}
	current := m.byID[currentID]
	// Most recently created wins; ties go to the later save.
	if !stored.CreatedAt.Before(current.CreatedAt) {
		m.active[key] = stored.ID
	}
	return nil
}

// Active implements Store.
func (m *MemoryStore) Active(_ context.Context, subjectID, configHash string) (*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[Key(subjectID, configHash)]
	if !ok {
		return nil, ErrNoBaseline
	}
	b := *m.byID[id]
	return &b, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*Baseline, 0, len(m.all))
	for _, b := range m.all {
		if filter.SubjectID != "" && b.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		c := *b
		matches = append(matches, &c)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}
