// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics stores timestamped scalar quality observations.
//
// The store keeps a bounded, append-only history per subject. It is the
// leaf of the validation pipeline: the baseline manager samples it, and
// the workflow engine records into it on every run.
package metrics

import (
	"sync"
	"time"
)

// DefaultCapacity is the per-subject history bound when none is configured.
const DefaultCapacity = 1000

// -----------------------------------------------------------------------------
// Observation
// -----------------------------------------------------------------------------

// Observation is a single scalar quality measurement for a subject.
//
// Description:
//
//	Observations are immutable once recorded. SubScores carries optional
//	named components of the overall value (e.g., relevance, coherence);
//	Metadata carries free-form context from the producer.
type Observation struct {
	// Timestamp is when the measurement was taken.
	Timestamp time.Time `json:"timestamp"`

	// SubjectID identifies the entity being measured.
	SubjectID string `json:"subject_id"`

	// ConfigHash is the configuration signature the value was measured under.
	ConfigHash string `json:"config_hash"`

	// Value is the scalar quality score.
	Value float64 `json:"value"`

	// SubScores holds optional named sub-scores.
	SubScores map[string]float64 `json:"sub_scores,omitempty"`

	// Metadata holds arbitrary additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// clone returns a deep copy so stored observations stay immutable.
func (o Observation) clone() Observation {
	c := o
	if o.SubScores != nil {
		c.SubScores = make(map[string]float64, len(o.SubScores))
		for k, v := range o.SubScores {
			c.SubScores[k] = v
		}
	}
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store keeps a bounded history of observations per subject.
//
// Description:
//
//	Store is purely in-memory and never blocks on external I/O. When a
//	subject's history exceeds the capacity, the oldest entry is dropped
//	atomically with the append.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	capacity int
	history  map[string][]Observation
}

// NewStore creates a new observation store.
//
// Inputs:
//   - capacity: Maximum observations retained per subject.
//     Values <= 0 fall back to DefaultCapacity.
//
// Outputs:
//   - *Store: The new store. Never nil.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		history:  make(map[string][]Observation),
	}
}

// Record appends an observation to its subject's history.
//
// Description:
//
//	A zero Timestamp is replaced with the current time. Eviction of the
//	oldest entry happens under the same lock as the append, so readers
//	never see the history above capacity.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Record(obs Observation) {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	obs = obs.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.history[obs.SubjectID]
	if len(hist) >= s.capacity {
		hist = hist[1:]
	}
	s.history[obs.SubjectID] = append(hist, obs)
}

// Recent returns up to the n most recent observations for a subject,
// oldest first. n <= 0 returns the full retained history.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Recent(subjectID string, n int) []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.history[subjectID]
	if n <= 0 || n > len(hist) {
		n = len(hist)
	}
	result := make([]Observation, n)
	copy(result, hist[len(hist)-n:])
	return result
}

// Count returns the number of retained observations for a subject.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Count(subjectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[subjectID])
}

// Subjects returns the ids of all subjects with recorded history.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.history))
	for id := range s.history {
		ids = append(ids, id)
	}
	return ids
}

// Capacity returns the per-subject history bound.
func (s *Store) Capacity() int {
	return s.capacity
}
