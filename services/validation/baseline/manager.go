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
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/vigil/services/validation/metrics"
)

// -----------------------------------------------------------------------------
// Establish Request / Result
// -----------------------------------------------------------------------------

// EstablishRequest describes a baseline to build.
type EstablishRequest struct {
	// SubjectID is the monitored subject. Required.
	SubjectID string

	// ConfigHash is the configuration signature.
	ConfigHash string

	// Type is how the baseline is maintained.
	Type Type

	// SampleSize is how many recent observations to summarize. Must be > 0.
	SampleSize int
}

// EstablishResult is the outcome of establishing a baseline.
type EstablishResult struct {
	// Baseline is the newly active snapshot.
	Baseline *Baseline

	// Partial is true when fewer observations were available than requested.
	Partial bool

	// Available is the number of observations actually summarized.
	Available int
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Manager builds baselines from recorded observations.
//
// Description:
//
//	Manager samples the observation store, computes the statistical
//	snapshot, and persists it through a Store. Establish calls for the
//	same (subject, config) key are serialized with a per-key mutex so
//	racing auto-creations converge to a single active winner; losing
//	snapshots still persist for audit.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	store        Store
	observations *metrics.Store
	logger       *slog.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewManager creates a baseline manager.
//
// Inputs:
//   - store: Baseline persistence. Must not be nil.
//   - observations: Observation history to sample. Must not be nil.
//   - logger: Logger. If nil, uses slog.Default().
//
// Outputs:
//   - *Manager: The new manager. Never nil.
func NewManager(store Store, observations *metrics.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        store,
		observations: observations,
		logger:       logger,
		keyLocks:     make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing establishes for one key.
func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[key] = l
	}
	return l
}

// Establish builds a new active baseline from recent observations.
//
// Description:
//
//	Takes the most recent SampleSize observations for the subject. Fewer
//	than requested is allowed and flagged via Partial; zero observations
//	fails with ErrNoData. Standard deviation uses the sample (n-1)
//	definition and is 0 for a single observation.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - req: The baseline to build.
//
// Outputs:
//   - *EstablishResult: The new baseline plus sampling detail.
//   - error: ErrInvalidRequest, ErrNoData, or a store error.
//
// Thread Safety: Safe for concurrent use.
func (m *Manager) Establish(ctx context.Context, req EstablishRequest) (*EstablishResult, error) {
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidRequest)
	}
	if req.SampleSize <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive, got %d", ErrInvalidRequest, req.SampleSize)
	}

	key := Key(req.SubjectID, req.ConfigHash)
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	sample := m.observations.Recent(req.SubjectID, req.SampleSize)
	if len(sample) == 0 {
		return nil, fmt.Errorf("%w: subject %q", ErrNoData, req.SubjectID)
	}

	b := summarize(sample)
	b.ID = uuid.NewString()
	b.SubjectID = req.SubjectID
	b.ConfigHash = req.ConfigHash
	b.Type = req.Type
	b.Status = StatusActive
	b.CreatedAt = time.Now()

	if err := m.store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}

	partial := len(sample) < req.SampleSize
	if partial {
		m.logger.Warn("baseline established from partial sample",
			slog.String("subject_id", req.SubjectID),
			slog.Int("requested", req.SampleSize),
			slog.Int("available", len(sample)),
		)
	} else {
		m.logger.Info("baseline established",
			slog.String("subject_id", req.SubjectID),
			slog.String("baseline_id", b.ID),
			slog.Int("sample_size", b.SampleSize),
			slog.Float64("mean", b.Mean),
		)
	}

	return &EstablishResult{
		Baseline:  b,
		Partial:   partial,
		Available: len(sample),
	}, nil
}

// Active returns the winning active baseline for the key.
//
// Outputs:
//   - *Baseline: The active baseline.
//   - error: ErrNoBaseline when none exists.
//
// Thread Safety: Safe for concurrent use.
func (m *Manager) Active(ctx context.Context, subjectID, configHash string) (*Baseline, error) {
	return m.store.Active(ctx, subjectID, configHash)
}

// List returns baselines matching the filter, newest first.
//
// Thread Safety: Safe for concurrent use.
func (m *Manager) List(ctx context.Context, filter Filter) ([]*Baseline, error) {
	return m.store.List(ctx, filter)
}

// summarize computes the statistical snapshot for a sample.
func summarize(sample []metrics.Observation) *Baseline {
	n := len(sample)
	minV := math.Inf(1)
	maxV := math.Inf(-1)
	var sum float64
	for _, obs := range sample {
		sum += obs.Value
		if obs.Value < minV {
			minV = obs.Value
		}
		if obs.Value > maxV {
			maxV = obs.Value
		}
	}
	mean := sum / float64(n)

	// Sample standard deviation; a single observation has no spread.
	var stdDev float64
	if n > 1 {
		var sumSq float64
		for _, obs := range sample {
			diff := obs.Value - mean
			sumSq += diff * diff
		}
		stdDev = math.Sqrt(sumSq / float64(n-1))
	}

	return &Baseline{
		SampleSize: n,
		Mean:       mean,
		StdDev:     stdDev,
		Min:        minV,
		Max:        maxV,
	}
}
