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
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/vigil/services/validation/metrics"
)

func newTestManager() (*Manager, *metrics.Store) {
	obs := metrics.NewStore(100)
	mgr := NewManager(NewMemoryStore(), obs, nil)
	return mgr, obs
}

func TestManager_Establish(t *testing.T) {
	ctx := context.Background()

	t.Run("computes sample statistics", func(t *testing.T) {
		mgr, obs := newTestManager()
		for _, v := range []float64{90, 95, 100, 105, 110} {
			obs.Record(metrics.Observation{SubjectID: "s", Value: v})
		}

		result, err := mgr.Establish(ctx, EstablishRequest{
			SubjectID: "s", ConfigHash: "cfg", SampleSize: 5,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		b := result.Baseline
		if b.Mean != 100 {
			t.Errorf("expected mean 100, got %v", b.Mean)
		}
		// Sample variance of {90,95,100,105,110} is 62.5.
		if math.Abs(b.StdDev-math.Sqrt(62.5)) > 1e-9 {
			t.Errorf("expected stddev %.4f, got %v", math.Sqrt(62.5), b.StdDev)
		}
		if b.Min != 90 || b.Max != 110 {
			t.Errorf("expected min/max 90/110, got %v/%v", b.Min, b.Max)
		}
		if b.SampleSize != 5 {
			t.Errorf("expected sample size 5, got %d", b.SampleSize)
		}
		if result.Partial {
			t.Error("expected full sample, got partial")
		}
	})

	t.Run("single sample has zero stddev", func(t *testing.T) {
		mgr, obs := newTestManager()
		obs.Record(metrics.Observation{SubjectID: "s", Value: 42})

		result, err := mgr.Establish(ctx, EstablishRequest{
			SubjectID: "s", SampleSize: 1,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Baseline.StdDev != 0 {
			t.Errorf("expected zero stddev for single sample, got %v", result.Baseline.StdDev)
		}
		if result.Baseline.SampleSize != 1 {
			t.Errorf("expected sample size 1, got %d", result.Baseline.SampleSize)
		}
	})

	t.Run("partial sample flagged", func(t *testing.T) {
		mgr, obs := newTestManager()
		obs.Record(metrics.Observation{SubjectID: "s", Value: 1})
		obs.Record(metrics.Observation{SubjectID: "s", Value: 2})

		result, err := mgr.Establish(ctx, EstablishRequest{
			SubjectID: "s", SampleSize: 10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Partial {
			t.Error("expected partial flag when fewer observations than requested")
		}
		if result.Available != 2 {
			t.Errorf("expected 2 available, got %d", result.Available)
		}
	})

	t.Run("no data fails", func(t *testing.T) {
		mgr, _ := newTestManager()

		_, err := mgr.Establish(ctx, EstablishRequest{SubjectID: "empty", SampleSize: 5})
		if !errors.Is(err, ErrNoData) {
			t.Errorf("expected ErrNoData, got %v", err)
		}
	})

	t.Run("invalid sample size rejected", func(t *testing.T) {
		mgr, _ := newTestManager()

		_, err := mgr.Establish(ctx, EstablishRequest{SubjectID: "s", SampleSize: 0})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got %v", err)
		}
	})
}

func TestManager_Active(t *testing.T) {
	ctx := context.Background()

	t.Run("missing baseline", func(t *testing.T) {
		mgr, _ := newTestManager()
		_, err := mgr.Active(ctx, "s", "cfg")
		if !errors.Is(err, ErrNoBaseline) {
			t.Errorf("expected ErrNoBaseline, got %v", err)
		}
	})

	t.Run("newest active wins", func(t *testing.T) {
		mgr, obs := newTestManager()
		obs.Record(metrics.Observation{SubjectID: "s", Value: 10})

		first, err := mgr.Establish(ctx, EstablishRequest{SubjectID: "s", ConfigHash: "cfg", SampleSize: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		obs.Record(metrics.Observation{SubjectID: "s", Value: 20})
		second, err := mgr.Establish(ctx, EstablishRequest{SubjectID: "s", ConfigHash: "cfg", SampleSize: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		active, err := mgr.Active(ctx, "s", "cfg")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if active.ID != second.Baseline.ID {
			t.Errorf("expected newest baseline %s active, got %s", second.Baseline.ID, active.ID)
		}
		_ = first

		// Both snapshots are retained for audit.
		all, err := mgr.List(ctx, Filter{SubjectID: "s"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 retained baselines, got %d", len(all))
		}
		if !all[0].CreatedAt.After(all[1].CreatedAt) && !all[0].CreatedAt.Equal(all[1].CreatedAt) {
			t.Error("expected newest-first ordering")
		}
	})
}

func TestManager_ConcurrentEstablish(t *testing.T) {
	ctx := context.Background()
	mgr, obs := newTestManager()
	for i := 0; i < 20; i++ {
		obs.Record(metrics.Observation{SubjectID: "s", Value: float64(i)})
	}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Establish(ctx, EstablishRequest{
				SubjectID: "s", ConfigHash: "cfg", SampleSize: 10,
			})
			if err != nil {
				t.Errorf("establish failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Exactly one winner is retrievable; every snapshot is retained.
	active, err := mgr.Active(ctx, "s", "cfg")
	if err != nil {
		t.Fatalf("expected an active baseline after the race: %v", err)
	}
	if active.SampleSize != 10 {
		t.Errorf("expected winner sample size 10, got %d", active.SampleSize)
	}

	all, err := mgr.List(ctx, Filter{SubjectID: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != n {
		t.Errorf("expected %d retained baselines, got %d", n, len(all))
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	statuses := []Status{StatusActive, StatusInactive, StatusActive}
	for i, st := range statuses {
		err := store.Save(ctx, &Baseline{
			ID:        string(rune('a' + i)),
			SubjectID: "s",
			Status:    st,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	activeOnly := StatusActive
	got, err := store.List(ctx, Filter{SubjectID: "s", Status: &activeOnly})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active baselines, got %d", len(got))
	}
	if got[0].ID != "c" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}

	limited, err := store.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit applied, got %d", len(limited))
	}
}

func TestTypeTextEncoding(t *testing.T) {
	tests := []struct {
		typ  Type
		text string
	}{
		{TypeRolling, "rolling"},
		{TypeFixed, "fixed"},
		{TypeAdaptive, "adaptive"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := json.Marshal(tt.typ)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != `"`+tt.text+`"` {
				t.Errorf("expected %q, got %s", tt.text, got)
			}

			var back Type
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.typ {
				t.Errorf("round trip changed %v to %v", tt.typ, back)
			}
		})
	}

	t.Run("unknown rejected", func(t *testing.T) {
		var typ Type
		if err := json.Unmarshal([]byte(`"sliding"`), &typ); err == nil {
			t.Error("expected error for unknown type")
		}
	})
}

func TestStatusTextEncoding(t *testing.T) {
	tests := []struct {
		status Status
		text   string
	}{
		{StatusActive, "active"},
		{StatusInactive, "inactive"},
		{StatusArchived, "archived"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := json.Marshal(tt.status)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != `"`+tt.text+`"` {
				t.Errorf("expected %q, got %s", tt.text, got)
			}

			var back Status
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.status {
				t.Errorf("round trip changed %v to %v", tt.status, back)
			}
		})
	}

	t.Run("unknown rejected", func(t *testing.T) {
		var status Status
		if err := json.Unmarshal([]byte(`"retired"`), &status); err == nil {
			t.Error("expected error for unknown status")
		}
	})
}
