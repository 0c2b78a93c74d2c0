// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Thresholds.RegressionDropPct != 5.0 {
		t.Errorf("expected default drop threshold 5.0, got %v", cfg.Thresholds.RegressionDropPct)
	}
	if cfg.Thresholds.BaselineMinSamples != 10 {
		t.Errorf("expected default baseline minimum 10, got %v", cfg.Thresholds.BaselineMinSamples)
	}
	if cfg.Thresholds.SignificanceAlpha != 0.05 {
		t.Errorf("expected default alpha 0.05, got %v", cfg.Thresholds.SignificanceAlpha)
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Addr != ":8080" {
			t.Errorf("expected default addr, got %q", cfg.Server.Addr)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vigil.yaml")
		body := []byte("thresholds:\n  regression_drop_pct: 7.5\n  baseline_min_samples: 20\n")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Thresholds.RegressionDropPct != 7.5 {
			t.Errorf("expected 7.5, got %v", cfg.Thresholds.RegressionDropPct)
		}
		if cfg.Thresholds.BaselineMinSamples != 20 {
			t.Errorf("expected 20, got %v", cfg.Thresholds.BaselineMinSamples)
		}
		// Untouched values keep their defaults.
		if cfg.Thresholds.SignificanceAlpha != 0.05 {
			t.Errorf("expected default alpha, got %v", cfg.Thresholds.SignificanceAlpha)
		}
	})

	t.Run("out-of-range threshold rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vigil.yaml")
		body := []byte("thresholds:\n  regression_drop_pct: 250\n")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := Load(path)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("non-positive sample minimum rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vigil.yaml")
		body := []byte("thresholds:\n  baseline_min_samples: 0\n")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := Load(path)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("badger backend requires path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Backend = "badger"

		err := cfg.Validate()
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRuntime_Update(t *testing.T) {
	cfg := DefaultConfig()
	rt := NewRuntime(cfg)

	if rt.RegressionDropPct() != 5.0 {
		t.Errorf("expected 5.0, got %v", rt.RegressionDropPct())
	}

	cfg.Thresholds.RegressionDropPct = 12.0
	cfg.Thresholds.BaselineMinSamples = 30
	rt.Update(cfg)

	if rt.RegressionDropPct() != 12.0 {
		t.Errorf("expected 12.0 after update, got %v", rt.RegressionDropPct())
	}
	if rt.BaselineMinSamples() != 30 {
		t.Errorf("expected 30 after update, got %v", rt.BaselineMinSamples())
	}
}
