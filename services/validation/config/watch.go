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
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the tunable thresholds when the config file changes.
//
// Description:
//
//	Watch blocks until the context is cancelled. On every write to the
//	config file it re-loads and re-validates the file; a valid file
//	updates the Runtime atomically, an invalid one is logged and the
//	previous values stay in effect. Structural settings (addresses,
//	storage backend) require a restart and are intentionally ignored.
//
// Inputs:
//   - ctx: Cancellation context. Must not be nil.
//   - path: Config file to watch. Must not be empty.
//   - runtime: Runtime to update. Must not be nil.
//   - logger: Logger. If nil, uses slog.Default().
//
// Outputs:
//   - error: Watcher setup failure, or nil after cancellation.
func Watch(ctx context.Context, path string, runtime *Runtime, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload rejected, keeping previous thresholds",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			runtime.Update(cfg)
			logger.Info("thresholds reloaded",
				slog.Float64("regression_drop_pct", cfg.Thresholds.RegressionDropPct),
				slog.Int("baseline_min_samples", cfg.Thresholds.BaselineMinSamples),
				slog.Float64("significance_alpha", cfg.Thresholds.SignificanceAlpha),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
