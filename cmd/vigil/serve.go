// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/vigil/pkg/logging"
	"github.com/AleutianAI/vigil/services/validation/abtest"
	"github.com/AleutianAI/vigil/services/validation/baseline"
	"github.com/AleutianAI/vigil/services/validation/config"
	"github.com/AleutianAI/vigil/services/validation/decision"
	"github.com/AleutianAI/vigil/services/validation/metrics"
	"github.com/AleutianAI/vigil/services/validation/regression"
	"github.com/AleutianAI/vigil/services/validation/server"
	"github.com/AleutianAI/vigil/services/validation/storage/badgerstore"
	"github.com/AleutianAI/vigil/services/validation/telemetry"
	"github.com/AleutianAI/vigil/services/validation/workflow"
)

var (
	configPath  string
	traceStdout bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")
	serveCmd.Flags().BoolVar(&traceStdout, "trace", false, "Export OpenTelemetry spans to stdout")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "vigil",
	})
	defer appLogger.Close()
	logger := appLogger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if traceStdout {
		shutdown, err := setupTracing()
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer shutdown()
	}

	runtime := config.NewRuntime(cfg)
	if _, err := os.Stat(configPath); err == nil {
		go func() {
			if err := config.Watch(ctx, configPath, runtime, logger); err != nil {
				logger.Warn("config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	sink, err := telemetry.NewPrometheusSink(telemetry.DefaultPrometheusConfig())
	if err != nil {
		return fmt.Errorf("create telemetry sink: %w", err)
	}
	defer sink.Close()

	observations := metrics.NewStore(cfg.History.ObservationCapacity)

	baselineStore, decisionStore, closeStores, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	baselines := baseline.NewManager(baselineStore, observations, logger)
	detector := regression.NewDetector(baselines,
		regression.NewAlertLog(cfg.History.AlertCapacity), runtime, logger)
	decisions := decision.NewEngine(decisionStore, logger)
	abtests := abtest.NewEngine(logger)

	runs, err := workflow.NewEngine(workflow.Deps{
		Observations: observations,
		Baselines:    baselines,
		Detector:     detector,
		Decisions:    decisions,
		Collector:    workflow.ValueCollector(),
		Runtime:      runtime,
		Sink:         sink,
		Logger:       logger,
		RunCapacity:  cfg.History.RunCapacity,
	})
	if err != nil {
		return fmt.Errorf("create workflow engine: %w", err)
	}

	handlers := server.NewHandlers(server.HandlersDeps{
		Observations: observations,
		Baselines:    baselines,
		Detector:     detector,
		ABTests:      abtests,
		Decisions:    decisions,
		Runs:         runs,
		Sink:         sink,
		Logger:       logger,
	})

	logger.Info("vigil starting",
		slog.String("addr", cfg.Server.Addr),
		slog.String("storage", cfg.Storage.Backend),
	)
	return server.New(cfg.Server.Addr, handlers, logger).Run(ctx)
}

// loadConfig reads the config file, falling back to defaults when the
// file does not exist.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// buildStores creates baseline and decision stores per the configured
// backend. The returned closer releases the database, if one is open.
func buildStores(cfg *config.Config, logger *slog.Logger) (baseline.Store, decision.Store, func(), error) {
	if cfg.Storage.Backend != "badger" {
		return baseline.NewMemoryStore(),
			decision.NewMemoryStore(cfg.History.DecisionCapacity),
			func() {}, nil
	}

	db, err := badgerstore.Open(badgerstore.Config{
		Path:       cfg.Storage.Path,
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}

	closer := func() {
		if err := db.Close(); err != nil {
			logger.Error("close storage", slog.String("error", err.Error()))
		}
	}
	return badgerstore.NewBaselineStore(db), badgerstore.NewDecisionStore(db), closer, nil
}

// setupTracing installs a stdout span exporter for local debugging.
func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		_ = provider.Shutdown(context.Background())
	}, nil
}
