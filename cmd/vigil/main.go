// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command vigil runs the quality validation service.
//
// Vigil watches a stream of quality observations, maintains statistical
// baselines, detects regressions, runs A/B significance tests, and
// turns measured changes into approve / reject / manual-review
// decisions through a staged validation workflow.
//
// Usage:
//
//	vigil serve
//	vigil serve --config /etc/vigil/config.yaml
//	vigil version
//
// Example requests:
//
//	# Record an observation
//	curl -X POST http://localhost:8080/v1/observations \
//	  -H "Content-Type: application/json" \
//	  -d '{"subject_id": "ranker", "config_hash": "abc", "value": 0.92}'
//
//	# Run a validation
//	curl -X POST http://localhost:8080/v1/validations \
//	  -H "Content-Type: application/json" \
//	  -d '{"subject_id": "ranker", "config_hash": "abc", "value": 0.88}'
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Statistical regression detection and change validation",
	Long: `Vigil maintains quality baselines, detects regressions against them,
runs A/B significance tests, and validates proposed changes through a
staged decision workflow.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vigil version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vigil %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
