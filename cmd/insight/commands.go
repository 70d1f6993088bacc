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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	datasetsPath string // path to a dataset schema YAML for offline runs
	queryPath    string // path to a query request JSON (explain)
	jsonOutput   bool   // machine-readable output

	rootCmd = &cobra.Command{
		Use:   "insight",
		Short: "A cli to run and manage the Aleutian Insight query engine",
		Long: `Insight resolves analytics queries against context documents:
declarative descriptions of datasets, relationships, metrics and rules.`,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the insight HTTP server",
		Run:   runServeCommand, // Defined in cmd_serve.go
	}

	// --- Document tooling ---
	validateCmd = &cobra.Command{
		Use:   "validate [document file]",
		Short: "Parse and validate a context document without persisting it",
		Args:  cobra.ExactArgs(1),
		Run:   runValidateCommand, // Defined in cmd_validate.go
	}

	explainCmd = &cobra.Command{
		Use:   "explain [document file]",
		Short: "Compile a query against a context document and print the plan",
		Args:  cobra.ExactArgs(1),
		Run:   runExplainCommand, // Defined in cmd_explain.go
	}
)

func init() {
	validateCmd.Flags().StringVar(&datasetsPath, "datasets", "", "dataset schema YAML for semantic validation")
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the validation result as JSON")

	explainCmd.Flags().StringVar(&datasetsPath, "datasets", "", "dataset schema YAML for semantic validation")
	explainCmd.Flags().StringVar(&queryPath, "query", "", "query request JSON file (required)")
	explainCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(explainCmd)
}
