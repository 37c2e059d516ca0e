// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// diffgraph analyzes the changed files in a git repository and renders a
// dependency graph of the affected code components.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/diffgraph/diffgraph/internal/config"
)

// Exit codes. ExitDegraded means the run finished but some chunks could
// not be analyzed; the graph contains sentinel nodes for them.
const (
	ExitSuccess  = 0
	ExitDegraded = 1
	ExitError    = 2
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "diffgraph",
	Short: "Dependency graphs for code changes",
	Long: `diffgraph analyzes the changed files in a git repository and builds a
dependency graph of the affected code components, rendered as a Mermaid
diagram, JSON, or a standalone HTML report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := config.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
			os.Exit(ExitError)
		}
	}
	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
