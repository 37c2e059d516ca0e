// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/collect"
	"github.com/diffgraph/diffgraph/internal/config"
	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
	"github.com/diffgraph/diffgraph/internal/orchestrator"
	"github.com/diffgraph/diffgraph/internal/report"
	"github.com/diffgraph/diffgraph/internal/tools"
	"github.com/diffgraph/diffgraph/internal/workspace"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Change detection flags
	analyzeDiff      bool
	analyzeStaged    bool
	analyzeCommit    string
	analyzeBranch    string
	analyzeUntracked bool
	analyzeMaxFiles  int

	// Pipeline flags
	analyzeConcurrency int
	analyzeResume      string
	analyzeProvider    string
	analyzeModel       string

	// Output flags
	analyzeFormat string
	analyzeOutput string
	analyzeQuiet  bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Build a dependency graph of the changed components",
	Long: `Analyze the changed files in the current repository and build a
dependency graph of the affected code components.

Each changed file is chunked, sent to the AI provider for component
extraction, and mapped for dependencies within and across files. Chunks
whose analysis fails appear in the graph as degraded nodes instead of
failing the run.

Change Detection Modes:
  --diff       Analyze uncommitted changes (default)
  --staged     Analyze staged changes only
  --commit     Analyze a specific commit
  --branch     Analyze changes since branch point
  [files...]   Analyze specific files

Examples:
  diffgraph analyze
  diffgraph analyze --staged --format html --output report.html
  diffgraph analyze --branch main --format json
  diffgraph analyze src/auth/service.py

Exit codes: 0 success, 1 completed with degraded nodes, 2 error.`,
	Args: cobra.ArbitraryArgs,
	Run:  runAnalyze,
}

func init() {
	// Change detection flags
	analyzeCmd.Flags().BoolVar(&analyzeDiff, "diff", false,
		"Analyze uncommitted changes (git diff)")
	analyzeCmd.Flags().BoolVar(&analyzeStaged, "staged", false,
		"Analyze staged changes (git diff --cached)")
	analyzeCmd.Flags().StringVar(&analyzeCommit, "commit", "",
		"Analyze a specific commit")
	analyzeCmd.Flags().StringVar(&analyzeBranch, "branch", "",
		"Analyze changes since branch point (e.g., main)")
	analyzeCmd.Flags().BoolVar(&analyzeUntracked, "untracked", true,
		"Include untracked files in diff mode")
	analyzeCmd.Flags().IntVar(&analyzeMaxFiles, "max-files", 0,
		"Maximum files to analyze (0 = config default)")

	// Pipeline flags
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 0,
		"Provider calls in flight (0 = config default)")
	analyzeCmd.Flags().StringVar(&analyzeResume, "resume", "",
		"Resume an aborted run by id")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "",
		"AI provider: openai or fake (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "",
		"Provider model (default from config)")

	// Output flags
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "",
		"Output format: mermaid, json, html (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "",
		"Write output to a file instead of stdout (required for html)")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "quiet", false,
		"Only exit code, no output")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.Default()
	if analyzeQuiet {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		slog.SetDefault(log)
	}
	cfg := config.Global

	opts, err := changeOptions(args, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get working directory: %v\n", err)
		os.Exit(ExitError)
	}
	collector := collect.NewGitCollector(cwd, log)
	if !collector.IsGitRepo() {
		fmt.Fprintln(os.Stderr, "Error: not inside a git repository")
		os.Exit(ExitError)
	}

	files, err := collector.Collect(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: collecting changes: %v\n", err)
		os.Exit(ExitError)
	}
	if len(files) == 0 {
		if !analyzeQuiet {
			fmt.Fprintln(os.Stderr, "No changed files found.")
		}
		os.Exit(ExitSuccess)
	}
	log.Info("collected change set", "files", len(files))

	completer, err := buildCompleter(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	runID := analyzeResume
	if runID == "" {
		runID = uuid.NewString()
	}
	ws, err := workspace.Open(workspace.Config{
		Dir:        filepath.Join(cfg.Workspace.Dir, runID),
		RunID:      runID,
		SyncWrites: cfg.Workspace.SyncWrites,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening workspace: %v\n", err)
		os.Exit(ExitError)
	}

	concurrency := cfg.Pipeline.Concurrency
	if analyzeConcurrency > 0 {
		concurrency = analyzeConcurrency
	}

	planner := orchestrator.New(
		chunker.New(chunker.Config{
			MaxLines: cfg.Pipeline.MaxChunkLines,
			MaxBytes: cfg.Pipeline.MaxChunkBytes,
		}, log),
		tools.NewExtractor(completer, log),
		tools.NewDependencyMapper(completer, log),
		ws,
		graph.NewManager(log),
		orchestrator.Config{Concurrency: concurrency},
		log,
	)

	start := time.Now()
	stats, err := planner.Run(ctx, files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if analyzeResume == "" {
			fmt.Fprintf(os.Stderr, "Resume with: diffgraph analyze --resume %s\n", runID)
		}
		os.Exit(ExitError)
	}
	log.Info("analysis complete",
		"files", stats.Files, "components", stats.Components,
		"edges", stats.Edges, "degraded_chunks", stats.DegradedChunks,
		"unresolved", stats.Unresolved, "duration", time.Since(start).Round(time.Millisecond))

	if !analyzeQuiet {
		if err := writeOutput(planner, stats, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitError)
		}
	}

	if stats.Degraded() {
		os.Exit(ExitDegraded)
	}
	os.Exit(ExitSuccess)
}

// changeOptions translates the flags into collection options, enforcing
// that at most one change detection mode is selected.
func changeOptions(args []string, cfg config.DiffGraphConfig) (collect.Options, error) {
	opts := collect.DefaultOptions()
	opts.IncludeUntracked = analyzeUntracked
	opts.MaxFiles = cfg.Pipeline.MaxFiles
	if analyzeMaxFiles > 0 {
		opts.MaxFiles = analyzeMaxFiles
	}

	modeCount := 0
	if analyzeDiff {
		opts.Mode = collect.ModeDiff
		modeCount++
	}
	if analyzeStaged {
		opts.Mode = collect.ModeStaged
		modeCount++
	}
	if analyzeCommit != "" {
		opts.Mode = collect.ModeCommit
		opts.CommitHash = analyzeCommit
		modeCount++
	}
	if analyzeBranch != "" {
		opts.Mode = collect.ModeBranch
		opts.BaseBranch = analyzeBranch
		modeCount++
	}
	if len(args) > 0 {
		opts.Mode = collect.ModeFiles
		opts.Files = args
		modeCount++
	}
	if modeCount > 1 {
		return opts, fmt.Errorf("multiple change modes specified; use only one of --diff, --staged, --commit, --branch, or [files...]")
	}
	return opts, nil
}

// buildCompleter constructs the provider completer with retries.
func buildCompleter(cfg config.DiffGraphConfig, log *slog.Logger) (llm.Completer, error) {
	providerType := cfg.Provider.Type
	if analyzeProvider != "" {
		providerType = analyzeProvider
	}
	model := cfg.Provider.Model
	if analyzeModel != "" {
		model = analyzeModel
	}

	var base llm.Completer
	switch providerType {
	case "fake":
		base = llm.NewFake(nil)
	case "openai", "":
		client, err := llm.NewOpenAIClient(config.APIKey(), model, log)
		if err != nil {
			return nil, err
		}
		base = client
	default:
		return nil, fmt.Errorf("unknown provider %q", providerType)
	}

	attempts := cfg.Provider.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	baseDelay := time.Duration(cfg.Provider.RetryBaseMS) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return llm.WithRetry(base, attempts, baseDelay, log), nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func writeOutput(planner *orchestrator.Planner, stats orchestrator.RunStats, cfg config.DiffGraphConfig) error {
	format := cfg.Output.Format
	if analyzeFormat != "" {
		format = analyzeFormat
	}

	switch format {
	case "mermaid", "":
		return emit(planner.Manager().Render())
	case "json":
		buf, err := json.MarshalIndent(planner.Manager().Export(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding graph: %w", err)
		}
		return emit(string(buf) + "\n")
	case "html":
		path := analyzeOutput
		if path == "" {
			path = "diffgraph.html"
		}
		abs, err := report.Write(report.Data{
			Summary: summaryText(stats),
			Diagram: planner.Manager().Render(),
		}, path)
		if err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", abs)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func emit(s string) error {
	if analyzeOutput == "" {
		fmt.Print(s)
		return nil
	}
	return os.WriteFile(analyzeOutput, []byte(s), 0644)
}

func summaryText(stats orchestrator.RunStats) string {
	return fmt.Sprintf("%d files analyzed, %d components, %d dependencies.\n%d degraded chunks, %d unresolved targets.",
		stats.Files, stats.Components, stats.Edges, stats.DegradedChunks, stats.Unresolved)
}
