// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type DiffGraphConfig struct {
	// Provider: which AI backend analyzes the code
	Provider ProviderConfig `yaml:"provider"`

	// Pipeline: chunking and concurrency knobs
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Workspace: where intermediate run state lives
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Output: default rendering options
	Output OutputConfig `yaml:"output"`
}

type ProviderConfig struct {
	// Type can be "openai" or "fake" (offline, for dry runs).
	Type        string `yaml:"type"`
	Model       string `yaml:"model"`
	MaxAttempts int    `yaml:"max_attempts"`
	// RetryBaseMS is the base backoff delay in milliseconds.
	RetryBaseMS int `yaml:"retry_base_ms"`
}

type PipelineConfig struct {
	MaxChunkLines int `yaml:"max_chunk_lines"` // e.g. 400
	MaxChunkBytes int `yaml:"max_chunk_bytes"` // e.g. 65536
	Concurrency   int `yaml:"concurrency"`     // provider calls in flight
	MaxFiles      int `yaml:"max_files"`
}

type WorkspaceConfig struct {
	// Dir is the root for per-run stores. Each run gets a subdirectory.
	Dir        string `yaml:"dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type OutputConfig struct {
	// Format can be "mermaid", "json", or "html".
	Format string `yaml:"format"`
}

func DefaultConfig() DiffGraphConfig {
	dir := ".diffgraph/runs"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".diffgraph", "runs")
	}
	return DiffGraphConfig{
		Provider: ProviderConfig{
			Type:        "openai",
			Model:       "gpt-4o-mini",
			MaxAttempts: 3,
			RetryBaseMS: 500,
		},
		Pipeline: PipelineConfig{
			MaxChunkLines: 400,
			MaxChunkBytes: 64 * 1024,
			Concurrency:   4,
			MaxFiles:      500,
		},
		Workspace: WorkspaceConfig{
			Dir:        dir,
			SyncWrites: true,
		},
		Output: OutputConfig{
			Format: "mermaid",
		},
	}
}

// APIKey resolves the provider API key. A .env in the working directory is
// loaded best-effort first, then the environment wins.
func APIKey() string {
	_ = godotenv.Load()
	return os.Getenv("OPENAI_API_KEY")
}
