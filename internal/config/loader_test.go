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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.Provider.Type)
	assert.Equal(t, 400, cfg.Pipeline.MaxChunkLines)
	assert.Equal(t, 64*1024, cfg.Pipeline.MaxChunkBytes)
	assert.Greater(t, cfg.Pipeline.Concurrency, 0)
	assert.Equal(t, "mermaid", cfg.Output.Format)
	assert.NotEmpty(t, cfg.Workspace.Dir)
}

func TestLoadFrom_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diffgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"provider:\n  type: fake\n  model: test-model\npipeline:\n  concurrency: 9\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Provider.Type)
	assert.Equal(t, "test-model", cfg.Provider.Model)
	assert.Equal(t, 9, cfg.Pipeline.Concurrency)
	// Untouched sections keep their defaults.
	assert.Equal(t, 400, cfg.Pipeline.MaxChunkLines)
	assert.Equal(t, "mermaid", cfg.Output.Format)
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}
