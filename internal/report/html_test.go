// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diffgraph.html")
	diagram := "graph TD\n    a_py_f[\"f\"]:::change_added\n"

	abs, err := Write(Data{Summary: "1 file, 1 component", Diagram: diagram}, path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "DiffGraph Report")
	assert.Contains(t, html, "1 file, 1 component")
	assert.Contains(t, html, "graph TD")
	assert.Contains(t, html, "change_added")
	assert.Contains(t, html, "mermaid.initialize")
}

func TestWrite_BadPath(t *testing.T) {
	_, err := Write(Data{}, filepath.Join(t.TempDir(), "missing", "out.html"))
	assert.Error(t, err)
}

func TestWrite_SummaryEscaped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diffgraph.html")
	_, err := Write(Data{Summary: "<script>alert(1)</script>"}, path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "<script>alert(1)</script>")
}
