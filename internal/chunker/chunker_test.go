// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reassemble joins chunk texts in order.
func reassemble(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

// assertCoverage checks the contiguity/coverage invariant.
func assertCoverage(t *testing.T, content string, chunks []Chunk) {
	t.Helper()
	require.NotEmpty(t, chunks)
	assert.Equal(t, content, reassemble(chunks), "concatenated chunk texts must reconstruct the file")
	prev := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, prev, c.StartLine, "chunk %d must start where the previous ended", i)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		prev = c.EndLine
	}
}

func TestChunk_SmallFileSingleChunk(t *testing.T) {
	c := New(DefaultConfig(), nil)
	content := "def a():\n    return 1\n"

	chunks := c.Chunk(context.Background(), "small.py", content)

	require.Len(t, chunks, 1)
	assert.Equal(t, "small.py#0", chunks[0].ID)
	assert.Equal(t, StatusPending, chunks[0].Status)
	assertCoverage(t, content, chunks)
}

func TestChunk_EmptyFile(t *testing.T) {
	c := New(DefaultConfig(), nil)

	chunks := c.Chunk(context.Background(), "empty.txt", "")

	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].EndLine)
}

func TestChunk_CutsAtHeuristicBoundary(t *testing.T) {
	// 10 functions of 30 lines each in a file with no known grammar;
	// budget of 100 lines forces cuts, each of which must land on a
	// "func " line.
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "func f%d() {\n", i)
		for j := 0; j < 28; j++ {
			fmt.Fprintf(&b, "    x%d := %d\n", j, j)
		}
		b.WriteString("}\n")
	}
	content := b.String()

	c := New(Config{MaxLines: 100, MaxBytes: 1 << 20}, nil)
	chunks := c.Chunk(context.Background(), "weird.xyz", content)

	require.Greater(t, len(chunks), 1)
	assertCoverage(t, content, chunks)
	for _, ch := range chunks[1:] {
		assert.True(t, strings.HasPrefix(ch.Text, "func "),
			"chunk starting at line %d should begin at a declaration, got %q",
			ch.StartLine, firstLine(ch.Text))
	}
	for _, ch := range chunks {
		lineCount := ch.EndLine - ch.StartLine
		assert.LessOrEqual(t, lineCount, 100)
	}
}

func TestChunk_HardCutWithoutBoundaries(t *testing.T) {
	// No declaration lines at all: the chunker must still make progress
	// with hard line cuts.
	content := strings.Repeat("just text\n", 950)

	c := New(Config{MaxLines: 400, MaxBytes: 1 << 20}, nil)
	chunks := c.Chunk(context.Background(), "notes.txt", content)

	require.Len(t, chunks, 3)
	assert.Equal(t, 400, chunks[0].EndLine)
	assert.Equal(t, 800, chunks[1].EndLine)
	assert.Equal(t, 950, chunks[2].EndLine)
	assertCoverage(t, content, chunks)
}

func TestChunk_ByteBudget(t *testing.T) {
	// Few lines, each large: the byte budget must force the cut.
	line := strings.Repeat("a", 1024) + "\n"
	content := strings.Repeat(line, 20)

	c := New(Config{MaxLines: 400, MaxBytes: 4 * 1024}, nil)
	chunks := c.Chunk(context.Background(), "blob.txt", content)

	require.Greater(t, len(chunks), 1)
	assertCoverage(t, content, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 5*1024)
	}
}

func TestChunk_TreeSitterBoundary_Go(t *testing.T) {
	var b strings.Builder
	b.WriteString("package main\n\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "func g%d() int {\n", i)
		for j := 0; j < 20; j++ {
			b.WriteString("\t_ = 1\n")
		}
		b.WriteString("\treturn 0\n}\n\n")
	}
	content := b.String()

	c := New(Config{MaxLines: 60, MaxBytes: 1 << 20}, nil)
	chunks := c.Chunk(context.Background(), "main.go", content)

	require.Greater(t, len(chunks), 1)
	assertCoverage(t, content, chunks)
	// Every continuation chunk must start at a top-level declaration,
	// never inside a function body.
	for _, ch := range chunks[1:] {
		assert.True(t, strings.HasPrefix(ch.Text, "func "),
			"chunk at line %d starts with %q", ch.StartLine, firstLine(ch.Text))
	}
}

func TestChunk_NoTrailingNewline(t *testing.T) {
	content := "line one\nline two"
	c := New(DefaultConfig(), nil)

	chunks := c.Chunk(context.Background(), "f.txt", content)

	assertCoverage(t, content, chunks)
}

func TestChunkID_Deterministic(t *testing.T) {
	if got := ChunkID("a/b.go", 2); got != "a/b.go#2" {
		t.Errorf("ChunkID = %q, want a/b.go#2", got)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
