// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chunker splits file content into bounded, boundary-aware pieces
// for independent analysis.
//
// The one guarantee that always holds, whether or not boundary detection
// succeeded: chunk texts concatenated in order reconstruct the original
// content exactly, with contiguous, non-overlapping line ranges covering
// the whole file.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Status is the lifecycle state of a chunk.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Chunk is a bounded slice of a file's content.
//
// StartLine is inclusive, EndLine exclusive, both 0-based: a file split
// into chunks C1..Cn covers [0, lineCount) with no gaps.
type Chunk struct {
	ID        string `json:"id"`
	FilePath  string `json:"file_path"`
	Index     int    `json:"index"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
	Status    Status `json:"status"`
}

// ChunkID builds the deterministic id for (file path, sequence index).
func ChunkID(filePath string, index int) string {
	return fmt.Sprintf("%s#%d", filePath, index)
}

// Config bounds chunk size. A file below both thresholds yields a single
// chunk.
type Config struct {
	// MaxLines is the line budget per chunk. Default 400.
	MaxLines int

	// MaxBytes is the byte budget per chunk. Default 64 KiB.
	MaxBytes int
}

// DefaultConfig returns the default size budget.
func DefaultConfig() Config {
	return Config{MaxLines: 400, MaxBytes: 64 * 1024}
}

// Chunker splits oversized files at top-level syntactic boundaries.
//
// # Thread Safety
//
// Chunker is safe for concurrent use; each Chunk call creates its own
// parser state.
type Chunker struct {
	cfg Config
	log *slog.Logger
}

// New creates a Chunker. Zero or negative budgets fall back to defaults.
func New(cfg Config, log *slog.Logger) *Chunker {
	def := DefaultConfig()
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = def.MaxLines
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chunker{cfg: cfg, log: log}
}

// Chunk splits content into ordered chunks.
//
// # Description
//
// Files under the size budget yield a single chunk. Above it, the chunker
// scans for top-level syntactic boundaries (tree-sitter where a grammar is
// known for the file extension, a line heuristic otherwise) and cuts at the
// boundary nearest to, but not exceeding, the budget. When no boundary
// lands inside the budget it performs a hard line cut. The coverage
// invariant holds in every case.
//
// # Inputs
//
//   - ctx: Cancels tree-sitter parsing on oversized input.
//   - filePath: Used for chunk ids and language detection.
//   - content: Raw file content.
//
// # Outputs
//
//   - []Chunk: At least one chunk, status pending, ordered by StartLine.
func (c *Chunker) Chunk(ctx context.Context, filePath, content string) []Chunk {
	lines := splitLines(content)

	if len(lines) <= c.cfg.MaxLines && len(content) <= c.cfg.MaxBytes {
		return []Chunk{c.newChunk(filePath, 0, 0, len(lines), content)}
	}

	boundaries := c.boundaries(ctx, filePath, content)
	sort.Ints(boundaries)

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := c.cutPoint(lines, boundaries, start)
		text := strings.Join(lines[start:end], "")
		chunks = append(chunks, c.newChunk(filePath, len(chunks), start, end, text))
		start = end
	}
	if len(chunks) == 0 {
		// Empty file above threshold cannot happen, but never return zero
		// chunks for non-nil input.
		chunks = append(chunks, c.newChunk(filePath, 0, 0, 0, ""))
	}
	return chunks
}

// cutPoint picks the end line for a chunk starting at start: the largest
// boundary within the line and byte budgets, or a hard cut at the budget.
func (c *Chunker) cutPoint(lines []string, boundaries []int, start int) int {
	budget := start + c.cfg.MaxLines
	if budget > len(lines) {
		budget = len(lines)
	}
	// Shrink the budget further if the byte limit is hit first.
	bytes := 0
	byteEnd := start
	for byteEnd < budget {
		bytes += len(lines[byteEnd])
		if bytes > c.cfg.MaxBytes && byteEnd > start {
			break
		}
		byteEnd++
	}
	budget = byteEnd
	if budget <= start {
		budget = start + 1 // always make progress
	}
	if budget >= len(lines) {
		return len(lines)
	}

	cut := -1
	for _, b := range boundaries {
		if b <= start {
			continue
		}
		if b > budget {
			break
		}
		cut = b
	}
	if cut < 0 {
		return budget // hard cut
	}
	return cut
}

func (c *Chunker) newChunk(filePath string, index, start, end int, text string) Chunk {
	return Chunk{
		ID:        ChunkID(filePath, index),
		FilePath:  filePath,
		Index:     index,
		StartLine: start,
		EndLine:   end,
		Text:      text,
		Status:    StatusPending,
	}
}

// splitLines splits content keeping line terminators, so joining the result
// reproduces the input byte-for-byte.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
