// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools implements the stateless analysis tools of the pipeline:
// component extraction and dependency mapping. Tools hold no shared state
// and never touch the graph; they turn chunks into ChunkResults and
// component sets into edge sets, one provider call at a time.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
	"github.com/diffgraph/diffgraph/internal/metrics"
)

// ParseStatus is the terminal state of a chunk analysis.
type ParseStatus string

const (
	ParseOK         ParseStatus = "ok"
	ParseUnparsable ParseStatus = "unparsable"
	ParseTimedOut   ParseStatus = "timed_out"
)

// LineRange is a 1-based inclusive range of changed lines, passed through
// to the extraction prompt.
type LineRange struct {
	Start int
	End   int
}

// FileContext carries the per-file inputs every chunk of that file shares.
type FileContext struct {
	Path          string
	Change        graph.ChangeType
	ChangedRanges []LineRange
}

// ChunkResult is the immutable outcome of extracting one chunk. Callers
// always receive one: failures are encoded in ParseStatus plus a sentinel
// component, never raised.
type ChunkResult struct {
	ChunkID     string            `json:"chunk_id"`
	FilePath    string            `json:"file_path"`
	ChunkIndex  int               `json:"chunk_index"`
	Raw         json.RawMessage   `json:"raw,omitempty"`
	Components  []graph.Component `json:"components"`
	ParseStatus ParseStatus       `json:"parse_status"`
}

// Extractor turns chunks into candidate components via the AI provider.
//
// # Thread Safety
//
// Extractor is stateless and safe for concurrent use; the orchestrator
// bounds how many Extract calls run at once.
type Extractor struct {
	llm llm.Completer
	log *slog.Logger
}

// NewExtractor creates an Extractor on the given completer.
func NewExtractor(c llm.Completer, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{llm: c, log: log}
}

// Extract analyzes one chunk.
//
// # Description
//
// Exactly one provider call (retries live in the completer decorator).
// Malformed or schema-invalid output yields ParseStatus unparsable with a
// sentinel component; exhausted retries yield timed_out with a degraded
// component. The error return is non-nil only for abort-class failures
// (authentication, cancellation); every contained failure still produces
// a ChunkResult.
func (e *Extractor) Extract(ctx context.Context, file FileContext, chunk chunker.Chunk) (ChunkResult, error) {
	start := time.Now()
	raw, err := e.llm.Complete(ctx, extractionPrompt(file, chunk), extractionSchema)
	metrics.ExtractionDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("extract", "error").Inc()
		if llm.IsPermanent(err) || ctx.Err() != nil {
			return ChunkResult{}, err
		}
		e.log.Warn("chunk extraction failed after retries",
			"chunk", chunk.ID, "error", err)
		return e.degraded(file, chunk, ParseTimedOut, "provider timed out"), nil
	}
	metrics.ProviderCalls.WithLabelValues("extract", "ok").Inc()

	comps, perr := parseExtraction(raw, file, chunk)
	if perr != nil {
		e.log.Warn("chunk output unparsable", "chunk", chunk.ID, "error", perr)
		res := e.degraded(file, chunk, ParseUnparsable, "chunk could not be parsed")
		res.Raw = raw
		return res, nil
	}

	return ChunkResult{
		ChunkID:     chunk.ID,
		FilePath:    file.Path,
		ChunkIndex:  chunk.Index,
		Raw:         raw,
		Components:  comps,
		ParseStatus: ParseOK,
	}, nil
}

// degraded builds the sentinel result for a failed chunk: one unknown-type
// component inheriting the file's change type, flagged degraded.
func (e *Extractor) degraded(file FileContext, chunk chunker.Chunk, status ParseStatus, reason string) ChunkResult {
	name := fmt.Sprintf("chunk-%d", chunk.Index)
	return ChunkResult{
		ChunkID:    chunk.ID,
		FilePath:   file.Path,
		ChunkIndex: chunk.Index,
		Components: []graph.Component{{
			ID:            graph.ComponentID(file.Path, name),
			Name:          name,
			Type:          graph.ComponentUnknown,
			Summary:       reason,
			ChangeType:    file.Change,
			FilePath:      file.Path,
			StartLine:     chunk.StartLine + 1,
			EndLine:       chunk.EndLine,
			Degraded:      true,
			FailureReason: reason,
		}},
		ParseStatus: status,
	}
}

type extractedComponent struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Summary    string `json:"summary"`
	ChangeType string `json:"change_type"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

type extractionEnvelope struct {
	Components []extractedComponent `json:"components"`
}

// parseExtraction decodes and validates the tool output. Any schema
// violation rejects the whole chunk (treated like a parse error by the
// caller).
func parseExtraction(raw json.RawMessage, file FileContext, chunk chunker.Chunk) ([]graph.Component, error) {
	var env extractionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding extraction output: %w", err)
	}

	comps := make([]graph.Component, 0, len(env.Components))
	for i, ec := range env.Components {
		typ := graph.ComponentType(ec.Type)
		if !graph.ValidComponentType(typ) || typ == graph.ComponentUnknown {
			return nil, fmt.Errorf("component %d: invalid type %q", i, ec.Type)
		}
		change := graph.ChangeType(ec.ChangeType)
		if ec.ChangeType == "" {
			change = file.Change
		} else if !graph.ValidChangeType(change) {
			return nil, fmt.Errorf("component %d: invalid change_type %q", i, ec.ChangeType)
		}
		name := ec.Name
		if name == "" {
			name = fmt.Sprintf("chunk-%d-c%d", chunk.Index, i)
		}
		comps = append(comps, graph.Component{
			ID:         graph.ComponentID(file.Path, name),
			Name:       name,
			Type:       typ,
			Summary:    ec.Summary,
			ChangeType: change,
			FilePath:   file.Path,
			StartLine:  clampLine(ec.StartLine, chunk),
			EndLine:    clampLine(ec.EndLine, chunk),
		})
	}
	return comps, nil
}

// clampLine forces a reported line number into the chunk's 1-based range.
func clampLine(n int, chunk chunker.Chunk) int {
	lo, hi := chunk.StartLine+1, chunk.EndLine
	if hi < lo {
		hi = lo
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
