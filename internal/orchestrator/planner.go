// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator drives the analysis pipeline: chunk, extract, map,
// stage, merge. It owns the run lifecycle and is the only caller of the
// graph Manager.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/collect"
	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
	"github.com/diffgraph/diffgraph/internal/metrics"
	"github.com/diffgraph/diffgraph/internal/tools"
	"github.com/diffgraph/diffgraph/internal/workspace"
)

// crossFileKey is the staging key of the cross-file mapping batch. It is
// always merged last, after every per-file batch.
const crossFileKey = "cross-file"

// Config holds the planner's knobs.
type Config struct {
	// Concurrency bounds provider calls in flight across all files.
	Concurrency int
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	Files          int
	Components     int
	Edges          int
	DegradedChunks int
	Unresolved     int
}

// Degraded reports whether any chunk produced a sentinel node instead of
// real components. The CLI maps this to a distinct exit code.
func (s RunStats) Degraded() bool { return s.DegradedChunks > 0 }

// Planner coordinates the pipeline phases for one run.
//
// # Concurrency
//
// Files are processed in parallel and chunks within a file in parallel,
// but total provider calls in flight never exceed Config.Concurrency.
// Graph merging is strictly sequential and happens only after all
// extraction and mapping work has been staged.
type Planner struct {
	chunker   *chunker.Chunker
	extractor *tools.Extractor
	mapper    *tools.DependencyMapper
	ws        *workspace.Workspace
	manager   *graph.Manager
	sem       *semaphore.Weighted
	log       *slog.Logger
}

// New creates a Planner. The workspace and manager are owned by the caller
// until Run is invoked; on success Run destroys the workspace, on failure
// it closes it so the run can be resumed.
func New(ch *chunker.Chunker, ex *tools.Extractor, mp *tools.DependencyMapper, ws *workspace.Workspace, mgr *graph.Manager, cfg Config, log *slog.Logger) *Planner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Planner{
		chunker:   ch,
		extractor: ex,
		mapper:    mp,
		ws:        ws,
		manager:   mgr,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		log:       log,
	}
}

// Manager returns the graph manager, for rendering after Run.
func (p *Planner) Manager() *graph.Manager { return p.manager }

// Run executes the full pipeline over the change set.
//
// # Description
//
// Per-file work (chunking, extraction, intra-file mapping) runs
// concurrently and stages one batch per file in the workspace. A cross-file
// mapping pass follows, then all staged batches merge sequentially into
// the graph. A non-nil error means the run aborted (bad credentials,
// cancellation); the workspace is retained and the run id can be resumed.
// Contained failures do not error: they surface as degraded nodes and in
// RunStats.
func (p *Planner) Run(ctx context.Context, files []collect.ChangedFile) (RunStats, error) {
	files = append([]collect.ChangedFile(nil), files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		f := f
		g.Go(func() error {
			return p.processFile(gctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return RunStats{}, p.abort(err)
	}

	if err := p.crossFilePass(ctx, files); err != nil {
		return RunStats{}, p.abort(err)
	}

	stats, err := p.mergeStaged(files)
	if err != nil {
		return RunStats{}, p.abort(err)
	}

	for _, u := range p.manager.Unresolved() {
		p.log.Warn("unresolved dependency target",
			"source", u.SourceID, "target", u.TargetName, "kind", u.Kind)
	}

	if err := p.ws.Destroy(); err != nil {
		p.log.Warn("could not remove workspace after successful run", "error", err)
	}
	return stats, nil
}

// abort closes the workspace without destroying it and wraps the cause
// with the run id, so the operator can resume.
func (p *Planner) abort(err error) error {
	if cerr := p.ws.Close(); cerr != nil {
		p.log.Error("closing workspace after abort", "error", cerr)
	}
	return fmt.Errorf("run %s aborted (workspace retained for resume): %w", p.ws.RunID(), err)
}

// processFile runs chunk -> extract -> intra-file map for one file and
// stages the resulting batch.
func (p *Planner) processFile(ctx context.Context, file collect.ChangedFile) error {
	staged, err := p.ws.IsFileStaged(file.Path)
	if err != nil {
		return err
	}
	if staged {
		p.log.Debug("file already staged, skipping", "file", file.Path)
		return nil
	}

	if file.Status == collect.StatusDeleted {
		return p.stageDeleted(file)
	}

	fctx := fileContext(file)
	chunks := p.chunker.Chunk(ctx, file.Path, file.Content)
	if err := p.ws.PutChunks(chunks); err != nil {
		return err
	}
	pending, err := p.ws.PendingChunks(file.Path)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range pending {
		c := c
		g.Go(func() error {
			if err := p.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.sem.Release(1)

			res, err := p.extractor.Extract(gctx, fctx, c)
			if err != nil {
				return err
			}
			if err := p.ws.PutResult(res); err != nil {
				return err
			}
			status := chunker.StatusDone
			if res.ParseStatus != tools.ParseOK {
				status = chunker.StatusFailed
			}
			metrics.ChunksTotal.WithLabelValues(string(res.ParseStatus)).Inc()
			return p.ws.SetChunkStatus(c.ID, status)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	results, err := p.ws.Results(file.Path)
	if err != nil {
		return err
	}

	batch := graph.Batch{}
	var healthy []graph.Component
	for _, r := range results {
		batch.Components = append(batch.Components, r.Components...)
		if r.ParseStatus == tools.ParseOK {
			healthy = append(healthy, r.Components...)
		}
	}

	if len(healthy) >= 2 {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		mapped, merr := p.mapper.Map(ctx, tools.MapRequest{
			Scope:      tools.ScopeIntraFile,
			FilePath:   file.Path,
			Components: healthy,
			Snippets:   tools.Snippets(healthy, file.Content),
		})
		p.sem.Release(1)
		if merr != nil {
			if llm.IsPermanent(merr) || ctx.Err() != nil {
				return merr
			}
			// The file's components still enter the graph without edges.
			p.log.Warn("intra-file mapping failed, continuing without edges",
				"file", file.Path, "error", merr)
		} else {
			batch.Edges = mapped.Edges
			batch.Unresolved = mapped.Unresolved
		}
	}

	return p.ws.StageBatch("file/"+file.Path, batch)
}

// stageDeleted stages a single file-level node for a deleted file. Deleted
// content is not re-analyzed; the node records that the file is gone.
func (p *Planner) stageDeleted(file collect.ChangedFile) error {
	name := filepath.Base(file.Path)
	return p.ws.StageBatch("file/"+file.Path, graph.Batch{
		Components: []graph.Component{{
			ID:         graph.ComponentID(file.Path, name),
			Name:       name,
			Type:       graph.ComponentFile,
			Summary:    "file deleted in this change set",
			ChangeType: graph.ChangeDeleted,
			FilePath:   file.Path,
		}},
	})
}

// crossFilePass maps dependencies between components of different files,
// using the staged per-file batches as the roster. Skipped when the change
// set has fewer than two files with healthy components.
func (p *Planner) crossFilePass(ctx context.Context, files []collect.ChangedFile) error {
	done, err := p.ws.IsStaged(crossFileKey)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	staged, err := p.ws.StagedBatches()
	if err != nil {
		return err
	}

	var roster []graph.Component
	filesSeen := make(map[string]struct{})
	for _, sb := range staged {
		if sb.Key == crossFileKey {
			continue
		}
		for _, c := range sb.Batch.Components {
			if c.Degraded {
				continue
			}
			roster = append(roster, c)
			filesSeen[c.FilePath] = struct{}{}
		}
	}
	if len(filesSeen) < 2 {
		return nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	mapped, merr := p.mapper.Map(ctx, tools.MapRequest{
		Scope:      tools.ScopeCrossFile,
		Components: roster,
	})
	p.sem.Release(1)
	if merr != nil {
		if llm.IsPermanent(merr) || ctx.Err() != nil {
			return merr
		}
		p.log.Warn("cross-file mapping failed, continuing without cross-file edges", "error", merr)
		return nil
	}

	return p.ws.StageBatch(crossFileKey, graph.Batch{
		Edges:      mapped.Edges,
		Unresolved: mapped.Unresolved,
	})
}

// mergeStaged merges all staged batches into the graph, per-file batches
// first in key order and the cross-file batch last. Every staged batch is
// replayed on every run: the graph starts empty each time, and Merge is
// idempotent, so a resumed run converges on the same graph.
func (p *Planner) mergeStaged(files []collect.ChangedFile) (RunStats, error) {
	staged, err := p.ws.StagedBatches()
	if err != nil {
		return RunStats{}, err
	}

	ordered := make([]workspace.StagedBatch, 0, len(staged))
	var cross *workspace.StagedBatch
	for i := range staged {
		if staged[i].Key == crossFileKey {
			cross = &staged[i]
			continue
		}
		ordered = append(ordered, staged[i])
	}
	if cross != nil {
		ordered = append(ordered, *cross)
	}

	var degraded int
	for _, sb := range ordered {
		ms := p.manager.Merge(sb.Batch)
		p.log.Debug("merged batch", "key", sb.Key,
			"added", ms.ComponentsAdded, "conflicts", ms.Conflicts,
			"edges", ms.EdgesAdded, "pending", ms.EdgesPending)
	}

	g := p.manager.Graph()
	for _, c := range g.Components() {
		if c.Degraded {
			degraded++
		}
	}
	return RunStats{
		Files:          len(files),
		Components:     g.Len(),
		Edges:          len(g.Edges()),
		DegradedChunks: degraded,
		Unresolved:     len(p.manager.Unresolved()),
	}, nil
}

// fileContext converts a changed-file descriptor into the extraction
// tool's input form.
func fileContext(file collect.ChangedFile) tools.FileContext {
	fc := tools.FileContext{Path: file.Path, Change: changeType(file.Status)}
	for _, r := range file.ChangedRanges {
		fc.ChangedRanges = append(fc.ChangedRanges, tools.LineRange{Start: r.Start, End: r.End})
	}
	return fc
}

func changeType(s collect.FileStatus) graph.ChangeType {
	switch s {
	case collect.StatusAdded, collect.StatusUntracked:
		return graph.ChangeAdded
	case collect.StatusDeleted:
		return graph.ChangeDeleted
	default:
		return graph.ChangeModified
	}
}
