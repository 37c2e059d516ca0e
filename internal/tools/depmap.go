// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
	"github.com/diffgraph/diffgraph/internal/metrics"
)

// Scope selects which relationships a mapping pass should look for.
type Scope string

const (
	ScopeIntraFile Scope = "intra_file"
	ScopeCrossFile Scope = "cross_file"
)

// MapRequest is one dependency-mapping call: a roster of known components
// plus optional source snippets keyed by component id.
type MapRequest struct {
	Scope      Scope
	FilePath   string
	Components []graph.Component
	Snippets   map[string]string
}

// MapResult holds the edges the mapper could bind plus the targets it
// could not. Unlike extraction there is no degraded form; a failed mapping
// pass surfaces as an error and the caller decides whether to continue.
type MapResult struct {
	Edges      []graph.Dependency
	Unresolved []graph.UnresolvedEdge
}

// DependencyMapper infers dependency edges between known components.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type DependencyMapper struct {
	llm llm.Completer
	log *slog.Logger
}

// NewDependencyMapper creates a DependencyMapper on the given completer.
func NewDependencyMapper(c llm.Completer, log *slog.Logger) *DependencyMapper {
	if log == nil {
		log = slog.Default()
	}
	return &DependencyMapper{llm: c, log: log}
}

type mappedEdge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Kind      string `json:"kind"`
	Recursive bool   `json:"recursive"`
}

type mappingEnvelope struct {
	Edges []mappedEdge `json:"edges"`
}

// Map runs one dependency-mapping pass.
//
// # Description
//
// Fewer than two components cannot form an edge, so the call is skipped
// entirely. Sources must resolve to a known component or the edge is
// dropped; targets that do not resolve are reported as unresolved rather
// than dropped, so a later merge can bind them against the full graph.
func (m *DependencyMapper) Map(ctx context.Context, req MapRequest) (MapResult, error) {
	if len(req.Components) < 2 {
		return MapResult{}, nil
	}

	start := time.Now()
	raw, err := m.llm.Complete(ctx, mappingPrompt(req), mappingSchema)
	metrics.ExtractionDuration.WithLabelValues("map").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("map", "error").Inc()
		return MapResult{}, err
	}
	metrics.ProviderCalls.WithLabelValues("map", "ok").Inc()

	var env mappingEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return MapResult{}, fmt.Errorf("decoding mapping output: %w", err)
	}

	byID := make(map[string]graph.Component, len(req.Components))
	byName := make(map[string][]graph.Component, len(req.Components))
	for _, c := range req.Components {
		byID[c.ID] = c
		byName[c.Name] = append(byName[c.Name], c)
	}

	resolve := func(ref string) (graph.Component, bool) {
		if c, ok := byID[ref]; ok {
			return c, true
		}
		if cands := byName[ref]; len(cands) == 1 {
			return cands[0], true
		}
		return graph.Component{}, false
	}

	var res MapResult
	seenEdges := make(map[string]struct{})
	seenUnresolved := make(map[graph.UnresolvedEdge]struct{})
	for _, me := range env.Edges {
		src, ok := resolve(me.Source)
		if !ok {
			m.log.Debug("dropping edge with unknown source", "source", me.Source, "target", me.Target)
			continue
		}
		kind := graph.DependencyKind(me.Kind)
		if !graph.ValidDependencyKind(kind) {
			kind = graph.KindUnknown
		}

		tgt, ok := resolve(me.Target)
		if !ok {
			ue := graph.UnresolvedEdge{SourceID: src.ID, TargetName: me.Target, Kind: kind}
			if _, dup := seenUnresolved[ue]; !dup {
				seenUnresolved[ue] = struct{}{}
				res.Unresolved = append(res.Unresolved, ue)
			}
			continue
		}

		dep := graph.Dependency{SourceID: src.ID, TargetID: tgt.ID, Kind: kind, Recursive: me.Recursive}
		if src.ID == tgt.ID && !me.Recursive {
			// Self edges are only meaningful for recursion; a summary that
			// mentions it is accepted as corroboration, anything else is
			// kept but flagged for review.
			if strings.Contains(strings.ToLower(src.Summary), "recurs") {
				dep.Recursive = true
			} else {
				dep.Kind = graph.KindUnknown
				dep.NeedsReview = true
			}
		}
		if _, dup := seenEdges[dep.Key()]; dup {
			continue
		}
		seenEdges[dep.Key()] = struct{}{}
		res.Edges = append(res.Edges, dep)
	}
	return res, nil
}
