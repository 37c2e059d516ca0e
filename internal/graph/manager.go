// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph holds the canonical dependency graph of changed code
// components and the Manager that is its sole mutator.
//
// Analysis tools never touch the graph directly; they produce Batch values
// that the orchestrator hands to Manager.Merge one at a time. Single-writer
// discipline is by construction, so the types here carry no locks.
package graph

import (
	"fmt"
	"log/slog"

	"github.com/diffgraph/diffgraph/internal/metrics"
)

// Warning codes recorded during merge.
const (
	WarnMergeConflict   = "merge_conflict"
	WarnDuplicateEdge   = "duplicate_edge"
	WarnSelfLoop        = "self_loop"
	WarnUnresolvedEdge  = "unresolved_edge"
	WarnAmbiguousTarget = "ambiguous_target"
)

// Warning is a non-fatal condition observed while merging.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MergeStats summarizes the effect of one Merge call.
type MergeStats struct {
	ComponentsAdded     int
	ComponentsUnchanged int
	Conflicts           int
	EdgesAdded          int
	DuplicateEdges      int
	EdgesResolved       int
	EdgesPending        int
}

// Graph is the canonical component map plus dependency set, with a
// file -> component-ids index. It exists for the lifetime of one run.
//
// Reads are only valid between Merge calls; the Manager is the sole writer.
type Graph struct {
	components map[string]*Component
	order      []string // insertion order of component ids
	edges      []Dependency
	edgeKeys   map[string]struct{}
	fileIndex  map[string][]string
	nameIndex  map[string][]string
}

func newGraph() *Graph {
	return &Graph{
		components: make(map[string]*Component),
		edgeKeys:   make(map[string]struct{}),
		fileIndex:  make(map[string][]string),
		nameIndex:  make(map[string][]string),
	}
}

// Component returns the component with the given id, or nil.
func (g *Graph) Component(id string) *Component {
	return g.components[id]
}

// Components returns all components in insertion order.
func (g *Graph) Components() []Component {
	out := make([]Component, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.components[id])
	}
	return out
}

// Edges returns all resolved edges in insertion order.
func (g *Graph) Edges() []Dependency {
	out := make([]Dependency, len(g.edges))
	copy(out, g.edges)
	return out
}

// FileComponents returns the ids of components extracted from a file,
// in insertion order.
func (g *Graph) FileComponents(path string) []string {
	ids := g.fileIndex[path]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of components in the graph.
func (g *Graph) Len() int { return len(g.order) }

// pendingEdge is an unresolved edge waiting for its target to appear.
type pendingEdge struct {
	sourceID   string
	targetName string
	kind       DependencyKind
}

// Manager owns the canonical Graph and is its only mutator.
//
// # Thread Safety
//
// Manager is NOT safe for concurrent use. The orchestrator invokes it
// sequentially; that is the concurrency model, not an oversight.
type Manager struct {
	g           *Graph
	pending     []pendingEdge
	pendingKeys map[pendingEdge]struct{}
	warnings    []Warning
	log         *slog.Logger
}

// NewManager creates a Manager with an empty graph.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{g: newGraph(), pendingKeys: make(map[pendingEdge]struct{}), log: log}
}

// Graph returns the canonical graph. Callers must treat it as read-only.
func (m *Manager) Graph() *Graph { return m.g }

// Warnings returns all non-fatal conditions recorded so far.
func (m *Manager) Warnings() []Warning {
	out := make([]Warning, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// Unresolved returns the edges that never found a target. They are
// reported, not dropped: callers surface them at the end of the run.
func (m *Manager) Unresolved() []UnresolvedEdge {
	out := make([]UnresolvedEdge, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, UnresolvedEdge{SourceID: p.sourceID, TargetName: p.targetName, Kind: p.kind})
	}
	return out
}

// Merge applies one batch of components and edges to the graph.
//
// # Description
//
// Components merge first so that edges within the same batch can resolve.
// A new id is inserted; an identical re-extraction is a no-op; a conflicting
// re-extraction is resolved last-writer-wins with a recorded warning.
// Resolved edges insert deduplicated; edges whose target is unknown go to
// the pending table, which is re-attempted after every merge until the run
// ends. Cycles are permitted. Merging the same batch twice yields the same
// graph as merging it once.
//
// # Inputs
//
//   - batch: Components and edges staged by the analysis tools.
//
// # Outputs
//
//   - MergeStats: What the merge did, for logging and metrics.
func (m *Manager) Merge(batch Batch) MergeStats {
	var stats MergeStats

	for _, c := range batch.Components {
		m.mergeComponent(c, &stats)
	}

	for _, e := range batch.Edges {
		m.mergeEdge(e, &stats)
	}

	for _, u := range batch.Unresolved {
		m.park(pendingEdge{sourceID: u.SourceID, targetName: u.TargetName, kind: u.Kind})
	}

	m.resolvePending(&stats)
	stats.EdgesPending = len(m.pending)
	metrics.PendingEdges.Set(float64(len(m.pending)))
	return stats
}

func (m *Manager) mergeComponent(c Component, stats *MergeStats) {
	if c.ID == "" {
		c.ID = ComponentID(c.FilePath, c.Name)
	}
	existing, ok := m.g.components[c.ID]
	if !ok {
		cc := c
		m.g.components[c.ID] = &cc
		m.g.order = append(m.g.order, c.ID)
		m.g.fileIndex[c.FilePath] = append(m.g.fileIndex[c.FilePath], c.ID)
		if c.Name != "" {
			m.g.nameIndex[c.Name] = append(m.g.nameIndex[c.Name], c.ID)
		}
		stats.ComponentsAdded++
		return
	}
	if *existing == c {
		stats.ComponentsUnchanged++
		return
	}
	// Last writer wins; insertion position is preserved.
	m.warn(WarnMergeConflict, fmt.Sprintf("component %s re-extracted with different attributes; keeping latest", c.ID))
	metrics.MergeConflicts.Inc()
	*existing = c
	stats.Conflicts++
}

func (m *Manager) mergeEdge(e Dependency, stats *MergeStats) {
	if m.g.Component(e.TargetID) == nil {
		// Forward reference that slipped through as resolved: park it
		// under the target's name part.
		_, name := SplitComponentID(e.TargetID)
		if name == "" {
			name = e.TargetID
		}
		m.park(pendingEdge{sourceID: e.SourceID, targetName: name, kind: e.Kind})
		return
	}
	if m.g.Component(e.SourceID) == nil {
		m.warn(WarnUnresolvedEdge, fmt.Sprintf("edge source %s is not a known component; dropped", e.SourceID))
		return
	}
	m.insertEdge(e, stats)
}

func (m *Manager) insertEdge(e Dependency, stats *MergeStats) {
	if e.SourceID == e.TargetID && !e.Recursive {
		m.warn(WarnSelfLoop, fmt.Sprintf("self-loop on %s without recursion marker", e.SourceID))
		e.Kind = KindUnknown
		e.NeedsReview = true
	}
	if _, dup := m.g.edgeKeys[e.Key()]; dup {
		stats.DuplicateEdges++
		return
	}
	m.g.edgeKeys[e.Key()] = struct{}{}
	m.g.edges = append(m.g.edges, e)
	stats.EdgesAdded++
}

// resolvePending re-attempts every pending edge against the current
// component set. Resolution prefers a component in the source's own file;
// a component from another file is only chosen when the name is globally
// unambiguous, so a forward reference never binds to a same-named component
// elsewhere.
func (m *Manager) resolvePending(stats *MergeStats) {
	for {
		progress := false
		remaining := m.pending[:0]
		for _, p := range m.pending {
			id, ok := m.resolveTarget(p)
			if !ok {
				remaining = append(remaining, p)
				continue
			}
			m.insertEdge(Dependency{SourceID: p.sourceID, TargetID: id, Kind: p.kind}, stats)
			stats.EdgesResolved++
			progress = true
		}
		m.pending = remaining
		if !progress {
			return
		}
	}
}

// park stores an unresolved edge, once. Re-merging an identical batch must
// not grow the pending table.
func (m *Manager) park(p pendingEdge) {
	if _, seen := m.pendingKeys[p]; seen {
		return
	}
	m.pendingKeys[p] = struct{}{}
	m.pending = append(m.pending, p)
}

func (m *Manager) resolveTarget(p pendingEdge) (string, bool) {
	// Literal id match first (mapper may emit full ids as target names).
	if m.g.Component(p.targetName) != nil {
		return p.targetName, true
	}
	// Same-file scope.
	srcFile, _ := SplitComponentID(p.sourceID)
	if id := ComponentID(srcFile, p.targetName); m.g.Component(id) != nil {
		return id, true
	}
	// Global scope, only when unambiguous.
	switch ids := m.g.nameIndex[p.targetName]; len(ids) {
	case 0:
		return "", false
	case 1:
		return ids[0], true
	default:
		// Stays pending; reported at run end if never disambiguated.
		return "", false
	}
}

func (m *Manager) warn(code, msg string) {
	m.warnings = append(m.warnings, Warning{Code: code, Message: msg})
	m.log.Warn(msg, "code", code)
}
