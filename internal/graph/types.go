// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"strings"
)

// ChangeType describes how a component was affected by the change set.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeModified  ChangeType = "modified"
	ChangeDeleted   ChangeType = "deleted"
	ChangeUnchanged ChangeType = "unchanged"
)

// ValidChangeType reports whether s is a known change type.
func ValidChangeType(s ChangeType) bool {
	switch s {
	case ChangeAdded, ChangeModified, ChangeDeleted, ChangeUnchanged:
		return true
	}
	return false
}

// ComponentType classifies a code component.
type ComponentType string

const (
	ComponentModule   ComponentType = "module"
	ComponentClass    ComponentType = "class"
	ComponentFunction ComponentType = "function"
	ComponentFile     ComponentType = "file"

	// ComponentUnknown is used for sentinel nodes standing in for
	// chunks whose analysis failed.
	ComponentUnknown ComponentType = "unknown"
)

// ValidComponentType reports whether s is a known component type.
func ValidComponentType(s ComponentType) bool {
	switch s {
	case ComponentModule, ComponentClass, ComponentFunction, ComponentFile, ComponentUnknown:
		return true
	}
	return false
}

// Component is a named code unit (function, class, module, file) with a
// change type.
//
// # Identity
//
// A component is identified by (file path, name), encoded as
// "file_path::name". When the analysis could not produce a name, callers
// synthesize one (e.g. "chunk-3") so identity stays unique within a Graph.
type Component struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       ComponentType `json:"type"`
	Summary    string        `json:"summary,omitempty"`
	ChangeType ChangeType    `json:"change_type"`
	FilePath   string        `json:"file_path"`
	StartLine  int           `json:"start_line,omitempty"`
	EndLine    int           `json:"end_line,omitempty"`

	// Degraded marks a node that stands in for a failed analysis
	// (unparsable output or exhausted retries).
	Degraded      bool   `json:"degraded,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ComponentID builds the canonical component id for a (file, name) pair.
func ComponentID(filePath, name string) string {
	return filePath + "::" + name
}

// SplitComponentID splits a canonical id back into (file path, name).
// The second return is empty when id carries no "::" separator.
func SplitComponentID(id string) (filePath, name string) {
	i := strings.LastIndex(id, "::")
	if i < 0 {
		return id, ""
	}
	return id[:i], id[i+2:]
}

// DependencyKind classifies a dependency edge.
type DependencyKind string

const (
	KindCalls      DependencyKind = "calls"
	KindInherits   DependencyKind = "inherits"
	KindImports    DependencyKind = "imports"
	KindReferences DependencyKind = "references"
	KindUnknown    DependencyKind = "unknown"
)

// ValidDependencyKind reports whether s is a known dependency kind.
func ValidDependencyKind(s DependencyKind) bool {
	switch s {
	case KindCalls, KindInherits, KindImports, KindReferences, KindUnknown:
		return true
	}
	return false
}

// Dependency is a resolved edge between two components.
//
// Self-loops (SourceID == TargetID) are only legitimate when Recursive is
// set; anything else is downgraded to KindUnknown and flagged NeedsReview.
type Dependency struct {
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Kind     DependencyKind `json:"kind"`

	// Recursive marks an intentional self-loop.
	Recursive bool `json:"recursive,omitempty"`

	// NeedsReview flags an edge the mapper could not fully trust,
	// e.g. a downgraded accidental self-loop.
	NeedsReview bool `json:"needs_review,omitempty"`
}

// Key returns the deduplication key for the edge.
func (d Dependency) Key() string {
	return fmt.Sprintf("%s\x00%s\x00%s", d.SourceID, d.TargetID, d.Kind)
}

// UnresolvedEdge is a dependency whose target component is not (yet) known.
// It carries the literal target name as emitted by the mapper so the
// GraphManager can resolve it once the target is merged.
type UnresolvedEdge struct {
	SourceID   string         `json:"source_id"`
	TargetName string         `json:"target_name"`
	Kind       DependencyKind `json:"kind"`
}

// Batch is a staged unit of merge work: the components and edges produced
// for one file (or for the cross-file pass). Batches are produced by the
// analysis tools, staged in the workspace, and merged sequentially by the
// Manager.
type Batch struct {
	Components []Component      `json:"components"`
	Edges      []Dependency     `json:"edges"`
	Unresolved []UnresolvedEdge `json:"unresolved,omitempty"`
}
