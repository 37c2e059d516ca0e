// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// Export is the programmatic form of a finished run: the canonical
// component map and dependency set in insertion order, plus everything a
// consumer needs to judge the result (unresolved edges, merge warnings).
type Export struct {
	Components []Component      `json:"components"`
	Edges      []Dependency     `json:"edges"`
	Unresolved []UnresolvedEdge `json:"unresolved,omitempty"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// Export snapshots the manager's graph for external consumption.
func (m *Manager) Export() Export {
	return Export{
		Components: m.g.Components(),
		Edges:      m.g.Edges(),
		Unresolved: m.Unresolved(),
		Warnings:   m.Warnings(),
	}
}
