// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"regexp"
	"strings"
)

const labelMaxLen = 50

var nodeIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Render produces a deterministic Mermaid "graph TD" description of the
// canonical graph: nodes and edges in insertion order, one style class per
// change type. The output is consumed by an external diagram frontend and
// is stable across runs for identical input.
func (m *Manager) Render() string {
	return m.g.Mermaid()
}

// Mermaid serializes the graph as a Mermaid flowchart.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, id := range g.order {
		c := g.components[id]
		b.WriteString("    ")
		b.WriteString(mermaidNodeID(id))
		b.WriteString(`["`)
		b.WriteString(mermaidLabel(c))
		b.WriteString(`"]:::change_`)
		b.WriteString(string(c.ChangeType))
		b.WriteString("\n")
	}

	for _, e := range g.edges {
		b.WriteString("    ")
		b.WriteString(mermaidNodeID(e.SourceID))
		b.WriteString(" -->|")
		b.WriteString(string(e.Kind))
		b.WriteString("| ")
		b.WriteString(mermaidNodeID(e.TargetID))
		b.WriteString("\n")
	}

	b.WriteString("    classDef change_added fill:green,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef change_deleted fill:red,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef change_modified fill:orange,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef change_unchanged fill:gray,stroke:#333,stroke-width:2px\n")
	return b.String()
}

func mermaidNodeID(id string) string {
	return nodeIDSanitizer.ReplaceAllString(id, "_")
}

func mermaidLabel(c *Component) string {
	label := c.Name
	if label == "" {
		label = c.FilePath
	}
	if c.Summary != "" {
		s := c.Summary
		if r := []rune(s); len(r) > labelMaxLen {
			s = string(r[:labelMaxLen]) + "..."
		}
		label += "<br/>" + s
	}
	if c.Degraded {
		label += "<br/>(analysis failed"
		if c.FailureReason != "" {
			label += ": " + c.FailureReason
		}
		label += ")"
	}
	return strings.ReplaceAll(label, `"`, `'`)
}
