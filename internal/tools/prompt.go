// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"fmt"
	"strings"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/graph"
)

const snippetMaxChars = 2000

func extractionPrompt(file FileContext, chunk chunker.Chunk) string {
	var b strings.Builder
	b.WriteString("Identify the code components (modules, classes, functions) defined in this chunk of a changed file.\n\n")
	fmt.Fprintf(&b, "File: %s (file status: %s)\n", file.Path, file.Change)
	fmt.Fprintf(&b, "Chunk %d, covering lines %d-%d of the file. Report line numbers relative to the whole file.\n",
		chunk.Index, chunk.StartLine+1, chunk.EndLine)
	if len(file.ChangedRanges) > 0 {
		b.WriteString("Changed line ranges in this file: ")
		for i, r := range file.ChangedRanges {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d-%d", r.Start, r.End)
		}
		b.WriteString(". Components outside these ranges are unchanged context.\n")
	}
	b.WriteString("For each component give its name, type, a one-sentence summary, and how it was affected (added, modified, deleted, unchanged).\n\n")
	b.WriteString("Content:\n```\n")
	b.WriteString(chunk.Text)
	b.WriteString("\n```\n")
	return b.String()
}

func mappingPrompt(req MapRequest) string {
	var b strings.Builder
	switch req.Scope {
	case ScopeCrossFile:
		b.WriteString("Identify dependencies BETWEEN components from DIFFERENT files in this change set. Do not repeat dependencies within a single file.\n\n")
	default:
		fmt.Fprintf(&b, "Identify dependencies between the components of file %s.\n\n", req.FilePath)
	}
	b.WriteString("Known components (refer to them by id or name):\n")
	for _, c := range req.Components {
		fmt.Fprintf(&b, "- id=%s name=%s type=%s", c.ID, c.Name, c.Type)
		if c.Summary != "" {
			fmt.Fprintf(&b, " summary=%s", c.Summary)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nEdge kinds: calls, inherits, imports, references. Mark an edge recursive only when a component genuinely calls itself.\n")
	b.WriteString("A target outside the list above may be named literally; it will be resolved later.\n")

	if len(req.Snippets) > 0 {
		b.WriteString("\nSource snippets:\n")
		for _, c := range req.Components {
			snip, ok := req.Snippets[c.ID]
			if !ok {
				continue
			}
			if len(snip) > snippetMaxChars {
				snip = snip[:snippetMaxChars] + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", c.ID, snip)
		}
	}
	return b.String()
}

// Snippets slices the component line ranges out of the file content, for
// the intra-file mapping pass.
func Snippets(components []graph.Component, content string) map[string]string {
	lines := strings.Split(content, "\n")
	out := make(map[string]string, len(components))
	for _, c := range components {
		if c.StartLine < 1 || c.StartLine > len(lines) {
			continue
		}
		end := c.EndLine
		if end < c.StartLine {
			end = c.StartLine
		}
		if end > len(lines) {
			end = len(lines)
		}
		out[c.ID] = strings.Join(lines[c.StartLine-1:end], "\n")
	}
	return out
}
