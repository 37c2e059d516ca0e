// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"encoding/json"

	"github.com/diffgraph/diffgraph/internal/llm"
)

// extractionSchema is the structured-output contract for the extraction
// tool: the components found in one chunk.
var extractionSchema = llm.Schema{
	Name: "component_extraction",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "components": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string", "enum": ["module", "class", "function", "file"]},
          "summary": {"type": "string"},
          "change_type": {"type": "string", "enum": ["added", "modified", "deleted", "unchanged"]},
          "start_line": {"type": "integer"},
          "end_line": {"type": "integer"}
        },
        "required": ["name", "type", "change_type"],
        "additionalProperties": false
      }
    }
  },
  "required": ["components"],
  "additionalProperties": false
}`),
}

// mappingSchema is the structured-output contract for the dependency
// mapper: edges between known components, by name or id.
var mappingSchema = llm.Schema{
	Name: "dependency_mapping",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string"},
          "target": {"type": "string"},
          "kind": {"type": "string", "enum": ["calls", "inherits", "imports", "references", "unknown"]},
          "recursive": {"type": "boolean"}
        },
        "required": ["source", "target", "kind"],
        "additionalProperties": false
      }
    }
  },
  "required": ["edges"],
  "additionalProperties": false
}`),
}
