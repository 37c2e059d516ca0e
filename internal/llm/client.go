// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the AI completion capability behind a single
// interface so any provider can be substituted by configuration. The
// pipeline never inspects provider-specific types.
package llm

import (
	"context"
	"encoding/json"
)

// Schema names and describes the JSON shape a completion must satisfy.
type Schema struct {
	Name       string
	Definition json.RawMessage
}

// Completer is the one capability the analysis tools consume.
type Completer interface {
	// Name identifies the backend for logging.
	Name() string

	// Complete sends a prompt and returns the structured result as raw
	// JSON conforming to schema. Errors wrapped in PermanentError will
	// not resolve with retries.
	Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)
}
