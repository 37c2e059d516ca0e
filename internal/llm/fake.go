// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeCall records one Complete invocation on a Fake.
type FakeCall struct {
	Prompt string
	Schema string
}

// Fake is a deterministic Completer for offline tests. The handler decides
// the response per call; Fake records every invocation.
type Fake struct {
	handler func(prompt string, schema Schema) (json.RawMessage, error)

	mu    sync.Mutex
	calls []FakeCall
}

// NewFake creates a Fake backed by handler. A nil handler answers every
// call with an empty JSON object.
func NewFake(handler func(prompt string, schema Schema) (json.RawMessage, error)) *Fake {
	if handler == nil {
		handler = func(string, Schema) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		}
	}
	return &Fake{handler: handler}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Prompt: prompt, Schema: schema.Name})
	f.mu.Unlock()
	return f.handler(prompt, schema)
}

// Calls returns a copy of all recorded invocations.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}
