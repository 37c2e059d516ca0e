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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	attempts := 0
	fake := NewFake(func(string, Schema) (json.RawMessage, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("rate limited")
		}
		return json.RawMessage(`{"ok":true}`), nil
	})

	c := WithRetry(fake, 5, time.Millisecond, nil)
	out, err := c.Complete(context.Background(), "p", Schema{Name: "s"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	fake := NewFake(func(string, Schema) (json.RawMessage, error) {
		attempts++
		return nil, errors.New("timeout")
	})

	c := WithRetry(fake, 3, time.Millisecond, nil)
	_, err := c.Complete(context.Background(), "p", Schema{Name: "s"})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_PermanentNotRetried(t *testing.T) {
	attempts := 0
	fake := NewFake(func(string, Schema) (json.RawMessage, error) {
		attempts++
		return nil, Permanent(ErrAuth)
	})

	c := WithRetry(fake, 5, time.Millisecond, nil)
	_, err := c.Complete(context.Background(), "p", Schema{Name: "s"})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ContextCanceledDuringBackoff(t *testing.T) {
	fake := NewFake(func(string, Schema) (json.RawMessage, error) {
		return nil, errors.New("transient")
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := WithRetry(fake, 5, time.Hour, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Complete(ctx, "p", Schema{Name: "s"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
