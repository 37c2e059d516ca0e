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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
)

func testChunk() chunker.Chunk {
	return chunker.Chunk{
		ID:        chunker.ChunkID("pkg/auth/service.py", 0),
		FilePath:  "pkg/auth/service.py",
		Index:     0,
		StartLine: 0,
		EndLine:   40,
		Text:      "class AuthService:\n    def validate_user(self):\n        pass\n",
	}
}

func testFile() FileContext {
	return FileContext{
		Path:          "pkg/auth/service.py",
		Change:        graph.ChangeModified,
		ChangedRanges: []LineRange{{Start: 2, End: 3}},
	}
}

func TestExtract_OK(t *testing.T) {
	fake := llm.NewFake(func(prompt string, schema llm.Schema) (json.RawMessage, error) {
		assert.Equal(t, "component_extraction", schema.Name)
		assert.Contains(t, prompt, "pkg/auth/service.py")
		assert.Contains(t, prompt, "2-3")
		return json.RawMessage(`{"components":[
			{"name":"AuthService","type":"class","summary":"Authenticates users.","change_type":"modified","start_line":1,"end_line":40},
			{"name":"validate_user","type":"function","summary":"Checks credentials.","change_type":"added","start_line":2,"end_line":3}
		]}`), nil
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	assert.Equal(t, ParseOK, res.ParseStatus)
	require.Len(t, res.Components, 2)

	assert.Equal(t, "pkg/auth/service.py::AuthService", res.Components[0].ID)
	assert.Equal(t, graph.ComponentClass, res.Components[0].Type)
	assert.Equal(t, graph.ChangeModified, res.Components[0].ChangeType)
	assert.Equal(t, graph.ChangeAdded, res.Components[1].ChangeType)
	assert.False(t, res.Components[0].Degraded)
	require.Len(t, fake.Calls(), 1)
}

func TestExtract_UnparsableOutput(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`this is not json`), nil
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	assert.Equal(t, ParseUnparsable, res.ParseStatus)
	require.Len(t, res.Components, 1)

	c := res.Components[0]
	assert.Equal(t, "chunk-0", c.Name)
	assert.Equal(t, graph.ComponentUnknown, c.Type)
	assert.True(t, c.Degraded)
	assert.Equal(t, graph.ChangeModified, c.ChangeType)
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 40, c.EndLine)
}

func TestExtract_InvalidEnumRejectsChunk(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"components":[{"name":"X","type":"gadget","change_type":"modified"}]}`), nil
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	assert.Equal(t, ParseUnparsable, res.ParseStatus)
	require.Len(t, res.Components, 1)
	assert.True(t, res.Components[0].Degraded)
}

func TestExtract_TransientExhaustionIsContained(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return nil, errors.New("upstream 503")
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	assert.Equal(t, ParseTimedOut, res.ParseStatus)
	require.Len(t, res.Components, 1)
	assert.True(t, res.Components[0].Degraded)
	assert.Equal(t, "provider timed out", res.Components[0].FailureReason)
}

func TestExtract_PermanentErrorAborts(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return nil, llm.Permanent(llm.ErrAuth)
	})
	ex := NewExtractor(fake, nil)

	_, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.Error(t, err)
	assert.True(t, llm.IsPermanent(err))
	assert.ErrorIs(t, err, llm.ErrAuth)
}

func TestExtract_CanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := llm.NewFake(nil)
	ex := NewExtractor(fake, nil)

	_, err := ex.Extract(ctx, testFile(), testChunk())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_LineClampAndNameSynthesis(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"components":[
			{"name":"","type":"function","change_type":"added","start_line":-5,"end_line":9999}
		]}`), nil
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	require.Len(t, res.Components, 1)

	c := res.Components[0]
	assert.True(t, strings.HasPrefix(c.Name, "chunk-0-c"))
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 40, c.EndLine)
}

func TestExtract_EmptyChangeTypeInheritsFile(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"components":[{"name":"helper","type":"function","change_type":"","start_line":1,"end_line":2}]}`), nil
	})
	ex := NewExtractor(fake, nil)

	res, err := ex.Extract(context.Background(), testFile(), testChunk())
	require.NoError(t, err)
	require.Len(t, res.Components, 1)
	assert.Equal(t, graph.ChangeModified, res.Components[0].ChangeType)
}
