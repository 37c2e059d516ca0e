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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/llm"
)

func mapComponents() []graph.Component {
	return []graph.Component{
		{ID: "a.py::AuthService", Name: "AuthService", Type: graph.ComponentClass, FilePath: "a.py", StartLine: 1, EndLine: 30},
		{ID: "a.py::validate_user", Name: "validate_user", Type: graph.ComponentFunction, FilePath: "a.py", StartLine: 5, EndLine: 12},
		{ID: "a.py::hash_password", Name: "hash_password", Type: graph.ComponentFunction, FilePath: "a.py", StartLine: 14, EndLine: 20},
	}
}

func TestMap_ResolvesByIDAndName(t *testing.T) {
	fake := llm.NewFake(func(prompt string, schema llm.Schema) (json.RawMessage, error) {
		assert.Equal(t, "dependency_mapping", schema.Name)
		assert.Contains(t, prompt, "a.py::AuthService")
		return json.RawMessage(`{"edges":[
			{"source":"a.py::validate_user","target":"hash_password","kind":"calls"},
			{"source":"AuthService","target":"a.py::validate_user","kind":"references"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{
		Scope:      ScopeIntraFile,
		FilePath:   "a.py",
		Components: mapComponents(),
	})
	require.NoError(t, err)
	require.Len(t, res.Edges, 2)
	assert.Empty(t, res.Unresolved)

	assert.Equal(t, "a.py::validate_user", res.Edges[0].SourceID)
	assert.Equal(t, "a.py::hash_password", res.Edges[0].TargetID)
	assert.Equal(t, graph.KindCalls, res.Edges[0].Kind)
	assert.Equal(t, "a.py::AuthService", res.Edges[1].SourceID)
}

func TestMap_UnknownTargetReportedNotDropped(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"validate_user","target":"TokenStore","kind":"calls"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "a.py::validate_user", res.Unresolved[0].SourceID)
	assert.Equal(t, "TokenStore", res.Unresolved[0].TargetName)
	assert.Equal(t, graph.KindCalls, res.Unresolved[0].Kind)
}

func TestMap_UnknownSourceDropped(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"not_a_component","target":"validate_user","kind":"calls"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Empty(t, res.Unresolved)
}

func TestMap_SelfLoopDowngradedUnlessRecursive(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"validate_user","target":"validate_user","kind":"calls","recursive":true},
			{"source":"hash_password","target":"hash_password","kind":"calls"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.NoError(t, err)
	require.Len(t, res.Edges, 2)

	assert.True(t, res.Edges[0].Recursive)
	assert.Equal(t, graph.KindCalls, res.Edges[0].Kind)
	assert.False(t, res.Edges[0].NeedsReview)

	assert.False(t, res.Edges[1].Recursive)
	assert.Equal(t, graph.KindUnknown, res.Edges[1].Kind)
	assert.True(t, res.Edges[1].NeedsReview)
}

func TestMap_SelfLoopPromotedBySummary(t *testing.T) {
	comps := mapComponents()
	comps[1].Summary = "Recursively walks the group tree to validate the user."
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"validate_user","target":"validate_user","kind":"calls"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: comps})
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.True(t, res.Edges[0].Recursive)
	assert.Equal(t, graph.KindCalls, res.Edges[0].Kind)
}

func TestMap_DuplicateEdgesCollapsed(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"validate_user","target":"hash_password","kind":"calls"},
			{"source":"a.py::validate_user","target":"a.py::hash_password","kind":"calls"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.NoError(t, err)
	assert.Len(t, res.Edges, 1)
}

func TestMap_InvalidKindFallsBackToUnknown(t *testing.T) {
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{"edges":[
			{"source":"validate_user","target":"hash_password","kind":"depends_on"}
		]}`), nil
	})
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, graph.KindUnknown, res.Edges[0].Kind)
}

func TestMap_FewerThanTwoComponentsSkipsProvider(t *testing.T) {
	fake := llm.NewFake(nil)
	m := NewDependencyMapper(fake, nil)

	res, err := m.Map(context.Background(), MapRequest{Components: mapComponents()[:1]})
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Empty(t, fake.Calls())
}

func TestMap_ProviderErrorPropagates(t *testing.T) {
	sentinel := errors.New("upstream 500")
	fake := llm.NewFake(func(string, llm.Schema) (json.RawMessage, error) {
		return nil, sentinel
	})
	m := NewDependencyMapper(fake, nil)

	_, err := m.Map(context.Background(), MapRequest{Components: mapComponents()})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestSnippets(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5"
	comps := []graph.Component{
		{ID: "f::a", StartLine: 2, EndLine: 3},
		{ID: "f::b", StartLine: 4, EndLine: 99},
		{ID: "f::c", StartLine: 0, EndLine: 0},
	}
	snips := Snippets(comps, content)
	assert.Equal(t, "line2\nline3", snips["f::a"])
	assert.Equal(t, "line4\nline5", snips["f::b"])
	_, ok := snips["f::c"]
	assert.False(t, ok)
}
