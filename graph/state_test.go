//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceReducer(t *testing.T) {
	assert.Equal(t, "new", ReplaceReducer("old", "new"))
	assert.Nil(t, ReplaceReducer("old", nil))
}

func TestMergeObjectReducer(t *testing.T) {
	existing := map[string]any{"a": 1, "b": 2}
	update := map[string]any{"b": 3, "c": 4}
	merged := MergeObjectReducer(existing, update)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)

	// Non-object operands fall back to replace.
	assert.Equal(t, "scalar", MergeObjectReducer(existing, "scalar"))
}

func TestAppendListReducer(t *testing.T) {
	merged := AppendListReducer([]any{1, 2}, []any{3})
	assert.Equal(t, []any{1, 2, 3}, merged)

	// Scalars are appended as single elements.
	merged = AppendListReducer(nil, "x")
	assert.Equal(t, []any{"x"}, merged)
}

func TestMergeMapReducerIsRecursive(t *testing.T) {
	existing := map[string]any{
		"nested": map[string]any{"a": 1, "keep": true},
		"top":    "old",
	}
	update := map[string]any{
		"nested": map[string]any{"a": 2},
		"top":    "new",
	}
	merged := MergeMapReducer(existing, update).(map[string]any)
	assert.Equal(t, "new", merged["top"])
	nested := merged["nested"].(map[string]any)
	assert.Equal(t, 2, nested["a"])
	assert.Equal(t, true, nested["keep"])
}

func TestReducerByName(t *testing.T) {
	for _, name := range []string{ReducerReplace, ReducerMergeObject, ReducerAppendList, ReducerMergeMap} {
		reducer, err := ReducerByName(name)
		require.NoError(t, err)
		require.NotNil(t, reducer)
	}
	_, err := ReducerByName("no_such_rule")
	assert.Error(t, err)
}

func TestApplyUpdateDoesNotMutateInput(t *testing.T) {
	schema := NewStateSchema()
	require.NoError(t, schema.AddRule("items", ReducerAppendList))

	state := State{"items": []any{"a"}, "count": 1}
	out := schema.ApplyUpdate(state, State{"items": []any{"b"}, "count": 2})

	assert.Equal(t, []any{"a"}, state["items"])
	assert.Equal(t, 1, state["count"])
	assert.Equal(t, []any{"a", "b"}, out["items"])
	assert.Equal(t, 2, out["count"])
}

func TestInitialStateAppliesDefaults(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("items", StateField{
		ReducerName: ReducerAppendList,
		Reducer:     AppendListReducer,
		Default:     func() any { return []any{} },
	})
	state := schema.InitialState(State{"topic": "go"})
	assert.Equal(t, []any{}, state["items"])
	assert.Equal(t, "go", state["topic"])
}

func TestStateCloneIsDeep(t *testing.T) {
	state := State{
		"nested": map[string]any{"k": "v"},
		"list":   []any{1, 2},
	}
	clone := state.Clone()
	clone["nested"].(map[string]any)["k"] = "changed"
	clone["list"].([]any)[0] = 99

	assert.Equal(t, "v", state["nested"].(map[string]any)["k"])
	assert.Equal(t, 1, state["list"].([]any)[0])
}
