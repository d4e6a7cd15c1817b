//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/graph"
)

func selectValue(t *testing.T, expr string, state graph.State) any {
	t.Helper()
	sel, err := CompileSelector(expr)
	require.NoError(t, err)
	v, err := sel(state)
	require.NoError(t, err)
	return v
}

func TestSelectorFieldPath(t *testing.T) {
	state := graph.State{
		"plan": map[string]any{
			"title": "trip",
			"steps": []any{
				map[string]any{"name": "pack", "done": true},
				map[string]any{"name": "fly", "done": false},
			},
		},
	}
	assert.Equal(t, "trip", selectValue(t, "$.plan.title", state))
	assert.Equal(t, "fly", selectValue(t, "$.plan.steps[1].name", state))
	assert.Equal(t, []any{"pack", "fly"}, selectValue(t, "$.plan.steps[*].name", state))
}

func TestSelectorWholeState(t *testing.T) {
	state := graph.State{"k": "v"}
	v := selectValue(t, "$", state)
	assert.Equal(t, map[string]any{"k": "v"}, v)
}

func TestSelectorDefaultLiteral(t *testing.T) {
	state := graph.State{}
	assert.Equal(t, "general", selectValue(t, `$.topic || "general"`, state))
	assert.Equal(t, float64(3), selectValue(t, `$.retries || 3`, state))
	assert.Equal(t, []any{}, selectValue(t, `$.items || []`, state))

	// Present values win over the default.
	assert.Equal(t, "go", selectValue(t, `$.topic || "general"`, graph.State{"topic": "go"}))
}

func TestSelectorMissingWithoutDefault(t *testing.T) {
	assert.Nil(t, selectValue(t, "$.absent.path", graph.State{}))
	assert.Nil(t, selectValue(t, "$.list[9]", graph.State{"list": []any{1}}))
}

func TestSelectorParseErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"plan.title",
		"$.",
		"$.a[",
		"$.a[x]",
		"$.a[-1]",
		"$.a ||",
		"$.a || not-json",
	} {
		_, err := CompileSelector(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}
