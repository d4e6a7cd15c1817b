//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package dsl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/agent"
	"github.com/threadflow-ai/threadflow/dsl"
	"github.com/threadflow-ai/threadflow/graph"
)

// stubAgent returns a fixed output and records its inputs.
type stubAgent struct {
	name   string
	output any
	inputs map[string]any
}

func (s *stubAgent) Run(ctx context.Context, inv *agent.Invocation) (any, error) {
	s.inputs = inv.Inputs
	return s.output, nil
}

func (s *stubAgent) Info() agent.Info {
	return agent.Info{Name: s.name}
}

const researchYAML = `
name: research
description: plan, fan out research, collect findings, write a report
state_schema:
  findings: append_list
entry_point: plan
output_key: report
nodes:
  - id: plan
    kind: agent
    agent: planner
    output_key: plan
    input_mapping:
      topic: '$.topic || "general"'
  - id: gate
    kind: router
    routes:
      - to: fan
        expr: 'state.plan == "ok"'
      - to: __end__
        default: true
  - id: fan
    kind: parallel
  - id: north
    kind: agent
    agent: north
    output_key: findings
  - id: south
    kind: agent
    agent: south
    output_key: findings
  - id: collect
    kind: join
    failure_policy: all_required
  - id: write
    kind: agent
    agent: writer
    output_key: report
edges:
  - from: plan
    to: gate
  - from: fan
    to: north
  - from: fan
    to: south
  - from: north
    to: collect
  - from: south
    to: collect
  - from: collect
    to: write
  - from: write
    to: __end__
`

func researchAgents() (dsl.AgentMap, *stubAgent) {
	planner := &stubAgent{name: "planner", output: "ok"}
	return dsl.AgentMap{
		"planner": planner,
		"north":   &stubAgent{name: "north", output: "glaciers"},
		"south":   &stubAgent{name: "south", output: "penguins"},
		"writer":  &stubAgent{name: "writer", output: "full report"},
	}, planner
}

func TestCompileAndRunYAMLDefinition(t *testing.T) {
	def, err := dsl.ParseYAML([]byte(researchYAML))
	require.NoError(t, err)
	assert.Equal(t, "research", def.Name)

	agents, planner := researchAgents()
	compiled, err := dsl.NewCompiler(dsl.WithAgentResolver(agents)).Compile(def)
	require.NoError(t, err)

	res, err := graph.NewExecutor(compiled).Run(context.Background(), graph.State{})
	require.NoError(t, err)
	require.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, "full report", res.Output)
	assert.Equal(t, []any{"glaciers", "penguins"}, res.State["findings"])

	// The selector default filled the missing topic.
	assert.Equal(t, "general", planner.inputs["topic"])
}

func TestRouterDefaultShortCircuits(t *testing.T) {
	def, err := dsl.ParseYAML([]byte(researchYAML))
	require.NoError(t, err)

	agents, _ := researchAgents()
	agents["planner"] = &stubAgent{name: "planner", output: "not ready"}
	compiled, err := dsl.NewCompiler(dsl.WithAgentResolver(agents)).Compile(def)
	require.NoError(t, err)

	res, err := graph.NewExecutor(compiled).Run(context.Background(), graph.State{})
	require.NoError(t, err)
	require.Equal(t, graph.StatusCompleted, res.Status)
	assert.Nil(t, res.State["findings"])
	assert.Nil(t, res.Output)
}

func TestParseJSONDefinition(t *testing.T) {
	def, err := dsl.ParseJSON([]byte(`{
		"name": "tiny",
		"entry_point": "only",
		"nodes": [
			{"id": "only", "kind": "agent", "agent": "a", "output_key": "out"}
		],
		"edges": [{"from": "only", "to": "__end__"}]
	}`))
	require.NoError(t, err)

	compiled, err := dsl.NewCompiler(dsl.WithAgentResolver(dsl.AgentMap{
		"a": &stubAgent{name: "a", output: "hello"},
	})).Compile(def)
	require.NoError(t, err)

	res, err := graph.NewExecutor(compiled).Run(context.Background(), graph.State{})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.State["out"])
}

func TestStructuredConditionRoute(t *testing.T) {
	def, err := dsl.ParseJSON([]byte(`{
		"name": "gated",
		"entry_point": "gate",
		"nodes": [
			{"id": "gate", "kind": "router", "routes": [
				{"to": "go", "when": {"field": "score", "op": "gte", "value": 0.5}},
				{"to": "__end__", "default": true}
			]},
			{"id": "go", "kind": "agent", "agent": "a", "output_key": "went"}
		],
		"edges": [{"from": "go", "to": "__end__"}]
	}`))
	require.NoError(t, err)

	compiled, err := dsl.NewCompiler(dsl.WithAgentResolver(dsl.AgentMap{
		"a": &stubAgent{name: "a", output: true},
	})).Compile(def)
	require.NoError(t, err)

	res, err := graph.NewExecutor(compiled).Run(context.Background(), graph.State{"score": 0.9})
	require.NoError(t, err)
	assert.Equal(t, true, res.State["went"])

	res, err = graph.NewExecutor(compiled).Run(context.Background(), graph.State{"score": 0.1})
	require.NoError(t, err)
	assert.Nil(t, res.State["went"])
}

func TestSubgraphDefinition(t *testing.T) {
	def, err := dsl.ParseJSON([]byte(`{
		"name": "outer",
		"entry_point": "inner",
		"nodes": [
			{"id": "inner", "kind": "subgraph", "output_key": "inner_out", "graph": {
				"name": "nested",
				"entry_point": "work",
				"output_key": "done",
				"nodes": [{"id": "work", "kind": "agent", "agent": "worker", "output_key": "done"}],
				"edges": [{"from": "work", "to": "__end__"}]
			}}
		],
		"edges": [{"from": "inner", "to": "__end__"}]
	}`))
	require.NoError(t, err)

	compiled, err := dsl.NewCompiler(dsl.WithAgentResolver(dsl.AgentMap{
		"worker": &stubAgent{name: "worker", output: "nested result"},
	})).Compile(def)
	require.NoError(t, err)

	res, err := graph.NewExecutor(compiled).Run(context.Background(), graph.State{})
	require.NoError(t, err)
	assert.Equal(t, "nested result", res.State["inner_out"])
}

func TestValidationRejections(t *testing.T) {
	cases := map[string]string{
		"missing name":        `{"entry_point": "a", "nodes": [{"id": "a", "kind": "parallel"}]}`,
		"missing entry":       `{"name": "x", "nodes": [{"id": "a", "kind": "parallel"}]}`,
		"unknown kind":        `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "mystery"}]}`,
		"duplicate id":        `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "parallel"}, {"id": "a", "kind": "parallel"}]}`,
		"reserved id":         `{"name": "x", "entry_point": "__end__", "nodes": [{"id": "__end__", "kind": "parallel"}]}`,
		"agent without ref":   `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "agent"}]}`,
		"router no routes":    `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "router"}]}`,
		"guarded default":     `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "router", "routes": [{"to": "__end__", "default": true, "expr": "true"}]}]}`,
		"edge unknown target": `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "parallel"}], "edges": [{"from": "a", "to": "ghost"}]}`,
		"bad failure policy":  `{"name": "x", "entry_point": "a", "nodes": [{"id": "a", "kind": "join", "failure_policy": "optimistic"}]}`,
	}
	for name, raw := range cases {
		_, err := dsl.ParseJSON([]byte(raw))
		assert.Error(t, err, name)
	}
}
