//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package dsl declares the declarative graph definition format and its
// compiler into executable graphs. Definitions are authored in JSON or
// YAML, validated structurally, and compiled against a resolver that
// supplies the referenced agents.
package dsl

import (
	"github.com/threadflow-ai/threadflow/dsl/condition"
)

// Node kinds accepted by the definition format.
const (
	KindAgent    = "agent"
	KindRouter   = "router"
	KindParallel = "parallel"
	KindJoin     = "join"
	KindSubgraph = "subgraph"
)

// GraphDefinition is the root of a declarative workflow definition.
type GraphDefinition struct {
	// Name identifies the workflow.
	Name string `json:"name" yaml:"name"`
	// Description documents it.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// StateSchema maps state properties to named merge rules
	// (replace, merge_object, append_list, merge_map).
	StateSchema map[string]string `json:"state_schema,omitempty" yaml:"state_schema,omitempty"`
	// EntryPoint names the first node to run.
	EntryPoint string `json:"entry_point" yaml:"entry_point"`
	// OutputKey names the state property reported as the output.
	OutputKey string `json:"output_key,omitempty" yaml:"output_key,omitempty"`
	// Nodes are the workflow vertices.
	Nodes []*NodeDefinition `json:"nodes" yaml:"nodes"`
	// Edges are the unconditional connections between nodes. Router
	// routes are declared on the router node instead.
	Edges []*EdgeDefinition `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// NodeDefinition declares one node.
type NodeDefinition struct {
	// ID is the unique node identifier.
	ID string `json:"id" yaml:"id"`
	// Kind is agent, router, parallel, join or subgraph.
	Kind string `json:"kind" yaml:"kind"`
	// Name is an optional display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Description documents the node.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Agent names the agent to run (agent kind). Resolved by the
	// compiler's agent resolver.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`
	// InputMapping projects state into agent inputs. Values are
	// selector expressions like "$.plan.steps[0] || \"none\"".
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
	// OutputKey names the state property receiving the node output.
	OutputKey string `json:"output_key,omitempty" yaml:"output_key,omitempty"`

	// Routes are a router's guarded exits, evaluated in order.
	Routes []*RouteDefinition `json:"routes,omitempty" yaml:"routes,omitempty"`

	// WaitFor is a join's wait set. Empty means all predecessors.
	WaitFor []string `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	// Aggregation is a join's named merge rule for branch outputs.
	Aggregation string `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	// FailurePolicy is all_required, any or majority.
	FailurePolicy string `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"`

	// Graph is an inline subgraph definition (subgraph kind).
	Graph *GraphDefinition `json:"graph,omitempty" yaml:"graph,omitempty"`

	// TimeoutMS overrides the per-node deadline, in milliseconds.
	TimeoutMS int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	// OnError routes node failures to a recovery node.
	OnError string `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	// AwaitInput pauses the execution with this reason before the node
	// runs.
	AwaitInput string `json:"await_input,omitempty" yaml:"await_input,omitempty"`
}

// RouteDefinition is one guarded exit of a router. Exactly one of When
// and Expr guards a non-default route.
type RouteDefinition struct {
	// To is the target node, or "__end__".
	To string `json:"to" yaml:"to"`
	// When is a structured condition over state.
	When *condition.Condition `json:"when,omitempty" yaml:"when,omitempty"`
	// Expr is a CEL expression over the "state" variable.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
	// Default marks the fallback route.
	Default bool `json:"default,omitempty" yaml:"default,omitempty"`
}

// EdgeDefinition is one unconditional edge.
type EdgeDefinition struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}
