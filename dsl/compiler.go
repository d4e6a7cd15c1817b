//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package dsl

import (
	"fmt"
	"time"

	"github.com/threadflow-ai/threadflow/agent"
	"github.com/threadflow-ai/threadflow/dsl/cel"
	"github.com/threadflow-ai/threadflow/graph"
)

// AgentResolver supplies the agents a definition references by name.
type AgentResolver interface {
	ResolveAgent(name string) (agent.Agent, error)
}

// AgentResolverFunc adapts a function to AgentResolver.
type AgentResolverFunc func(name string) (agent.Agent, error)

// ResolveAgent implements AgentResolver.
func (f AgentResolverFunc) ResolveAgent(name string) (agent.Agent, error) {
	return f(name)
}

// AgentMap resolves agents from a fixed map.
type AgentMap map[string]agent.Agent

// ResolveAgent implements AgentResolver.
func (m AgentMap) ResolveAgent(name string) (agent.Agent, error) {
	a, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered with the compiler", name)
	}
	return a, nil
}

// Compiler turns validated definitions into executable graphs.
type Compiler struct {
	resolver AgentResolver
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithAgentResolver sets the resolver for agent references.
func WithAgentResolver(r AgentResolver) CompilerOption {
	return func(c *Compiler) { c.resolver = r }
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile validates and compiles a definition. All semantic checks of
// graph compilation (cycle rejection, join wait sets, subgraph depth)
// apply.
func (c *Compiler) Compile(def *GraphDefinition) (*graph.Graph, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	schema := graph.NewStateSchema()
	for key, rule := range def.StateSchema {
		if err := schema.AddRule(key, rule); err != nil {
			return nil, fmt.Errorf("graph %s: %w", def.Name, err)
		}
	}

	sg := graph.NewStateGraph(schema)
	if def.OutputKey != "" {
		sg.SetOutputKey(def.OutputKey)
	}
	for _, node := range def.Nodes {
		if err := c.addNode(sg, def, node); err != nil {
			return nil, err
		}
	}
	sg.SetEntryPoint(def.EntryPoint)
	for _, edge := range def.Edges {
		sg.AddEdge(edge.From, edge.To)
	}
	return sg.Compile()
}

func (c *Compiler) addNode(sg *graph.StateGraph, def *GraphDefinition, node *NodeDefinition) error {
	opts, err := commonOptions(node)
	if err != nil {
		return fmt.Errorf("graph %s: node %s: %w", def.Name, node.ID, err)
	}
	switch node.Kind {
	case KindAgent:
		if c.resolver == nil {
			return fmt.Errorf("graph %s: node %s references agent %q but the compiler has no agent resolver",
				def.Name, node.ID, node.Agent)
		}
		a, err := c.resolver.ResolveAgent(node.Agent)
		if err != nil {
			return fmt.Errorf("graph %s: node %s: %w", def.Name, node.ID, err)
		}
		sg.AddAgentNode(node.ID, a, opts...)
	case KindRouter:
		sg.AddRouterNode(node.ID, opts...)
		for _, route := range node.Routes {
			if route.Default {
				sg.AddDefaultEdge(node.ID, route.To)
				continue
			}
			pred, name, err := compileRoute(route)
			if err != nil {
				return fmt.Errorf("graph %s: router %s: %w", def.Name, node.ID, err)
			}
			sg.AddConditionalEdge(node.ID, route.To, pred, name)
		}
	case KindParallel:
		sg.AddParallelNode(node.ID, opts...)
	case KindJoin:
		if len(node.WaitFor) > 0 {
			opts = append(opts, graph.WithWaitFor(node.WaitFor...))
		}
		if node.Aggregation != "" {
			opts = append(opts, graph.WithAggregation(node.Aggregation))
		}
		if node.FailurePolicy != "" {
			opts = append(opts, graph.WithFailurePolicy(graph.FailurePolicy(node.FailurePolicy)))
		}
		sg.AddJoinNode(node.ID, opts...)
	case KindSubgraph:
		sub, err := c.Compile(node.Graph)
		if err != nil {
			return fmt.Errorf("graph %s: subgraph %s: %w", def.Name, node.ID, err)
		}
		sg.AddSubgraphNode(node.ID, sub, opts...)
	}
	return nil
}

func commonOptions(node *NodeDefinition) ([]graph.NodeOption, error) {
	var opts []graph.NodeOption
	if node.Name != "" {
		opts = append(opts, graph.WithName(node.Name))
	}
	if node.Description != "" {
		opts = append(opts, graph.WithDescription(node.Description))
	}
	if node.OutputKey != "" {
		opts = append(opts, graph.WithOutputKey(node.OutputKey))
	}
	if node.TimeoutMS > 0 {
		opts = append(opts, graph.WithTimeout(time.Duration(node.TimeoutMS)*time.Millisecond))
	}
	if node.OnError != "" {
		opts = append(opts, graph.WithOnError(node.OnError))
	}
	if node.AwaitInput != "" {
		opts = append(opts, graph.WithAwaitInput(node.AwaitInput))
	}
	if len(node.InputMapping) > 0 {
		mapping := make(map[string]graph.Selector, len(node.InputMapping))
		for name, expr := range node.InputMapping {
			sel, err := CompileSelector(expr)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", name, err)
			}
			mapping[name] = sel
		}
		opts = append(opts, graph.WithInputMapping(mapping))
	}
	return opts, nil
}

func compileRoute(route *RouteDefinition) (graph.Predicate, string, error) {
	if route.Expr != "" {
		pred, err := cel.Compile(route.Expr)
		if err != nil {
			return nil, "", err
		}
		return pred, route.Expr, nil
	}
	pred, err := route.When.Compile()
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("%s %s", route.When.Field, route.When.Op)
	return pred, name, nil
}
