//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"time"

	"github.com/threadflow-ai/threadflow/agent"
)

// StateGraph builds a Graph. Add nodes and edges, set the entry point,
// then Compile. The zero value is not usable; use NewStateGraph.
type StateGraph struct {
	schema     *StateSchema
	nodes      map[string]*Node
	order      []string
	edges      map[string][]*Edge
	entryPoint string
	outputKey  string
	err        error
}

// NewStateGraph creates a builder over the given state schema. A nil
// schema means every property merges with replace semantics.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		schema: schema,
		nodes:  make(map[string]*Node),
		edges:  make(map[string][]*Edge),
	}
}

// NodeOption configures a node added through the builder.
type NodeOption func(*Node)

// WithName sets the node display name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithDescription sets the node description.
func WithDescription(desc string) NodeOption {
	return func(n *Node) { n.Description = desc }
}

// WithOutputKey names the state property receiving the node output.
func WithOutputKey(key string) NodeOption {
	return func(n *Node) { n.OutputKey = key }
}

// WithInputMapping projects state into the agent's inputs.
func WithInputMapping(mapping map[string]Selector) NodeOption {
	return func(n *Node) { n.InputMapping = mapping }
}

// WithTimeout overrides the executor's per-node deadline for this node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) { n.Timeout = d }
}

// WithOnError routes node failures to a recovery node.
func WithOnError(target string) NodeOption {
	return func(n *Node) { n.OnError = target }
}

// WithAwaitInput suspends the execution before the node runs, reporting
// the given reason. The node runs when the execution is resumed.
func WithAwaitInput(reason string) NodeOption {
	return func(n *Node) { n.AwaitInput = reason }
}

// WithWaitFor sets the join's wait set explicitly.
func WithWaitFor(nodeIDs ...string) NodeOption {
	return func(n *Node) { n.WaitFor = nodeIDs }
}

// WithAggregation sets the join's named merge rule for branch outputs.
func WithAggregation(reducerName string) NodeOption {
	return func(n *Node) { n.Aggregation = reducerName }
}

// WithFailurePolicy sets how the join reacts to failed branches.
func WithFailurePolicy(policy FailurePolicy) NodeOption {
	return func(n *Node) { n.Policy = policy }
}

// AddNode adds a programmatic agent-kind node backed by a function.
func (sg *StateGraph) AddNode(id string, fn NodeFunc, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindAgent, Function: fn}, opts)
}

// AddAgentNode adds an agent-kind node backed by a managed agent.
func (sg *StateGraph) AddAgentNode(id string, a agent.Agent, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindAgent, Agent: a, OutputKey: "output"}, opts)
}

// AddRouterNode adds a router. Its routes are added with AddConditionalEdge
// and AddDefaultEdge.
func (sg *StateGraph) AddRouterNode(id string, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindRouter}, opts)
}

// AddParallelNode adds a fan-out node. All outgoing edges are followed
// concurrently.
func (sg *StateGraph) AddParallelNode(id string, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindParallel}, opts)
}

// AddJoinNode adds a join that waits for its wait set before advancing.
func (sg *StateGraph) AddJoinNode(id string, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindJoin, Policy: FailurePolicyAllRequired}, opts)
}

// AddSubgraphNode adds a nested compiled graph as a node.
func (sg *StateGraph) AddSubgraphNode(id string, sub *Graph, opts ...NodeOption) *StateGraph {
	return sg.add(&Node{ID: id, Kind: NodeKindSubgraph, Subgraph: sub, OutputKey: "output"}, opts)
}

func (sg *StateGraph) add(n *Node, opts []NodeOption) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if n.ID == "" || n.ID == Start || n.ID == End {
		sg.err = compileErrorf(n.ID, "invalid node identifier")
		return sg
	}
	if _, exists := sg.nodes[n.ID]; exists {
		sg.err = compileErrorf(n.ID, "duplicate node identifier")
		return sg
	}
	for _, opt := range opts {
		opt(n)
	}
	sg.nodes[n.ID] = n
	sg.order = append(sg.order, n.ID)
	return sg
}

// AddEdge adds an unconditional edge. From may be Start and to may be End.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	return sg.addEdge(&Edge{From: from, To: to})
}

// AddConditionalEdge adds a guarded route out of a router. Routes are
// evaluated in the order they were added.
func (sg *StateGraph) AddConditionalEdge(from, to string, cond Predicate, name string) *StateGraph {
	return sg.addEdge(&Edge{From: from, To: to, Condition: cond, ConditionName: name})
}

// AddDefaultEdge adds a router's fallback route, taken when no condition
// matched.
func (sg *StateGraph) AddDefaultEdge(from, to string) *StateGraph {
	return sg.addEdge(&Edge{From: from, To: to, Default: true})
}

func (sg *StateGraph) addEdge(e *Edge) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if e.From == Start {
		if sg.entryPoint != "" {
			sg.err = compileErrorf(e.To, "multiple entry points")
			return sg
		}
		sg.entryPoint = e.To
		return sg
	}
	sg.edges[e.From] = append(sg.edges[e.From], e)
	return sg
}

// SetEntryPoint names the first node to run. Equivalent to an edge from
// Start.
func (sg *StateGraph) SetEntryPoint(id string) *StateGraph {
	return sg.addEdge(&Edge{From: Start, To: id})
}

// SetOutputKey names the state property reported as the execution output.
func (sg *StateGraph) SetOutputKey(key string) *StateGraph {
	sg.outputKey = key
	return sg
}

// Compile validates the graph and returns an immutable compiled form.
func (sg *StateGraph) Compile() (*Graph, error) {
	if sg.err != nil {
		return nil, sg.err
	}
	g := &Graph{
		schema:     sg.schema,
		nodes:      sg.nodes,
		edges:      sg.edges,
		entryPoint: sg.entryPoint,
		outputKey:  sg.outputKey,
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}
