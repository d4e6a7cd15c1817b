//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"sort"
	"time"

	"github.com/threadflow-ai/threadflow/agent"
	"github.com/threadflow-ai/threadflow/log"
)

// Sentinel node identifiers.
const (
	// Start is the virtual entry node.
	Start = "__start__"
	// End is the virtual exit node.
	End = "__end__"
)

// MaxSubgraphDepth bounds subgraph nesting.
const MaxSubgraphDepth = 4

// NodeKind identifies the execution semantics of a node.
type NodeKind string

const (
	// NodeKindAgent runs an agent (or a plain node function) and merges
	// its output into state.
	NodeKindAgent NodeKind = "agent"
	// NodeKindRouter evaluates its outgoing conditions in declared order
	// and follows the first match.
	NodeKindRouter NodeKind = "router"
	// NodeKindParallel fans out to all successors concurrently.
	NodeKindParallel NodeKind = "parallel"
	// NodeKindJoin waits for its wait_for set and aggregates branch
	// deltas.
	NodeKindJoin NodeKind = "join"
	// NodeKindSubgraph runs a nested compiled graph to completion.
	NodeKindSubgraph NodeKind = "subgraph"
)

// FailurePolicy decides how a join reacts to failed branches.
type FailurePolicy string

const (
	// FailurePolicyAllRequired fails the join only when every branch
	// failed.
	FailurePolicyAllRequired FailurePolicy = "all_required"
	// FailurePolicyAny fails the join as soon as any branch failed.
	FailurePolicyAny FailurePolicy = "any"
	// FailurePolicyMajority fails the join when strictly more than half
	// of the branches failed.
	FailurePolicyMajority FailurePolicy = "majority"
)

// NodeFunc is a programmatic node body: it receives a read-only snapshot
// of state and returns a delta to merge.
type NodeFunc func(ctx context.Context, state State) (State, error)

// Selector extracts an input value from state.
type Selector func(State) (any, error)

// Predicate guards a conditional edge.
type Predicate func(ctx context.Context, state State) (bool, error)

// Node is one vertex of a compiled graph.
type Node struct {
	// ID is the unique node identifier.
	ID string
	// Kind selects the execution semantics.
	Kind NodeKind
	// Name is an optional display name.
	Name string
	// Description documents the node.
	Description string

	// Function is the node body for programmatic agent-kind nodes.
	// Exactly one of Function and Agent is set on agent-kind nodes.
	Function NodeFunc
	// Agent is the managed agent for agent-kind nodes.
	Agent agent.Agent
	// InputMapping projects state into the agent's inputs.
	InputMapping map[string]Selector
	// OutputKey names the state property receiving the node output.
	// Agent-kind nodes default to "output".
	OutputKey string

	// WaitFor is the set of node IDs a join waits for. Empty means all
	// direct predecessors.
	WaitFor []string
	// Aggregation is the named merge rule a join applies to branch
	// outputs written under OutputKey. Empty joins emit no delta of
	// their own; branch deltas were already merged per property.
	Aggregation string
	// Policy decides how the join reacts to failed branches.
	Policy FailurePolicy

	// Subgraph is the nested compiled graph for subgraph-kind nodes.
	Subgraph *Graph

	// Timeout overrides the executor's per-node deadline when positive.
	Timeout time.Duration
	// OnError routes node failures to a recovery node instead of failing
	// the execution.
	OnError string
	// AwaitInput, when non-empty, suspends the execution with this
	// reason before the node runs. A resumed execution runs it.
	AwaitInput string
}

// Edge connects two nodes, optionally guarded by a condition.
type Edge struct {
	// From and To are node IDs; To may be End.
	From string
	To   string
	// Condition guards the edge. Only router sources evaluate it.
	Condition Predicate
	// ConditionName records the source expression for step records.
	ConditionName string
	// Default marks a router's fallback edge, taken when no condition
	// matched. Evaluated last regardless of declared position.
	Default bool
}

// Graph is a compiled, immutable workflow graph. Build one with
// StateGraph and Compile.
type Graph struct {
	schema     *StateSchema
	nodes      map[string]*Node
	edges      map[string][]*Edge
	entryPoint string
	outputKey  string
}

// Schema returns the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edges returns the outgoing edges of a node in declared order.
func (g *Graph) Edges(from string) []*Edge {
	return g.edges[from]
}

// EntryPoint returns the first node to run.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// OutputKey names the state property reported as the execution output.
// Empty means the whole final state.
func (g *Graph) OutputKey() string {
	return g.outputKey
}

// NodeIDs returns all node identifiers in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// predecessors returns the sorted direct predecessors of a node.
func (g *Graph) predecessors(id string) []string {
	var preds []string
	for from, edges := range g.edges {
		for _, e := range edges {
			if e.To == id {
				preds = append(preds, from)
				break
			}
		}
	}
	sort.Strings(preds)
	return preds
}

// validate checks the compiled structure. It runs once at Compile time.
func (g *Graph) validate() error {
	if g.entryPoint == "" {
		return compileErrorf("", "no entry point set")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return compileErrorf(g.entryPoint, "entry point is not a node")
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok && from != Start {
			return compileErrorf(from, "edge source is not a node")
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok && e.To != End {
				return compileErrorf(from, "edge target %q is not a node", e.To)
			}
		}
	}
	for _, id := range g.NodeIDs() {
		if err := g.validateNode(g.nodes[id]); err != nil {
			return err
		}
	}
	if err := g.rejectUnconditionalCycles(); err != nil {
		return err
	}
	g.synthesizeRouterDefaults()
	if err := g.checkEndReachable(); err != nil {
		return err
	}
	g.inferJoinWaitFor()
	if err := g.validateJoins(); err != nil {
		return err
	}
	if err := g.checkSubgraphDepth(1); err != nil {
		return err
	}
	g.warnUnreachable()
	return nil
}

func (g *Graph) validateNode(n *Node) error {
	switch n.Kind {
	case NodeKindAgent:
		if n.Function == nil && n.Agent == nil {
			return compileErrorf(n.ID, "agent node needs an agent or a function")
		}
		if n.Function != nil && n.Agent != nil {
			return compileErrorf(n.ID, "agent node has both an agent and a function")
		}
	case NodeKindRouter:
		if len(g.edges[n.ID]) == 0 {
			return compileErrorf(n.ID, "router has no outgoing edges")
		}
	case NodeKindParallel:
		if len(g.edges[n.ID]) < 2 {
			return compileErrorf(n.ID, "parallel node needs at least two successors")
		}
	case NodeKindJoin:
		if n.Aggregation != "" {
			if _, err := ReducerByName(n.Aggregation); err != nil {
				return compileErrorf(n.ID, "%v", err)
			}
		}
		switch n.Policy {
		case "", FailurePolicyAllRequired, FailurePolicyAny, FailurePolicyMajority:
		default:
			return compileErrorf(n.ID, "unknown failure policy %q", n.Policy)
		}
	case NodeKindSubgraph:
		if n.Subgraph == nil {
			return compileErrorf(n.ID, "subgraph node has no compiled subgraph")
		}
	default:
		return compileErrorf(n.ID, "unknown node kind %q", n.Kind)
	}
	if n.OnError != "" {
		if _, ok := g.nodes[n.OnError]; !ok {
			return compileErrorf(n.ID, "on_error target %q is not a node", n.OnError)
		}
	}
	for _, e := range g.edges[n.ID] {
		if e.Condition != nil && n.Kind != NodeKindRouter {
			return compileErrorf(n.ID, "conditional edge from non-router node")
		}
	}
	return nil
}

// rejectUnconditionalCycles fails compilation when a cycle exists that no
// router can exit. Edges leaving a router are treated as conditional.
func (g *Graph) rejectUnconditionalCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(id string) *CompilationError
	visit = func(id string) *CompilationError {
		color[id] = gray
		if n, ok := g.nodes[id]; !ok || n.Kind != NodeKindRouter {
			for _, e := range g.edges[id] {
				if e.To == End {
					continue
				}
				switch color[e.To] {
				case gray:
					return compileErrorf(e.To, "unconditional cycle through %s -> %s", id, e.To)
				case white:
					if err := visit(e.To); err != nil {
						return err
					}
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range g.NodeIDs() {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// synthesizeRouterDefaults appends a default edge to End for routers that
// declare none, so routing is total.
func (g *Graph) synthesizeRouterDefaults() {
	for id, n := range g.nodes {
		if n.Kind != NodeKindRouter {
			continue
		}
		hasDefault := false
		for _, e := range g.edges[id] {
			if e.Default || e.Condition == nil {
				e.Default = true
				hasDefault = true
			}
		}
		if !hasDefault {
			log.Debugf("router %s has no default route, synthesizing route to %s", id, End)
			g.edges[id] = append(g.edges[id], &Edge{From: id, To: End, Default: true})
		}
	}
}

// inferJoinWaitFor fills empty wait_for sets with the join's direct
// predecessors.
func (g *Graph) inferJoinWaitFor() {
	for id, n := range g.nodes {
		if n.Kind != NodeKindJoin || len(n.WaitFor) > 0 {
			continue
		}
		n.WaitFor = g.predecessors(id)
	}
}

func (g *Graph) validateJoins() error {
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		if n.Kind != NodeKindJoin {
			continue
		}
		if len(g.predecessors(id)) < 2 {
			return compileErrorf(id, "join needs at least two incoming edges")
		}
		if len(n.WaitFor) == 0 {
			return compileErrorf(id, "join has no predecessors to wait for")
		}
		preds := map[string]bool{}
		for _, p := range g.predecessors(id) {
			preds[p] = true
		}
		for _, w := range n.WaitFor {
			if !preds[w] {
				return compileErrorf(id, "wait_for member %q is not a predecessor", w)
			}
		}
		sort.Strings(n.WaitFor)
	}
	return nil
}

// checkEndReachable verifies at least one path leads from the entry
// point to End. Router defaults are synthesized first, so a router with
// no declared fallback still counts as a way out. OnError targets count
// too: a recovery route is a valid exit.
func (g *Graph) checkEndReachable() error {
	seen := map[string]bool{}
	queue := []string{g.entryPoint}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == End {
			return nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.edges[id] {
			queue = append(queue, e.To)
		}
		if n, ok := g.nodes[id]; ok && n.OnError != "" {
			queue = append(queue, n.OnError)
		}
	}
	return compileErrorf(g.entryPoint, "no path from %s to %s", Start, End)
}

func (g *Graph) checkSubgraphDepth(depth int) error {
	if depth > MaxSubgraphDepth {
		return compileErrorf("", "subgraph nesting exceeds depth %d", MaxSubgraphDepth)
	}
	for id, n := range g.nodes {
		if n.Kind != NodeKindSubgraph {
			continue
		}
		if err := n.Subgraph.checkSubgraphDepth(depth + 1); err != nil {
			return compileErrorf(id, "%s", err.(*CompilationError).Detail)
		}
	}
	return nil
}

// warnUnreachable logs nodes with no path from the entry point. They are
// kept: unreachable nodes are a warning, not an error.
func (g *Graph) warnUnreachable() {
	reached := map[string]bool{}
	queue := []string{g.entryPoint}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] || id == End {
			continue
		}
		reached[id] = true
		for _, e := range g.edges[id] {
			queue = append(queue, e.To)
		}
		if n, ok := g.nodes[id]; ok && n.OnError != "" {
			queue = append(queue, n.OnError)
		}
	}
	for _, id := range g.NodeIDs() {
		if !reached[id] {
			log.Warnf("node %s is unreachable from entry point %s", id, g.entryPoint)
		}
	}
}
