//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package dsl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/threadflow-ai/threadflow/graph"
)

// ParseJSON decodes a JSON graph definition and validates its structure.
func ParseJSON(data []byte) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse graph definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseYAML decodes a YAML graph definition and validates its structure.
func ParseYAML(data []byte) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse graph definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile loads a definition from a .json, .yaml or .yml file.
func ParseFile(path string) (*GraphDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph definition: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported graph definition extension %q", filepath.Ext(path))
	}
}

// Validate checks the definition's structure: identifiers, kinds and
// references. Semantic checks (cycles, join wait sets) happen when the
// definition is compiled.
func (d *GraphDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("graph definition needs a name")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("graph %s has no nodes", d.Name)
	}
	ids := make(map[string]*NodeDefinition, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("graph %s: node without id", d.Name)
		}
		if n.ID == graph.Start || n.ID == graph.End {
			return fmt.Errorf("graph %s: node id %q is reserved", d.Name, n.ID)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("graph %s: duplicate node id %q", d.Name, n.ID)
		}
		ids[n.ID] = n
		if err := n.validate(d.Name); err != nil {
			return err
		}
	}
	if d.EntryPoint == "" {
		return fmt.Errorf("graph %s needs an entry_point", d.Name)
	}
	if _, ok := ids[d.EntryPoint]; !ok {
		return fmt.Errorf("graph %s: entry_point %q is not a node", d.Name, d.EntryPoint)
	}
	known := func(id string) bool {
		_, ok := ids[id]
		return ok || id == graph.End
	}
	for _, e := range d.Edges {
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("graph %s: edge from unknown node %q", d.Name, e.From)
		}
		if !known(e.To) {
			return fmt.Errorf("graph %s: edge to unknown node %q", d.Name, e.To)
		}
	}
	for _, n := range d.Nodes {
		for _, route := range n.Routes {
			if !known(route.To) {
				return fmt.Errorf("graph %s: router %s routes to unknown node %q", d.Name, n.ID, route.To)
			}
		}
		if n.OnError != "" && !known(n.OnError) {
			return fmt.Errorf("graph %s: node %s on_error targets unknown node %q", d.Name, n.ID, n.OnError)
		}
		for _, w := range n.WaitFor {
			if _, ok := ids[w]; !ok {
				return fmt.Errorf("graph %s: join %s waits for unknown node %q", d.Name, n.ID, w)
			}
		}
	}
	return nil
}

func (n *NodeDefinition) validate(graphName string) error {
	switch n.Kind {
	case KindAgent:
		if n.Agent == "" {
			return fmt.Errorf("graph %s: agent node %s names no agent", graphName, n.ID)
		}
	case KindRouter:
		if len(n.Routes) == 0 {
			return fmt.Errorf("graph %s: router %s has no routes", graphName, n.ID)
		}
		for _, route := range n.Routes {
			guards := 0
			if route.When != nil {
				guards++
			}
			if route.Expr != "" {
				guards++
			}
			if route.Default {
				if guards != 0 {
					return fmt.Errorf("graph %s: router %s default route has a guard", graphName, n.ID)
				}
				continue
			}
			if guards != 1 {
				return fmt.Errorf("graph %s: router %s route to %s needs exactly one of when/expr",
					graphName, n.ID, route.To)
			}
		}
	case KindParallel:
	case KindJoin:
		switch n.FailurePolicy {
		case "", string(graph.FailurePolicyAllRequired), string(graph.FailurePolicyAny),
			string(graph.FailurePolicyMajority):
		default:
			return fmt.Errorf("graph %s: join %s has unknown failure_policy %q",
				graphName, n.ID, n.FailurePolicy)
		}
	case KindSubgraph:
		if n.Graph == nil {
			return fmt.Errorf("graph %s: subgraph node %s has no inline graph", graphName, n.ID)
		}
		if err := n.Graph.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("graph %s: node %s has unknown kind %q", graphName, n.ID, n.Kind)
	}
	return nil
}
