//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package condition implements structured route conditions: field
// comparisons combined with all/any/not.
package condition

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/threadflow-ai/threadflow/graph"
)

// Comparison operators.
const (
	OpEqual        = "eq"
	OpNotEqual     = "ne"
	OpGreater      = "gt"
	OpGreaterEqual = "gte"
	OpLess         = "lt"
	OpLessEqual    = "lte"
	OpContains     = "contains"
	OpExists       = "exists"
	OpIn           = "in"
)

// Condition is one route guard. Either a leaf comparison (Field and Op)
// or a combinator (All, Any, Not) is set.
type Condition struct {
	// Field addresses a state property; dots descend into nested
	// objects ("plan.confirmed").
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	// Op is the comparison operator.
	Op string `json:"op,omitempty" yaml:"op,omitempty"`
	// Value is the right-hand operand.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// All is satisfied when every child is.
	All []*Condition `json:"all,omitempty" yaml:"all,omitempty"`
	// Any is satisfied when at least one child is.
	Any []*Condition `json:"any,omitempty" yaml:"any,omitempty"`
	// Not negates its child.
	Not *Condition `json:"not,omitempty" yaml:"not,omitempty"`
}

// Validate checks the condition tree.
func (c *Condition) Validate() error {
	combinators := 0
	if len(c.All) > 0 {
		combinators++
	}
	if len(c.Any) > 0 {
		combinators++
	}
	if c.Not != nil {
		combinators++
	}
	if combinators > 1 {
		return fmt.Errorf("condition mixes all/any/not combinators")
	}
	if combinators == 1 {
		if c.Field != "" || c.Op != "" {
			return fmt.Errorf("condition mixes a comparison with a combinator")
		}
		for _, child := range append(append([]*Condition{}, c.All...), c.Any...) {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		if c.Not != nil {
			return c.Not.Validate()
		}
		return nil
	}
	if c.Field == "" {
		return fmt.Errorf("condition needs a field")
	}
	switch c.Op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual,
		OpContains, OpExists, OpIn:
		return nil
	default:
		return fmt.Errorf("unknown operator %q", c.Op)
	}
}

// Compile validates the condition and returns an executable predicate.
func (c *Condition) Compile() (graph.Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context, state graph.State) (bool, error) {
		return c.evaluate(state)
	}, nil
}

func (c *Condition) evaluate(state graph.State) (bool, error) {
	switch {
	case len(c.All) > 0:
		for _, child := range c.All {
			ok, err := child.evaluate(state)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(c.Any) > 0:
		for _, child := range c.Any {
			ok, err := child.evaluate(state)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.Not != nil:
		ok, err := c.Not.evaluate(state)
		return !ok, err
	}

	value, found := lookup(state, c.Field)
	switch c.Op {
	case OpExists:
		return found, nil
	case OpEqual:
		return found && looseEqual(value, c.Value), nil
	case OpNotEqual:
		return !found || !looseEqual(value, c.Value), nil
	case OpContains:
		return contains(value, c.Value), nil
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator in needs a list value")
		}
		for _, item := range list {
			if looseEqual(value, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		if !found {
			return false, nil
		}
		left, okL := toFloat(value)
		right, okR := toFloat(c.Value)
		if !okL || !okR {
			return false, fmt.Errorf("operator %s needs numeric operands for field %s", c.Op, c.Field)
		}
		switch c.Op {
		case OpGreater:
			return left > right, nil
		case OpGreaterEqual:
			return left >= right, nil
		case OpLess:
			return left < right, nil
		default:
			return left <= right, nil
		}
	}
}

// lookup descends into nested objects along dots.
func lookup(state graph.State, field string) (any, bool) {
	var value any = map[string]any(state)
	for _, part := range strings.Split(field, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			if st, isState := value.(graph.State); isState {
				obj = st
			} else {
				return nil, false
			}
		}
		value, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

// looseEqual compares with numeric coercion, so 3 equals 3.0 whether the
// value came from JSON or from Go code.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
