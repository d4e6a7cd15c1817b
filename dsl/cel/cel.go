//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package cel compiles CEL route conditions. Expressions see the
// execution state as the dynamic variable "state":
//
//	state.plan_confirmed == true
//	size(state.items) >= 3
package cel

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/threadflow-ai/threadflow/graph"
)

var defaultEnv *celgo.Env

func init() {
	env, err := celgo.NewEnv(
		celgo.Variable("state", celgo.DynType),
	)
	if err != nil {
		panic(fmt.Sprintf("create CEL environment: %v", err))
	}
	defaultEnv = env
}

// Compile parses and checks a boolean CEL expression once and returns a
// route predicate over graph state.
func Compile(expr string) (graph.Predicate, error) {
	if expr == "" {
		return nil, fmt.Errorf("cel: expression is empty")
	}
	ast, issues := defaultEnv.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel: parse %q: %w", expr, issues.Err())
	}
	ast, issues = defaultEnv.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel: check %q: %w", expr, issues.Err())
	}
	program, err := defaultEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel: program %q: %w", expr, err)
	}
	return func(ctx context.Context, state graph.State) (bool, error) {
		out, _, err := program.Eval(map[string]any{
			"state": map[string]any(state),
		})
		if err != nil {
			return false, fmt.Errorf("cel: eval %q: %w", expr, err)
		}
		return toBool(expr, out)
	}, nil
}

func toBool(expr string, val ref.Val) (bool, error) {
	if b, ok := val.(types.Bool); ok {
		return bool(b), nil
	}
	if b, ok := val.Value().(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("cel: expression %q did not evaluate to bool (got %v)", expr, val.Type())
}
