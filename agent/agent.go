//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package agent defines the agent abstraction executed by AGENT graph
// nodes, and the invocation context handed to it.
package agent

import (
	"context"
	"fmt"

	"github.com/threadflow-ai/threadflow/event"
	"github.com/threadflow-ai/threadflow/model"
)

// Agent produces an output value from mapped inputs, typically by running
// a bounded model tool loop.
type Agent interface {
	// Run executes the agent once and returns its output value.
	Run(ctx context.Context, invocation *Invocation) (any, error)
	// Info returns basic information about the agent.
	Info() Info
}

// Info describes an agent.
type Info struct {
	Name        string
	Description string
}

// Invocation carries the per-call context of one agent run.
type Invocation struct {
	// InvocationID uniquely identifies this run.
	InvocationID string
	// ExecutionID is the graph execution this run belongs to.
	ExecutionID string
	// ThreadID is the thread identifier, when the execution has one.
	ThreadID string
	// NodeID is the graph node invoking the agent.
	NodeID string
	// StepIndex is the super-step ordinal of the invoking node.
	StepIndex int
	// Inputs are the values projected from graph state by the node's
	// input mapping.
	Inputs map[string]any
	// EmitEvent publishes a lifecycle event (tool_call, tool_result) to
	// the execution's event stream. May be nil.
	EmitEvent func(*event.Event)
}

// Emit publishes an event if an emitter is attached.
func (inv *Invocation) Emit(e *event.Event) {
	if inv != nil && inv.EmitEvent != nil && e != nil {
		inv.EmitEvent(e)
	}
}

// BudgetExhaustedError reports a tool loop that hit its iteration cap
// without producing a final answer.
type BudgetExhaustedError struct {
	// Iterations is the configured cap that was reached.
	Iterations int
	// Transcript is the partial conversation accumulated so far.
	Transcript []model.Message
}

// Error implements the error interface.
func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("tool loop budget exhausted after %d iterations", e.Iterations)
}

// SchemaValidationError reports a structured output that still failed
// schema validation after the corrective retry.
type SchemaValidationError struct {
	// Detail describes the validation failure.
	Detail string
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("structured output failed schema validation: %s", e.Detail)
}

// ProviderError reports a model provider failure that survived retries.
type ProviderError struct {
	// Type is the provider error category.
	Type string
	// Detail describes the failure.
	Detail string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("model provider error (%s): %s", e.Type, e.Detail)
}
