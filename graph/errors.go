//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "fmt"

// ErrorKind categorises node and execution failures.
type ErrorKind string

const (
	// ErrorKindNodeFailed is a generic node failure.
	ErrorKindNodeFailed ErrorKind = "node_failed"
	// ErrorKindNodeTimeout is a per-node deadline breach.
	ErrorKindNodeTimeout ErrorKind = "node_timeout"
	// ErrorKindExecutionTimeout is an execution-level deadline breach.
	ErrorKindExecutionTimeout ErrorKind = "execution_timeout"
	// ErrorKindCancelled is a caller-initiated cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindBudgetExhausted is a tool loop that hit its iteration cap.
	ErrorKindBudgetExhausted ErrorKind = "tool_loop_budget_exhausted"
	// ErrorKindSchemaValidation is a structured output that failed
	// validation after the retry.
	ErrorKindSchemaValidation ErrorKind = "schema_validation"
	// ErrorKindProvider is a model provider failure.
	ErrorKindProvider ErrorKind = "provider_error"
	// ErrorKindCheckpoint is a checkpoint persistence failure.
	ErrorKindCheckpoint ErrorKind = "checkpoint_error"
)

// CompilationError reports a graph definition the compiler rejected.
type CompilationError struct {
	// NodeID names the offending node, when the problem is node-local.
	NodeID string
	// Detail describes what is wrong.
	Detail string
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("graph compilation failed at node %s: %s", e.NodeID, e.Detail)
	}
	return fmt.Sprintf("graph compilation failed: %s", e.Detail)
}

func compileErrorf(nodeID, format string, args ...any) *CompilationError {
	return &CompilationError{NodeID: nodeID, Detail: fmt.Sprintf(format, args...)}
}

// NodeError is a categorised failure of one node execution.
type NodeError struct {
	// NodeID is the failing node.
	NodeID string
	// Kind is the failure category.
	Kind ErrorKind
	// Detail describes the failure.
	Detail string
	// Cause is the wrapped underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed (%s): %s", e.NodeID, e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// NewNodeError creates a categorised node failure.
func NewNodeError(nodeID string, kind ErrorKind, cause error) *NodeError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &NodeError{NodeID: nodeID, Kind: kind, Detail: detail, Cause: cause}
}

// SuspendError pauses the execution for external input. The executor
// checkpoints the frontier and reports AWAITING_INPUT instead of failing.
type SuspendError struct {
	// Reason tells the caller what input is awaited.
	Reason string
}

// Error implements the error interface.
func (e *SuspendError) Error() string {
	return fmt.Sprintf("execution suspended: %s", e.Reason)
}

// Suspend returns a SuspendError with the given reason. Node functions
// return it to pause the execution at a safe point.
func Suspend(reason string) error {
	return &SuspendError{Reason: reason}
}
