//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package tool

import "fmt"

// ErrorKind categorises tool invocation failures. These surface to the
// model as structured tool results, not as loop errors, so the model can
// observe and recover within the same loop.
type ErrorKind string

// Tool error kinds.
const (
	// ErrorKindInvalidArguments means the arguments failed schema validation.
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	// ErrorKindTimeout means the per-call deadline expired.
	ErrorKindTimeout ErrorKind = "tool_timeout"
	// ErrorKindUnavailable means the tool is not registered or not callable.
	ErrorKindUnavailable ErrorKind = "tool_unavailable"
	// ErrorKindFailed means the tool ran and returned an error.
	ErrorKindFailed ErrorKind = "tool_failed"
)

// Error is a categorised tool invocation failure.
type Error struct {
	// Kind is the failure category.
	Kind ErrorKind `json:"kind"`
	// Detail is the human-readable failure detail.
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("tool error (%s): %s", e.Kind, e.Detail)
}

// NewError creates a tool error with the given kind and formatted detail.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
