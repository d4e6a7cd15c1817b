//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package event provides the execution lifecycle event system.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Name identifies an event kind.
type Name string

// Event names, emitted in this order per execution:
// execution_start, then per node node_start (tool_call tool_result)*
// node_complete|node_error, and finally execution_complete or
// execution_cancelled.
const (
	NameExecutionStart     Name = "execution_start"
	NameNodeStart          Name = "node_start"
	NameToolCall           Name = "tool_call"
	NameToolResult         Name = "tool_result"
	NameNodeComplete       Name = "node_complete"
	NameNodeError          Name = "node_error"
	NameExecutionComplete  Name = "execution_complete"
	NameExecutionCancelled Name = "execution_cancelled"
)

// Event is one execution lifecycle event.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// Name is the event kind.
	Name Name `json:"name"`

	// ExecutionID is the execution this event belongs to.
	ExecutionID string `json:"execution_id"`

	// ThreadID is the thread identifier, when the execution has one.
	ThreadID string `json:"thread_id,omitempty"`

	// NodeID is set on node and tool events.
	NodeID string `json:"node_id,omitempty"`

	// StepIndex is the super-step ordinal for node events.
	StepIndex int `json:"step_index,omitempty"`

	// ToolID is set on tool_call/tool_result events.
	ToolID string `json:"tool_id,omitempty"`

	// Payload carries event-specific data (digests, statuses, errors).
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// Option configures an Event.
type Option func(*Event)

// WithThreadID sets the thread identifier.
func WithThreadID(threadID string) Option {
	return func(e *Event) {
		e.ThreadID = threadID
	}
}

// WithNodeID sets the node identifier.
func WithNodeID(nodeID string) Option {
	return func(e *Event) {
		e.NodeID = nodeID
	}
}

// WithStepIndex sets the super-step ordinal.
func WithStepIndex(step int) Option {
	return func(e *Event) {
		e.StepIndex = step
	}
}

// WithToolID sets the tool identifier.
func WithToolID(toolID string) Option {
	return func(e *Event) {
		e.ToolID = toolID
	}
}

// WithPayload merges fields into the event payload.
func WithPayload(payload map[string]any) Option {
	return func(e *Event) {
		if e.Payload == nil {
			e.Payload = make(map[string]any, len(payload))
		}
		for k, v := range payload {
			e.Payload[k] = v
		}
	}
}

// New creates a new event with a generated ID and timestamp.
func New(name Name, executionID string, opts ...Option) *Event {
	e := &Event{
		ID:          uuid.New().String(),
		Name:        name,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Payload != nil {
		clone.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			clone.Payload[k] = v
		}
	}
	return &clone
}

// Digest returns a short stable digest of v's JSON form, used for
// arguments_digest and delta_digest payload fields.
func Digest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:12]
}
