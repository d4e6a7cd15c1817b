//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/threadflow-ai/threadflow/log"
)

// DefaultCallTimeout is applied when a binding is invoked with no deadline.
const DefaultCallTimeout = 30 * time.Second

// Registry holds the process-wide set of registered tools. Registration
// happens once at startup; after Freeze the registry is read-only and safe
// for concurrent resolution.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	tools  map[string]CallableTool
}

// NewRegistry creates an empty registry. Most callers use the package-level
// Register/Resolve helpers backed by the default registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]CallableTool)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a tool under its declared name. Registering after Freeze or
// registering a duplicate name is an error.
func (r *Registry) Register(t CallableTool) error {
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return fmt.Errorf("tool declaration must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot register tool %s", decl.Name)
	}
	if _, exists := r.tools[decl.Name]; exists {
		return fmt.Errorf("tool %s already registered", decl.Name)
	}
	r.tools[decl.Name] = t
	return nil
}

// Freeze marks the registry read-only. Called once after startup
// registration completes.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns a binding for the named tool: its declaration, a compiled
// argument schema and an invoker.
func (r *Registry) Resolve(name string) (*Binding, error) {
	r.mu.RLock()
	t, exists := r.tools[name]
	r.mu.RUnlock()
	if !exists {
		return nil, NewError(ErrorKindUnavailable, "tool %s is not registered", name)
	}
	return NewBinding(t)
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Register adds a tool to the default registry.
func Register(t CallableTool) error {
	return defaultRegistry.Register(t)
}

// Resolve returns a binding from the default registry.
func Resolve(name string) (*Binding, error) {
	return defaultRegistry.Resolve(name)
}

// Binding pairs a tool with its compiled argument schema.
type Binding struct {
	tool     CallableTool
	decl     *Declaration
	compiled *jsonschema.Schema
}

// NewBinding compiles the tool's input schema and returns a binding. Tools
// without an input schema skip argument validation.
func NewBinding(t CallableTool) (*Binding, error) {
	decl := t.Declaration()
	b := &Binding{tool: t, decl: decl}
	if decl.InputSchema == nil {
		return b, nil
	}
	raw, err := json.Marshal(decl.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema for tool %s: %w", decl.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse input schema for tool %s: %w", decl.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := decl.Name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for tool %s: %w", decl.Name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile input schema for tool %s: %w", decl.Name, err)
	}
	b.compiled = compiled
	return b, nil
}

// Declaration returns the bound tool's declaration.
func (b *Binding) Declaration() *Declaration {
	return b.decl
}

// Tool returns the underlying callable tool.
func (b *Binding) Tool() CallableTool {
	return b.tool
}

// Result is the outcome of one tool invocation. Exactly one of Content or
// Error is meaningful.
type Result struct {
	// Content is the tool's return value on success.
	Content any `json:"content,omitempty"`
	// Error is the categorised failure, if any.
	Error *Error `json:"error,omitempty"`
	// StartedAt and FinishedAt bound the invocation.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Invoke validates the arguments against the tool schema and executes the
// tool under the given deadline. Failures are returned inside the Result so
// the model can observe them; Invoke itself never returns an error.
func (b *Binding) Invoke(ctx context.Context, jsonArgs []byte, timeout time.Duration) *Result {
	res := &Result{StartedAt: time.Now()}
	defer func() { res.FinishedAt = time.Now() }()

	if err := b.validateArgs(jsonArgs); err != nil {
		res.Error = NewError(ErrorKindInvalidArguments, "%v", err)
		return res
	}

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := b.tool.Call(callCtx, jsonArgs)
	if err != nil {
		switch {
		case callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			res.Error = NewError(ErrorKindTimeout,
				"tool %s exceeded %s deadline", b.decl.Name, timeout)
		default:
			res.Error = NewError(ErrorKindFailed, "%v", err)
		}
		log.Debugf("tool %s failed: %v", b.decl.Name, res.Error)
		return res
	}
	res.Content = out
	return res
}

func (b *Binding) validateArgs(jsonArgs []byte) error {
	if b.compiled == nil {
		return nil
	}
	if len(jsonArgs) == 0 {
		jsonArgs = []byte("{}")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonArgs))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := b.compiled.Validate(inst); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// FormatResult renders an invocation result as the JSON string appended to
// the conversation as a tool message.
func FormatResult(res *Result) string {
	if res.Error != nil {
		out, err := json.Marshal(map[string]any{"error": res.Error})
		if err != nil {
			return fmt.Sprintf(`{"error":{"kind":%q,"detail":"marshal failure"}}`, res.Error.Kind)
		}
		return string(out)
	}
	out, err := json.Marshal(res.Content)
	if err != nil {
		return fmt.Sprintf(`{"error":{"kind":%q,"detail":%q}}`, ErrorKindFailed, err.Error())
	}
	return string(out)
}
