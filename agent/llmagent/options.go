//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package llmagent

import (
	"time"

	"github.com/threadflow-ai/threadflow/model"
	"github.com/threadflow-ai/threadflow/tool"
)

// DefaultMaxIterations bounds the tool loop.
const DefaultMaxIterations = 10

var defaultOptions = options{
	maxIterations: DefaultMaxIterations,
}

type options struct {
	description   string
	mdl           model.Model
	instruction   string
	registry      *tool.Registry
	toolNames     []string
	genConfig     model.GenerationConfig
	maxIterations int
	toolTimeout   time.Duration
	structured    *model.StructuredOutput
	returnPartial bool
}

// Option configures the Agent.
type Option func(*options)

// WithDescription sets the agent description.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithModel sets the model backing the agent. Required.
func WithModel(m model.Model) Option {
	return func(o *options) { o.mdl = m }
}

// WithInstruction sets the system prompt. Placeholders of the form
// {key} are filled from the invocation inputs.
func WithInstruction(instruction string) Option {
	return func(o *options) { o.instruction = instruction }
}

// WithTools grants the agent access to the named registered tools.
func WithTools(names ...string) Option {
	return func(o *options) { o.toolNames = append(o.toolNames, names...) }
}

// WithRegistry resolves tools from the given registry instead of the
// process-wide default.
func WithRegistry(r *tool.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithGenerationConfig sets sampling parameters for model calls.
func WithGenerationConfig(cfg model.GenerationConfig) Option {
	return func(o *options) { o.genConfig = cfg }
}

// WithMaxIterations bounds the tool loop. The loop fails with a budget
// error when the model still requests tools at the cap.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithToolCallTimeout sets the per-call deadline for tool invocations.
func WithToolCallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

// WithReturnPartialOnBudget makes the agent answer with the last
// assistant content instead of failing when the iteration cap is hit.
// Structured output still fails: a partial answer cannot satisfy the
// schema contract.
func WithReturnPartialOnBudget() Option {
	return func(o *options) { o.returnPartial = true }
}

// WithStructuredOutput requires the final answer to be a JSON object
// matching the schema. One corrective retry is made on validation
// failure.
func WithStructuredOutput(name, description string, schema map[string]any) Option {
	return func(o *options) {
		o.structured = &model.StructuredOutput{
			Name:        name,
			Description: description,
			Schema:      schema,
			Strict:      true,
		}
	}
}
