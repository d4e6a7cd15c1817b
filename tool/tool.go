//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package tool provides tool interfaces, the process-wide registry and the
// invoker used by agent nodes.
package tool

import "context"

// Tool is implemented by anything that can be offered to a model.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool defines the interface for tools that support calling operations.
type CallableTool interface {
	// Call calls the tool with the provided context and JSON-encoded
	// arguments. Returns the result of execution or an error if the
	// operation fails.
	Call(ctx context.Context, jsonArgs []byte) (any, error)

	Tool
}

// Declaration describes the metadata of a tool, such as its name,
// description and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool.
	Name string `json:"name"`

	// Description explains the tool's purpose and functionality.
	Description string `json:"description"`

	// InputSchema defines the expected input for the tool in JSON Schema
	// format.
	InputSchema *Schema `json:"inputSchema"`

	// OutputSchema defines the expected output for the tool in JSON Schema
	// format.
	OutputSchema *Schema `json:"outputSchema,omitempty"`

	// SideEffectFree declares the tool pure. Pure tool calls emitted in the
	// same loop iteration may run concurrently.
	SideEffectFree bool `json:"sideEffectFree,omitempty"`
}

// Schema represents the structure of JSON Schema used for defining
// arguments and responses. It follows the JSON Schema standard, supporting
// various types, properties, and validation rules.
type Schema struct {
	// Type specifies the data type (e.g., "object", "array", "string").
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Items defines the schema of array items for array types.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to one of the listed literals.
	Enum []any `json:"enum,omitempty"`
	// Default is the default value applied when the property is absent.
	Default any `json:"default,omitempty"`
	// AdditionalProperties controls whether undeclared properties are allowed.
	AdditionalProperties any `json:"additionalProperties,omitempty"`
}
