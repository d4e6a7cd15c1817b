//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/threadflow-ai/threadflow/tool"
)

// FunctionTool implements tool.CallableTool for a typed Go function. The
// input and output schemas are derived from the type parameters by
// reflection.
type FunctionTool[I, O any] struct {
	name           string
	description    string
	sideEffectFree bool
	inputSchema    *tool.Schema
	outputSchema   *tool.Schema
	fn             func(ctx context.Context, input I) (O, error)
}

// Option configures a FunctionTool.
type Option func(*options)

type options struct {
	name           string
	description    string
	sideEffectFree bool
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(o *options) {
		o.description = description
	}
}

// WithSideEffectFree declares the tool pure, allowing the loop to run it
// concurrently with other pure calls from the same iteration.
func WithSideEffectFree() Option {
	return func(o *options) {
		o.sideEffectFree = true
	}
}

// New creates a function tool from fn with the given options.
func New[I, O any](fn func(ctx context.Context, input I) (O, error), opts ...Option) *FunctionTool[I, O] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var (
		emptyI I
		emptyO O
	)
	return &FunctionTool[I, O]{
		name:           o.name,
		description:    o.description,
		sideEffectFree: o.sideEffectFree,
		fn:             fn,
		inputSchema:    generateSchema(reflect.TypeOf(emptyI)),
		outputSchema:   generateSchema(reflect.TypeOf(emptyO)),
	}
}

// Declaration returns the metadata describing the tool.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:           ft.name,
		Description:    ft.description,
		InputSchema:    ft.inputSchema,
		OutputSchema:   ft.outputSchema,
		SideEffectFree: ft.sideEffectFree,
	}
}

// Call unmarshals jsonArgs into the input type and runs the function.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("unmarshal arguments for tool %s: %w", ft.name, err)
		}
	}
	return ft.fn(ctx, input)
}

// generateSchema derives a JSON Schema from a Go type. Struct fields use
// their json tags; unexported and `json:"-"` fields are skipped.
func generateSchema(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "null"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{Type: "array", Items: generateSchema(t.Elem())}
	case reflect.Map:
		return &tool.Schema{Type: "object"}
	case reflect.Struct:
		schema := &tool.Schema{
			Type:       "object",
			Properties: make(map[string]*tool.Schema),
		}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name, required := jsonFieldName(field)
			if name == "" {
				continue
			}
			prop := generateSchema(field.Type)
			if desc := field.Tag.Get("description"); desc != "" {
				prop.Description = desc
			}
			schema.Properties[name] = prop
			if required {
				schema.Required = append(schema.Required, name)
			}
		}
		return schema
	default:
		return &tool.Schema{Type: "object"}
	}
}

// jsonFieldName resolves the effective JSON name of a struct field and
// whether it is required (no omitempty).
func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name := field.Name
	required := true
	if tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, p := range parts[1:] {
			if p == "omitempty" {
				required = false
			}
		}
	}
	return name, required
}
