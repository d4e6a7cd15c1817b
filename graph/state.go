//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package graph implements the workflow graph engine: typed state with
// per-property merge rules, graph compilation, and a super-step executor
// with checkpointing and resume.
package graph

import (
	"fmt"
	"sort"
)

// Reserved state keys managed by the engine.
const (
	// StateKeyStep holds the last completed super-step ordinal.
	StateKeyStep = "__step__"
	// StateKeyThreadID holds the thread identifier of the execution.
	StateKeyThreadID = "thread_id"
	// StateKeyLastError holds the most recent node error routed through a
	// catch edge.
	StateKeyLastError = "last_error"
)

// State is the shared execution state, a property bag merged under the
// graph's state schema.
type State map[string]any

// Clone returns a deep copy of the state. Maps and slices are copied,
// other values are shared.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = deepCopyValue(v)
	}
	return clone
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case State:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// Keys returns the state keys in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reducer merges an update value into the existing value of one property.
type Reducer func(existing, update any) any

// Built-in reducer names usable in state schemas and join aggregation.
const (
	ReducerReplace     = "replace"
	ReducerMergeObject = "merge_object"
	ReducerAppendList  = "append_list"
	ReducerMergeMap    = "merge_map"
)

// ReplaceReducer overwrites the existing value. This is the default rule
// for properties without an explicit one.
func ReplaceReducer(existing, update any) any {
	return update
}

// MergeObjectReducer merges two JSON objects key by key; update keys win
// over existing keys. Non-object operands fall back to replace.
func MergeObjectReducer(existing, update any) any {
	ex, okEx := asObject(existing)
	up, okUp := asObject(update)
	if !okEx || !okUp {
		return update
	}
	out := make(map[string]any, len(ex)+len(up))
	for k, v := range ex {
		out[k] = v
	}
	for k, v := range up {
		out[k] = v
	}
	return out
}

// AppendListReducer appends the update list (or single value) to the
// existing list.
func AppendListReducer(existing, update any) any {
	out := asList(existing)
	out = append(out, asList(update)...)
	return out
}

// MergeMapReducer merges two maps recursively: nested objects merge,
// everything else is replaced per key.
func MergeMapReducer(existing, update any) any {
	ex, okEx := asObject(existing)
	up, okUp := asObject(update)
	if !okEx || !okUp {
		return update
	}
	out := make(map[string]any, len(ex)+len(up))
	for k, v := range ex {
		out[k] = v
	}
	for k, v := range up {
		if prev, ok := out[k]; ok {
			out[k] = MergeMapReducer(prev, v)
			continue
		}
		out[k] = v
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case State:
		return val, true
	case nil:
		return map[string]any{}, true
	default:
		return nil, false
	}
}

func asList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(val))
		copy(out, val)
		return out
	default:
		return []any{val}
	}
}

var builtinReducers = map[string]Reducer{
	ReducerReplace:     ReplaceReducer,
	ReducerMergeObject: MergeObjectReducer,
	ReducerAppendList:  AppendListReducer,
	ReducerMergeMap:    MergeMapReducer,
}

// ReducerByName resolves a named merge rule.
func ReducerByName(name string) (Reducer, error) {
	if name == "" {
		return ReplaceReducer, nil
	}
	reducer, ok := builtinReducers[name]
	if !ok {
		return nil, fmt.Errorf("unknown merge rule %q", name)
	}
	return reducer, nil
}

// StateField describes one state property: its merge rule and an optional
// default applied to the initial state.
type StateField struct {
	// Reducer merges updates into the property. Nil means replace.
	Reducer Reducer
	// ReducerName records the named rule the field was built from.
	ReducerName string
	// Default, when non-nil, produces the initial value of the property.
	Default func() any
}

// StateSchema declares the graph's state properties and their merge rules.
// Properties not declared in the schema merge with replace semantics.
type StateSchema struct {
	Fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{Fields: make(map[string]StateField)}
}

// AddField declares a property with an explicit field definition.
func (s *StateSchema) AddField(key string, field StateField) *StateSchema {
	if field.Reducer == nil {
		field.Reducer = ReplaceReducer
		if field.ReducerName == "" {
			field.ReducerName = ReducerReplace
		}
	}
	s.Fields[key] = field
	return s
}

// AddRule declares a property with a named merge rule.
func (s *StateSchema) AddRule(key, reducerName string) error {
	reducer, err := ReducerByName(reducerName)
	if err != nil {
		return fmt.Errorf("state property %q: %w", key, err)
	}
	s.AddField(key, StateField{Reducer: reducer, ReducerName: reducerName})
	return nil
}

// ReducerFor returns the merge rule for a property.
func (s *StateSchema) ReducerFor(key string) Reducer {
	if s != nil {
		if field, ok := s.Fields[key]; ok && field.Reducer != nil {
			return field.Reducer
		}
	}
	return ReplaceReducer
}

// InitialState builds a state from the schema defaults overlaid with the
// provided input via the schema merge rules.
func (s *StateSchema) InitialState(input State) State {
	state := State{}
	if s != nil {
		for key, field := range s.Fields {
			if field.Default != nil {
				state[key] = field.Default()
			}
		}
	}
	return s.ApplyUpdate(state, input)
}

// ApplyUpdate merges one delta into the state under the schema rules and
// returns the merged state. The input state is not mutated.
func (s *StateSchema) ApplyUpdate(state State, update State) State {
	out := state.Clone()
	if len(update) == 0 {
		return out
	}
	// Keys are applied in sorted order so merges are deterministic even
	// for rules that are order sensitive.
	for _, key := range update.Keys() {
		out[key] = s.ReducerFor(key)(out[key], deepCopyValue(update[key]))
	}
	return out
}
