//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package dsl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/threadflow-ai/threadflow/graph"
)

// Selector expressions address values in state:
//
//	$.plan.steps[0].title
//	$.results[*].score
//	$.topic || "general"
//
// "$" is the whole state, ".name" descends into an object, "[i]" indexes
// a list, "[*]" maps the rest of the path over a list. The value after
// "||" is a JSON literal used when the path resolves to nothing.

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
	segWildcard
)

type segment struct {
	kind  segmentKind
	field string
	index int
}

// CompileSelector parses a selector expression into an executable
// selector over graph state.
func CompileSelector(expr string) (graph.Selector, error) {
	path := expr
	var fallback any
	hasFallback := false
	if idx := strings.Index(expr, "||"); idx >= 0 {
		path = strings.TrimSpace(expr[:idx])
		literal := strings.TrimSpace(expr[idx+2:])
		if literal == "" {
			return nil, fmt.Errorf("selector %q: empty default literal", expr)
		}
		if err := json.Unmarshal([]byte(literal), &fallback); err != nil {
			return nil, fmt.Errorf("selector %q: default is not a JSON literal: %w", expr, err)
		}
		hasFallback = true
	} else {
		path = strings.TrimSpace(path)
	}

	segments, err := parsePath(path)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", expr, err)
	}
	return func(state graph.State) (any, error) {
		value, found := resolve(map[string]any(state), segments)
		if !found {
			if hasFallback {
				return fallback, nil
			}
			return nil, nil
		}
		return value, nil
	}, nil
}

func parsePath(path string) ([]segment, error) {
	if path == "" || path[0] != '$' {
		return nil, fmt.Errorf("path must start with $")
	}
	rest := path[1:]
	var segments []segment
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := 0
			for end < len(rest) && rest[end] != '.' && rest[end] != '[' {
				end++
			}
			if end == 0 {
				return nil, fmt.Errorf("empty field name")
			}
			segments = append(segments, segment{kind: segField, field: rest[:end]})
			rest = rest[end:]
		case '[':
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil, fmt.Errorf("unterminated index")
			}
			inner := rest[1:close]
			if inner == "*" {
				segments = append(segments, segment{kind: segWildcard})
			} else {
				index, err := strconv.Atoi(inner)
				if err != nil || index < 0 {
					return nil, fmt.Errorf("invalid index %q", inner)
				}
				segments = append(segments, segment{kind: segIndex, index: index})
			}
			rest = rest[close+1:]
		default:
			return nil, fmt.Errorf("unexpected character %q", rest[0])
		}
	}
	return segments, nil
}

func resolve(value any, segments []segment) (any, bool) {
	if len(segments) == 0 {
		return value, value != nil
	}
	seg := segments[0]
	rest := segments[1:]
	switch seg.kind {
	case segField:
		obj, ok := asStringMap(value)
		if !ok {
			return nil, false
		}
		next, ok := obj[seg.field]
		if !ok {
			return nil, false
		}
		return resolve(next, rest)
	case segIndex:
		list, ok := value.([]any)
		if !ok || seg.index >= len(list) {
			return nil, false
		}
		return resolve(list[seg.index], rest)
	default:
		list, ok := value.([]any)
		if !ok {
			return nil, false
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			if v, found := resolve(item, rest); found {
				out = append(out, v)
			}
		}
		return out, true
	}
}

func asStringMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case graph.State:
		return v, true
	default:
		return nil, false
	}
}
