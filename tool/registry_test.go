//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	decl *Declaration
	call func(ctx context.Context, args []byte) (any, error)
}

func (s *stubTool) Declaration() *Declaration { return s.decl }

func (s *stubTool) Call(ctx context.Context, args []byte) (any, error) {
	return s.call(ctx, args)
}

func echoTool() *stubTool {
	return &stubTool{
		decl: &Declaration{
			Name:        "echo",
			Description: "echoes its input",
			InputSchema: &Schema{
				Type:     "object",
				Required: []string{"text"},
				Properties: map[string]*Schema{
					"text": {Type: "string"},
				},
			},
		},
		call: func(_ context.Context, args []byte) (any, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]any{"echo": in.Text}, nil
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool()))

	binding, err := reg.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", binding.Declaration().Name)

	_, err = reg.Resolve("missing")
	require.Error(t, err)
	var toolErr *Error
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, ErrorKindUnavailable, toolErr.Kind)
}

func TestRegistryDuplicateAndFrozen(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool()))
	assert.Error(t, reg.Register(echoTool()))

	reg.Freeze()
	other := echoTool()
	other.decl.Name = "echo2"
	assert.Error(t, reg.Register(other))
}

func TestInvokeValidatesArguments(t *testing.T) {
	binding, err := NewBinding(echoTool())
	require.NoError(t, err)

	res := binding.Invoke(context.Background(), []byte(`{"text":"hi"}`), time.Second)
	require.Nil(t, res.Error)
	assert.Equal(t, map[string]any{"echo": "hi"}, res.Content)

	res = binding.Invoke(context.Background(), []byte(`{"wrong":1}`), time.Second)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrorKindInvalidArguments, res.Error.Kind)

	res = binding.Invoke(context.Background(), []byte(`not json`), time.Second)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrorKindInvalidArguments, res.Error.Kind)
}

func TestInvokeTimeout(t *testing.T) {
	slow := &stubTool{
		decl: &Declaration{Name: "slow", Description: "sleeps"},
		call: func(ctx context.Context, _ []byte) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	binding, err := NewBinding(slow)
	require.NoError(t, err)

	res := binding.Invoke(context.Background(), nil, 20*time.Millisecond)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrorKindTimeout, res.Error.Kind)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestInvokeFailure(t *testing.T) {
	failing := &stubTool{
		decl: &Declaration{Name: "fail", Description: "always fails"},
		call: func(context.Context, []byte) (any, error) {
			return nil, errors.New("boom")
		},
	}
	binding, err := NewBinding(failing)
	require.NoError(t, err)

	res := binding.Invoke(context.Background(), nil, time.Second)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrorKindFailed, res.Error.Kind)
	assert.Contains(t, res.Error.Detail, "boom")
}

func TestFormatResult(t *testing.T) {
	ok := &Result{Content: map[string]any{"x": 1}}
	assert.JSONEq(t, `{"x":1}`, FormatResult(ok))

	failed := &Result{Error: NewError(ErrorKindTimeout, "too slow")}
	var decoded map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(FormatResult(failed)), &decoded))
	assert.Equal(t, string(ErrorKindTimeout), decoded["error"]["kind"])
	assert.Equal(t, "too slow", decoded["error"]["detail"])
}
