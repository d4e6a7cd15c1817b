//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addInput struct {
	A int `json:"a" description:"first addend"`
	B int `json:"b"`
	// Note is optional.
	Note string `json:"note,omitempty"`
}

type addOutput struct {
	Sum int `json:"sum"`
}

func TestFunctionToolDeclaration(t *testing.T) {
	ft := New(func(_ context.Context, in addInput) (addOutput, error) {
		return addOutput{Sum: in.A + in.B}, nil
	}, WithName("add"), WithDescription("adds two integers"), WithSideEffectFree())

	decl := ft.Declaration()
	require.NotNil(t, decl)
	assert.Equal(t, "add", decl.Name)
	assert.True(t, decl.SideEffectFree)

	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.Equal(t, "integer", decl.InputSchema.Properties["a"].Type)
	assert.Equal(t, "first addend", decl.InputSchema.Properties["a"].Description)
	assert.ElementsMatch(t, []string{"a", "b"}, decl.InputSchema.Required)

	require.NotNil(t, decl.OutputSchema)
	assert.Equal(t, "integer", decl.OutputSchema.Properties["sum"].Type)
}

func TestFunctionToolCall(t *testing.T) {
	ft := New(func(_ context.Context, in addInput) (addOutput, error) {
		return addOutput{Sum: in.A + in.B}, nil
	}, WithName("add"))

	out, err := ft.Call(context.Background(), []byte(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.Equal(t, addOutput{Sum: 5}, out)

	_, err = ft.Call(context.Background(), []byte(`{"a":"nope"}`))
	assert.Error(t, err)
}

func TestFunctionToolPropagatesError(t *testing.T) {
	ft := New(func(_ context.Context, _ addInput) (addOutput, error) {
		return addOutput{}, errors.New("unavailable upstream")
	}, WithName("flaky"))

	_, err := ft.Call(context.Background(), []byte(`{"a":1,"b":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable upstream")
}
