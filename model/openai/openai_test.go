//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/model"
	"github.com/threadflow-ai/threadflow/tool"
)

type declOnlyTool struct{ decl tool.Declaration }

func (d *declOnlyTool) Declaration() *tool.Declaration { return &d.decl }

func TestConvertMessages(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("be helpful"),
		model.NewUserMessage("hello"),
		{
			Role:    model.RoleAssistant,
			Content: "calling a tool",
			ToolCalls: []model.ToolCall{{
				Type: "function",
				ID:   "call-1",
				Function: model.FunctionDefinitionParam{
					Name:      "lookup",
					Arguments: []byte(`{"q":"x"}`),
				},
			}},
		},
		model.NewToolMessage("call-1", "lookup", `{"answer":42}`),
	}
	converted := convertMessages(msgs)
	require.Len(t, converted, 4)
	require.NotNil(t, converted[2].OfAssistant)
	require.Len(t, converted[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "lookup", converted[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, converted[3].OfTool)
	assert.Equal(t, "call-1", converted[3].OfTool.ToolCallID)
}

func TestConvertTools(t *testing.T) {
	tools := map[string]tool.Tool{
		"lookup": &declOnlyTool{decl: tool.Declaration{
			Name:        "lookup",
			Description: "looks things up",
			InputSchema: &tool.Schema{
				Type:       "object",
				Properties: map[string]*tool.Schema{"q": {Type: "string"}},
				Required:   []string{"q"},
			},
		}},
	}
	converted := convertTools(tools)
	require.Len(t, converted, 1)
	assert.Equal(t, "lookup", converted[0].Function.Name)
	assert.Equal(t, "object", converted[0].Function.Parameters["type"])
}

func TestInfo(t *testing.T) {
	m := New("gpt-4o-mini", WithMaxRetries(0))
	info := m.Info()
	assert.Equal(t, "gpt-4o-mini", info.Name)
	assert.Equal(t, "openai", info.Provider)
}
