//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package model

import "github.com/threadflow-ai/threadflow/tool"

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content,omitempty"`
	// ToolID is the ID of the tool call this message responds to.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the name of the tool that produced this message.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls is the optional tool calls requested by the model.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{
		Role:     RoleTool,
		ToolID:   toolID,
		ToolName: toolName,
		Content:  content,
	}
}

// GenerationConfig contains configuration for text generation.
type GenerationConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// Stream indicates whether to stream the response.
	Stream bool `json:"stream"`

	// Stop sequences where the API will stop generating further tokens.
	Stop []string `json:"stop,omitempty"`
}

// StructuredOutput requests native structured output from the provider.
type StructuredOutput struct {
	// Name is the schema name passed to the provider.
	Name string `json:"name"`
	// Description explains the schema to the provider.
	Description string `json:"description,omitempty"`
	// Schema is the JSON Schema the response must conform to.
	Schema map[string]any `json:"schema"`
	// Strict enables strict schema adherence where the provider supports it.
	Strict bool `json:"strict,omitempty"`
}

// Request is the request to the model.
type Request struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// GenerationConfig contains the generation parameters.
	GenerationConfig `json:",inline"`

	// StructuredOutput, when set, requests schema-constrained output.
	StructuredOutput *StructuredOutput `json:"structured_output,omitempty"`

	// Tools are not serialized; they are converted per provider.
	Tools map[string]tool.Tool `json:"-"`
}

// ToolCall represents a call to a tool in the model response.
type ToolCall struct {
	// Type of the tool. Currently only `function` is supported.
	Type string `json:"type"`
	// Function is the function invocation payload.
	Function FunctionDefinitionParam `json:"function,omitempty"`
	// ID is the tool call ID returned by the model.
	ID string `json:"id,omitempty"`
}

// FunctionDefinitionParam carries the function name and arguments of a
// tool call.
type FunctionDefinitionParam struct {
	// Name is the name of the function to be called.
	Name string `json:"name"`
	// Arguments is the JSON-encoded argument object.
	Arguments []byte `json:"arguments,omitempty"`
}
