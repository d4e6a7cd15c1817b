//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package openai provides the OpenAI-compatible model adapter.
package openai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/threadflow-ai/threadflow/log"
	"github.com/threadflow-ai/threadflow/model"
	"github.com/threadflow-ai/threadflow/tool"
)

// Model calls an OpenAI-compatible chat completion API.
type Model struct {
	name        string
	client      openai.Client
	maxRetries  int
	retryBase   time.Duration
	channelSize int
}

var _ model.Model = (*Model)(nil)

// New creates an OpenAI model adapter for the given model name.
func New(name string, opts ...Option) *Model {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Model{
		name:        name,
		client:      openai.NewClient(o.clientOptions...),
		maxRetries:  o.maxRetries,
		retryBase:   o.retryBase,
		channelSize: o.channelSize,
	}
}

// Info returns basic information about the model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name, Provider: "openai"}
}

// GenerateContent runs one chat completion call. Idempotent provider
// failures (rate limit, 5xx) are retried with exponential backoff up to the
// configured attempts; other failures surface immediately.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	responseChan := make(chan *model.Response, m.channelSize)
	chatRequest := m.buildChatRequest(request)

	go func() {
		defer close(responseChan)
		rsp := m.callWithRetry(ctx, chatRequest)
		select {
		case responseChan <- rsp:
		case <-ctx.Done():
		}
	}()
	return responseChan, nil
}

func (m *Model) callWithRetry(ctx context.Context, chatRequest openai.ChatCompletionNewParams) *model.Response {
	var lastErr *model.ResponseError
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.retryBase << (attempt - 1)
			log.Debugf("openai model %s: retry %d after %s: %s", m.name, attempt, backoff, lastErr.Message)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errorResponse(model.ErrorTypeAPIError, ctx.Err().Error())
			}
		}
		completion, err := m.client.Chat.Completions.New(ctx, chatRequest)
		if err == nil {
			return m.convertCompletion(completion)
		}
		lastErr = classifyError(err)
		if !lastErr.IsRetryable() {
			break
		}
	}
	return &model.Response{
		Object: model.ObjectTypeError,
		Done:   true,
		Error:  lastErr,
	}
}

func errorResponse(errType, msg string) *model.Response {
	return &model.Response{
		Object: model.ObjectTypeError,
		Done:   true,
		Error:  &model.ResponseError{Type: errType, Message: msg},
	}
}

func classifyError(err error) *model.ResponseError {
	var apierr *openai.Error
	if ok := asOpenAIError(err, &apierr); ok {
		switch {
		case apierr.StatusCode == 429:
			return &model.ResponseError{Type: model.ErrorTypeRateLimit, Message: err.Error()}
		case apierr.StatusCode >= 500:
			return &model.ResponseError{Type: model.ErrorTypeUnavailable, Message: err.Error()}
		}
	}
	return &model.ResponseError{Type: model.ErrorTypeAPIError, Message: err.Error()}
}

func (m *Model) convertCompletion(completion *openai.ChatCompletion) *model.Response {
	rsp := &model.Response{
		ID:      completion.ID,
		Object:  model.ObjectTypeChatCompletion,
		Created: completion.Created,
		Model:   completion.Model,
		Done:    true,
	}
	for _, choice := range completion.Choices {
		msg := model.Message{
			Role:    model.RoleAssistant,
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				Type: "function",
				ID:   tc.ID,
				Function: model.FunctionDefinitionParam{
					Name:      tc.Function.Name,
					Arguments: []byte(tc.Function.Arguments),
				},
			})
		}
		rsp.Choices = append(rsp.Choices, model.Choice{
			Index:        int(choice.Index),
			Message:      msg,
			FinishReason: string(choice.FinishReason),
		})
	}
	rsp.Usage = &model.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	return rsp
}

func (m *Model) buildChatRequest(request *model.Request) openai.ChatCompletionNewParams {
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}
	if so := request.StructuredOutput; so != nil && so.Schema != nil {
		chatRequest.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        so.Name,
					Schema:      so.Schema,
					Strict:      openai.Bool(so.Strict),
					Description: openai.String(so.Description),
				},
			},
		}
	}
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}
	return chatRequest
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			assistantMsg := &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: convertToolCalls(msg.ToolCalls),
			}
			if msg.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfAssistant: assistantMsg,
			})
		case model.RoleTool:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: msg.ToolID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func convertToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

func convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		declaration := t.Declaration()
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}
