//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package model

// Object type constants for responses.
const (
	// ObjectTypeChatCompletion is a complete (non-streamed) chat response.
	ObjectTypeChatCompletion = "chat.completion"
	// ObjectTypeChatCompletionChunk is a streamed partial chat response.
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	// ObjectTypeError indicates an error response.
	ObjectTypeError = "error"
)

// Error type constants for ResponseError.
const (
	// ErrorTypeAPIError indicates the provider returned an API error.
	ErrorTypeAPIError = "api_error"
	// ErrorTypeRateLimit indicates the provider rejected the call for rate
	// limiting; the call is safe to retry.
	ErrorTypeRateLimit = "rate_limit_error"
	// ErrorTypeUnavailable indicates a transient provider failure.
	ErrorTypeUnavailable = "unavailable_error"
)

// Response is a model response, either a streamed chunk or a final message.
type Response struct {
	// ID is the provider-assigned response ID.
	ID string `json:"id,omitempty"`
	// Object describes the payload kind.
	Object string `json:"object,omitempty"`
	// Created is the unix timestamp of creation.
	Created int64 `json:"created,omitempty"`
	// Model is the provider model name that produced the response.
	Model string `json:"model,omitempty"`
	// Choices carries the generated alternatives; index 0 is used by the
	// tool loop.
	Choices []Choice `json:"choices,omitempty"`
	// Usage is the token accounting, present on final responses.
	Usage *Usage `json:"usage,omitempty"`
	// Error is set when the provider call failed.
	Error *ResponseError `json:"error,omitempty"`
	// Done is true for the final response of a call.
	Done bool `json:"done"`
	// IsPartial is true for streamed deltas.
	IsPartial bool `json:"is_partial,omitempty"`
}

// Clone creates a shallow copy of the response with copied choice slices.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Choices = make([]Choice, len(r.Choices))
	copy(clone.Choices, r.Choices)
	return &clone
}

// Choice is one generated alternative.
type Choice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Message is the complete message for non-streamed responses.
	Message Message `json:"message,omitempty"`
	// Delta is the incremental content for streamed responses.
	Delta Message `json:"delta,omitempty"`
	// FinishReason is the provider finish reason ("stop", "tool_calls", ...).
	FinishReason string `json:"finish_reason,omitempty"`
}

// Usage is the token accounting for a call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseError describes a provider failure.
type ResponseError struct {
	// Type is one of the ErrorType constants.
	Type string `json:"type"`
	// Message is the human-readable detail.
	Message string `json:"message"`
}

// IsRetryable reports whether the failure is idempotent to retry.
func (e *ResponseError) IsRetryable() bool {
	if e == nil {
		return false
	}
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeUnavailable
}
