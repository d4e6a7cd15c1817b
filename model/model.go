//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package model defines the minimal model-provider contract used by the
// agent tool loop. Provider adapters live in subpackages.
package model

import "context"

// Model is the interface implemented by provider adapters.
type Model interface {
	// GenerateContent runs one model call. Responses arrive on the returned
	// channel; the final response carries Done=true, after which the channel
	// is closed. The call observes ctx for cancellation.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info describes a model instance.
type Info struct {
	// Name is the provider-side model name, e.g. "gpt-4o-mini".
	Name string
	// Provider identifies the adapter, e.g. "openai".
	Provider string
}
