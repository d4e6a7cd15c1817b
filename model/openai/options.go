//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"errors"
	"time"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

const (
	defaultMaxRetries  = 2
	defaultRetryBase   = 500 * time.Millisecond
	defaultChannelSize = 4
)

var defaultOptions = options{
	maxRetries:  defaultMaxRetries,
	retryBase:   defaultRetryBase,
	channelSize: defaultChannelSize,
}

type options struct {
	clientOptions []openaiopt.RequestOption
	maxRetries    int
	retryBase     time.Duration
	channelSize   int
}

// Option configures the Model.
type Option func(*options)

// WithAPIKey sets the API key used for requests.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.clientOptions = append(o.clientOptions, openaiopt.WithAPIKey(key))
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.clientOptions = append(o.clientOptions, openaiopt.WithBaseURL(url))
	}
}

// WithMaxRetries sets how many times idempotent provider failures are
// retried with exponential backoff.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryBase sets the initial backoff interval.
func WithRetryBase(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryBase = d
		}
	}
}

// asOpenAIError unwraps err into *openai.Error.
func asOpenAIError(err error, target **openai.Error) bool {
	return errors.As(err, target)
}
