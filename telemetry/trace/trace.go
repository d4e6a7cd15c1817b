//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package trace exposes the tracer used by the engine. It is a noop tracer
// until an application installs a real provider.
package trace

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentName is the instrumentation scope name used for engine spans.
const InstrumentName = "github.com/threadflow-ai/threadflow"

// Tracer is the tracer used by the graph executor and the tool loop.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(InstrumentName)

// SetTracerProvider installs a tracer provider. Call once at startup,
// before any execution begins.
func SetTracerProvider(tp trace.TracerProvider) {
	if tp == nil {
		return
	}
	Tracer = tp.Tracer(InstrumentName)
}
