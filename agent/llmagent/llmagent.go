//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package llmagent implements the model-backed agent with a bounded tool
// loop: the model is called, requested tools are invoked, their results
// are appended to the transcript, and the loop repeats until the model
// answers without tool calls or the iteration budget runs out.
package llmagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/threadflow-ai/threadflow/agent"
	"github.com/threadflow-ai/threadflow/event"
	"github.com/threadflow-ai/threadflow/log"
	"github.com/threadflow-ai/threadflow/model"
	"github.com/threadflow-ai/threadflow/tool"
)

// Agent is a model-backed agent. Build one with New.
type Agent struct {
	name        string
	description string
	mdl         model.Model
	instruction string
	registry    *tool.Registry
	toolNames   []string
	genConfig   model.GenerationConfig

	maxIterations int
	toolTimeout   time.Duration
	returnPartial bool

	structured       *model.StructuredOutput
	structuredSchema *jsonschema.Schema
	structuredErr    error
}

var _ agent.Agent = (*Agent)(nil)

// New creates an agent. The model option is required; everything else
// has defaults.
func New(name string, opts ...Option) *Agent {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	a := &Agent{
		name:          name,
		description:   o.description,
		mdl:           o.mdl,
		instruction:   o.instruction,
		registry:      o.registry,
		toolNames:     o.toolNames,
		genConfig:     o.genConfig,
		maxIterations: o.maxIterations,
		toolTimeout:   o.toolTimeout,
		returnPartial: o.returnPartial,
		structured:    o.structured,
	}
	if a.registry == nil {
		a.registry = tool.Default()
	}
	if a.structured != nil {
		a.structuredSchema, a.structuredErr = compileSchema(name, a.structured.Schema)
	}
	return a
}

// Info returns the agent's name and description.
func (a *Agent) Info() agent.Info {
	return agent.Info{Name: a.name, Description: a.description}
}

// Run executes the bounded tool loop and returns the final answer: a
// string, or the decoded object when structured output is configured.
func (a *Agent) Run(ctx context.Context, inv *agent.Invocation) (any, error) {
	if a.mdl == nil {
		return nil, fmt.Errorf("agent %s has no model", a.name)
	}
	if a.structuredErr != nil {
		return nil, fmt.Errorf("agent %s structured output schema: %w", a.name, a.structuredErr)
	}
	bindings, tools, err := a.resolveTools()
	if err != nil {
		return nil, err
	}

	messages := a.openingMessages(inv)
	retried := false
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		rsp, err := a.callModel(ctx, messages, tools, a.structured)
		if err != nil {
			return nil, err
		}
		msg := rsp.Choices[0].Message
		if len(msg.ToolCalls) > 0 {
			messages = append(messages, msg)
			messages = append(messages, a.invokeTools(ctx, inv, bindings, msg.ToolCalls)...)
			continue
		}
		if a.structured == nil {
			return msg.Content, nil
		}
		value, err := a.validateStructured(msg.Content)
		if err == nil {
			return value, nil
		}
		if retried {
			return nil, &agent.SchemaValidationError{Detail: err.Error()}
		}
		// One corrective turn, charged against the budget like any
		// other iteration.
		retried = true
		log.Debugf("agent %s: structured output invalid, retrying once: %v", a.name, err)
		messages = append(messages,
			model.NewAssistantMessage(msg.Content),
			model.NewUserMessage(fmt.Sprintf(
				"The previous response did not match the required schema: %v. "+
					"Respond again with only a JSON object that matches the schema.", err)))
	}
	if a.returnPartial && a.structured == nil {
		if partial := lastAssistantContent(messages); partial != "" {
			log.Warnf("agent %s: iteration budget hit, returning partial answer", a.name)
			return partial, nil
		}
	}
	return nil, &agent.BudgetExhaustedError{
		Iterations: a.maxIterations,
		Transcript: messages,
	}
}

func lastAssistantContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

func (a *Agent) resolveTools() (map[string]*tool.Binding, map[string]tool.Tool, error) {
	bindings := make(map[string]*tool.Binding, len(a.toolNames))
	tools := make(map[string]tool.Tool, len(a.toolNames))
	for _, name := range a.toolNames {
		binding, err := a.registry.Resolve(name)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
		bindings[name] = binding
		tools[name] = binding.Tool()
	}
	return bindings, tools, nil
}

// openingMessages builds the system and user messages. Instruction
// placeholders of the form {key} are filled from the invocation inputs.
func (a *Agent) openingMessages(inv *agent.Invocation) []model.Message {
	var messages []model.Message
	if a.instruction != "" {
		messages = append(messages, model.NewSystemMessage(a.fillInstruction(inv.Inputs)))
	}
	messages = append(messages, model.NewUserMessage(renderInputs(inv.Inputs)))
	return messages
}

func (a *Agent) fillInstruction(inputs map[string]any) string {
	instruction := a.instruction
	for key, value := range inputs {
		placeholder := "{" + key + "}"
		if strings.Contains(instruction, placeholder) {
			instruction = strings.ReplaceAll(instruction, placeholder, fmt.Sprintf("%v", value))
		}
	}
	return instruction
}

func renderInputs(inputs map[string]any) string {
	if len(inputs) == 1 {
		for _, v := range inputs {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	raw, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Sprintf("%v", inputs)
	}
	return string(raw)
}

// callModel runs one model call and returns the final response.
func (a *Agent) callModel(ctx context.Context, messages []model.Message,
	tools map[string]tool.Tool, structured *model.StructuredOutput) (*model.Response, error) {
	req := &model.Request{
		Messages:         messages,
		GenerationConfig: a.genConfig,
		StructuredOutput: structured,
		Tools:            tools,
	}
	ch, err := a.mdl.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent %s: model call: %w", a.name, err)
	}
	var final *model.Response
	for rsp := range ch {
		if rsp.Done || final == nil {
			final = rsp
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if final == nil {
		return nil, fmt.Errorf("agent %s: model returned no response", a.name)
	}
	if final.Error != nil {
		return nil, &agent.ProviderError{Type: final.Error.Type, Detail: final.Error.Message}
	}
	if len(final.Choices) == 0 {
		return nil, fmt.Errorf("agent %s: model returned no choices", a.name)
	}
	return final, nil
}

// invokeTools executes the requested calls and returns their tool
// messages in the order the model emitted the calls. Calls are run
// concurrently when every requested tool declares itself side-effect
// free; otherwise they run sequentially.
func (a *Agent) invokeTools(ctx context.Context, inv *agent.Invocation,
	bindings map[string]*tool.Binding, calls []model.ToolCall) []model.Message {
	concurrent := len(calls) > 1
	for _, call := range calls {
		binding, ok := bindings[call.Function.Name]
		if !ok || !binding.Declaration().SideEffectFree {
			concurrent = false
			break
		}
	}

	results := make([]*tool.Result, len(calls))
	if concurrent {
		var wg sync.WaitGroup
		for i, call := range calls {
			i, call := i, call
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = a.invokeOne(ctx, inv, bindings, call)
			}()
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			results[i] = a.invokeOne(ctx, inv, bindings, call)
		}
	}

	messages := make([]model.Message, 0, len(calls))
	for i, call := range calls {
		messages = append(messages, model.NewToolMessage(
			call.ID, call.Function.Name, tool.FormatResult(results[i])))
	}
	return messages
}

func (a *Agent) invokeOne(ctx context.Context, inv *agent.Invocation,
	bindings map[string]*tool.Binding, call model.ToolCall) *tool.Result {
	inv.Emit(event.New(event.NameToolCall, inv.ExecutionID,
		event.WithNodeID(inv.NodeID),
		event.WithStepIndex(inv.StepIndex),
		event.WithToolID(call.ID),
		event.WithPayload(map[string]any{
			"tool_name":        call.Function.Name,
			"arguments_digest": event.Digest(json.RawMessage(call.Function.Arguments)),
		})))

	binding, ok := bindings[call.Function.Name]
	var res *tool.Result
	if !ok {
		res = &tool.Result{Error: tool.NewError(tool.ErrorKindUnavailable,
			"tool %s is not available to agent %s", call.Function.Name, a.name)}
	} else {
		res = binding.Invoke(ctx, call.Function.Arguments, a.toolTimeout)
	}

	payload := map[string]any{"tool_name": call.Function.Name}
	if res.Error != nil {
		payload["error_kind"] = string(res.Error.Kind)
		log.Debugf("agent %s tool %s: %v", a.name, call.Function.Name, res.Error)
	} else {
		payload["result_digest"] = event.Digest(res.Content)
	}
	inv.Emit(event.New(event.NameToolResult, inv.ExecutionID,
		event.WithNodeID(inv.NodeID),
		event.WithStepIndex(inv.StepIndex),
		event.WithToolID(call.ID),
		event.WithPayload(payload)))
	return res
}

func (a *Agent) validateStructured(content string) (any, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(content)))
	if err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if a.structuredSchema != nil {
		if err := a.structuredSchema.Validate(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".output.schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(resource)
}
