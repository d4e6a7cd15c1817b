//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package runner tracks executions of one compiled graph: it starts
// runs, records their lifecycle, resumes suspended threads and cancels
// running executions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/threadflow-ai/threadflow/event"
	"github.com/threadflow-ai/threadflow/graph"
	"github.com/threadflow-ai/threadflow/log"
)

// ErrExecutionNotFound is returned for unknown execution IDs.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrNothingToResume is returned when a thread has no checkpoint.
var ErrNothingToResume = errors.New("thread has no checkpoint to resume")

// ExecutionRecord is the tracked lifecycle of one run.
type ExecutionRecord struct {
	// ID is the execution identifier.
	ID string `json:"id"`
	// GraphName names the workflow.
	GraphName string `json:"graph_name"`
	// ThreadID is the resumable thread, when one was used.
	ThreadID string `json:"thread_id,omitempty"`
	// Status is the current lifecycle state.
	Status graph.Status `json:"status"`
	// Output is the result value for completed runs.
	Output any `json:"output,omitempty"`
	// Error describes the failure for failed runs.
	Error string `json:"error,omitempty"`
	// AwaitInput is the suspension reason for AWAITING_INPUT runs.
	AwaitInput string `json:"await_input,omitempty"`
	// StepCount is the number of super-steps run so far on the thread.
	StepCount int `json:"step_count"`
	// CreatedAt and UpdatedAt bound the record's lifecycle.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *ExecutionRecord) clone() *ExecutionRecord {
	clone := *r
	return &clone
}

// Runner runs one compiled graph and tracks its executions.
type Runner struct {
	graphName string
	executor  *graph.Executor
	saver     graph.CheckpointSaver

	mu      sync.RWMutex
	records map[string]*ExecutionRecord
	cancels map[string]context.CancelFunc
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	saver        graph.CheckpointSaver
	executorOpts []graph.ExecutorOption
}

// WithCheckpointSaver enables durable checkpoints and step records.
func WithCheckpointSaver(saver graph.CheckpointSaver) Option {
	return func(o *runnerOptions) { o.saver = saver }
}

// WithExecutorOptions forwards options to the underlying executor.
func WithExecutorOptions(opts ...graph.ExecutorOption) Option {
	return func(o *runnerOptions) { o.executorOpts = append(o.executorOpts, opts...) }
}

// New creates a runner for a compiled graph.
func New(graphName string, g *graph.Graph, opts ...Option) *Runner {
	var o runnerOptions
	for _, opt := range opts {
		opt(&o)
	}
	executorOpts := o.executorOpts
	if o.saver != nil {
		executorOpts = append(executorOpts, graph.WithCheckpointSaver(o.saver))
	}
	return &Runner{
		graphName: graphName,
		executor:  graph.NewExecutor(g, executorOpts...),
		saver:     o.saver,
		records:   make(map[string]*ExecutionRecord),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// StartOption configures one run.
type StartOption func(*startOptions)

type startOptions struct {
	threadID    string
	executionID string
}

// WithThreadID binds the run to a resumable thread.
func WithThreadID(threadID string) StartOption {
	return func(o *startOptions) { o.threadID = threadID }
}

// WithExecutionID sets the execution identifier.
func WithExecutionID(id string) StartOption {
	return func(o *startOptions) { o.executionID = id }
}

// Start begins an execution and returns its handle. The runner tracks
// the lifecycle in the background; the caller owns the event stream.
func (r *Runner) Start(ctx context.Context, input graph.State, opts ...StartOption) (*graph.Execution, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	runCtx, cancel := context.WithCancel(ctx)
	var execOpts []graph.ExecuteOption
	if o.threadID != "" {
		execOpts = append(execOpts, graph.WithThreadID(o.threadID))
	}
	if o.executionID != "" {
		execOpts = append(execOpts, graph.WithExecutionID(o.executionID))
	}
	x, err := r.executor.Execute(runCtx, input, execOpts...)
	if err != nil {
		cancel()
		return nil, err
	}

	record := &ExecutionRecord{
		ID:        x.ID(),
		GraphName: r.graphName,
		ThreadID:  x.ThreadID(),
		Status:    graph.StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.mu.Lock()
	r.records[record.ID] = record
	r.cancels[record.ID] = cancel
	r.mu.Unlock()

	go r.track(x, cancel)
	return x, nil
}

func (r *Runner) track(x *graph.Execution, cancel context.CancelFunc) {
	defer cancel()
	res := x.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[x.ID()]
	if !ok {
		return
	}
	record.Status = res.Status
	record.StepCount = res.StepCount
	record.AwaitInput = res.AwaitInput
	record.UpdatedAt = time.Now()
	if res.Status == graph.StatusCompleted {
		record.Output = res.Output
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	delete(r.cancels, x.ID())
	log.Infof("execution %s (%s) finished with status %s after %d steps",
		record.ID, r.graphName, record.Status, record.StepCount)
}

// Run executes synchronously, discarding events.
func (r *Runner) Run(ctx context.Context, input graph.State, opts ...StartOption) (*graph.Result, error) {
	x, err := r.Start(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	for range x.Events() {
	}
	return x.Wait(), nil
}

// Resume continues a suspended thread with new input. The input is
// merged over the checkpointed state under the graph's merge rules.
func (r *Runner) Resume(ctx context.Context, threadID string, input graph.State) (*graph.Execution, error) {
	if r.saver == nil {
		return nil, fmt.Errorf("runner has no checkpoint saver: %w", ErrNothingToResume)
	}
	if _, err := r.saver.Load(ctx, threadID); err != nil {
		if errors.Is(err, graph.ErrCheckpointNotFound) {
			return nil, ErrNothingToResume
		}
		return nil, fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
	}
	return r.Start(ctx, input, WithThreadID(threadID))
}

// Cancel stops a running execution. Events already emitted stay valid;
// the execution finishes with CANCELLED.
func (r *Runner) Cancel(executionID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[executionID]
	r.mu.Unlock()
	if !ok {
		if _, exists := r.Get(executionID); exists {
			return fmt.Errorf("execution %s is not running", executionID)
		}
		return ErrExecutionNotFound
	}
	cancel()
	return nil
}

// Get returns a copy of an execution record.
func (r *Runner) Get(executionID string) (*ExecutionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[executionID]
	if !ok {
		return nil, false
	}
	return record.clone(), true
}

// List returns all execution records, newest first.
func (r *Runner) List() []*ExecutionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]*ExecutionRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record.clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}

// Steps returns the audit trail of an execution.
func (r *Runner) Steps(ctx context.Context, executionID string) ([]*graph.StepRecord, error) {
	if r.saver == nil {
		return nil, nil
	}
	return r.saver.ListSteps(ctx, executionID)
}

// GraphName returns the workflow name the runner serves.
func (r *Runner) GraphName() string {
	return r.graphName
}

// Subscribe is a convenience that forwards an execution's events to a
// callback and returns the final result.
func Subscribe(x *graph.Execution, fn func(*event.Event)) *graph.Result {
	for e := range x.Events() {
		if fn != nil {
			fn(e)
		}
	}
	return x.Wait()
}
