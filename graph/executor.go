//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/threadflow-ai/threadflow/agent"
	"github.com/threadflow-ai/threadflow/event"
	"github.com/threadflow-ai/threadflow/log"
	"github.com/threadflow-ai/threadflow/telemetry/trace"
)

// Executor defaults.
const (
	DefaultChannelBufferSize = 256
	DefaultMaxSteps          = 100
	DefaultNodeTimeout       = 5 * time.Minute
	DefaultMaxConcurrency    = 64
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusRunning       Status = "RUNNING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusCancelled     Status = "CANCELLED"
	StatusAwaitingInput Status = "AWAITING_INPUT"
)

// Terminal reports whether the status is a final one. AWAITING_INPUT is
// not terminal: the execution can be resumed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Result is the outcome of one execution run.
type Result struct {
	// ExecutionID identifies the run.
	ExecutionID string
	// ThreadID is the thread, when the run had one.
	ThreadID string
	// Status is COMPLETED, FAILED, CANCELLED or AWAITING_INPUT.
	Status Status
	// State is the final merged state.
	State State
	// Output is the value under the graph's output key, or the whole
	// state when no output key is set.
	Output any
	// StepCount is the number of super-steps run across the thread.
	StepCount int
	// AwaitInput is the suspension reason for AWAITING_INPUT.
	AwaitInput string
	// Err is the failure for FAILED runs.
	Err error
}

// Executor runs a compiled graph with super-step scheduling.
type Executor struct {
	graph             *Graph
	saver             *CheckpointManager
	channelBufferSize int
	maxSteps          int
	nodeTimeout       time.Duration
	executionTimeout  time.Duration
	maxConcurrency    int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCheckpointSaver enables checkpointing through the given saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(e *Executor) {
		if saver != nil {
			e.saver = NewCheckpointManager(saver)
		}
	}
}

// WithChannelBufferSize sets the event channel buffer.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(e *Executor) {
		if size > 0 {
			e.channelBufferSize = size
		}
	}
}

// WithMaxSteps bounds the number of super-steps per execution.
func WithMaxSteps(steps int) ExecutorOption {
	return func(e *Executor) {
		if steps > 0 {
			e.maxSteps = steps
		}
	}
}

// WithNodeTimeout sets the default per-node deadline.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.nodeTimeout = d
		}
	}
}

// WithExecutionTimeout sets the execution-level deadline.
func WithExecutionTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.executionTimeout = d
		}
	}
}

// WithMaxConcurrency bounds how many nodes run concurrently per step.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// NewExecutor creates an executor for a compiled graph.
func NewExecutor(g *Graph, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:             g,
		channelBufferSize: DefaultChannelBufferSize,
		maxSteps:          DefaultMaxSteps,
		nodeTimeout:       DefaultNodeTimeout,
		maxConcurrency:    DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteOption configures one execution.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	executionID string
	threadID    string
}

// WithExecutionID sets the execution identifier. Default is a new UUID.
func WithExecutionID(id string) ExecuteOption {
	return func(o *executeOptions) { o.executionID = id }
}

// WithThreadID binds the execution to a resumable thread. When the
// executor has a checkpoint saver and the thread has a checkpoint, the
// execution resumes from it and the input is merged over the restored
// state under the schema rules.
func WithThreadID(threadID string) ExecuteOption {
	return func(o *executeOptions) { o.threadID = threadID }
}

// Execution is a running (or finished) graph execution.
type Execution struct {
	id       string
	threadID string
	events   chan *event.Event

	done   chan struct{}
	result *Result
}

// ID returns the execution identifier.
func (x *Execution) ID() string { return x.id }

// ThreadID returns the thread identifier, if any.
func (x *Execution) ThreadID() string { return x.threadID }

// Events returns the execution's event stream. The channel closes when
// the execution finishes.
func (x *Execution) Events() <-chan *event.Event { return x.events }

// Wait blocks until the execution finishes and returns its result.
func (x *Execution) Wait() *Result {
	<-x.done
	return x.result
}

// Execute starts an execution and returns a handle to its event stream
// and result. Resume is automatic when the thread has a checkpoint.
func (e *Executor) Execute(ctx context.Context, input State, opts ...ExecuteOption) (*Execution, error) {
	o := executeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executionID == "" {
		o.executionID = uuid.New().String()
	}

	r := &run{
		exec:     e,
		id:       o.executionID,
		threadID: o.threadID,
		joins:    make(map[string]*JoinLedger),
		armed:    make(map[string]bool),
	}
	if err := r.restoreOrInit(ctx, input); err != nil {
		return nil, err
	}

	x := &Execution{
		id:       o.executionID,
		threadID: o.threadID,
		events:   make(chan *event.Event, e.channelBufferSize),
		done:     make(chan struct{}),
	}
	r.handle = x
	go r.loop(ctx)
	return x, nil
}

// Run executes the graph and blocks until it finishes, discarding events.
func (e *Executor) Run(ctx context.Context, input State, opts ...ExecuteOption) (*Result, error) {
	x, err := e.Execute(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	for range x.Events() {
	}
	return x.Wait(), nil
}

// run is the per-execution scheduler state.
type run struct {
	exec     *Executor
	handle   *Execution
	id       string
	threadID string

	state    State
	frontier []string
	joins    map[string]*JoinLedger
	step     int
	// armed marks frontier nodes restored from a checkpoint: their
	// await-input gate is skipped once so resume makes progress.
	armed map[string]bool

	pool *ants.Pool
}

func (r *run) restoreOrInit(ctx context.Context, input State) error {
	e := r.exec
	if r.threadID != "" && e.saver != nil {
		cp, err := e.saver.Load(ctx, r.threadID)
		switch {
		case err == nil:
			r.state = e.graph.Schema().ApplyUpdate(cp.State, input)
			r.frontier = append([]string(nil), cp.Frontier...)
			r.step = cp.StepIndex
			if cp.PendingJoins != nil {
				r.joins = cp.Clone().PendingJoins
			}
			for _, id := range r.frontier {
				r.armed[id] = true
			}
			log.Infof("execution %s resuming thread %s from step %d", r.id, r.threadID, r.step)
			return nil
		case !errors.Is(err, ErrCheckpointNotFound):
			return fmt.Errorf("load checkpoint for thread %s: %w", r.threadID, err)
		}
	}
	r.state = e.graph.Schema().InitialState(input)
	if r.threadID != "" {
		r.state[StateKeyThreadID] = r.threadID
	}
	r.frontier = []string{e.graph.EntryPoint()}
	return nil
}

func (r *run) emit(e *event.Event) {
	if e.ThreadID == "" {
		e.ThreadID = r.threadID
	}
	select {
	case r.handle.events <- e:
	default:
		log.Warnf("execution %s: event buffer full, dropping %s", r.id, e.Name)
	}
}

func (r *run) loop(ctx context.Context) {
	e := r.exec
	ctx, span := trace.Tracer.Start(ctx, "graph.execute",
		oteltrace.WithAttributes(
			attribute.String("execution.id", r.id),
			attribute.String("thread.id", r.threadID),
		))
	defer span.End()

	if e.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.executionTimeout)
		defer cancel()
	}
	if pool, err := ants.NewPool(e.maxConcurrency); err == nil {
		r.pool = pool
		defer pool.Release()
	}

	r.emit(event.New(event.NameExecutionStart, r.id,
		event.WithStepIndex(r.step),
		event.WithPayload(map[string]any{
			"entry_point":  e.graph.EntryPoint(),
			"state_digest": event.Digest(r.state),
		})))

	result := r.superStepLoop(ctx)
	result.ExecutionID = r.id
	result.ThreadID = r.threadID
	result.State = r.state
	result.StepCount = r.step
	result.Output = r.output()

	name := event.NameExecutionComplete
	if result.Status == StatusCancelled {
		name = event.NameExecutionCancelled
	}
	payload := map[string]any{"status": string(result.Status)}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	if result.AwaitInput != "" {
		payload["await_input"] = result.AwaitInput
	}
	if result.Status == StatusCompleted {
		payload["output"] = result.Output
	}
	r.emit(event.New(name, r.id,
		event.WithStepIndex(r.step),
		event.WithPayload(payload)))

	close(r.handle.events)
	r.handle.result = result
	close(r.handle.done)
}

func (r *run) output() any {
	if key := r.exec.graph.OutputKey(); key != "" {
		return r.state[key]
	}
	return map[string]any(r.state)
}

func (r *run) cancelResult(ctx context.Context) *Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Result{
			Status: StatusFailed,
			Err:    fmt.Errorf("execution deadline exceeded after step %d", r.step),
		}
	}
	return &Result{Status: StatusCancelled}
}

// superStepLoop runs super-steps until the frontier drains or the
// execution terminates early. Deltas of a cancelled step are discarded.
func (r *run) superStepLoop(ctx context.Context) *Result {
	g := r.exec.graph
	for len(r.frontier) > 0 {
		if ctx.Err() != nil {
			return r.cancelResult(ctx)
		}
		if r.step >= r.exec.maxSteps {
			return &Result{
				Status: StatusFailed,
				Err:    fmt.Errorf("exceeded super-step budget of %d", r.exec.maxSteps),
			}
		}
		if reason := r.checkAwaitInput(ctx); reason != "" {
			return &Result{Status: StatusAwaitingInput, AwaitInput: reason}
		}

		r.step++
		batch := r.frontier
		r.frontier = nil
		outcomes := r.runBatch(ctx, batch)
		if ctx.Err() != nil {
			return r.cancelResult(ctx)
		}

		next := make(map[string]bool)
		suspendReason := ""
		for _, oc := range outcomes {
			switch {
			case oc.suspend != nil:
				suspendReason = oc.suspend.Reason
				next[oc.nodeID] = true
			case oc.err != nil:
				if failure := r.handleNodeError(g, oc, next); failure != nil {
					return failure
				}
			default:
				r.state = g.Schema().ApplyUpdate(r.state, oc.delta)
				r.collectTargets(g, oc, next)
			}
		}
		if failure := r.resolveJoins(g, next); failure != nil {
			return failure
		}
		r.state[StateKeyStep] = r.step

		r.frontier = make([]string, 0, len(next))
		for id := range next {
			r.frontier = append(r.frontier, id)
		}
		sort.Strings(r.frontier)

		if err := r.checkpoint(ctx, suspendReason); err != nil {
			return &Result{
				Status: StatusFailed,
				Err:    NewNodeError("", ErrorKindCheckpoint, err),
			}
		}
		if suspendReason != "" {
			return &Result{Status: StatusAwaitingInput, AwaitInput: suspendReason}
		}
	}
	return &Result{Status: StatusCompleted}
}

// checkAwaitInput suspends before an await-input node runs, unless the
// node was armed by a resume.
func (r *run) checkAwaitInput(ctx context.Context) string {
	for _, id := range r.frontier {
		n, ok := r.exec.graph.Node(id)
		if !ok || n.AwaitInput == "" {
			continue
		}
		if r.armed[id] {
			delete(r.armed, id)
			continue
		}
		if err := r.checkpoint(ctx, n.AwaitInput); err != nil {
			log.Errorf("execution %s: checkpoint before suspend: %v", r.id, err)
		}
		return n.AwaitInput
	}
	return ""
}

// handleNodeError applies, in order: the node's catch edge, absorption by
// waiting joins under their failure policy, and finally execution failure.
func (r *run) handleNodeError(g *Graph, oc *outcome, next map[string]bool) *Result {
	n, _ := g.Node(oc.nodeID)
	if n != nil && n.OnError != "" {
		r.state = g.Schema().ApplyUpdate(r.state, State{
			StateKeyLastError: map[string]any{
				"node_id": oc.nodeID,
				"kind":    string(oc.err.Kind),
				"detail":  oc.err.Detail,
			},
		})
		next[n.OnError] = true
		return nil
	}
	edges := g.Edges(oc.nodeID)
	absorbed := len(edges) > 0
	for _, e := range edges {
		t, ok := g.Node(e.To)
		if ok && t.Kind == NodeKindJoin && containsString(t.WaitFor, oc.nodeID) {
			ledger := r.ledgerFor(e.To)
			ledger.Failed = append(ledger.Failed, oc.nodeID)
			continue
		}
		absorbed = false
	}
	if absorbed {
		return nil
	}
	return &Result{Status: StatusFailed, Err: oc.err}
}

// collectTargets routes a successful outcome to its successors. Edges
// into a waiting join feed its ledger instead of the frontier.
func (r *run) collectTargets(g *Graph, oc *outcome, next map[string]bool) {
	n, _ := g.Node(oc.nodeID)
	if n != nil && n.Kind == NodeKindJoin {
		delete(r.joins, oc.nodeID)
	}
	var targets []string
	if n != nil && n.Kind == NodeKindRouter {
		targets = []string{oc.routedTo}
	} else {
		for _, e := range g.Edges(oc.nodeID) {
			targets = append(targets, e.To)
		}
	}
	for _, target := range targets {
		if target == End {
			continue
		}
		t, ok := g.Node(target)
		if ok && t.Kind == NodeKindJoin {
			// Joins are scheduled by resolveJoins once their wait set
			// settles, never directly by a predecessor.
			if containsString(t.WaitFor, oc.nodeID) {
				r.ledgerFor(target).Completed[oc.nodeID] = oc.delta
			}
			continue
		}
		next[target] = true
	}
}

func (r *run) ledgerFor(joinID string) *JoinLedger {
	ledger, ok := r.joins[joinID]
	if !ok {
		ledger = NewJoinLedger()
		r.joins[joinID] = ledger
	}
	return ledger
}

// resolveJoins schedules joins whose wait sets are settled, applying the
// failure policy.
func (r *run) resolveJoins(g *Graph, next map[string]bool) *Result {
	joinIDs := make([]string, 0, len(r.joins))
	for id := range r.joins {
		joinIDs = append(joinIDs, id)
	}
	sort.Strings(joinIDs)
	for _, id := range joinIDs {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		ledger := r.joins[id]
		completed := len(ledger.Completed)
		failed := len(ledger.Failed)
		total := len(n.WaitFor)
		if completed+failed < total {
			continue
		}
		ok = false
		switch n.Policy {
		case FailurePolicyAny:
			ok = failed == 0
		case FailurePolicyMajority:
			ok = failed*2 <= total
		default:
			// all_required: every branch must have failed to fail the join.
			ok = completed >= 1
		}
		if !ok {
			return &Result{
				Status: StatusFailed,
				Err: NewNodeError(id, ErrorKindNodeFailed,
					fmt.Errorf("join policy %s not satisfied: %d of %d branches failed",
						n.Policy, failed, total)),
			}
		}
		next[id] = true
	}
	return nil
}

func (r *run) checkpoint(ctx context.Context, awaitInput string) error {
	if r.exec.saver == nil || r.threadID == "" {
		return nil
	}
	cp := &Checkpoint{
		ThreadID:    r.threadID,
		ExecutionID: r.id,
		StepIndex:   r.step,
		State:       r.state.Clone(),
		Frontier:    append([]string(nil), r.frontier...),
		AwaitInput:  awaitInput,
	}
	if len(r.joins) > 0 {
		cp.PendingJoins = make(map[string]*JoinLedger, len(r.joins))
		for id, ledger := range r.joins {
			cp.PendingJoins[id] = ledger
		}
		cp = cp.Clone()
	}
	return r.exec.saver.Save(ctx, cp)
}

// outcome is the result of one node execution within a step.
type outcome struct {
	nodeID   string
	delta    State
	routedTo string
	suspend  *SuspendError
	err      *NodeError
}

// runBatch executes the frontier concurrently and returns the outcomes
// sorted by node ID, which keeps delta application deterministic.
func (r *run) runBatch(ctx context.Context, batch []string) []*outcome {
	sort.Strings(batch)
	outcomes := make([]*outcome, len(batch))
	var wg sync.WaitGroup
	for i, id := range batch {
		i, id := i, id
		task := func() {
			defer wg.Done()
			outcomes[i] = r.runNode(ctx, id)
		}
		wg.Add(1)
		if r.pool != nil {
			if err := r.pool.Submit(task); err == nil {
				continue
			}
		}
		go task()
	}
	wg.Wait()
	return outcomes
}

func (r *run) runNode(ctx context.Context, id string) *outcome {
	oc := &outcome{nodeID: id}
	g := r.exec.graph
	n, ok := g.Node(id)
	if !ok {
		oc.err = NewNodeError(id, ErrorKindNodeFailed, fmt.Errorf("unknown node"))
		return oc
	}
	snapshot := r.state.Clone()
	started := time.Now()

	ctx, span := trace.Tracer.Start(ctx, "graph.node",
		oteltrace.WithAttributes(
			attribute.String("node.id", id),
			attribute.String("node.kind", string(n.Kind)),
			attribute.Int("step.index", r.step),
		))
	defer span.End()

	r.emit(event.New(event.NameNodeStart, r.id,
		event.WithNodeID(id),
		event.WithStepIndex(r.step),
		event.WithPayload(map[string]any{
			"node_kind":    string(n.Kind),
			"input_digest": event.Digest(snapshot),
		})))

	timeout := r.exec.nodeTimeout
	if n.Timeout > 0 {
		timeout = n.Timeout
	}
	nodeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var err error
	switch n.Kind {
	case NodeKindAgent:
		oc.delta, err = r.runAgentNode(nodeCtx, n, snapshot)
	case NodeKindRouter:
		oc.routedTo, err = r.evalRouter(nodeCtx, n, snapshot)
	case NodeKindParallel:
		// Fan-out only; successors are scheduled by the loop.
	case NodeKindJoin:
		oc.delta = r.aggregateJoin(n)
	case NodeKindSubgraph:
		oc.delta, err = r.runSubgraph(nodeCtx, n, snapshot)
	}

	finished := time.Now()
	if err != nil {
		var se *SuspendError
		if errors.As(err, &se) {
			oc.suspend = se
			r.emit(event.New(event.NameNodeComplete, r.id,
				event.WithNodeID(id),
				event.WithStepIndex(r.step),
				event.WithPayload(map[string]any{"suspended": se.Reason})))
			return oc
		}
		oc.err = r.classifyNodeError(id, err, nodeCtx, ctx)
		r.emit(event.New(event.NameNodeError, r.id,
			event.WithNodeID(id),
			event.WithStepIndex(r.step),
			event.WithPayload(map[string]any{
				"error_kind": string(oc.err.Kind),
				"error":      oc.err.Detail,
			})))
		r.appendStep(ctx, n, oc, snapshot, started, finished)
		return oc
	}

	r.emit(event.New(event.NameNodeComplete, r.id,
		event.WithNodeID(id),
		event.WithStepIndex(r.step),
		event.WithPayload(map[string]any{
			"delta_digest": event.Digest(oc.delta),
			"duration_ms":  finished.Sub(started).Milliseconds(),
		})))
	r.appendStep(ctx, n, oc, snapshot, started, finished)
	return oc
}

func (r *run) classifyNodeError(nodeID string, err error, nodeCtx, parent context.Context) *NodeError {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne
	}
	kind := ErrorKindNodeFailed
	switch {
	case nodeCtx.Err() == context.DeadlineExceeded && parent.Err() == nil:
		kind = ErrorKindNodeTimeout
	case parent.Err() == context.DeadlineExceeded:
		kind = ErrorKindExecutionTimeout
	case parent.Err() == context.Canceled:
		kind = ErrorKindCancelled
	default:
		var budget *agent.BudgetExhaustedError
		var schema *agent.SchemaValidationError
		var provider *agent.ProviderError
		switch {
		case errors.As(err, &budget):
			kind = ErrorKindBudgetExhausted
		case errors.As(err, &schema):
			kind = ErrorKindSchemaValidation
		case errors.As(err, &provider):
			kind = ErrorKindProvider
		}
	}
	return NewNodeError(nodeID, kind, err)
}

func (r *run) appendStep(ctx context.Context, n *Node, oc *outcome, snapshot State, started, finished time.Time) {
	if r.exec.saver == nil {
		return
	}
	rec := &StepRecord{
		ExecutionID: r.id,
		ThreadID:    r.threadID,
		StepIndex:   r.step,
		NodeID:      n.ID,
		StartedAt:   started,
		FinishedAt:  finished,
		InputDigest: event.Digest(snapshot),
		Delta:       oc.delta,
		RoutedTo:    oc.routedTo,
	}
	if oc.err != nil {
		rec.Error = oc.err.Detail
		rec.ErrorKind = oc.err.Kind
	}
	if err := r.exec.saver.AppendStep(ctx, rec); err != nil {
		log.Errorf("execution %s: append step record for %s: %v", r.id, n.ID, err)
	}
}

func (r *run) runAgentNode(ctx context.Context, n *Node, snapshot State) (State, error) {
	if n.Function != nil {
		return n.Function(ctx, snapshot)
	}
	inputs, err := projectInputs(n.InputMapping, snapshot)
	if err != nil {
		return nil, fmt.Errorf("input mapping for node %s: %w", n.ID, err)
	}
	inv := &agent.Invocation{
		InvocationID: uuid.New().String(),
		ExecutionID:  r.id,
		ThreadID:     r.threadID,
		NodeID:       n.ID,
		StepIndex:    r.step,
		Inputs:       inputs,
		EmitEvent:    r.emit,
	}
	out, err := n.Agent.Run(ctx, inv)
	if err != nil {
		return nil, err
	}
	key := n.OutputKey
	if key == "" {
		key = "output"
	}
	return State{key: out}, nil
}

func projectInputs(mapping map[string]Selector, snapshot State) (map[string]any, error) {
	if len(mapping) == 0 {
		return snapshot, nil
	}
	inputs := make(map[string]any, len(mapping))
	for name, sel := range mapping {
		v, err := sel(snapshot)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", name, err)
		}
		inputs[name] = v
	}
	return inputs, nil
}

// evalRouter evaluates conditional routes in declared order, then the
// default route. First match wins.
func (r *run) evalRouter(ctx context.Context, n *Node, snapshot State) (string, error) {
	edges := r.exec.graph.Edges(n.ID)
	for _, e := range edges {
		if e.Condition == nil {
			continue
		}
		match, err := e.Condition(ctx, snapshot)
		if err != nil {
			return "", fmt.Errorf("condition %q on route %s -> %s: %w",
				e.ConditionName, e.From, e.To, err)
		}
		if match {
			return e.To, nil
		}
	}
	for _, e := range edges {
		if e.Default {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("no route matched from router %s", n.ID)
}

// aggregateJoin folds the completed branch deltas with the join's named
// rule. Joins without an output key emit no delta: the branch deltas were
// already merged per property when each branch completed.
func (r *run) aggregateJoin(n *Node) State {
	if n.OutputKey == "" || n.Aggregation == "" {
		return nil
	}
	ledger, ok := r.joins[n.ID]
	if !ok {
		return nil
	}
	reducer, err := ReducerByName(n.Aggregation)
	if err != nil {
		return nil
	}
	branches := make([]string, 0, len(ledger.Completed))
	for branch := range ledger.Completed {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	var aggregate any
	first := true
	for _, branch := range branches {
		v, present := ledger.Completed[branch][n.OutputKey]
		if !present {
			continue
		}
		if first {
			aggregate = v
			first = false
			continue
		}
		aggregate = reducer(aggregate, v)
	}
	if first {
		return nil
	}
	return State{n.OutputKey: aggregate}
}

// runSubgraph executes the nested graph to completion. Subgraphs are
// atomic from the parent's perspective and cannot await input, but they
// checkpoint through the parent's saver under a namespaced thread so
// their progress is inspectable and survives a parent resume.
func (r *run) runSubgraph(ctx context.Context, n *Node, snapshot State) (State, error) {
	inputs, err := projectInputs(n.InputMapping, snapshot)
	if err != nil {
		return nil, fmt.Errorf("input mapping for subgraph %s: %w", n.ID, err)
	}
	child := NewExecutor(n.Subgraph,
		WithChannelBufferSize(r.exec.channelBufferSize),
		WithMaxSteps(r.exec.maxSteps),
		WithNodeTimeout(r.exec.nodeTimeout),
		WithMaxConcurrency(r.exec.maxConcurrency),
	)
	child.saver = r.exec.saver
	runOpts := []ExecuteOption{WithExecutionID(r.id + "/" + n.ID)}
	if r.threadID != "" && child.saver != nil {
		runOpts = append(runOpts, WithThreadID(r.threadID+"/"+n.ID))
	}
	res, err := child.Run(ctx, State(inputs), runOpts...)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case StatusCompleted:
		key := n.OutputKey
		if key == "" {
			key = "output"
		}
		return State{key: res.Output}, nil
	case StatusAwaitingInput:
		return nil, fmt.Errorf("subgraph %s cannot await input", n.ID)
	case StatusCancelled:
		return nil, ctx.Err()
	default:
		return nil, res.Err
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
