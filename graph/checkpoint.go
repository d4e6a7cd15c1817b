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
	"sync"
	"time"

	"github.com/threadflow-ai/threadflow/event"
)

// ErrCheckpointNotFound is returned when a thread has no checkpoint.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is the durable snapshot taken after each super-step. Loading
// the newest checkpoint of a thread is sufficient to resume.
type Checkpoint struct {
	// ThreadID identifies the resumable conversation thread.
	ThreadID string `json:"thread_id"`
	// ExecutionID is the execution that wrote the checkpoint.
	ExecutionID string `json:"execution_id"`
	// StepIndex is the super-step the checkpoint was taken after. It is
	// strictly increasing per thread.
	StepIndex int `json:"step_index"`
	// State is the merged state after the step.
	State State `json:"state"`
	// Frontier is the set of node IDs scheduled next.
	Frontier []string `json:"frontier"`
	// PendingJoins is the join ledger: per join, which waited-on
	// branches completed or failed and their raw deltas.
	PendingJoins map[string]*JoinLedger `json:"pending_joins,omitempty"`
	// AwaitInput is the suspension reason when the execution paused for
	// external input.
	AwaitInput string `json:"await_input,omitempty"`
	// CreatedAt is when the checkpoint was written.
	CreatedAt time.Time `json:"created_at"`
}

// JoinLedger tracks branch completion for one pending join.
type JoinLedger struct {
	// Completed maps finished branch IDs to the delta they produced.
	Completed map[string]State `json:"completed,omitempty"`
	// Failed lists branch IDs that failed.
	Failed []string `json:"failed,omitempty"`
}

// NewJoinLedger creates an empty ledger.
func NewJoinLedger() *JoinLedger {
	return &JoinLedger{Completed: make(map[string]State)}
}

// Clone deep-copies the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := *c
	clone.State = c.State.Clone()
	clone.Frontier = append([]string(nil), c.Frontier...)
	if c.PendingJoins != nil {
		clone.PendingJoins = make(map[string]*JoinLedger, len(c.PendingJoins))
		for id, ledger := range c.PendingJoins {
			copied := &JoinLedger{
				Completed: make(map[string]State, len(ledger.Completed)),
				Failed:    append([]string(nil), ledger.Failed...),
			}
			for branch, delta := range ledger.Completed {
				copied.Completed[branch] = delta.Clone()
			}
			clone.PendingJoins[id] = copied
		}
	}
	return &clone
}

// StepRecord is the audit record of one node execution within a step.
type StepRecord struct {
	// ExecutionID is the owning execution.
	ExecutionID string `json:"execution_id"`
	// ThreadID is the owning thread, when the execution has one.
	ThreadID string `json:"thread_id,omitempty"`
	// StepIndex is the super-step ordinal.
	StepIndex int `json:"step_index"`
	// NodeID is the executed node.
	NodeID string `json:"node_id"`
	// StartedAt and FinishedAt bound the node execution.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// InputDigest is a digest of the state snapshot the node saw.
	InputDigest string `json:"input_digest,omitempty"`
	// Delta is the state update the node produced.
	Delta State `json:"delta,omitempty"`
	// RoutedTo records a router's chosen target.
	RoutedTo string `json:"routed_to,omitempty"`
	// Error describes the node failure, if any.
	Error string `json:"error,omitempty"`
	// ErrorKind categorises the failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Events are the lifecycle events emitted while the node ran.
	Events []*event.Event `json:"events,omitempty"`
}

// CheckpointSaver persists checkpoints and step records. Implementations
// must make Save atomic: a crash never leaves a partial checkpoint as the
// newest one.
type CheckpointSaver interface {
	// Save writes a checkpoint. Saving the same (thread, step) twice is
	// idempotent: the second write replaces the first.
	Save(ctx context.Context, checkpoint *Checkpoint) error
	// Load returns the newest checkpoint of a thread, or
	// ErrCheckpointNotFound.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	// AppendStep appends one step record to the execution's audit trail.
	AppendStep(ctx context.Context, record *StepRecord) error
	// ListSteps returns an execution's step records ordered by step
	// index, then node ID.
	ListSteps(ctx context.Context, executionID string) ([]*StepRecord, error)
	// DeleteThread removes all checkpoints of a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases saver resources.
	Close() error
}

// CheckpointManager serialises checkpoint writes per thread on top of a
// saver, so concurrent executions on one thread cannot interleave.
type CheckpointManager struct {
	saver CheckpointSaver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCheckpointManager wraps a saver with per-thread write locking.
func NewCheckpointManager(saver CheckpointSaver) *CheckpointManager {
	return &CheckpointManager{
		saver: saver,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *CheckpointManager) threadLock(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[threadID] = lock
	}
	return lock
}

// Save writes a checkpoint while holding the thread's write lock.
func (m *CheckpointManager) Save(ctx context.Context, checkpoint *Checkpoint) error {
	lock := m.threadLock(checkpoint.ThreadID)
	lock.Lock()
	defer lock.Unlock()
	checkpoint.CreatedAt = time.Now()
	return m.saver.Save(ctx, checkpoint)
}

// Load returns the newest checkpoint of a thread.
func (m *CheckpointManager) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	return m.saver.Load(ctx, threadID)
}

// AppendStep appends one step record.
func (m *CheckpointManager) AppendStep(ctx context.Context, record *StepRecord) error {
	return m.saver.AppendStep(ctx, record)
}

// ListSteps returns an execution's step records.
func (m *CheckpointManager) ListSteps(ctx context.Context, executionID string) ([]*StepRecord, error) {
	return m.saver.ListSteps(ctx, executionID)
}

// DeleteThread removes a thread's checkpoints under its write lock.
func (m *CheckpointManager) DeleteThread(ctx context.Context, threadID string) error {
	lock := m.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()
	return m.saver.DeleteThread(ctx, threadID)
}

// Close releases the underlying saver.
func (m *CheckpointManager) Close() error {
	return m.saver.Close()
}
