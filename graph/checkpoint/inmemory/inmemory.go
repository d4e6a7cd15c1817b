//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a process-local checkpoint saver, used in
// tests and single-process deployments.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/threadflow-ai/threadflow/graph"
)

// DefaultRetention is how many checkpoints are kept per thread.
const DefaultRetention = 10

// Saver keeps checkpoints and step records in memory.
type Saver struct {
	mu        sync.RWMutex
	retention int
	threads   map[string][]*graph.Checkpoint
	steps     map[string][]*graph.StepRecord
}

// Option configures the saver.
type Option func(*Saver)

// WithRetention sets how many checkpoints are kept per thread. Older
// checkpoints are pruned; the newest is always kept.
func WithRetention(n int) Option {
	return func(s *Saver) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewSaver creates an in-memory checkpoint saver.
func NewSaver(opts ...Option) *Saver {
	s := &Saver{
		retention: DefaultRetention,
		threads:   make(map[string][]*graph.Checkpoint),
		steps:     make(map[string][]*graph.StepRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// Save stores a checkpoint. A checkpoint for an existing (thread, step)
// pair replaces the previous one.
func (s *Saver) Save(_ context.Context, checkpoint *graph.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := checkpoint.Clone()
	list := s.threads[cp.ThreadID]
	replaced := false
	for i, existing := range list {
		if existing.StepIndex == cp.StepIndex {
			list[i] = cp
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, cp)
		sort.Slice(list, func(i, j int) bool {
			return list[i].StepIndex < list[j].StepIndex
		})
	}
	if len(list) > s.retention {
		list = list[len(list)-s.retention:]
	}
	s.threads[cp.ThreadID] = list
	return nil
}

// Load returns the newest checkpoint of a thread.
func (s *Saver) Load(_ context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.threads[threadID]
	if len(list) == 0 {
		return nil, graph.ErrCheckpointNotFound
	}
	return list[len(list)-1].Clone(), nil
}

// AppendStep appends one step record.
func (s *Saver) AppendStep(_ context.Context, record *graph.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[record.ExecutionID] = append(s.steps[record.ExecutionID], record)
	return nil
}

// ListSteps returns an execution's step records ordered by step index,
// then node ID.
func (s *Saver) ListSteps(_ context.Context, executionID string) ([]*graph.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := append([]*graph.StepRecord(nil), s.steps[executionID]...)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].StepIndex != records[j].StepIndex {
			return records[i].StepIndex < records[j].StepIndex
		}
		return records[i].NodeID < records[j].NodeID
	})
	return records, nil
}

// DeleteThread removes a thread's checkpoints.
func (s *Saver) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Close is a no-op.
func (s *Saver) Close() error {
	return nil
}
