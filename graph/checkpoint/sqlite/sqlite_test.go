//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/graph"
)

func newTestSaver(t *testing.T, opts ...Option) *Saver {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewSaver(context.Background(), db, opts...)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	cp := &graph.Checkpoint{
		ThreadID:    "t1",
		ExecutionID: "x1",
		StepIndex:   2,
		State:       graph.State{"plan": "draft", "items": []any{"a", "b"}},
		Frontier:    []string{"confirm"},
		AwaitInput:  "confirm the plan",
	}
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "x1", loaded.ExecutionID)
	assert.Equal(t, 2, loaded.StepIndex)
	assert.Equal(t, "draft", loaded.State["plan"])
	assert.Equal(t, []string{"confirm"}, loaded.Frontier)
	assert.Equal(t, "confirm the plan", loaded.AwaitInput)
}

func TestLoadReturnsNewest(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()
	for step := 1; step <= 4; step++ {
		require.NoError(t, s.Save(ctx, &graph.Checkpoint{
			ThreadID:  "t1",
			StepIndex: step,
			State:     graph.State{"step": float64(step)},
		}))
	}
	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.StepIndex)
}

func TestLoadMissingThread(t *testing.T) {
	s := newTestSaver(t)
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}

func TestSaveSameStepReplaces(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{ThreadID: "t1", StepIndex: 1, State: graph.State{"v": "first"}}))
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{ThreadID: "t1", StepIndex: 1, State: graph.State{"v": "second"}}))

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.State["v"])
}

func TestRetentionPrunes(t *testing.T) {
	s := newTestSaver(t, WithRetention(2))
	ctx := context.Background()
	for step := 1; step <= 5; step++ {
		require.NoError(t, s.Save(ctx, &graph.Checkpoint{ThreadID: "t1", StepIndex: step}))
	}
	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM checkpoints WHERE thread_id = ?`, "t1").Scan(&count))
	assert.Equal(t, 2, count)

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.StepIndex)
}

func TestStepRecordsOrdered(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()
	require.NoError(t, s.AppendStep(ctx, &graph.StepRecord{ExecutionID: "x", StepIndex: 2, NodeID: "b"}))
	require.NoError(t, s.AppendStep(ctx, &graph.StepRecord{ExecutionID: "x", StepIndex: 1, NodeID: "a"}))
	require.NoError(t, s.AppendStep(ctx, &graph.StepRecord{ExecutionID: "x", StepIndex: 2, NodeID: "a"}))

	records, err := s.ListSteps(ctx, "x")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].NodeID)
	assert.Equal(t, 1, records[0].StepIndex)
	assert.Equal(t, "b", records[2].NodeID)
}

func TestDeleteThread(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{ThreadID: "t1", StepIndex: 1}))
	require.NoError(t, s.DeleteThread(ctx, "t1"))
	_, err := s.Load(ctx, "t1")
	assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}
