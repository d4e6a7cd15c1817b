//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/graph"
)

// newTestSaver connects to the Redis named by THREADFLOW_REDIS_ADDR and
// skips when none is available.
func newTestSaver(t *testing.T, opts ...Option) *Saver {
	t.Helper()
	addr := os.Getenv("THREADFLOW_REDIS_ADDR")
	if addr == "" {
		t.Skip("THREADFLOW_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	s, err := NewSaver(client)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.DeleteThread(context.Background(), "t-redis")
		client.Close()
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "threadflow:checkpoint:t1", checkpointKey("t1"))
	assert.Equal(t, "threadflow:steps:x1", stepsKey("x1"))
}

func TestNewSaverRequiresClient(t *testing.T) {
	_, err := NewSaver(nil)
	assert.Error(t, err)
}

func TestNewSaverFromURLRejectsBadURL(t *testing.T) {
	_, err := NewSaverFromURL("not-a-url")
	assert.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &graph.Checkpoint{
		ThreadID:  "t-redis",
		StepIndex: 1,
		State:     graph.State{"plan": "draft"},
		Frontier:  []string{"confirm"},
	}))
	require.NoError(t, s.Save(ctx, &graph.Checkpoint{
		ThreadID:  "t-redis",
		StepIndex: 2,
		State:     graph.State{"plan": "final"},
	}))

	loaded, err := s.Load(ctx, "t-redis")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.StepIndex)
	assert.Equal(t, "final", loaded.State["plan"])
}

func TestLoadMissingThread(t *testing.T) {
	s := newTestSaver(t)
	_, err := s.Load(context.Background(), "missing-thread")
	assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}
