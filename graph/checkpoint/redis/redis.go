//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed checkpoint saver for deployments
// that share threads across processes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threadflow-ai/threadflow/graph"
)

const (
	checkpointKeyPrefix = "threadflow:checkpoint:"
	stepsKeyPrefix      = "threadflow:steps:"
)

// Saver persists checkpoints in Redis. Checkpoints of a thread live in a
// sorted set scored by step index; step records in a list per execution.
type Saver struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retention int
}

// Option configures the saver.
type Option func(*Saver)

// WithTTL expires a thread's checkpoint data after the given idle time.
// Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Saver) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRetention prunes checkpoints per thread down to the newest n.
// Zero keeps everything.
func WithRetention(n int) Option {
	return func(s *Saver) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewSaver creates a saver over an existing Redis client.
func NewSaver(client redis.UniversalClient, opts ...Option) (*Saver, error) {
	if client == nil {
		return nil, fmt.Errorf("redis saver requires a client")
	}
	s := &Saver{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSaverFromURL connects to the given Redis URL and returns a saver.
func NewSaverFromURL(url string, opts ...Option) (*Saver, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewSaver(redis.NewClient(redisOpts), opts...)
}

var _ graph.CheckpointSaver = (*Saver)(nil)

func checkpointKey(threadID string) string {
	return checkpointKeyPrefix + threadID
}

func stepsKey(executionID string) string {
	return stepsKeyPrefix + executionID
}

// Save writes a checkpoint, replacing any previous one at the same step.
func (s *Saver) Save(ctx context.Context, checkpoint *graph.Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := checkpointKey(checkpoint.ThreadID)
	score := strconv.Itoa(checkpoint.StepIndex)
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, score, score)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(checkpoint.StepIndex),
		Member: payload,
	})
	if s.retention > 0 {
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.retention-1))
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load returns the newest checkpoint of a thread.
func (s *Saver) Load(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, checkpointKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if len(members) == 0 {
		return nil, graph.ErrCheckpointNotFound
	}
	var checkpoint graph.Checkpoint
	if err := json.Unmarshal([]byte(members[0]), &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// AppendStep appends one step record to the execution's trail.
func (s *Saver) AppendStep(ctx context.Context, record *graph.StepRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal step record: %w", err)
	}
	key := stepsKey(record.ExecutionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write step record: %w", err)
	}
	return nil
}

// ListSteps returns an execution's step records ordered by step index,
// then node ID.
func (s *Saver) ListSteps(ctx context.Context, executionID string) ([]*graph.StepRecord, error) {
	raw, err := s.client.LRange(ctx, stepsKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list step records: %w", err)
	}
	records := make([]*graph.StepRecord, 0, len(raw))
	for _, item := range raw {
		var record graph.StepRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("unmarshal step record: %w", err)
		}
		records = append(records, &record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].StepIndex != records[j].StepIndex {
			return records[i].StepIndex < records[j].StepIndex
		}
		return records[i].NodeID < records[j].NodeID
	})
	return records, nil
}

// DeleteThread removes a thread's checkpoints.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, checkpointKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Saver) Close() error {
	return s.client.Close()
}
