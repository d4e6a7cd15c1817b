//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed checkpoint saver for single-node
// durable deployments. It works over database/sql, so any compatible
// driver (such as mattn/go-sqlite3) can supply the connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/threadflow-ai/threadflow/graph"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id    TEXT NOT NULL,
	step_index   INTEGER NOT NULL,
	execution_id TEXT NOT NULL,
	payload      TEXT NOT NULL,
	await_input  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (thread_id, step_index)
);
CREATE TABLE IF NOT EXISTS step_records (
	execution_id TEXT NOT NULL,
	step_index   INTEGER NOT NULL,
	node_id      TEXT NOT NULL,
	payload      TEXT NOT NULL,
	PRIMARY KEY (execution_id, step_index, node_id)
);
CREATE INDEX IF NOT EXISTS idx_step_records_execution
	ON step_records (execution_id, step_index, node_id);
`

// Saver persists checkpoints in SQLite.
type Saver struct {
	db        *sql.DB
	retention int
}

// Option configures the saver.
type Option func(*Saver)

// WithRetention prunes checkpoints per thread down to the newest n.
// Zero keeps everything.
func WithRetention(n int) Option {
	return func(s *Saver) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewSaver creates the schema if needed and returns a saver over db.
// The saver does not own the connection; Close does not close it.
func NewSaver(ctx context.Context, db *sql.DB, opts ...Option) (*Saver, error) {
	if db == nil {
		return nil, errors.New("sqlite saver requires a database connection")
	}
	s := &Saver{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, createTablesSQL); err != nil {
		return nil, fmt.Errorf("create checkpoint tables: %w", err)
	}
	return s, nil
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// Save writes a checkpoint in one transaction. A second write of the same
// (thread, step) replaces the first.
func (s *Saver) Save(ctx context.Context, checkpoint *graph.Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step_index, execution_id, payload, await_input, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id, step_index) DO UPDATE SET
			execution_id = excluded.execution_id,
			payload      = excluded.payload,
			await_input  = excluded.await_input,
			created_at   = excluded.created_at`,
		checkpoint.ThreadID, checkpoint.StepIndex, checkpoint.ExecutionID,
		string(payload), checkpoint.AwaitInput, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if s.retention > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM checkpoints
			WHERE thread_id = ? AND step_index NOT IN (
				SELECT step_index FROM checkpoints
				WHERE thread_id = ?
				ORDER BY step_index DESC LIMIT ?)`,
			checkpoint.ThreadID, checkpoint.ThreadID, s.retention)
		if err != nil {
			return fmt.Errorf("prune checkpoints: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Load returns the newest checkpoint of a thread.
func (s *Saver) Load(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM checkpoints
		WHERE thread_id = ?
		ORDER BY step_index DESC LIMIT 1`, threadID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, graph.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var checkpoint graph.Checkpoint
	if err := json.Unmarshal([]byte(payload), &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// AppendStep writes one step record. Re-appending the same record is
// idempotent.
func (s *Saver) AppendStep(ctx context.Context, record *graph.StepRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal step record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_records (execution_id, step_index, node_id, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (execution_id, step_index, node_id) DO UPDATE SET
			payload = excluded.payload`,
		record.ExecutionID, record.StepIndex, record.NodeID, string(payload))
	if err != nil {
		return fmt.Errorf("write step record: %w", err)
	}
	return nil
}

// ListSteps returns an execution's step records ordered by step index,
// then node ID.
func (s *Saver) ListSteps(ctx context.Context, executionID string) ([]*graph.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM step_records
		WHERE execution_id = ?
		ORDER BY step_index ASC, node_id ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list step records: %w", err)
	}
	defer rows.Close()
	var records []*graph.StepRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan step record: %w", err)
		}
		var record graph.StepRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("unmarshal step record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// DeleteThread removes a thread's checkpoints.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close is a no-op: the caller owns the database connection.
func (s *Saver) Close() error {
	return nil
}
