//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package execution_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadflow-ai/threadflow/graph"
	"github.com/threadflow-ai/threadflow/graph/checkpoint/inmemory"
	"github.com/threadflow-ai/threadflow/runner"
	"github.com/threadflow-ai/threadflow/server/execution"
)

func compileEcho(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewStateGraph(graph.NewStateSchema()).
		AddNode("echo", func(ctx context.Context, state graph.State) (graph.State, error) {
			return graph.State{"echoed": state["message"]}, nil
		}).
		SetEntryPoint("echo").
		AddEdge("echo", graph.End).
		SetOutputKey("echoed").
		Compile()
	require.NoError(t, err)
	return g
}

func compilePausing(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewStateGraph(graph.NewStateSchema()).
		AddNode("draft", func(ctx context.Context, state graph.State) (graph.State, error) {
			return graph.State{"draft": "v1"}, nil
		}).
		AddNode("publish", func(ctx context.Context, state graph.State) (graph.State, error) {
			return graph.State{"published": true}, nil
		}, graph.WithAwaitInput("approve the draft")).
		SetEntryPoint("draft").
		AddEdge("draft", "publish").
		AddEdge("publish", graph.End).
		Compile()
	require.NoError(t, err)
	return g
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCreateExecutionReturnsResult(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/executions", map[string]any{
		"input": map[string]any{"message": "hi"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		ExecutionID string `json:"execution_id"`
		Status      string `json:"status"`
		Output      any    `json:"output"`
		StepCount   int    `json:"step_count"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, "COMPLETED", result.Status)
	assert.Equal(t, "hi", result.Output)
	assert.Equal(t, 1, result.StepCount)
	assert.NotEmpty(t, result.ExecutionID)
}

func TestCreateRejectsUnknownWorkflow(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/executions", map[string]any{
		"workflow_id": "someone-elses-graph",
		"input":       map[string]any{},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/executions", map[string]any{
		"workflow_id": "echo",
		"input":       map[string]any{"message": "hi"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamDeliversOrderedEvents(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	body, err := json.Marshal(map[string]any{
		"input":  map[string]any{"message": "hi"},
		"stream": true,
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/executions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, names)
	assert.Equal(t, "execution_start", names[0])
	assert.Equal(t, "execution_complete", names[len(names)-1])
	assert.Contains(t, names, "node_start")
	assert.Contains(t, names, "node_complete")
}

func TestAcceptHeaderSelectsStreaming(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	body, err := json.Marshal(map[string]any{"input": map[string]any{"message": "hi"}})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/executions", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestGetExecutionAndSteps(t *testing.T) {
	saver := inmemory.NewSaver()
	r := runner.New("echo", compileEcho(t), runner.WithCheckpointSaver(saver))
	srv := httptest.NewServer(execution.New(r).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/executions", map[string]any{
		"input":     map[string]any{"message": "hi"},
		"thread_id": "th-http",
	})
	var result struct {
		ExecutionID string `json:"execution_id"`
	}
	decodeBody(t, resp, &result)

	getResp, err := http.Get(srv.URL + "/v1/executions/" + result.ExecutionID)
	require.NoError(t, err)
	var record struct {
		ID        string `json:"id"`
		GraphName string `json:"graph_name"`
		ThreadID  string `json:"thread_id"`
	}
	decodeBody(t, getResp, &record)
	assert.Equal(t, result.ExecutionID, record.ID)
	assert.Equal(t, "echo", record.GraphName)
	assert.Equal(t, "th-http", record.ThreadID)

	stepsResp, err := http.Get(srv.URL + "/v1/executions/" + result.ExecutionID + "/steps")
	require.NoError(t, err)
	var steps []struct {
		NodeID string `json:"node_id"`
	}
	decodeBody(t, stepsResp, &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, "echo", steps[0].NodeID)
}

func TestGetUnknownExecution(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/executions/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResumeSuspendedThreadOverHTTP(t *testing.T) {
	saver := inmemory.NewSaver()
	r := runner.New("wizard", compilePausing(t), runner.WithCheckpointSaver(saver))
	srv := httptest.NewServer(execution.New(r).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/executions", map[string]any{
		"input":     map[string]any{},
		"thread_id": "th-wiz",
	})
	var paused struct {
		Status     string `json:"status"`
		AwaitInput string `json:"await_input"`
	}
	decodeBody(t, resp, &paused)
	require.Equal(t, "AWAITING_INPUT", paused.Status)
	assert.Equal(t, "approve the draft", paused.AwaitInput)

	resumeResp := postJSON(t, srv.URL+"/v1/threads/th-wiz/resume", map[string]any{
		"input": map[string]any{"approved": true},
	})
	var final struct {
		Status string `json:"status"`
	}
	decodeBody(t, resumeResp, &final)
	assert.Equal(t, "COMPLETED", final.Status)
}

func TestResumeUnknownThread(t *testing.T) {
	saver := inmemory.NewSaver()
	r := runner.New("wizard", compilePausing(t), runner.WithCheckpointSaver(saver))
	srv := httptest.NewServer(execution.New(r).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/threads/ghost/resume", map[string]any{
		"input": map[string]any{},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRunningExecution(t *testing.T) {
	g, err := graph.NewStateGraph(graph.NewStateSchema()).
		AddNode("block", func(ctx context.Context, state graph.State) (graph.State, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).
		SetEntryPoint("block").
		AddEdge("block", graph.End).
		Compile()
	require.NoError(t, err)

	r := runner.New("blocker", g)
	srv := httptest.NewServer(execution.New(r).Handler())
	defer srv.Close()

	x, err := r.Start(context.Background(), graph.State{})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	resp := postJSON(t, fmt.Sprintf("%s/v1/executions/%s/cancel", srv.URL, x.ID()), map[string]any{})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	res := runner.Subscribe(x, nil)
	assert.Equal(t, graph.StatusCancelled, res.Status)
}

func TestClientDisconnectDoesNotCancelExecution(t *testing.T) {
	g, err := graph.NewStateGraph(graph.NewStateSchema()).
		AddNode("slow", func(ctx context.Context, state graph.State) (graph.State, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(150 * time.Millisecond):
				return graph.State{"done": true}, nil
			}
		}).
		SetEntryPoint("slow").
		AddEdge("slow", graph.End).
		Compile()
	require.NoError(t, err)

	r := runner.New("slow", g)
	srv := httptest.NewServer(execution.New(r).Handler())
	defer srv.Close()

	body, err := json.Marshal(map[string]any{
		"input":  map[string]any{},
		"stream": true,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		srv.URL+"/v1/executions", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	// Read the first SSE line, then drop the connection mid-stream.
	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	cancel()
	resp.Body.Close()

	require.Eventually(t, func() bool {
		records := r.List()
		return len(records) == 1 && records[0].Status == graph.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond,
		"execution should finish after the stream consumer went away")
}

func TestCancelUnknownExecution(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/executions/ghost/cancel", map[string]any{})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListExecutions(t *testing.T) {
	srv := httptest.NewServer(execution.New(runner.New("echo", compileEcho(t))).Handler())
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/v1/executions", map[string]any{
			"input": map[string]any{"message": i},
		})
		resp.Body.Close()
	}
	resp, err := http.Get(srv.URL + "/v1/executions")
	require.NoError(t, err)
	var records []json.RawMessage
	decodeBody(t, resp, &records)
	assert.Len(t, records, 2)
}
