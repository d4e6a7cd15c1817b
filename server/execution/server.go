//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

// Package execution exposes graph executions over HTTP: starting runs,
// streaming their events as Server-Sent Events, inspecting records and
// step trails, resuming threads and cancelling runs.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/threadflow-ai/threadflow/graph"
	"github.com/threadflow-ai/threadflow/log"
	"github.com/threadflow-ai/threadflow/runner"
)

// Server serves one runner's executions.
type Server struct {
	runner  *runner.Runner
	router  *mux.Router
	handler http.Handler
}

// Option configures the server.
type Option func(*serverOptions)

type serverOptions struct {
	allowedOrigins []string
}

// WithAllowedOrigins restricts CORS to the given origins. Default allows
// all origins, matching local development use.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *serverOptions) { o.allowedOrigins = origins }
}

// New creates an execution server over a runner.
func New(r *runner.Runner, opts ...Option) *Server {
	o := serverOptions{allowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{runner: r, router: mux.NewRouter()}
	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: o.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	}).Handler(s.router)
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/executions", s.handleCreate).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/executions", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/executions/{id}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/executions/{id}/steps", s.handleSteps).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/executions/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/threads/{thread}/resume", s.handleResume).Methods(http.MethodPost)
}

// Handler returns the HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("execution server for graph %s listening on %s", s.runner.GraphName(), addr)
	return http.ListenAndServe(addr, s.handler)
}

type createRequest struct {
	// WorkflowID names the graph to run. Empty selects the server's
	// workflow; anything else must match it.
	WorkflowID string `json:"workflow_id,omitempty"`
	// Input is the initial (or overlay) state of the run.
	Input map[string]any `json:"input"`
	// ThreadID binds the run to a resumable thread.
	ThreadID string `json:"thread_id,omitempty"`
	// Stream requests an SSE event stream instead of a JSON result.
	Stream bool `json:"stream,omitempty"`
}

type resultResponse struct {
	ExecutionID string       `json:"execution_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Status      graph.Status `json:"status"`
	Output      any          `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
	AwaitInput  string       `json:"await_input,omitempty"`
	StepCount   int          `json:"step_count"`
}

func resultToResponse(res *graph.Result) *resultResponse {
	out := &resultResponse{
		ExecutionID: res.ExecutionID,
		ThreadID:    res.ThreadID,
		Status:      res.Status,
		AwaitInput:  res.AwaitInput,
		StepCount:   res.StepCount,
	}
	if res.Status == graph.StatusCompleted {
		out.Output = res.Output
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.WorkflowID != "" && req.WorkflowID != s.runner.GraphName() {
		writeError(w, http.StatusNotFound,
			fmt.Errorf("unknown workflow %q, this server runs %q", req.WorkflowID, s.runner.GraphName()))
		return
	}
	s.start(w, r, graph.State(req.Input), req.ThreadID, wantsStream(r, req.Stream))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread"]
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	x, err := s.runner.Resume(context.WithoutCancel(r.Context()), threadID, graph.State(req.Input))
	if err != nil {
		if errors.Is(err, runner.ErrNothingToResume) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, x, wantsStream(r, req.Stream))
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, input graph.State, threadID string, stream bool) {
	var opts []runner.StartOption
	if threadID != "" {
		opts = append(opts, runner.WithThreadID(threadID))
	}
	// Executions outlive the request: a client dropping its stream must
	// not cancel the run. Cancellation goes through the cancel endpoint.
	x, err := s.runner.Start(context.WithoutCancel(r.Context()), input, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, x, stream)
}

func (s *Server) respond(w http.ResponseWriter, x *graph.Execution, stream bool) {
	if stream {
		s.streamEvents(w, x)
		return
	}
	res := runner.Subscribe(x, nil)
	status := http.StatusOK
	if res.Status == graph.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resultToResponse(res))
}

// streamEvents writes the execution's events as SSE frames and flushes
// after each one, ending with execution_complete or
// execution_cancelled.
func (s *Server) streamEvents(w http.ResponseWriter, x *graph.Execution) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for e := range x.Events() {
		data, err := json.Marshal(e)
		if err != nil {
			log.Errorf("marshal event %s: %v", e.ID, err)
			continue
		}
		fmt.Fprintf(w, "event: %s\n", e.Name)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	x.Wait()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, ok := s.runner.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, runner.ErrExecutionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.runner.Get(id); !ok {
		writeError(w, http.StatusNotFound, runner.ErrExecutionNotFound)
		return
	}
	steps, err := s.runner.Steps(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.runner.Cancel(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	case errors.Is(err, runner.ErrExecutionNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusConflict, err)
	}
}

func wantsStream(r *http.Request, requested bool) bool {
	if requested {
		return true
	}
	return r.Header.Get("Accept") == "text/event-stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
