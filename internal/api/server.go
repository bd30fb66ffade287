// Package api exposes the board over HTTP REST.
//
// The API layer only calls the board's public operations and maps the
// domain error taxonomy to status codes; it owns no task state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flowboard/flowboard/internal/board"
	"github.com/flowboard/flowboard/internal/observability"
	"github.com/flowboard/flowboard/internal/task"
)

// Server serves the board HTTP API.
type Server struct {
	addr  string
	board *board.Board
	log   *observability.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer creates an HTTP server for the given board.
// addr is the listen address, e.g. ":8080" or "127.0.0.1:9000".
func NewServer(addr string, b *board.Board, log *observability.Logger) *Server {
	if log == nil {
		log = observability.NewLogger("api", nil)
	}
	return &Server{addr: addr, board: b, log: log}
}

// createRequest is the JSON body for POST /tasks.
type createRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// rejectRequest is the JSON body for POST /tasks/{id}/reject.
type rejectRequest struct {
	Reason string `json:"reason"`
}

// taskResponse wraps a task snapshot. EnrichmentError is set when the
// transition committed but the assistant call afterwards failed.
type taskResponse struct {
	*task.Task
	EnrichmentError string `json:"enrichment_error,omitempty"`
}

// boardResponse is the grouped-by-stage snapshot for GET /board.
type boardResponse struct {
	Backlog    []*task.Task `json:"backlog"`
	InProgress []*task.Task `json:"in_progress"`
	Review     []*task.Task `json:"review"`
	Done       []*task.Task `json:"done"`
	WIPLimit   int          `json:"wip_limit"`
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Tasks  int    `json:"tasks"`
}

// errorResponse is the JSON body for any error status.
type errorResponse struct {
	Error string `json:"error"`
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	startTime := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status: "ok",
			Uptime: time.Since(startTime).String(),
			Tasks:  len(s.board.ListTasks()),
		})
	})
	mux.HandleFunc("POST /tasks", s.handleCreate)
	mux.HandleFunc("GET /tasks", s.handleList)
	mux.HandleFunc("GET /tasks/{id}", s.handleGet)
	mux.HandleFunc("POST /tasks/{id}/start", s.transition(s.board.StartWork))
	mux.HandleFunc("POST /tasks/{id}/review", s.transition(s.board.StartReview))
	mux.HandleFunc("POST /tasks/{id}/approve", s.transition(s.board.Approve))
	mux.HandleFunc("POST /tasks/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /board", s.handleBoard)
	return mux
}

// Start launches the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("api: listen: %w", err)
	}
	s.listener = ln
	s.mu.Unlock()

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("api listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title required"})
		return
	}

	t, err := s.board.CreateTask(r.Context(), req.Title, req.Description, req.DependsOn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskResponse{Task: t})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("stage"); raw != "" {
		stage, err := task.ParseStage(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.board.TasksByStage(stage))
		return
	}
	writeJSON(w, http.StatusOK, s.board.ListTasks())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.board.GetTask(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Task: t})
}

// transition wraps the single-argument board operations that share the
// same request/response shape.
func (s *Server) transition(op func(context.Context, string) (*task.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := op(r.Context(), r.PathValue("id"))
		if err != nil && t == nil {
			s.writeError(w, err)
			return
		}
		resp := taskResponse{Task: t}
		if err != nil {
			// Transition committed, assistant enrichment failed.
			resp.EnrichmentError = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reason required"})
		return
	}

	t, err := s.board.Reject(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Task: t})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	resp := boardResponse{
		Backlog:    s.board.TasksByStage(task.StageBacklog),
		InProgress: s.board.TasksByStage(task.StageInProgress),
		Review:     s.board.TasksByStage(task.StageReview),
		Done:       s.board.TasksByStage(task.StageDone),
		WIPLimit:   s.board.WIPLimit(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps the domain error taxonomy to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	var notFound *task.NotFoundError
	var wip *task.WIPLimitError
	var dep *task.UnresolvedDependencyError
	var invalid *task.InvalidTransitionError

	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &wip):
		status = http.StatusTooManyRequests
	case errors.As(err, &dep):
		status = http.StatusConflict
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
