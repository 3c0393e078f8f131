// Package api implements the HTTP surface for Envoy's tool operations.
// Agents call tools over this surface; the X-Agent-ID header carries
// the caller's identity into ownership-scoped tools like delegation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollis/envoy-ai-agent/internal/buildinfo"
	"github.com/hollis/envoy-ai-agent/internal/tools"
	"github.com/hollis/envoy-ai-agent/internal/workflow"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	registry  *tools.Registry
	directory *workflow.Directory
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates the API server.
func NewServer(address string, port int, registry *tools.Registry, directory *workflow.Directory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		registry:  registry,
		directory: directory,
		logger:    logger.With("component", "api"),
	}
}

// routes builds the request mux. Separate from Start so tests can
// exercise handlers without a listener.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/tools", s.handleToolList)
	mux.HandleFunc("POST /v1/tools/{name}", s.handleToolExec)
	mux.HandleFunc("POST /v1/workflows", s.handleWorkflowCreate)
	mux.HandleFunc("POST /v1/workflows/{id}/members", s.handleMemberAdd)
	mux.HandleFunc("GET /v1/workflows/{id}/members", s.handleMemberList)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 660 * time.Second, // Longer than the observe wait cap
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"tools": s.registry.List()}, s.logger)
}

// handleToolExec runs a named tool. The request body is the tool's
// argument object; identity headers scope the execution.
func (s *Server) handleToolExec(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.registry.Get(name) == nil {
		http.Error(w, fmt.Sprintf("unknown tool: %s", name), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if agentID := r.Header.Get("X-Agent-ID"); agentID != "" {
		ctx = tools.WithAgentID(ctx, agentID)
	}
	if convID := r.Header.Get("X-Conversation-ID"); convID != "" {
		ctx = tools.WithConversationID(ctx, convID)
	}

	result, err := s.registry.Execute(ctx, name, string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"result": json.RawMessage(toRawJSON(result))}, s.logger)
}

// toRawJSON passes tool output through untouched when it already is
// JSON, otherwise wraps it as a JSON string.
func toRawJSON(s string) []byte {
	if json.Valid([]byte(s)) {
		return []byte(s)
	}
	out, _ := json.Marshal(s)
	return out
}

func (s *Server) handleWorkflowCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	id, err := s.directory.CreateWorkflow(req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"workflow_id": id}, s.logger)
}

func (s *Server) handleMemberAdd(w http.ResponseWriter, r *http.Request) {
	var m workflow.Member
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "invalid member: "+err.Error(), http.StatusBadRequest)
		return
	}
	if m.AgentID == "" || m.Name == "" {
		http.Error(w, "agent_id and name are required", http.StatusBadRequest)
		return
	}

	if err := s.directory.AddMember(r.PathValue("id"), m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMemberList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"members": s.directory.Members(r.PathValue("id"))}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	}, s.logger)
}
