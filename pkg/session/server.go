package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/store"
	"github.com/22388o/sapio/pkg/template"
)

// maxBodyBytes bounds request bodies on write endpoints.
const maxBodyBytes = 1 << 20

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Manager *Manager
	// AuthSecret signs bearer tokens. Empty disables auth.
	AuthSecret string
	// RateRPS and RateBurst bound per-IP request rates. Zero values
	// default to 20 rps with a burst of 40.
	RateRPS   int
	RateBurst int
}

// Server is the HTTP surface of the compilation engine.
type Server struct {
	manager   *Manager
	validator *TokenValidator
	limiter   *GlobalRateLimiter
	log       *slog.Logger
	http      *http.Server
}

// NewServer creates a server around a manager.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("session: server requires a manager")
	}
	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 40
	}
	return &Server{
		manager:   cfg.Manager,
		validator: NewTokenValidator(cfg.AuthSecret),
		limiter:   NewGlobalRateLimiter(rps, burst),
		log:       slog.With("component", "api"),
	}, nil
}

// Handler builds the route table behind the middleware chain:
// request ID, then rate limiting, then bearer auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/kinds", s.handleKinds)
	mux.HandleFunc("/api/kinds/", s.handleKindRouter)
	mux.HandleFunc("/api/key", s.handleKey)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRouter)
	mux.HandleFunc("/api/records/", s.handleRecord)
	mux.HandleFunc("/api/bundles/", s.handleBundle)

	var h http.Handler = mux
	h = NewAuthMiddleware(s.validator)(h)
	h = s.limiter.Middleware(h)
	h = RequestIDMiddleware(h)
	return h
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("api listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": s.manager.PublicKey()})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Kinds())
}

// handleKindRouter serves /api/kinds/{kind} and
// /api/kinds/{kind}/schema/{branch}.
func (s *Server) handleKindRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/kinds/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		detail, ok := s.manager.Kind(parts[0])
		if !ok {
			WriteNotFound(w, "Unknown contract kind")
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case len(parts) == 3 && parts[1] == "schema":
		s.handleBranchSchema(w, parts[0], parts[2])
	default:
		WriteNotFound(w, "Unknown kind endpoint")
	}
}

func (s *Server) handleBranchSchema(w http.ResponseWriter, kind, branch string) {
	detail, ok := s.manager.Kind(kind)
	if !ok {
		WriteNotFound(w, "Unknown contract kind")
		return
	}
	for _, b := range detail.Branches {
		if b.Name != branch {
			continue
		}
		if len(b.Schema) == 0 {
			WriteNotFound(w, "Branch takes no arguments")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b.Schema)
		return
	}
	WriteNotFound(w, "Unknown branch")
}

type createSessionRequest struct {
	Kind     string          `json:"kind"`
	Network  string          `json:"network"`
	Funds    template.Sats   `json:"funds"`
	Instance json.RawMessage `json:"instance"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid session request")
		return
	}
	if req.Kind == "" {
		WriteBadRequest(w, "Field 'kind' is required")
		return
	}

	sess, err := s.manager.CreateSession(req.Kind, req.Network, req.Funds, req.Instance)
	switch {
	case errors.Is(err, ErrUnknownKind):
		WriteNotFound(w, err.Error())
	case errors.Is(err, ErrInvalidInstance):
		WriteUnprocessable(w, err.Error())
	case err != nil:
		WriteInternal(w, err)
	default:
		writeJSON(w, http.StatusCreated, sess)
	}
}

type compileRequest struct {
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
}

// handleSessionRouter serves /api/sessions/{id},
// /api/sessions/{id}/compile and /api/sessions/{id}/records.
func (s *Server) handleSessionRouter(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		WriteNotFound(w, "Missing session ID")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		sess, ok := s.manager.GetSession(id)
		if !ok {
			WriteNotFound(w, "Session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess)

	case len(parts) == 2 && parts[1] == "compile":
		if r.Method != http.MethodPost {
			WriteMethodNotAllowed(w)
			return
		}
		s.handleCompile(w, r, id)

	case len(parts) == 2 && parts[1] == "records":
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		records, err := s.manager.Records(r.Context(), id, 50)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)

	default:
		WriteNotFound(w, "Unknown session endpoint")
	}
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request, id string) {
	var req compileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && err != io.EOF {
		WriteBadRequest(w, "Invalid compile request")
		return
	}

	result, err := s.manager.Compile(r.Context(), id, req.Arguments)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		WriteNotFound(w, "Session not found")
	case err != nil:
		WriteCompileError(w, err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/records/")
	if id == "" || strings.Contains(id, "/") {
		WriteNotFound(w, "Missing record ID")
		return
	}

	rec, err := s.manager.Record(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, "Record not found")
	case err != nil:
		WriteInternal(w, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleBundle serves archived compilation bundles by content hash.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	hash := strings.TrimPrefix(r.URL.Path, "/api/bundles/")
	if !canonical.ValidHash(hash) {
		WriteBadRequest(w, "Malformed bundle hash")
		return
	}

	bundle, err := s.manager.Bundle(r.Context(), hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, "Bundle not found")
	case err != nil:
		WriteInternal(w, err)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bundle)
	}
}
