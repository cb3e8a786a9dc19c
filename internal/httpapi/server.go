// Package httpapi exposes the persistence core over HTTP: book and
// profile routes guarded by the refresh gate, the storage status and
// recovery endpoints, and the OAuth begin/callback pair.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/inkhaven/inkhaven/internal/credential"
	"github.com/inkhaven/inkhaven/internal/library"
	"github.com/inkhaven/inkhaven/internal/profile"
	"github.com/inkhaven/inkhaven/internal/storage"
)

// Error codes returned in JSON error responses.
const (
	codeReauthRequired   = "STORAGE_REAUTH_REQUIRED"
	codeStateMismatch    = "AUTH_STATE_MISMATCH"
	codeBookNotFound     = "BOOK_NOT_FOUND"
	codeBookIDConflict   = "BOOK_ID_CONFLICT"
	codeInvalidContent   = "BOOK_INVALID_CONTENT"
	codeInvalidRequest   = "REQUEST_INVALID"
	codeQuotaExceeded    = "PROFILE_QUOTA_EXCEEDED"
	codeUserRequired     = "AUTH_USER_REQUIRED"
	codeRemoteFailure    = "STORAGE_REMOTE_FAILURE"
	codeInternalError    = "SYSTEM_INTERNAL_ERROR"
	codeMethodNotAllowed = "SYSTEM_METHOD_NOT_ALLOWED"
)

// Identity headers set by the application's auth middleware (out of
// scope here); the core only consumes them.
const (
	userIDHeader    = "X-User-Id"
	userEmailHeader = "X-User-Email"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Library  *library.Library
	Profiles *profile.Store
	Gateway  *storage.Gateway
	Creds    *credential.Manager
	Logger   *slog.Logger
}

// Server exposes the persistence core's HTTP endpoints.
type Server struct {
	library  *library.Library
	profiles *profile.Store
	gateway  *storage.Gateway
	creds    *credential.Manager
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		library:  cfg.Library,
		profiles: cfg.Profiles,
		gateway:  cfg.Gateway,
		creds:    cfg.Creds,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.routes()

	return s
}

// Router returns the configured handler wrapped in the middleware chain:
// request id, request log, refresh gate.
func (s *Server) Router() http.Handler {
	return WithRequestID(WithRequestLog(s.logger, s.withRefreshGate(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("GET /api/books", s.handleListBooks)
	s.mux.HandleFunc("POST /api/books", s.handleCreateBook)
	s.mux.HandleFunc("GET /api/books/{id}", s.handleGetBook)
	s.mux.HandleFunc("PUT /api/books/{id}", s.handleUpdateBook)
	s.mux.HandleFunc("DELETE /api/books/{id}", s.handleDeleteBook)

	// profile
	s.mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	s.mux.HandleFunc("PUT /api/profile/plan", s.handleUpdatePlan)
	s.mux.HandleFunc("PATCH /api/profile/info", s.handleUpdateInfo)

	// storage management
	s.mux.HandleFunc("GET /api/storage/status", s.handleStorageStatus)
	s.mux.HandleFunc("POST /api/storage/token", s.handleStorageToken)
	s.mux.HandleFunc("POST /api/storage/resync", s.handleStorageResync)
	s.mux.HandleFunc("GET /api/storage/books", s.handleStorageBooks)

	// OAuth begin/callback — never guarded, they establish the credential.
	s.mux.HandleFunc("GET /api/auth/drive", s.handleAuthBegin)
	s.mux.HandleFunc("GET /api/auth/drive/callback", s.handleAuthCallback)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userFromRequest reads the optional identity headers. Returns a nil
// userID when the request carries no identity.
func userFromRequest(r *http.Request) (*int64, string) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return nil, ""
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, ""
	}

	return &id, strings.TrimSpace(r.Header.Get(userEmailHeader))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
