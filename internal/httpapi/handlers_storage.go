package httpapi

import (
	"errors"
	"net/http"

	"github.com/inkhaven/inkhaven/internal/credential"
)

func (s *Server) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	status := "expired"
	if s.creds.Store().IsValid() {
		status = s.gateway.Status(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type tokenRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// handleStorageToken installs operator-supplied tokens. Exempt from the
// refresh gate: it is the recovery path when refresh is impossible.
func (s *Server) handleStorageToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "accessToken is required")
		return
	}

	s.creds.SetTokens(req.AccessToken, req.RefreshToken)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStorageResync(w http.ResponseWriter, r *http.Request) {
	added, err := s.library.Reconcile(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, codeRemoteFailure, "resync failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"materialized": added,
	})
}

type remoteBookEntry struct {
	ID     int64  `json:"id"`
	Path   string `json:"path"`
	UserID *int64 `json:"userId,omitempty"`
}

// handleStorageBooks lists books that exist remotely but not locally.
func (s *Server) handleStorageBooks(w http.ResponseWriter, r *http.Request) {
	refs, err := s.library.RemoteOnly(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, codeRemoteFailure, "remote listing failed: "+err.Error())
		return
	}

	items := make([]remoteBookEntry, 0, len(refs))
	for _, ref := range refs {
		items = append(items, remoteBookEntry{ID: ref.ID, Path: ref.Path, UserID: ref.UserID})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleAuthBegin(w http.ResponseWriter, r *http.Request) {
	url, err := s.creds.BeginAuthorization()
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to start authorization")
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// handleAuthCallback completes the OAuth flow. The tokens are returned in
// the response for operator-visible display — the process has no durable
// store, so the operator persists the refresh token externally.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			"authorization failed: "+errParam)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "missing authorization code")
		return
	}

	cred, err := s.creds.CompleteAuthorization(r.Context(), code, query.Get("state"))
	if err != nil {
		if errors.Is(err, credential.ErrStateMismatch) {
			writeError(w, http.StatusBadRequest, codeStateMismatch, err.Error())
			return
		}

		writeError(w, http.StatusBadGateway, codeRemoteFailure, "token exchange failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenRequest{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	})
}
