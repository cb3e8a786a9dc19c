package httpapi

import (
	"net/http"

	"github.com/inkhaven/inkhaven/internal/profile"
)

// requireUser extracts the identity headers or rejects the request.
// Profile routes are meaningless without an identified user.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	userID, email := userFromRequest(r)
	if userID == nil {
		writeError(w, http.StatusUnauthorized, codeUserRequired, "user identity required")
		return 0, "", false
	}

	return *userID, email, true
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := s.profiles.Get(r.Context(), userID, email)
	if err != nil {
		writeError(w, http.StatusBadGateway, codeRemoteFailure, "profile unavailable")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

type updatePlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updatePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plan, err := profile.ParsePlan(req.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	p, err := s.profiles.UpdatePlan(r.Context(), userID, email, plan)
	if err != nil {
		writeError(w, http.StatusBadGateway, codeRemoteFailure, "profile unavailable")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

type updateInfoRequest struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

func (s *Server) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateInfoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.profiles.UpdateInfo(r.Context(), userID, email, profile.InfoUpdate{
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, codeRemoteFailure, "profile unavailable")
		return
	}

	writeJSON(w, http.StatusOK, p)
}
