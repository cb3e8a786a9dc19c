package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/inkhaven/inkhaven/internal/library"
)

// maxBodyBytes bounds request bodies; book content is text, not media.
const maxBodyBytes = 4 << 20

type createBookRequest struct {
	ID          int64                `json:"id,omitempty"`
	Title       string               `json:"title"`
	Author      string               `json:"author"`
	CoverPage   *library.PageContent `json:"coverPage,omitempty"`
	Chapters    []library.Chapter    `json:"chapters,omitempty"`
	AIGenerated bool                 `json:"aiGenerated,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return false
	}

	return true
}

func bookIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid book id")
		return 0, false
	}

	return id, true
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFromRequest(r)
	books := s.library.ListBooks(userID)

	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	content := library.BookContent{
		Title:     req.Title,
		Author:    req.Author,
		CoverPage: req.CoverPage,
		Chapters:  req.Chapters,
	}

	if err := library.ValidateContent(&content); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidContent, err.Error())
		return
	}

	userID, email := userFromRequest(r)

	// Quota enforcement happens before any mutation, and only for
	// identified users — anonymous books carry no plan.
	if userID != nil {
		p, err := s.profiles.Get(r.Context(), *userID, email)
		if err != nil {
			writeError(w, http.StatusBadGateway, codeRemoteFailure, "profile unavailable")
			return
		}

		if err := p.CheckBookQuota(); err != nil {
			writeError(w, http.StatusForbidden, codeQuotaExceeded, err.Error())
			return
		}

		if req.AIGenerated {
			if err := p.CheckAIBookQuota(); err != nil {
				writeError(w, http.StatusForbidden, codeQuotaExceeded, err.Error())
				return
			}
		}
	}

	book, err := s.library.CreateBook(r.Context(), library.Book{
		ID:        req.ID,
		Title:     content.Title,
		Author:    content.Author,
		CoverPage: content.CoverPage,
		Chapters:  content.Chapters,
		UserID:    userID,
	})
	if err != nil {
		writeError(w, http.StatusConflict, codeBookIDConflict, err.Error())
		return
	}

	if userID != nil {
		s.bumpCounters(r, *userID, email, req.AIGenerated)
	}

	writeJSON(w, http.StatusCreated, book)
}

// bumpCounters increments profile counters after a successful create.
// Counter failures are logged, not surfaced — the book already exists.
func (s *Server) bumpCounters(r *http.Request, userID int64, email string, aiGenerated bool) {
	if _, err := s.profiles.IncrementBooksCreated(r.Context(), userID, email); err != nil {
		s.logger.Warn("failed to increment books counter",
			"user_id", userID, "error", err.Error())
	}

	if !aiGenerated {
		return
	}

	if _, err := s.profiles.IncrementAIBooksCreated(r.Context(), userID, email); err != nil {
		s.logger.Warn("failed to increment AI books counter",
			"user_id", userID, "error", err.Error())
	}
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDFromPath(w, r)
	if !ok {
		return
	}

	userID, _ := userFromRequest(r)

	content, found := s.library.GetBookContent(r.Context(), id, userID)
	if !found {
		writeError(w, http.StatusNotFound, codeBookNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDFromPath(w, r)
	if !ok {
		return
	}

	var content library.BookContent
	if !decodeBody(w, r, &content) {
		return
	}

	if err := library.ValidateContent(&content); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidContent, err.Error())
		return
	}

	book, found := s.library.UpdateBookContent(r.Context(), id, content)
	if !found {
		writeError(w, http.StatusNotFound, codeBookNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDFromPath(w, r)
	if !ok {
		return
	}

	userID, _ := userFromRequest(r)

	if !s.library.DeleteBook(r.Context(), id, userID) {
		writeError(w, http.StatusNotFound, codeBookNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
