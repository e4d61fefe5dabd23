package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/bodydetect/internal/store"
)

// SessionsHandler serves the camera session history.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a SessionsHandler with the given store.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

type listSessionsResponse struct {
	Sessions []store.SessionRecord `json:"sessions"`
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, id)
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

func (h *SessionsHandler) get(w http.ResponseWriter, id string) {
	rec, err := h.store.Sessions().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
