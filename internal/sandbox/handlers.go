package sandbox

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bc2as/internal/apperr"
	"github.com/starford/bc2as/internal/recordstore"
)

const maxBodyBytes = 10 << 20

// Handler holds the sandbox route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable body"))
		return nil, false
	}
	return body, true
}

// Login handles POST /users/{username}/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.Login(r.Context(), chi.URLParam(r, "username"), r.URL.Query().Get("password"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": token})
}

// ListRepositories handles GET /repositories.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Repositories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateRepository handles POST /repositories.
func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.svc.CreateRepository(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRepository handles GET /repositories/{repoID}.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	repoID, ok := idParam(r, "repoID")
	if !ok {
		writeError(w, r, apperr.ErrNotFound)
		return
	}
	repo, err := h.svc.Repository(r.Context(), repoID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// FindByID handles GET /repositories/{repoID}/find_by_id/archival_objects.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	repoID, ok := idParam(r, "repoID")
	if !ok {
		writeError(w, r, apperr.ErrNotFound)
		return
	}
	refs, err := h.svc.FindArchivalObjects(r.Context(), repoID, r.URL.Query()["ref_id[]"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archival_objects": refs})
}

// CreateRecord returns the handler for POST /repositories/{repoID}/<kind>.
func (h *Handler) CreateRecord(kind recordstore.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoID, ok := idParam(r, "repoID")
		if !ok {
			writeError(w, r, apperr.ErrNotFound)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		res, err := h.svc.CreateRecord(r.Context(), repoID, kind, body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GetRecord returns the handler for GET /repositories/{repoID}/<kind>/{id}.
func (h *Handler) GetRecord(kind recordstore.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoID, ok1 := idParam(r, "repoID")
		id, ok2 := idParam(r, "id")
		if !ok1 || !ok2 {
			writeError(w, r, apperr.ErrNotFound)
			return
		}
		rec, err := h.svc.GetRecord(r.Context(), repoID, kind, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// UpdateRecord returns the handler for POST /repositories/{repoID}/<kind>/{id}.
func (h *Handler) UpdateRecord(kind recordstore.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoID, ok1 := idParam(r, "repoID")
		id, ok2 := idParam(r, "id")
		if !ok1 || !ok2 {
			writeError(w, r, apperr.ErrNotFound)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		res, err := h.svc.UpdateRecord(r.Context(), repoID, kind, id, body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// AddChildren handles POST /repositories/{repoID}/archival_objects/{id}/children.
func (h *Handler) AddChildren(w http.ResponseWriter, r *http.Request) {
	repoID, ok1 := idParam(r, "repoID")
	id, ok2 := idParam(r, "id")
	if !ok1 || !ok2 {
		writeError(w, r, apperr.ErrNotFound)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.svc.AddChildren(r.Context(), repoID, id, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
