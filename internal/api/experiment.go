package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/physics-lab/internal/agent"
	"github.com/ashureev/physics-lab/internal/domain"
	"github.com/ashureev/physics-lab/internal/export"
	"github.com/ashureev/physics-lab/internal/store"
)

// ExperimentResponse is returned by the synchronous generation endpoint.
type ExperimentResponse struct {
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Files     map[string]string `json:"files"`
	Todos     []domain.Todo     `json:"todos"`
}

// GenerateExperiment handles POST /api/generate-experiment.
func (h *Handler) GenerateExperiment(w http.ResponseWriter, r *http.Request) {
	var req domain.ExperimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.experiments.Generate(r.Context(), req)
	switch {
	case errors.Is(err, agent.ErrEmptyDescription):
		Error(w, http.StatusBadRequest, "Experiment description is required")
		return
	case errors.Is(err, agent.ErrBusy):
		w.Header().Set("Retry-After", "30")
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("experiment generation failed", "error", err)
		Error(w, http.StatusInternalServerError, fmt.Sprintf("Error generating experiment: %v", err))
		return
	}

	JSON(w, http.StatusOK, ExperimentResponse{
		SessionID: session.ID,
		Status:    "completed",
		Message:   fmt.Sprintf("Successfully generated experiment guide with %d files", len(session.Files)),
		Files:     session.Files,
		Todos:     session.Todos,
	})
}

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.experiments.Sessions(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

// loadSession resolves {sessionID} or writes a 404.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.experiments.Session(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	session.EnsureCollections()
	return session, true
}

// GetSession handles GET /api/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.loadSession(w, r); ok {
		JSON(w, http.StatusOK, session)
	}
}

// ListFiles handles GET /api/sessions/{sessionID}/files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.loadSession(w, r); ok {
		JSON(w, http.StatusOK, session.Files)
	}
}

// GetFile handles GET /api/sessions/{sessionID}/files/{filename}.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "filename")
	content, ok := session.Files[name]
	if !ok {
		Error(w, http.StatusNotFound, "File not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"filename":   name,
		"content":    content,
		"session_id": session.ID,
	})
}

// DownloadFile handles GET /api/sessions/{sessionID}/download/{filename}.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "filename")
	content, ok := session.Files[name]
	if !ok {
		Error(w, http.StatusNotFound, "File not found")
		return
	}
	attachment(w, "text/markdown; charset=utf-8", "attachment", name, []byte(content))
}

// DownloadZip handles GET /api/sessions/{sessionID}/download-zip.
func (h *Handler) DownloadZip(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	data, err := h.archiver.ToZip(r.Context(), session.Files, session.Images, session.ID)
	if err != nil {
		h.logger.Error("failed to build archive", "session_id", session.ID, "error", err)
		Error(w, http.StatusInternalServerError, fmt.Sprintf("Error creating archive: %v", err))
		return
	}
	attachment(w, "application/zip", "attachment", fmt.Sprintf("physics_experiment_%s.zip", session.ID), data)
}

// DownloadHTML handles GET /api/sessions/{sessionID}/download-html.
func (h *Handler) DownloadHTML(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	page, err := export.ToHTML(session.Files, session.Images, session.ID)
	if err != nil {
		h.logger.Error("failed to render report", "session_id", session.ID, "error", err)
		Error(w, http.StatusInternalServerError, fmt.Sprintf("Error creating report: %v", err))
		return
	}
	attachment(w, "text/html; charset=utf-8", "attachment", fmt.Sprintf("physics_experiment_%s.html", session.ID), []byte(page))
}

// ListImages handles GET /api/sessions/{sessionID}/images.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.loadSession(w, r); ok {
		JSON(w, http.StatusOK, map[string]any{"images": session.Images})
	}
}

// GetImage handles GET /api/sessions/{sessionID}/images/{index}. The image
// is downloaded again on every call.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(session.Images) {
		Error(w, http.StatusNotFound, "Image not found")
		return
	}

	data, err := h.images.Download(r.Context(), session.Images[index])
	if err != nil {
		h.logger.Warn("failed to load image", "session_id", session.ID, "index", index, "error", err)
		Error(w, http.StatusInternalServerError, fmt.Sprintf("Error loading image: %v", err))
		return
	}
	attachment(w, "image/jpeg", "inline", fmt.Sprintf("image_%d.jpg", index), data)
}
