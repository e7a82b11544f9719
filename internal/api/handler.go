// Package api provides HTTP handlers for the physics lab API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/physics-lab/internal/domain"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// ExperimentService generates and looks up experiment sessions.
type ExperimentService interface {
	Generate(ctx context.Context, req domain.ExperimentRequest) (*domain.Session, error)
	Session(ctx context.Context, id string) (*domain.Session, error)
	Sessions(ctx context.Context) ([]string, error)
}

// ImageService generates and fetches experiment images.
type ImageService interface {
	Available() bool
	GenerateImage(ctx context.Context, topic string, style domain.ImageStyle, customPrompt string) domain.ImageResult
	GenerateMultipleImages(ctx context.Context, topic string, count int, styles []domain.ImageStyle) []domain.ImageResult
	Download(ctx context.Context, url string) ([]byte, error)
}

// Archiver builds ZIP bundles of a session.
type Archiver interface {
	ToZip(ctx context.Context, files map[string]string, images []string, sessionID string) ([]byte, error)
}

// Handler serves the experiment, export and image endpoints.
type Handler struct {
	experiments ExperimentService
	images      ImageService
	archiver    Archiver
	limit       func(http.Handler) http.Handler
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimit throttles the generation endpoints with the given middleware.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.limit = mw }
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(experiments ExperimentService, images ImageService, archiver Archiver, opts ...Option) *Handler {
	h := &Handler{
		experiments: experiments,
		images:      images,
		archiver:    archiver,
		limit:       func(next http.Handler) http.Handler { return next },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/experiment-examples", h.Examples)

		r.Group(func(r chi.Router) {
			r.Use(h.limit)
			r.Post("/generate-experiment", h.GenerateExperiment)
			r.Post("/generate-image", h.GenerateImage)
			r.Post("/generate-multiple-images", h.GenerateMultipleImages)
		})

		r.Get("/sessions", h.ListSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Get("/files", h.ListFiles)
			r.Get("/files/{filename}", h.GetFile)
			r.Get("/download/{filename}", h.DownloadFile)
			r.Get("/download-zip", h.DownloadZip)
			r.Get("/download-html", h.DownloadHTML)
			r.Get("/images", h.ListImages)
			r.Get("/images/{index}", h.GetImage)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// attachment writes a downloadable payload.
func attachment(w http.ResponseWriter, contentType, disposition, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
