package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/physics-lab/internal/domain"
)

const imagesUnavailable = "Image generation service not available. Set REPLICATE_API_TOKEN to enable it."

// ImageRequest is the body of POST /api/generate-image.
type ImageRequest struct {
	Topic        string            `json:"experiment_topic"`
	Style        domain.ImageStyle `json:"style"`
	CustomPrompt *string           `json:"custom_prompt,omitempty"`
}

// ImageResponse reports the outcome of a single image generation.
type ImageResponse struct {
	Success   bool              `json:"success"`
	ImageURL  *string           `json:"image_url"`
	LocalPath *string           `json:"local_path"`
	Message   string            `json:"message"`
	Topic     string            `json:"experiment_topic"`
	Style     domain.ImageStyle `json:"style"`
}

// MultipleImagesRequest is the body of POST /api/generate-multiple-images.
type MultipleImagesRequest struct {
	Topic  string              `json:"experiment_topic"`
	Count  int                 `json:"count"`
	Styles []domain.ImageStyle `json:"styles"`
}

// MultipleImagesResponse reports a batch of image generations.
type MultipleImagesResponse struct {
	Success        bool                 `json:"success"`
	Topic          string               `json:"experiment_topic"`
	GeneratedCount int                  `json:"generated_count"`
	TotalRequested int                  `json:"total_requested"`
	Images         []domain.ImageResult `json:"images"`
}

// GenerateImage handles POST /api/generate-image.
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	if !h.images.Available() {
		Error(w, http.StatusServiceUnavailable, imagesUnavailable)
		return
	}

	var req ImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		Error(w, http.StatusBadRequest, "experiment_topic is required")
		return
	}
	if req.Style == "" {
		req.Style = domain.StyleScientific
	}
	custom := ""
	if req.CustomPrompt != nil {
		custom = *req.CustomPrompt
	}

	result := h.images.GenerateImage(r.Context(), req.Topic, req.Style, custom)
	resp := ImageResponse{
		Success: result.OK(),
		Topic:   req.Topic,
		Style:   req.Style,
	}
	if result.OK() {
		resp.ImageURL = result.URL
		resp.LocalPath = result.LocalPath
		resp.Message = fmt.Sprintf("Successfully generated %s image for '%s'", req.Style, req.Topic)
	} else {
		reason := result.Error
		if reason == "" {
			reason = "Unknown error"
		}
		resp.Message = fmt.Sprintf("Failed to generate image: %s", reason)
	}
	JSON(w, http.StatusOK, resp)
}

// GenerateMultipleImages handles POST /api/generate-multiple-images. The
// topic, count and styles may come from a JSON body or from query
// parameters.
func (h *Handler) GenerateMultipleImages(w http.ResponseWriter, r *http.Request) {
	if !h.images.Available() {
		Error(w, http.StatusServiceUnavailable, imagesUnavailable)
		return
	}

	req, err := h.multipleImagesRequest(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	results := h.images.GenerateMultipleImages(r.Context(), req.Topic, req.Count, req.Styles)
	generated := 0
	for _, res := range results {
		if res.OK() {
			generated++
		}
	}
	if results == nil {
		results = []domain.ImageResult{}
	}

	JSON(w, http.StatusOK, MultipleImagesResponse{
		Success:        true,
		Topic:          req.Topic,
		GeneratedCount: generated,
		TotalRequested: req.Count,
		Images:         results,
	})
}

func (h *Handler) multipleImagesRequest(w http.ResponseWriter, r *http.Request) (MultipleImagesRequest, error) {
	req := MultipleImagesRequest{Count: 3}
	if r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(w, r, &req); err != nil {
			return req, err
		}
	}

	q := r.URL.Query()
	if v := q.Get("experiment_topic"); v != "" {
		req.Topic = v
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("count must be an integer")
		}
		req.Count = n
	}
	for _, s := range q["styles"] {
		req.Styles = append(req.Styles, domain.ImageStyle(s))
	}

	if strings.TrimSpace(req.Topic) == "" {
		return req, fmt.Errorf("experiment_topic is required")
	}
	if req.Count <= 0 {
		req.Count = 3
	}
	if req.Count > domain.MaxImagesPerRequest {
		return req, fmt.Errorf("count must be at most %d", domain.MaxImagesPerRequest)
	}
	if len(req.Styles) == 0 {
		req.Styles = domain.DefaultImageStyles
	}
	return req, nil
}
