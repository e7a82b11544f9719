// Package imagegen generates experiment illustrations through Replicate and
// keeps a local copy of each image.
package imagegen

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/ashureev/physics-lab/internal/domain"
)

const (
	DefaultModel       = "google/nano-banana"
	DefaultDir         = "temp/images"
	DefaultAspectRatio = "16:9"
	maxTopicLength     = 50
)

var referenceImages = []string{
	"https://replicate.delivery/pbxt/NbYIclp4A5HWLsJ8lF5KgiYSNaLBBT1jUcYcHYQmN1uy5OnN/tmpcqc07f_q.png",
	"https://replicate.delivery/pbxt/NbYId45yH8s04sptdtPcGqFIhV7zS5GTcdS3TtNliyTAoYPO/Screenshot%202025-08-26%20at%205.30.12%E2%80%AFPM.png",
}

// Config configures a Service.
type Config struct {
	Token       string
	Model       string
	Dir         string
	BaseURL     string
	HTTPTimeout time.Duration
}

// Service generates, downloads and stores experiment images.
type Service struct {
	predictor  Predictor
	model      string
	dir        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Service from configuration. Without a token the Service is
// returned unavailable rather than failing, so callers can degrade.
func New(cfg Config, logger *slog.Logger) *Service {
	var predictor Predictor
	if client, err := NewReplicateClient(cfg.Token, cfg.BaseURL); err == nil {
		predictor = client
	}
	return NewWithPredictor(predictor, cfg, logger)
}

// NewWithPredictor builds a Service around an explicit Predictor. A nil
// predictor yields an unavailable Service.
func NewWithPredictor(p Predictor, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		predictor:  p,
		model:      cfg.Model,
		dir:        cfg.Dir,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Available reports whether image generation is configured.
func (s *Service) Available() bool {
	return s != nil && s.predictor != nil
}

// GenerateImage generates one image. It never returns an error: failures are
// reported through the result's Status and Error fields.
func (s *Service) GenerateImage(ctx context.Context, topic string, style domain.ImageStyle, customPrompt string) domain.ImageResult {
	if style == "" {
		style = domain.StyleScientific
	}
	prompt := customPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = Prompt(topic, style)
	}

	result := domain.ImageResult{
		Prompt:      prompt,
		Topic:       topic,
		Style:       style,
		AspectRatio: DefaultAspectRatio,
	}

	if !s.Available() {
		result.Status = domain.ImageError
		result.Error = ErrTokenRequired.Error()
		return result
	}

	url, err := s.predictor.Predict(ctx, s.model, map[string]any{
		"prompt":        prompt,
		"image_input":   referenceImages,
		"aspect_ratio":  "match_input_image",
		"output_format": "jpg",
	})
	if err != nil {
		s.logger.Warn("image generation failed", "topic", topic, "style", style, "error", err)
		result.Status = domain.ImageError
		result.Error = err.Error()
		return result
	}

	result.URL = &url
	result.Status = domain.ImageSuccess

	path, err := s.save(ctx, url, topic)
	if err != nil {
		s.logger.Warn("image download failed", "url", url, "error", err)
	} else {
		result.LocalPath = &path
	}
	return result
}

// GenerateMultipleImages runs count sequential generations, rotating styles.
// count is clamped to domain.MaxImagesPerRequest.
func (s *Service) GenerateMultipleImages(ctx context.Context, topic string, count int, styles []domain.ImageStyle) []domain.ImageResult {
	if len(styles) == 0 {
		styles = domain.DefaultImageStyles
	}
	count = min(count, domain.MaxImagesPerRequest)
	var results []domain.ImageResult
	for i := 0; i < count; i++ {
		style := styles[i%len(styles)]
		results = append(results, s.GenerateImage(ctx, fmt.Sprintf("%s - Image %d", topic, i+1), style, ""))
	}
	return results
}

// Download fetches an image by URL.
func (s *Service) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ReadImage returns the bytes of a locally stored image.
func (s *Service) ReadImage(localPath string) ([]byte, error) {
	if localPath == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(localPath)
}

func (s *Service) save(ctx context.Context, url, topic string) (string, error) {
	data, err := s.Download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(s.dir, LocalFilename(topic, url))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

// Prompt builds the generation prompt for a topic in the given style.
func Prompt(topic string, style domain.ImageStyle) string {
	base := "Generate an image for the science experiment: " + topic
	switch style {
	case domain.StyleScientific:
		return base + ". Scientific illustration style, clean and professional, showing equipment, setup, or results. High quality, detailed, educational."
	case domain.StyleEducational:
		return base + ". Educational diagram style, clear and simple, suitable for Grade 9 students. Colorful, engaging, easy to understand."
	case domain.StyleDiagram:
		return base + ". Technical diagram style, showing step-by-step process, labeled components, scientific accuracy. Black and white or minimal colors."
	default:
		return base
	}
}

// LocalFilename derives the on-disk name for a downloaded image.
func LocalFilename(topic, url string) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	if runes := []rune(safe); len(runes) > maxTopicLength {
		safe = string(runes[:maxTopicLength])
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("%s_%d.jpg", safe, h.Sum32()%10000)
}
