// Package search runs web searches on behalf of the experiment agent.
//
// A Service tries a preferred provider, falls back to the free DuckDuckGo
// provider, and finally returns a degraded placeholder string so that the
// calling agent can keep reasoning when every provider fails.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxResults is used when a caller passes a non-positive limit.
const DefaultMaxResults = 5

// ErrEmptyQuery is returned by providers for blank queries.
var ErrEmptyQuery = errors.New("search query is empty")

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// ImageSummary describes image hits returned alongside web results.
type ImageSummary struct {
	Count   int      `json:"count"`
	Samples []string `json:"samples,omitempty"`
}

// Response is what a provider returns for one query.
type Response struct {
	Results []Result
	Images  *ImageSummary
}

// Provider executes a query against one search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}

// Config selects which providers a Service uses.
type Config struct {
	SerpAPIKey string
	TavilyKey  string
	Timeout    time.Duration
}

// Service implements the search fallback chain.
type Service struct {
	paid   Provider
	tavily Provider
	free   Provider
	logger *slog.Logger
}

// NewService builds the provider chain from configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	s := &Service{
		free:   NewDuckDuckGo(client),
		logger: logger,
	}
	if strings.TrimSpace(cfg.SerpAPIKey) != "" {
		s.paid = NewSerpAPI(cfg.SerpAPIKey, client)
	}
	if strings.TrimSpace(cfg.TavilyKey) != "" {
		s.tavily = NewTavily(cfg.TavilyKey, client)
	}
	return s
}

// NewServiceWithProviders builds a Service from explicit providers.
// paid and tavily may be nil.
func NewServiceWithProviders(paid, tavily, free Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{paid: paid, tavily: tavily, free: free, logger: logger}
}

// Search runs the query and always returns text the agent can read.
// engine "tavily" prefers Tavily when it is configured; any other value
// prefers SerpAPI when configured.
func (s *Service) Search(ctx context.Context, query string, maxResults int, engine string) string {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var lastErr error
	for _, p := range s.chain(engine) {
		resp, err := p.Search(ctx, query, maxResults)
		if err == nil {
			return Format(query, resp)
		}
		lastErr = err
		s.logger.Warn("search provider failed", "provider", p.Name(), "query", query, "error", err)
	}
	if lastErr == nil {
		lastErr = errors.New("no search provider configured")
	}
	return Degraded(query, lastErr)
}

func (s *Service) chain(engine string) []Provider {
	var chain []Provider
	if strings.EqualFold(engine, "tavily") && s.tavily != nil {
		chain = append(chain, s.tavily)
	}
	if s.paid != nil {
		chain = append(chain, s.paid)
	}
	if s.free != nil {
		chain = append(chain, s.free)
	}
	return chain
}

// Format renders a provider response as the text handed to the agent.
func Format(query string, resp *Response) string {
	items := make([]any, 0, len(resp.Results)+1)
	for _, r := range resp.Results {
		items = append(items, r)
	}
	if resp.Images != nil && resp.Images.Count > 0 {
		items = append(items, struct {
			Type string `json:"type"`
			ImageSummary
		}{Type: "images", ImageSummary: *resp.Images})
	}
	data, err := json.Marshal(items)
	if err != nil {
		return Degraded(query, err)
	}
	return fmt.Sprintf("Search results for '%s': %s", query, data)
}

// Degraded is the placeholder returned when every provider failed.
func Degraded(query string, err error) string {
	return fmt.Sprintf("Search temporarily unavailable. Query: '%s'. Error: %v. Please proceed with general knowledge about physics experiments.", query, err)
}
