package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const serpAPIEndpoint = "https://serpapi.com/search"

// SerpAPI calls the SerpAPI Google search endpoint.
type SerpAPI struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSerpAPI constructs a SerpAPI provider.
func NewSerpAPI(apiKey string, client *http.Client) *SerpAPI {
	return &SerpAPI{apiKey: apiKey, endpoint: serpAPIEndpoint, client: client}
}

// Name implements Provider.
func (s *SerpAPI) Name() string { return "serpapi" }

// Search issues a safe-search Google query and returns organic results plus an image count.
func (s *SerpAPI) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, errors.New("serpapi: API key is missing")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", s.apiKey)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("engine", "google")
	params.Set("safe", "active")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi http %d", resp.StatusCode)
	}

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
		Images []json.RawMessage `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", err)
	}

	out := &Response{Results: make([]Result, 0, len(payload.OrganicResults))}
	for _, r := range payload.OrganicResults {
		if len(out.Results) >= maxResults {
			break
		}
		out.Results = append(out.Results, Result{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	if len(payload.Images) > 0 {
		out.Images = &ImageSummary{Count: len(payload.Images)}
	}
	return out, nil
}
