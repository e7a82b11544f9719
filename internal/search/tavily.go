package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, client *http.Client) *Tavily {
	return &Tavily{apiKey: apiKey, endpoint: tavilyEndpoint, client: client}
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

// Search posts a query to Tavily, asking for image results as well.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	payload, err := json.Marshal(map[string]any{
		"query":          query,
		"api_key":        t.apiKey,
		"max_results":    maxResults,
		"include_images": true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
		Images []json.RawMessage `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	out := &Response{Results: make([]Result, 0, len(response.Results))}
	for _, r := range response.Results {
		if len(out.Results) >= maxResults {
			break
		}
		out.Results = append(out.Results, Result{Title: r.Title, Link: r.URL, Snippet: r.Content})
	}
	if len(response.Images) > 0 {
		out.Images = &ImageSummary{Count: len(response.Images)}
	}
	return out, nil
}
