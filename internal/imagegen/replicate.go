package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultReplicateURL = "https://api.replicate.com/v1"
	defaultPollInterval = time.Second
)

// ErrTokenRequired is returned when no Replicate API token is configured.
var ErrTokenRequired = errors.New("REPLICATE_API_TOKEN environment variable is required")

// Predictor runs a hosted model and returns the URL of its output.
type Predictor interface {
	Predict(ctx context.Context, model string, input map[string]any) (string, error)
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// ReplicateClient talks to the Replicate predictions API.
type ReplicateClient struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewReplicateClient creates a client. An empty baseURL selects the public API.
func NewReplicateClient(token, baseURL string) (*ReplicateClient, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenRequired
	}
	if baseURL == "" {
		baseURL = defaultReplicateURL
	}
	return &ReplicateClient{
		token:        token,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		pollInterval: defaultPollInterval,
	}, nil
}

// Predict creates a prediction for an official model ("owner/name") and waits
// until it reaches a terminal state.
func (c *ReplicateClient) Predict(ctx context.Context, model string, input map[string]any) (string, error) {
	jsonData, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	pred, err := c.do(req)
	if err != nil {
		return "", err
	}

	for !isTerminal(pred.Status) {
		if pred.URLs.Get == "" {
			return "", fmt.Errorf("prediction %s has no poll url", pred.ID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		if pred, err = c.do(req); err != nil {
			return "", err
		}
	}

	if pred.Status != "succeeded" {
		if pred.Error != nil {
			return "", fmt.Errorf("prediction %s: %v", pred.Status, pred.Error)
		}
		return "", fmt.Errorf("prediction %s", pred.Status)
	}
	return OutputURL(pred.Output)
}

func (c *ReplicateClient) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pred prediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &pred, nil
}

func isTerminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// OutputURL normalises a prediction output to a single URL. Outputs may be a
// string, a list of strings, or an object carrying a "url" field.
func OutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("prediction returned no output")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if u, err := OutputURL(item); err == nil {
				return u, nil
			}
		}
		return "", errors.New("prediction returned an empty output list")
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return obj.URL, nil
	}

	return "", fmt.Errorf("unrecognised prediction output: %s", raw)
}
