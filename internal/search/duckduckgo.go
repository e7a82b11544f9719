package search

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	ddgLiteEndpoint  = "https://lite.duckduckgo.com/lite/"
	ddgImageEndpoint = "https://duckduckgo.com/"
	ddgUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	ddgImageSamples  = 3
)

var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
	ddgAnyLinkPattern = regexp.MustCompile(`<a[^>]+href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgTagPattern     = regexp.MustCompile(`<[^>]+>`)
	ddgVQDPattern     = regexp.MustCompile(`vqd=["']?([\d-]+)`)
)

// DuckDuckGo scrapes the DuckDuckGo lite HTML page. It needs no API key.
type DuckDuckGo struct {
	client        *http.Client
	endpoint      string
	imageEndpoint string
}

// NewDuckDuckGo creates a DuckDuckGo provider using the supplied HTTP client.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{client: client, endpoint: ddgLiteEndpoint, imageEndpoint: ddgImageEndpoint}
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search returns web results and, when available, a sample of image titles.
// Image lookup failures do not fail the search.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ddgUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read response: %w", err)
	}

	out := &Response{Results: parseLiteResults(string(body), maxResults)}
	if titles := d.imageTitles(ctx, query); len(titles) > 0 {
		out.Images = &ImageSummary{Count: len(titles), Samples: titles}
	}
	return out, nil
}

// imageTitles fetches up to ddgImageSamples image titles. It returns nil on any failure.
func (d *DuckDuckGo) imageTitles(ctx context.Context, query string) []string {
	if d.imageEndpoint == "" {
		return nil
	}
	page, err := d.get(ctx, d.imageEndpoint+"?"+url.Values{"q": {query}}.Encode())
	if err != nil {
		return nil
	}
	m := ddgVQDPattern.FindStringSubmatch(string(page))
	if len(m) < 2 {
		return nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("vqd", m[1])
	params.Set("o", "json")
	params.Set("kp", "1")
	data, err := d.get(ctx, strings.TrimSuffix(d.imageEndpoint, "/")+"/i.js?"+params.Encode())
	if err != nil {
		return nil
	}

	var payload struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	var titles []string
	for _, r := range payload.Results {
		if len(titles) >= ddgImageSamples {
			break
		}
		if t := cleanHTML(r.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

func (d *DuckDuckGo) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ddgUserAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseLiteResults extracts result links and snippets from the lite HTML page.
func parseLiteResults(page string, maxResults int) []Result {
	matches := ddgLinkPattern.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		matches = ddgLinkPatternAlt.FindAllStringSubmatch(page, -1)
	}
	snippets := ddgSnippetPattern.FindAllStringSubmatch(page, -1)

	var results []Result
	for i, match := range matches {
		link := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])
		if link == "" || title == "" {
			continue
		}
		snippet := ""
		if i < len(snippets) {
			snippet = cleanHTML(snippets[i][1])
		}
		results = append(results, Result{Title: title, Link: link, Snippet: snippet})
		if len(results) >= maxResults {
			break
		}
	}

	if len(results) == 0 {
		results = fallbackParse(page, maxResults)
	}
	return results
}

// fallbackParse collects external links when the result markup changed.
func fallbackParse(page string, maxResults int) []Result {
	var results []Result
	seen := make(map[string]bool)
	for _, match := range ddgAnyLinkPattern.FindAllStringSubmatch(page, -1) {
		link := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])

		if strings.Contains(link, "duckduckgo.com") ||
			strings.HasPrefix(link, "/") ||
			strings.HasPrefix(link, "#") ||
			strings.HasPrefix(link, "javascript:") {
			continue
		}
		if len(title) < 5 || seen[link] {
			continue
		}
		seen[link] = true

		results = append(results, Result{Title: title, Link: link})
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

func cleanHTML(s string) string {
	s = ddgTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}
