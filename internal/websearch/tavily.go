// Package websearch fetches supplemental context from an external
// web-search API. Calls are best-effort: the chat pipeline degrades to a
// placeholder when this provider fails.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	BaseURL    string
	APIKey     string
	MaxResults int
}

type TavilyClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewTavilyClient(cfg Config) *TavilyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	return &TavilyClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Search returns a short textual snippet for the query.
func (c *TavilyClient) Search(ctx context.Context, query string) (string, error) {
	reqBody := map[string]interface{}{
		"api_key":        c.cfg.APIKey,
		"query":          query,
		"include_answer": true,
		"max_results":    c.cfg.MaxResults,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal search request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build search request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("search response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse search json failed: %w", err)
	}

	if strings.TrimSpace(parsed.Answer) != "" {
		return strings.TrimSpace(parsed.Answer), nil
	}

	var b strings.Builder
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if r.Title != "" {
			b.WriteString(r.Title + ": ")
		}
		b.WriteString(strings.TrimSpace(r.Content))
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("search returned no usable results")
	}
	return b.String(), nil
}
