package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/crawler"
)

const defaultEndpoint = "https://api.tavily.com/crawl"

// Client calls the Tavily crawl API.
type Client struct {
	APIKey   string
	Endpoint string
	HTTP     *http.Client
}

// NewClient builds a Tavily client with the given key and timeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		APIKey:   apiKey,
		Endpoint: defaultEndpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Crawl runs a site crawl and returns the raw page contents.
func (c *Client) Crawl(ctx context.Context, req crawler.Request) (crawler.Response, error) {
	payload := map[string]any{
		"url":          req.URL,
		"instructions": req.Instructions,
		"limit":        req.Limit,
		"max_depth":    req.MaxDepth,
	}
	if len(req.SelectPaths) > 0 {
		payload["select_paths"] = req.SelectPaths
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return crawler.Response{}, fmt.Errorf("marshal: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return crawler.Response{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return crawler.Response{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return crawler.Response{}, fmt.Errorf("crawl service status %d: %s", resp.StatusCode, detail)
	}

	var out crawler.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return crawler.Response{}, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}
