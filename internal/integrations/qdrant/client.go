// Package qdrant is a focused client for the Qdrant points/search REST
// endpoint, the single retrieval capability the agent needs.
package qdrant

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

	"support-agent/internal/domain"
)

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload struct {
			// page_content is the payload key used by the ingestion
			// pipeline that fills the collection.
			PageContent string `json:"page_content"`
		} `json:"payload"`
	} `json:"result"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("qdrant: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client searches one Qdrant collection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	collection string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client bound to a collection. The api key may be
// empty for unauthenticated deployments.
func NewClient(baseURL, apiKey, collection string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("qdrant: base url must not be empty")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("qdrant: collection must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		collection: collection,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search returns up to limit points ranked by similarity to the vector.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]domain.Passage, error) {
	if len(vector) == 0 {
		return nil, errors.New("qdrant: vector must not be empty")
	}
	if limit <= 0 {
		return nil, errors.New("qdrant: limit must be > 0")
	}

	body, err := json.Marshal(searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("qdrant: request failed: %w", err)
	}

	var payload searchResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("qdrant: decode response: %w", decErr)
	}

	points := make([]domain.Passage, 0, len(payload.Result))
	for _, hit := range payload.Result {
		if strings.TrimSpace(hit.Payload.PageContent) == "" {
			continue
		}
		points = append(points, domain.Passage{
			Text:  hit.Payload.PageContent,
			Score: hit.Score,
		})
	}
	return points, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
