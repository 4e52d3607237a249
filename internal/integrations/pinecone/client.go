package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fitcoach-agent/internal/domain"
	"fitcoach-agent/internal/integrations/paramstore"
)

// upsertRequest is the request shape for the vectors/upsert endpoint.
type upsertRequest struct {
	Vectors   []vectorPayload `json:"vectors"`
	Namespace string          `json:"namespace"`
}

type vectorPayload struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// queryRequest is the request shape for the query endpoint.
type queryRequest struct {
	Namespace       string    `json:"namespace"`
	TopK            int       `json:"topK"`
	Vector          []float32 `json:"vector"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// queryResponse is the minimal response shape for the query endpoint.
type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("pinecone: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to one Pinecone index over its data-plane REST API. The index
// host and API key live in SSM and are resolved lazily, once per process,
// like the OpenAI client's key.
type Client struct {
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

	hostOverride string

	cfgOnce sync.Once
	host    string
	apiKey  string
	cfgErr  error
}

type Option func(*Client)

// WithIndexHost bypasses the SSM host lookup; used by tests and local runs.
func WithIndexHost(host string) Option {
	return func(c *Client) {
		c.hostOverride = strings.TrimSpace(host)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given paramstore.Getter for
// index host and API key retrieval.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("pinecone: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("pinecone: parameter prefix must not be empty")
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveConfig(ctx context.Context) (host, apiKey string, err error) {
	c.cfgOnce.Do(func() {
		c.apiKey, c.cfgErr = paramstore.Token(ctx, c.getter, c.paramPrefix+"/pinecone-token")
		if c.cfgErr != nil {
			return
		}
		if c.hostOverride != "" {
			c.host = c.hostOverride
			return
		}
		c.host, c.cfgErr = c.getter.GetParameter(ctx, c.paramPrefix+"/config/pinecone_index_host")
		if c.cfgErr != nil {
			c.cfgErr = fmt.Errorf("pinecone: load index host: %w", c.cfgErr)
		}
	})
	return c.host, c.apiKey, c.cfgErr
}

func indexURL(host, path string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + path
}

// Upsert writes vectors into the namespace, replacing any with the same id.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error {
	if namespace == "" {
		return errors.New("pinecone: namespace must not be empty")
	}
	if len(vectors) == 0 {
		return errors.New("pinecone: no vectors to upsert")
	}

	payload := upsertRequest{Namespace: namespace, Vectors: make([]vectorPayload, 0, len(vectors))}
	for _, v := range vectors {
		payload.Vectors = append(payload.Vectors, vectorPayload{
			ID:       v.ID,
			Values:   v.Values,
			Metadata: v.Metadata,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pinecone: marshal upsert request: %w", err)
	}

	if _, err := c.post(ctx, "/vectors/upsert", body); err != nil {
		return fmt.Errorf("pinecone: upsert failed: %w", err)
	}
	return nil
}

// Query returns the topK nearest neighbors of vector within the namespace,
// metadata included.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	if namespace == "" {
		return nil, errors.New("pinecone: namespace must not be empty")
	}
	if len(vector) == 0 {
		return nil, errors.New("pinecone: query vector must not be empty")
	}
	if topK <= 0 {
		return nil, errors.New("pinecone: topK must be positive")
	}

	body, err := json.Marshal(queryRequest{
		Namespace:       namespace,
		TopK:            topK,
		Vector:          vector,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: marshal query request: %w", err)
	}

	raw, err := c.post(ctx, "/query", body)
	if err != nil {
		return nil, fmt.Errorf("pinecone: query failed: %w", err)
	}

	var payload queryResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("pinecone: decode query response: %w", decErr)
	}
	matches := make([]domain.VectorMatch, 0, len(payload.Matches))
	for _, m := range payload.Matches {
		matches = append(matches, domain.VectorMatch{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	return matches, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	host, apiKey, err := c.resolveConfig(ctx)
	if err != nil {
		return nil, err
	}
	url := indexURL(host, path)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", apiKey)

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

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 10s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
