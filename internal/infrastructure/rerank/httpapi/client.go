package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vmaslov/retrieval-engine/internal/infrastructure/httpx"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
)

// Client scores query/passage pairs against a cross-encoder sidecar
// (a small service wrapping an ms-marco style model). One round trip
// scores a whole candidate batch.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScorePairs returns one relevance score per text, in input order.
func (c *Client) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"query": query,
		"texts": texts,
	}

	var response struct {
		Scores []float64 `json:"scores"`
	}
	if err := c.do(ctx, "score", request, &response); err != nil {
		return nil, err
	}
	if len(response.Scores) != len(texts) {
		return nil, fmt.Errorf("reranker score: got %d scores for %d texts", len(response.Scores), len(texts))
	}
	return response.Scores, nil
}

func (c *Client) ScorePair(ctx context.Context, query, text string) (float64, error) {
	scores, err := c.ScorePairs(ctx, query, []string{text})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

func (c *Client) do(ctx context.Context, operation string, payload, out any) error {
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/rerank", payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "reranker."+operation, call, httpx.Classify)
	} else {
		err = call(ctx)
	}
	return httpx.WrapTemporary("reranker "+operation, err)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reranker %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &httpx.StatusError{
			Service:    "reranker",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
