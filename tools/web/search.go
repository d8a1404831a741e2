package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/scout/retry"
)

// maxSearchBodySize caps search API response bodies.
const maxSearchBodySize = 1024 * 1024

// defaultMaxResults bounds a search when the caller doesn't.
const defaultMaxResults = 5

// SearchResult is one search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"content"`
}

// SearchClient queries a Tavily-compatible search API. Each search is
// one external call with one retry budget.
type SearchClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *slog.Logger
}

// NewSearchClient creates a search client. The API key goes into the
// request body per the Tavily wire format; an empty key is passed
// through and rejected by the service.
func NewSearchClient(endpoint, apiKey string, retryCfg retry.Config, logger *slog.Logger) *SearchClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryCfg:   retryCfg,
		logger:     logger,
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs one query and returns up to maxResults hits.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	var parsed searchResponse
	err = retry.Do(ctx, c.retryCfg, c.logger, "web_search", func(ctx context.Context) error {
		return c.post(ctx, payload, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return parsed.Results, nil
}

// post performs one search attempt, classifying failures for the retry
// policy.
func (c *SearchClient) post(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.NewTransientError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return retry.NewTransientError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		err := fmt.Errorf("search API error (status %d): %s", resp.StatusCode, detail)

		// Rate limits and server errors are worth retrying; auth and
		// validation failures are not.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.NewTransientError(err)
		}
		return retry.NewFatalError(err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.NewFatalError(fmt.Errorf("decode response: %w", err))
	}

	return nil
}
