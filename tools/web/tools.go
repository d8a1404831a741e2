package web

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// pageContentLimit caps fetched page text fed back to the model, so one
// long page cannot crowd out the rest of the conversation.
const pageContentLimit = 8000

// SearchTool exposes the search client to the agent loop. It satisfies
// the agent package's Tool interface.
type SearchTool struct {
	client     *SearchClient
	maxResults int
}

// NewSearchTool creates the search tool.
func NewSearchTool(client *SearchClient, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &SearchTool{client: client, maxResults: maxResults}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return `search the web; args: {"query": "search terms", "max_results": "optional result count"}`
}

// Invoke runs the search and renders the hits for the model.
func (t *SearchTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	query := strings.TrimSpace(args["query"])
	if query == "" {
		return "", fmt.Errorf("web_search requires a query argument")
	}

	maxResults := t.maxResults
	if n, err := strconv.Atoi(args["max_results"]); err == nil && n > 0 && n <= t.maxResults {
		maxResults = n
	}

	results, err := t.client.Search(ctx, query, maxResults)
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "No results found for: " + query, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, result.Title, result.URL)
		if result.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", strings.TrimSpace(result.Snippet))
		}
	}

	return sb.String(), nil
}

// FetchTool exposes page fetching and extraction to the agent loop.
type FetchTool struct {
	fetcher   *Fetcher
	extractor *Extractor
}

// NewFetchTool creates the page fetch tool.
func NewFetchTool(fetcher *Fetcher) *FetchTool {
	return &FetchTool{fetcher: fetcher, extractor: NewExtractor()}
}

func (t *FetchTool) Name() string { return "fetch_page" }

func (t *FetchTool) Description() string {
	return `fetch a web page and return its readable content; args: {"url": "https page URL"}`
}

// Invoke fetches the page and returns its title and extracted markdown,
// truncated to keep the conversation bounded.
func (t *FetchTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	pageURL := strings.TrimSpace(args["url"])
	if pageURL == "" {
		return "", fmt.Errorf("fetch_page requires a url argument")
	}

	body, err := t.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}

	page, err := t.extractor.Extract(pageURL, body)
	if err != nil {
		return "", err
	}

	content := page.Markdown
	if len(content) > pageContentLimit {
		content = content[:pageContentLimit] + "\n\n[content truncated]"
	}

	if page.Title != "" {
		return fmt.Sprintf("# %s\n\n%s", page.Title, content), nil
	}
	return content, nil
}
