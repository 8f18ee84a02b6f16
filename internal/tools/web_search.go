package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	searchTimeoutSeconds = 30
	searchAttempts       = 3
	defaultMaxResults    = 5
	webSearchUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type searchResult struct {
	Title       string
	URL         string
	Description string
}

// WebSearchTool searches the web by scraping the DuckDuckGo HTML
// endpoint. No API key required.
type WebSearchTool struct {
	client *http.Client
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		client: &http.Client{Timeout: searchTimeoutSeconds * time.Second},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns top results with titles, " +
		"URLs, and snippets. Use this when you need up-to-date information."
}
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results (default 5)",
				"default":     defaultMaxResults,
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("Error: No search query provided")
	}
	maxResults := intArg(args, "max_results", defaultMaxResults)

	results := t.search(ctx, query, maxResults)
	if ctx.Err() != nil {
		return Errorf("Search error: %v", ctx.Err())
	}
	if len(results) == 0 {
		return NewResult(fmt.Sprintf("No results found for: %s", query))
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[%d] %s\n    URL: %s\n    %s", i+1, r.Title, r.URL, r.Description))
	}
	return NewResult(strings.Join(lines, "\n\n")).WithMeta("result_count", len(results))
}

// search retries a few times; transient failures are common with the
// HTML endpoint.
func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) []searchResult {
	for attempt := 0; attempt < searchAttempts; attempt++ {
		results, err := t.fetch(ctx, query, maxResults)
		if err == nil && len(results) > 0 {
			return results
		}
		if err != nil {
			slog.Warn("search attempt failed", "attempt", attempt+1, "error", err)
		}
		if attempt < searchAttempts-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
	return nil
}

func (t *WebSearchTool) fetch(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return extractDDGResults(string(body), maxResults), nil
}

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

func extractDDGResults(html string, count int) []searchResult {
	linkMatches := ddgLinkRe.FindAllStringSubmatch(html, count+5)
	if len(linkMatches) == 0 {
		return nil
	}
	snippetMatches := ddgSnippetRe.FindAllStringSubmatch(html, count+5)

	var results []searchResult
	for i := 0; i < len(linkMatches) && i < count; i++ {
		rawURL := unwrapDDGRedirect(linkMatches[i][1])
		title := strings.TrimSpace(htmlTagRe.ReplaceAllString(linkMatches[i][2], ""))
		if title == "" {
			title = "No title"
		}
		desc := "No description"
		if i < len(snippetMatches) {
			if d := strings.TrimSpace(htmlTagRe.ReplaceAllString(snippetMatches[i][1], "")); d != "" {
				desc = d
			}
		}
		results = append(results, searchResult{Title: title, URL: rawURL, Description: desc})
	}
	return results
}

// unwrapDDGRedirect extracts the destination from DuckDuckGo's uddg=
// redirect wrapper.
func unwrapDDGRedirect(rawURL string) string {
	if !strings.Contains(rawURL, "uddg=") {
		return rawURL
	}
	u, err := url.QueryUnescape(rawURL)
	if err != nil {
		return rawURL
	}
	idx := strings.Index(u, "uddg=")
	if idx == -1 {
		return rawURL
	}
	extracted := u[idx+5:]
	if ampIdx := strings.Index(extracted, "&"); ampIdx != -1 {
		extracted = extracted[:ampIdx]
	}
	return extracted
}
