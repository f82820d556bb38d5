package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	serperURL  = "https://google.serper.dev/search"
	newsAPIURL = "https://newsapi.org/v2/everything"
)

// SearchHit is a single search result pointing at an article page.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
	Date    *time.Time
}

// Searcher is a web search backend restricted to a set of domains.
type Searcher interface {
	Name() string
	IsConfigured() bool
	Search(ctx context.Context, query string, domains []string, limit int) ([]SearchHit, error)
}

// SerperClient searches Google News through serper.dev.
type SerperClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSerperClient creates a Serper client reading its key from apiKeyEnv.
func NewSerperClient(apiKeyEnv string) *SerperClient {
	return &SerperClient{
		apiKey:   os.Getenv(apiKeyEnv),
		endpoint: serperURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *SerperClient) Name() string { return "serper" }

// IsConfigured returns whether the API key is available.
func (c *SerperClient) IsConfigured() bool { return c.apiKey != "" }

// Search runs a Swedish news search limited to the given domains.
func (c *SerperClient) Search(ctx context.Context, query string, domains []string, limit int) ([]SearchHit, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("serper not configured")
	}

	payload := map[string]any{
		"q":   SiteQuery(query, domains),
		"gl":  "se",
		"hl":  "sv",
		"num": limit,
		"tbm": "nws",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper returned %s", resp.Status)
	}

	var result struct {
		News []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"news"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding serper response: %w", err)
	}

	hits := make([]SearchHit, 0, len(result.News))
	for _, n := range result.News {
		if n.Link == "" {
			continue
		}
		hit := SearchHit{Title: strings.TrimSpace(n.Title), URL: n.Link, Snippet: n.Snippet}
		if t, ok := parseDate(n.Date); ok {
			hit.Date = &t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// SiteQuery restricts query to domains with site: operators.
func SiteQuery(query string, domains []string) string {
	if len(domains) == 0 {
		return query
	}
	sites := make([]string, len(domains))
	for i, d := range domains {
		sites[i] = "site:" + d
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}

// NewsAPIClient searches newsapi.org.
type NewsAPIClient struct {
	apiKey   string
	endpoint string
	daysBack int
	client   *http.Client
}

// NewNewsAPIClient creates a NewsAPI client reading its key from apiKeyEnv.
func NewNewsAPIClient(apiKeyEnv string) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:   os.Getenv(apiKeyEnv),
		endpoint: newsAPIURL,
		daysBack: 7,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool { return c.apiKey != "" }

// Search queries /v2/everything restricted to domains.
func (c *NewsAPIClient) Search(ctx context.Context, query string, domains []string, limit int) ([]SearchHit, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	now := time.Now()
	params := url.Values{
		"q":        {query},
		"from":     {now.AddDate(0, 0, -c.daysBack).Format("2006-01-02")},
		"to":       {now.Format("2006-01-02")},
		"pageSize": {strconv.Itoa(limit)},
		"sortBy":   {"relevancy"},
	}
	if len(domains) > 0 {
		params.Set("domains", strings.Join(domains, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned %s", resp.Status)
	}

	var result struct {
		Status   string `json:"status"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q", result.Status)
	}

	var hits []SearchHit
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		hit := SearchHit{Title: strings.TrimSpace(a.Title), URL: a.URL, Snippet: a.Description}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			hit.Date = &t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
