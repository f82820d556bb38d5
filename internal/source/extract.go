package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/newslens/internal/news"
)

const (
	userAgent = "Mozilla/5.0 (compatible; newslens/1.0; +https://github.com/TobiSchelling/newslens)"

	// minTextLength is the shortest extracted body accepted as an article.
	minTextLength = 100

	maxPageBytes = 5 << 20
)

// HTTPError is returned for 4xx/5xx responses.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Extractor downloads a page and turns it into an Article.
type Extractor struct {
	client *http.Client
}

// NewExtractor creates an extractor. A nil client gets a 30s timeout and a
// redirect limit of 10.
func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	return &Extractor{client: client}
}

// Extract downloads rawURL and extracts the article text and metadata.
// It returns nil, nil when the page has no usable article body.
func (e *Extractor) Extract(ctx context.Context, rawURL string, o Outlet) (*news.Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	return parsePage(body, pageURL, o)
}

func parsePage(body []byte, pageURL *url.URL, o Outlet) (*news.Article, error) {
	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, nil
	}
	text := strings.TrimSpace(parsed.TextContent)
	if len(text) < minTextLength {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	title := pageTitle(doc)
	if title == "" {
		title = pageURL.String()
	}

	return &news.Article{
		Title:        title,
		Text:         text,
		URL:          pageURL.String(),
		SourceName:   o.Name,
		SourceDomain: o.Domain,
		Bias:         o.Bias,
		PublishedAt:  publishedAt(doc),
		Authors:      authors(doc),
		Keywords:     keywords(doc),
	}, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return collapse(t)
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return collapse(t)
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return collapse(t)
	}
	return ""
}

var dateSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="publish-date"]`,
	`meta[name="pubdate"]`,
	`time[datetime]`,
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func publishedAt(doc *goquery.Document) *time.Time {
	for _, sel := range dateSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		raw, ok := s.Attr("content")
		if !ok {
			raw, _ = s.Attr("datetime")
		}
		if t, ok := parseDate(raw); ok {
			return &t
		}
	}
	return nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func authors(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		name = collapse(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	doc.Find(`meta[name="author"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			add(v)
		}
	})
	doc.Find(`[rel="author"], .author, .byline`).Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	return out
}

func keywords(doc *goquery.Document) []string {
	raw, ok := doc.Find(`meta[name="keywords"]`).Attr("content")
	if !ok {
		return nil
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
