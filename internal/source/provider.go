package source

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/TobiSchelling/newslens/internal/news"
)

// Provider finds articles about a topic across search backends and RSS.
type Provider struct {
	registry  *Registry
	searchers []Searcher
	feeds     *FeedReader
	extractor *Extractor

	// MaxResults caps the hits requested per search backend.
	MaxResults int
	// RSSWindow is how far back RSS items are considered.
	RSSWindow time.Duration

	now func() time.Time
}

// NewProvider creates a provider. Searchers that are not configured are
// skipped at query time.
func NewProvider(registry *Registry, searchers []Searcher, feeds *FeedReader, extractor *Extractor) *Provider {
	if feeds == nil {
		feeds = NewFeedReader(nil)
	}
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	return &Provider{
		registry:   registry,
		searchers:  searchers,
		feeds:      feeds,
		extractor:  extractor,
		MaxResults: 20,
		RSSWindow:  24 * time.Hour,
		now:        time.Now,
	}
}

// Registry returns the outlet registry.
func (p *Provider) Registry() *Registry { return p.registry }

// FindArticles returns extracted articles matching query, deduplicated by
// URL. Search results come first, then matching RSS items. An error is only
// returned when nothing was found and at least one backend failed.
func (p *Provider) FindArticles(ctx context.Context, query string) ([]news.Article, error) {
	seen := make(map[string]struct{})
	var (
		articles []news.Article
		errs     []error
	)

	for _, s := range p.searchers {
		if !s.IsConfigured() {
			continue
		}
		hits, err := s.Search(ctx, query, p.registry.Domains(), p.MaxResults)
		if err != nil {
			slog.Warn("search failed", "backend", s.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("search results", "backend", s.Name(), "query", query, "hits", len(hits))

		for _, h := range hits {
			if _, ok := seen[h.URL]; ok {
				continue
			}
			o, ok := p.registry.Lookup(h.URL)
			if !ok {
				slog.Debug("skipping unknown source", "url", h.URL)
				continue
			}
			seen[h.URL] = struct{}{}
			a, err := p.extractor.Extract(ctx, h.URL, o)
			if err != nil {
				slog.Warn("extraction failed", "url", h.URL, "error", err)
				continue
			}
			if a == nil {
				slog.Debug("no extractable content", "url", h.URL)
				continue
			}
			articles = append(articles, *a)
		}
	}

	items := p.feeds.Recent(ctx, p.registry.Outlets(), p.now().Add(-p.RSSWindow))
	for _, it := range items {
		if !it.Matches(query) {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		if a := p.FromFeedItem(ctx, it); a != nil {
			articles = append(articles, *a)
		}
	}

	slog.Info("discovery complete", "query", query, "articles", len(articles))
	if len(articles) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return articles, nil
}

// FromFeedItem extracts the article behind an RSS item. When extraction
// yields nothing, the item description is used as the body.
func (p *Provider) FromFeedItem(ctx context.Context, it FeedItem) *news.Article {
	a, err := p.extractor.Extract(ctx, it.URL, it.Outlet)
	if err != nil {
		slog.Warn("extraction failed", "url", it.URL, "error", err)
	}
	if a != nil {
		if a.PublishedAt == nil {
			a.PublishedAt = it.Published
		}
		return a
	}
	if strings.TrimSpace(it.Description) == "" {
		return nil
	}
	return &news.Article{
		Title:        it.Title,
		Text:         it.Description,
		URL:          it.URL,
		SourceName:   it.Outlet.Name,
		SourceDomain: it.Outlet.Domain,
		Bias:         it.Outlet.Bias,
		PublishedAt:  it.Published,
	}
}

// FetchArticle extracts a single article. It returns nil, nil when the URL
// does not belong to a known outlet or has no extractable content.
func (p *Provider) FetchArticle(ctx context.Context, rawURL string) (*news.Article, error) {
	o, ok := p.registry.Lookup(rawURL)
	if !ok {
		slog.Info("url is not from a known source", "url", rawURL)
		return nil, nil
	}
	return p.extractor.Extract(ctx, rawURL, o)
}

// RecentItems returns RSS items from all outlets published after since.
func (p *Provider) RecentItems(ctx context.Context, since time.Time) []FeedItem {
	return p.feeds.Recent(ctx, p.registry.Outlets(), since)
}
