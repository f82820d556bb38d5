// Package monitor feeds fresh RSS items from the configured outlets into
// the retrieval store so later runs have context to draw on.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/TobiSchelling/newslens/internal/news"
	"github.com/TobiSchelling/newslens/internal/source"
)

// Feeds lists recent RSS items and turns them into articles.
type Feeds interface {
	RecentItems(ctx context.Context, since time.Time) []source.FeedItem
	FromFeedItem(ctx context.Context, it source.FeedItem) *news.Article
}

// Store persists articles.
type Store interface {
	AddBatch(ctx context.Context, articles []news.Article) ([]string, error)
}

// Result summarizes one monitor pass.
type Result struct {
	ItemsFound     int           `json:"items_found"`
	ItemsProcessed int           `json:"items_processed"`
	Duration       time.Duration `json:"duration"`
}

// Monitor reads feeds and stores unseen items.
type Monitor struct {
	feeds Feeds
	store Store
	seen  SeenSet
	now   func() time.Time
}

// New creates a monitor. A nil seen set means an in-memory one.
func New(feeds Feeds, store Store, seen SeenSet) *Monitor {
	if seen == nil {
		seen = NewMemorySeen()
	}
	return &Monitor{feeds: feeds, store: store, seen: seen, now: time.Now}
}

// Since returns the start of a window ending now. Whole-day windows step
// back by calendar days so they stay correct across DST changes.
func Since(now time.Time, window time.Duration) time.Time {
	if window > 0 && window%(24*time.Hour) == 0 {
		return now.AddDate(0, 0, -int(window/(24*time.Hour)))
	}
	return now.Add(-window)
}

// Run stores at most maxItems unseen items published within window.
// ItemsFound counts every item inside the window.
func (m *Monitor) Run(ctx context.Context, window time.Duration, maxItems int) (Result, error) {
	start := m.now()
	since := Since(start, window)

	items := m.feeds.RecentItems(ctx, since)
	res := Result{ItemsFound: len(items)}
	slog.Info("monitor pass started", "since", since.UTC().Format(time.RFC3339), "items", len(items))

	for _, it := range items {
		if maxItems > 0 && res.ItemsProcessed >= maxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		seen, err := m.seen.Seen(ctx, it.URL)
		if err != nil {
			slog.Warn("seen check failed", "url", it.URL, "error", err)
		}
		if seen {
			continue
		}

		a := m.feeds.FromFeedItem(ctx, it)
		if a == nil {
			slog.Info("no content for feed item", "url", it.URL)
			continue
		}

		if _, err := m.store.AddBatch(ctx, []news.Article{*a}); err != nil {
			slog.Error("storing feed item failed", "url", it.URL, "error", err)
			continue
		}
		if err := m.seen.Mark(ctx, it.URL); err != nil {
			slog.Warn("marking item seen failed", "url", it.URL, "error", err)
		}
		res.ItemsProcessed++
	}

	res.Duration = time.Since(start)
	slog.Info("monitor pass complete",
		"found", res.ItemsFound,
		"processed", res.ItemsProcessed,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// Loop runs a pass every interval until ctx is cancelled.
func (m *Monitor) Loop(ctx context.Context, interval, window time.Duration, maxItems int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Run(ctx, window, maxItems); err != nil && ctx.Err() == nil {
			slog.Error("monitor pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
