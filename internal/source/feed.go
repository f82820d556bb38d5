package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// FeedItem is one RSS item from an outlet's feed.
type FeedItem struct {
	Title       string
	URL         string
	Description string
	Published   *time.Time
	Outlet      Outlet
}

// FeedReader reads outlet RSS feeds.
type FeedReader struct {
	client *http.Client
}

// NewFeedReader creates a feed reader. A nil client gets a 30s timeout.
func NewFeedReader(client *http.Client) *FeedReader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedReader{client: client}
}

// Read fetches and parses the feed of a single outlet.
func (fr *FeedReader) Read(ctx context.Context, o Outlet) ([]FeedItem, error) {
	if o.RSS == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.RSS, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := fr.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %s", o.RSS, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", o.RSS, err)
	}

	var items []FeedItem
	for _, it := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}
		if item := parseItem(it, o); item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

// Recent reads every outlet feed and keeps items published after since.
// Items without a date are kept. Failing feeds are logged and skipped.
func (fr *FeedReader) Recent(ctx context.Context, outlets []Outlet, since time.Time) []FeedItem {
	var all []FeedItem
	for _, o := range outlets {
		items, err := fr.Read(ctx, o)
		if err != nil {
			slog.Warn("failed to read feed", "source", o.Name, "url", o.RSS, "error", err)
			continue
		}
		kept := 0
		for _, it := range items {
			if InWindow(it.Published, since) {
				all = append(all, it)
				kept++
			}
		}
		slog.Debug("parsed feed", "source", o.Name, "items", len(items), "recent", kept)
	}
	return all
}

// InWindow reports whether a publication time is not before since.
// Unknown times count as inside the window.
func InWindow(published *time.Time, since time.Time) bool {
	if published == nil {
		return true
	}
	return !published.Before(since)
}

// Matches reports whether the item mentions query in its title or
// description, ignoring case.
func (it FeedItem) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(it.Title), q) ||
		strings.Contains(strings.ToLower(it.Description), q)
}

func parseItem(it *gofeed.Item, o Outlet) *FeedItem {
	link := it.Link
	if link == "" {
		link = it.GUID
	}
	title := strings.TrimSpace(it.Title)
	if link == "" || title == "" {
		return nil
	}

	var published *time.Time
	if it.PublishedParsed != nil {
		published = it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		published = it.UpdatedParsed
	}

	desc := it.Description
	if desc == "" {
		desc = it.Content
	}

	return &FeedItem{
		Title:       title,
		URL:         link,
		Description: htmlToText(desc),
		Published:   published,
		Outlet:      o,
	}
}

// htmlToText strips markup and collapses whitespace.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
