package news

import (
	"strings"
	"time"
)

// ContextEntry is a previously stored item returned by the retrieval store.
type ContextEntry struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// Title returns the title metadata, if any.
func (e ContextEntry) Title() string { return e.Metadata["title"] }

// URL returns the url metadata, if any.
func (e ContextEntry) URL() string { return e.Metadata["url"] }

// ScoredEntry pairs an entry with its similarity to a query.
type ScoredEntry struct {
	Entry ContextEntry `json:"entry"`
	Score float64      `json:"score"`
}

// Entries strips scores off a ranked list.
func Entries(scored []ScoredEntry) []ContextEntry {
	out := make([]ContextEntry, len(scored))
	for i, s := range scored {
		out[i] = s.Entry
	}
	return out
}

// Metadata returns the metadata stored alongside an article.
func (a Article) Metadata() map[string]string {
	m := map[string]string{
		"title":          a.Title,
		"url":            a.URL,
		"source_name":    a.SourceName,
		"source_domain":  a.SourceDomain,
		"political_bias": string(a.Bias),
	}
	if a.PublishedAt != nil {
		m["publish_date"] = a.PublishedAt.UTC().Format(time.RFC3339)
	}
	if len(a.Authors) > 0 {
		m["authors"] = strings.Join(a.Authors, ", ")
	}
	return m
}
