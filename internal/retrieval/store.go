// Package retrieval stores articles with their embeddings and answers
// similarity queries over them.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/llm"
	"github.com/TobiSchelling/newslens/internal/news"
)

// ErrDimensionMismatch is returned when an embedding has the wrong length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store is a vector index over the documents table. Vectors are normalized
// and held in memory so a dot product equals cosine similarity.
type Store struct {
	db       *database.DB
	embedder llm.Embedder
	dim      int
	lexical  bool

	mu      sync.RWMutex
	vectors map[string][]float32
}

// New creates a store and loads the existing vectors. Stored vectors whose
// dimension differs from dim are skipped.
func New(ctx context.Context, db *database.DB, embedder llm.Embedder, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	s := &Store{
		db:       db,
		embedder: embedder,
		dim:      dim,
		vectors:  make(map[string][]float32),
	}
	if l, ok := embedder.(llm.Lexical); ok && l.Lexical() {
		s.lexical = true
	}

	docs, err := db.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vectors: %w", err)
	}
	skipped := 0
	for _, d := range docs {
		if len(d.Embedding) != dim {
			skipped++
			continue
		}
		s.vectors[d.ID] = normalize(d.Embedding)
	}
	if skipped > 0 {
		slog.Warn("skipped stored vectors with wrong dimension", "count", skipped, "dimension", dim)
	}
	slog.Debug("retrieval store loaded", "vectors", len(s.vectors))

	return s, nil
}

// AddBatch stores articles under their content id, replacing existing
// entries. Items that fail are reported in the joined error; the rest are
// still stored. The ids of stored articles are returned in input order.
func (s *Store) AddBatch(ctx context.Context, articles []news.Article) ([]string, error) {
	if len(articles) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = s.indexText(a.Title, a.EmbeddingText())
	}
	vectors, batchErr := s.embedder.Embed(ctx, texts)
	if batchErr != nil || len(vectors) != len(articles) {
		slog.Warn("batch embedding failed, embedding articles one by one", "error", batchErr)
		vectors = nil
	}

	ids := make([]string, 0, len(articles))
	var errs []error
	for i, a := range articles {
		var vec []float64
		if vectors != nil {
			vec = vectors[i]
		} else {
			one, err := s.embedOne(ctx, texts[i])
			if err != nil {
				errs = append(errs, fmt.Errorf("embedding %s: %w", a.URL, err))
				continue
			}
			vec = one
		}

		doc := database.Document{
			ID:          a.ID(),
			Content:     a.Text,
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.SourceName,
			Bias:        string(a.Bias),
			PublishedAt: a.PublishedAt,
			Metadata:    a.Metadata(),
		}
		if err := s.put(ctx, doc, toFloat32(vec)); err != nil {
			errs = append(errs, fmt.Errorf("storing %s: %w", a.URL, err))
			continue
		}
		ids = append(ids, doc.ID)
	}

	return ids, errors.Join(errs...)
}

// indexText picks the text embedded for a stored item. Lexical embedders
// get the title alone when there is one.
func (s *Store) indexText(title, full string) string {
	if s.lexical && strings.TrimSpace(title) != "" {
		return title
	}
	return full
}

func (s *Store) embedOne(ctx context.Context, text string) ([]float64, error) {
	out, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(out))
	}
	return out[0], nil
}

// AddEntry stores a raw entry. An empty id is derived from the url metadata
// and content; a missing embedding is computed from the content.
func (s *Store) AddEntry(ctx context.Context, entry news.ContextEntry) (string, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return "", errors.New("entry content is empty")
	}
	if entry.ID == "" {
		entry.ID = news.ContentID(entry.URL(), entry.Content)
	}

	vec := entry.Embedding
	if vec == nil {
		text := entry.Content
		if t := entry.Title(); t != "" {
			text = t + "\n\n" + news.Truncate(entry.Content, 1000)
		}
		out, err := s.embedOne(ctx, s.indexText(entry.Title(), text))
		if err != nil {
			return "", fmt.Errorf("embedding entry: %w", err)
		}
		vec = toFloat32(out)
	}

	doc := database.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Title:     entry.Title(),
		URL:       entry.URL(),
		Source:    entry.Metadata["source_name"],
		Bias:      entry.Metadata["political_bias"],
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	if p := entry.Metadata["publish_date"]; p != "" {
		if t, err := time.Parse(time.RFC3339, p); err == nil {
			doc.PublishedAt = &t
		}
	}
	if err := s.put(ctx, doc, vec); err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (s *Store) put(ctx context.Context, doc database.Document, vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	doc.Embedding = normalize(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.UpsertDocument(ctx, doc); err != nil {
		return err
	}
	s.vectors[doc.ID] = doc.Embedding
	return nil
}

// SimilaritySearch returns up to limit entries scoring at least threshold
// against query, best first. Equal scores are ordered by id.
func (s *Store) SimilaritySearch(ctx context.Context, query string, limit int, threshold float64) ([]news.ScoredEntry, error) {
	if limit <= 0 {
		return []news.ScoredEntry{}, nil
	}
	out, err := s.embedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	q := toFloat32(out)
	if len(q) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(q), s.dim)
	}
	q = normalize(q)

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.vectors))
	for id, vec := range s.vectors {
		score := clamp(dotProduct(q, vec))
		if score < threshold {
			continue
		}
		candidates = append(candidates, scored{id: id, score: score})
	}
	s.mu.RUnlock()

	results := make([]news.ScoredEntry, 0, limit)
	for _, c := range topK(candidates, limit) {
		doc, err := s.db.GetDocument(ctx, c.id)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", c.id, err)
		}
		if doc == nil {
			continue
		}
		results = append(results, news.ScoredEntry{Entry: toEntry(*doc), Score: c.score})
	}
	return results, nil
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]news.ContextEntry, error) {
	docs, err := s.db.RecentDocuments(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]news.ContextEntry, len(docs))
	for i, d := range docs {
		entries[i] = toEntry(d)
	}
	return entries, nil
}

// Get returns an entry by id, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*news.ContextEntry, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	e := toEntry(*doc)
	return &e, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.CountDocuments(ctx)
}

// Indexed returns the number of vectors held in memory.
func (s *Store) Indexed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func toEntry(d database.Document) news.ContextEntry {
	return news.ContextEntry{
		ID:        d.ID,
		Content:   d.Content,
		Metadata:  d.Metadata,
		Embedding: d.Embedding,
		CreatedAt: d.CreatedAt,
	}
}
