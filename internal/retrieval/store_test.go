package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/llm"
	"github.com/TobiSchelling/newslens/internal/news"
)

// mockEmbedder maps a text to a vector by the first line of the text.
type mockEmbedder struct {
	vectors   map[string][]float64
	failBatch bool
	calls     int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.calls++
	if m.failBatch && len(texts) > 1 {
		return nil, errors.New("batch unavailable")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		key, _, _ := strings.Cut(t, "\n")
		v, ok := m.vectors[key]
		if !ok {
			return nil, errors.New("no vector for " + key)
		}
		out[i] = v
	}
	return out, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func openTestStore(t *testing.T, emb llm.Embedder, dim int) (*Store, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	s, err := New(context.Background(), db, emb, dim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, db
}

func article(title, url string) news.Article {
	return news.Article{
		Title:      title,
		Text:       "Body of " + title,
		URL:        url,
		SourceName: "DN",
		Bias:       news.Center,
	}
}

func TestAddBatchIdempotent(t *testing.T) {
	s, _ := openTestStore(t, llm.NewHashEmbedder(64), 64)
	ctx := context.Background()
	a := article("Riksdagen röstar", "https://dn.se/a")

	ids1, err := s.AddBatch(ctx, []news.Article{a})
	if err != nil {
		t.Fatalf("first AddBatch: %v", err)
	}
	ids2, err := s.AddBatch(ctx, []news.Article{a})
	if err != nil {
		t.Fatalf("second AddBatch: %v", err)
	}

	if len(ids1) != 1 || ids1[0] != ids2[0] {
		t.Fatalf("ids differ: %v vs %v", ids1, ids2)
	}
	if ids1[0] != a.ID() {
		t.Errorf("id = %s, want %s", ids1[0], a.ID())
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 stored entry, got %d", n)
	}
	if s.Indexed() != 1 {
		t.Errorf("expected 1 indexed vector, got %d", s.Indexed())
	}
}

func TestAddBatchContinuesOnError(t *testing.T) {
	emb := &mockEmbedder{
		failBatch: true,
		vectors: map[string][]float64{
			"good": {1, 0},
			"bad":  {1, 0, 0},
		},
	}
	s, _ := openTestStore(t, emb, 2)
	ctx := context.Background()

	articles := []news.Article{
		article("good", "https://dn.se/1"),
		article("bad", "https://dn.se/2"),
		article("missing", "https://dn.se/3"),
	}
	ids, err := s.AddBatch(ctx, articles)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch in %v", err)
	}
	if len(ids) != 1 || ids[0] != articles[0].ID() {
		t.Errorf("unexpected ids: %v", ids)
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 stored entry, got %d", n)
	}
}

func TestAddBatchEmpty(t *testing.T) {
	emb := &mockEmbedder{}
	s, _ := openTestStore(t, emb, 2)
	ids, err := s.AddBatch(context.Background(), nil)
	if err != nil || len(ids) != 0 {
		t.Fatalf("unexpected result: %v, %v", ids, err)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedder calls, got %d", emb.calls)
	}
}

func rankingStore(t *testing.T) *Store {
	t.Helper()
	emb := &mockEmbedder{vectors: map[string][]float64{
		"query":    {1, 0},
		"exact":    {2, 0},
		"close":    {0.8, 0.6},
		"far":      {0.6, 0.8},
		"opposite": {-1, 0},
		"twin-a":   {0.8, 0.6},
		"twin-b":   {0.8, 0.6},
	}}
	s, _ := openTestStore(t, emb, 2)
	_, err := s.AddBatch(context.Background(), []news.Article{
		article("far", "https://dn.se/far"),
		article("opposite", "https://dn.se/opposite"),
		article("close", "https://dn.se/close"),
		article("exact", "https://dn.se/exact"),
	})
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	return s
}

func TestSimilaritySearchOrderAndThreshold(t *testing.T) {
	s := rankingStore(t)
	ctx := context.Background()

	results, err := s.SimilaritySearch(ctx, "query", 10, 0.5)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	var titles []string
	for _, r := range results {
		titles = append(titles, r.Entry.Title())
		if r.Score < 0.5 || r.Score > 1 {
			t.Errorf("score %v outside [0.5, 1]", r.Score)
		}
	}
	if strings.Join(titles, ",") != "exact,close,far" {
		t.Errorf("unexpected order: %v", titles)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}

	results, _ = s.SimilaritySearch(ctx, "query", 10, 0.7)
	if len(results) != 2 {
		t.Errorf("expected 2 results at threshold 0.7, got %d", len(results))
	}

	results, _ = s.SimilaritySearch(ctx, "query", 1, 0)
	if len(results) != 1 || results[0].Entry.Title() != "exact" {
		t.Errorf("expected only exact at limit 1, got %v", results)
	}
}

func TestSimilaritySearchHashEmbedderFindsTopic(t *testing.T) {
	s, _ := openTestStore(t, llm.NewHashEmbedder(384), 384)
	ctx := context.Background()

	body := strings.Repeat("Partierna presenterade sina vallöften inför höstens val och debatten om skatter, skola och sjukvård fortsatte i riksdagen. ", 10)
	a := news.Article{
		Title:      "Riksdagsvalet 2026",
		Text:       body,
		URL:        "https://www.svt.se/nyheter/val-2026",
		SourceName: "SVT",
		Bias:       news.Center,
	}
	if len(a.Text) < 1000 {
		t.Fatalf("body too short: %d", len(a.Text))
	}
	if _, err := s.AddBatch(ctx, []news.Article{a}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	for _, query := range []string{"Riksdagsvalet 2026", "riksdagsvalet 2026 vallöften"} {
		results, err := s.SimilaritySearch(ctx, query, 5, 0.7)
		if err != nil {
			t.Fatalf("SimilaritySearch(%q): %v", query, err)
		}
		if len(results) != 1 || results[0].Entry.ID != a.ID() {
			t.Errorf("SimilaritySearch(%q) = %v, want the stored article", query, results)
		}
	}
}

func TestSimilaritySearchClampsNegative(t *testing.T) {
	s := rankingStore(t)
	results, err := s.SimilaritySearch(context.Background(), "query", 10, 0)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	last := results[len(results)-1]
	if last.Entry.Title() != "opposite" || last.Score != 0 {
		t.Errorf("expected opposite clamped to 0, got %s %v", last.Entry.Title(), last.Score)
	}
}

func TestSimilaritySearchStableTies(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float64{
		"query":  {1, 0},
		"twin-a": {0.8, 0.6},
		"twin-b": {0.8, 0.6},
		"twin-c": {0.8, 0.6},
	}}
	s, _ := openTestStore(t, emb, 2)
	ctx := context.Background()
	s.AddBatch(ctx, []news.Article{
		article("twin-a", "https://dn.se/a"),
		article("twin-b", "https://dn.se/b"),
		article("twin-c", "https://dn.se/c"),
	})

	first, err := s.SimilaritySearch(ctx, "query", 2, 0.5)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 results, got %d", len(first))
	}
	if first[0].Entry.ID > first[1].Entry.ID {
		t.Errorf("ties not ordered by id: %s, %s", first[0].Entry.ID, first[1].Entry.ID)
	}
	for i := 0; i < 5; i++ {
		again, _ := s.SimilaritySearch(ctx, "query", 2, 0.5)
		for j := range again {
			if again[j].Entry.ID != first[j].Entry.ID {
				t.Fatalf("order changed on repeat %d", i)
			}
		}
	}
}

func TestSimilaritySearchZeroLimit(t *testing.T) {
	s := rankingStore(t)
	results, err := s.SimilaritySearch(context.Background(), "query", 0, 0)
	if err != nil || len(results) != 0 {
		t.Errorf("expected empty result, got %v, %v", results, err)
	}
}

func TestNewReloadsVectors(t *testing.T) {
	emb := llm.NewHashEmbedder(32)
	s, db := openTestStore(t, emb, 32)
	ctx := context.Background()
	s.AddBatch(ctx, []news.Article{
		article("Budget", "https://dn.se/1"),
		article("Skolan", "https://dn.se/2"),
	})

	reopened, err := New(ctx, db, emb, 32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if reopened.Indexed() != 2 {
		t.Errorf("expected 2 vectors after reload, got %d", reopened.Indexed())
	}

	other, err := New(ctx, db, llm.NewHashEmbedder(16), 16)
	if err != nil {
		t.Fatalf("New with other dimension: %v", err)
	}
	if other.Indexed() != 0 {
		t.Errorf("expected mismatched vectors to be skipped, got %d", other.Indexed())
	}
}

func TestNewRejectsBadDimension(t *testing.T) {
	if _, err := New(context.Background(), openTestDB(t), llm.NewHashEmbedder(8), 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestAddEntryGetAndRecent(t *testing.T) {
	s, _ := openTestStore(t, llm.NewHashEmbedder(32), 32)
	ctx := context.Background()

	id, err := s.AddEntry(ctx, news.ContextEntry{
		Content:  "Regeringen presenterade budgeten.",
		Metadata: map[string]string{"title": "Budget", "url": "https://svt.se/budget"},
	})
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if id != news.ContentID("https://svt.se/budget", "Regeringen presenterade budgeten.") {
		t.Errorf("unexpected id %s", id)
	}

	got, err := s.Get(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Title() != "Budget" || got.URL() != "https://svt.se/budget" {
		t.Errorf("unexpected entry: %+v", got)
	}

	recent, err := s.Recent(ctx, 5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent: %v, %v", recent, err)
	}

	if _, err := s.AddEntry(ctx, news.ContextEntry{Content: "  "}); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.AddEntry(ctx, news.ContextEntry{Content: "x", Embedding: []float32{1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	missing, err := s.Get(ctx, "article_none")
	if err != nil || missing != nil {
		t.Errorf("expected nil entry, got %v, %v", missing, err)
	}
}
