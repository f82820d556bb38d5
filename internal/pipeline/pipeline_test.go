package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/news"
	"github.com/TobiSchelling/newslens/internal/synthesize"
)

type stubSources struct {
	articles []news.Article
	findErr  error
	fetched  *news.Article
	finds    int
	fetches  int
}

func (s *stubSources) FindArticles(_ context.Context, _ string) ([]news.Article, error) {
	s.finds++
	return s.articles, s.findErr
}

func (s *stubSources) FetchArticle(_ context.Context, _ string) (*news.Article, error) {
	s.fetches++
	return s.fetched, nil
}

type stubStore struct {
	related   []news.ScoredEntry
	searchErr error
	searches  int
	stored    []news.Article
}

func (s *stubStore) SimilaritySearch(_ context.Context, _ string, _ int, _ float64) ([]news.ScoredEntry, error) {
	s.searches++
	return s.related, s.searchErr
}

func (s *stubStore) AddBatch(_ context.Context, articles []news.Article) ([]string, error) {
	s.stored = append(s.stored, articles...)
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID()
	}
	return ids, nil
}

type stubSynth struct {
	mu       sync.Mutex
	calls    int
	related  []news.ContextEntry
	panicMsg string
}

func (s *stubSynth) SummarizeAllBiases(_ context.Context, articles []news.Article) []news.BiasSummary {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	groups := news.GroupByBias(articles)
	out := make([]news.BiasSummary, 0, len(news.Labels))
	for _, l := range news.Labels {
		sum := "Sammanfattning för " + string(l)
		if len(groups[l]) == 0 {
			sum = news.NoCoverageSummary(l)
		}
		out = append(out, news.BiasSummary{
			Bias:         l,
			Summary:      sum,
			ArticleCount: len(groups[l]),
			SourceNames:  news.SourceNames(groups[l]),
		})
	}
	return out
}

func (s *stubSynth) SummarizeNeutral(_ context.Context, _ []news.Article, related []news.ContextEntry, _ string) news.NeutralSummary {
	s.mu.Lock()
	s.calls++
	s.related = related
	s.mu.Unlock()
	return news.NeutralSummary{
		Summary:         "Neutral sammanfattning.",
		KeyFacts:        []string{"Fakta ett"},
		RelatedSnippets: []string{},
		InternalLinks:   []news.Link{},
	}
}

type stubPublisher struct {
	id    string
	err   error
	calls int
}

func (p *stubPublisher) Publish(_ context.Context, _ *news.ProcessingResult) (string, error) {
	p.calls++
	return p.id, p.err
}

type stubReports struct {
	reports []database.Report
}

func (r *stubReports) InsertReport(_ context.Context, rep database.Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

func article(title, url, source string, bias news.BiasLabel) news.Article {
	return news.Article{
		Title:      title,
		Text:       "Brödtext för " + title,
		URL:        url,
		SourceName: source,
		Bias:       bias,
	}
}

func electionArticles() []news.Article {
	return []news.Article{
		article("Valet 1", "https://www.aftonbladet.se/a/1", "Aftonbladet", news.Left),
		article("Valet 2", "https://www.etc.se/a/2", "ETC", news.Left),
		article("Valet 3", "https://www.svt.se/a/3", "SVT", news.Center),
	}
}

type fixture struct {
	sources   *stubSources
	store     *stubStore
	synth     *stubSynth
	publisher *stubPublisher
	reports   *stubReports
}

func newFixture(articles []news.Article) *fixture {
	return &fixture{
		sources:   &stubSources{articles: articles},
		store:     &stubStore{},
		synth:     &stubSynth{},
		publisher: &stubPublisher{id: "123"},
		reports:   &stubReports{},
	}
}

func (f *fixture) pipeline() *Pipeline {
	return New(Deps{
		Sources:   f.sources,
		Store:     f.store,
		Synth:     f.synth,
		Publisher: f.publisher,
		Reports:   f.reports,
	})
}

func TestRun_NoInput(t *testing.T) {
	f := newFixture(electionArticles())

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "  "})
	if !errors.Is(err, news.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if f.sources.finds != 0 || f.store.searches != 0 || f.synth.calls != 0 || len(f.reports.reports) != 0 {
		t.Error("no collaborator should be called without input")
	}
}

func TestRun_FullResult(t *testing.T) {
	f := newFixture(electionArticles())

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Swedish Elections 2024"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Processing
	if r.Topic != "Swedish Elections 2024" {
		t.Errorf("topic = %q", r.Topic)
	}
	if r.IsError() {
		t.Fatal("expected a non-error result")
	}

	want := map[news.BiasLabel]int{news.Left: 2, news.Center: 1, news.Right: 0}
	if len(r.BiasSummaries) != 3 {
		t.Fatalf("expected 3 bias summaries, got %d", len(r.BiasSummaries))
	}
	for _, bs := range r.BiasSummaries {
		if bs.ArticleCount != want[bs.Bias] {
			t.Errorf("%s count = %d, want %d", bs.Bias, bs.ArticleCount, want[bs.Bias])
		}
	}
	if got := r.BiasSummaries[2].Summary; got != news.NoCoverageSummary(news.Right) {
		t.Errorf("right summary = %q", got)
	}
	if r.Neutral.Summary == "" {
		t.Error("expected a neutral summary")
	}
	if len(r.Visualization) != 3 {
		t.Errorf("expected 3 visualization entries, got %d", len(r.Visualization))
	}
	if len(r.Articles) != 3 {
		t.Errorf("expected 3 articles, got %d", len(r.Articles))
	}
	if r.Timestamp.Location().String() != "UTC" {
		t.Errorf("timestamp not UTC: %v", r.Timestamp)
	}
	if len(f.store.stored) != 3 {
		t.Errorf("expected 3 stored articles, got %d", len(f.store.stored))
	}
	if f.publisher.calls != 0 {
		t.Error("publisher called without WithPublish")
	}
	if r.PublishID != nil {
		t.Errorf("expected nil publish id, got %q", *r.PublishID)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestRun_NoArticles(t *testing.T) {
	f := newFixture(nil)

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Description: "Ett obskyrt ämne"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Processing
	if r.Topic != news.ErrorTopic {
		t.Errorf("topic = %q, want %q", r.Topic, news.ErrorTopic)
	}
	if !strings.Contains(r.Neutral.Summary, "Ett obskyrt ämne") {
		t.Errorf("summary should name the query: %q", r.Neutral.Summary)
	}
	if len(r.BiasSummaries) != 0 || len(r.Visualization) != 0 || len(r.Articles) != 0 {
		t.Error("expected empty lists in error result")
	}
	if f.synth.calls != 0 {
		t.Error("generator should not be called without articles")
	}
	if len(f.reports.reports) != 1 {
		t.Fatalf("expected error run to be recorded, got %d reports", len(f.reports.reports))
	}
}

func TestRun_DiscoveryErrorIsNoArticles(t *testing.T) {
	f := newFixture(nil)
	f.sources.findErr = errors.New("search down")

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Budget"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Processing.IsError() {
		t.Error("expected error variant")
	}
}

func TestRun_RetrievalFailureContinues(t *testing.T) {
	f := newFixture(electionArticles())
	f.store.searchErr = errors.New("store unavailable")

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Skolan"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Processing
	if r.IsError() {
		t.Fatal("retrieval failure should not abort the run")
	}
	if len(r.Neutral.RelatedSnippets) != 0 || len(r.Neutral.InternalLinks) != 0 {
		t.Error("expected no snippets or links")
	}
	if r.Neutral.Summary == "" {
		t.Error("expected a neutral summary")
	}
	if f.synth.related == nil || len(f.synth.related) != 0 {
		t.Errorf("expected empty non-nil context, got %v", f.synth.related)
	}
}

func TestRun_PassesContext(t *testing.T) {
	f := newFixture(electionArticles())
	f.store.related = []news.ScoredEntry{
		{Entry: news.ContextEntry{ID: "a", Content: "äldre"}, Score: 0.9},
	}

	if _, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Skolan"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.synth.related) != 1 || f.synth.related[0].ID != "a" {
		t.Errorf("context not passed through: %v", f.synth.related)
	}
}

func TestRun_ExplicitURL(t *testing.T) {
	arts := electionArticles()
	f := newFixture(arts)
	f.sources.fetched = &news.Article{
		Title: "Extra", Text: "Extra text", URL: "https://www.svd.se/x",
		SourceName: "SvD", Bias: news.Right,
	}

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val", URL: "https://www.svd.se/x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.sources.fetches != 1 {
		t.Errorf("expected one fetch, got %d", f.sources.fetches)
	}
	if len(res.Processing.Articles) != 4 {
		t.Errorf("expected fetched article appended, got %d", len(res.Processing.Articles))
	}
}

func TestRun_ExplicitURLAlreadyFound(t *testing.T) {
	arts := electionArticles()
	f := newFixture(arts)
	dup := arts[0]
	f.sources.fetched = &dup

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val", URL: dup.URL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Processing.Articles) != 3 {
		t.Errorf("duplicate article added: %d articles", len(res.Processing.Articles))
	}
}

func TestRun_DedupesDiscoveredArticles(t *testing.T) {
	arts := electionArticles()
	f := newFixture(append(arts, arts[1], arts[0]))

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Processing.Articles) != 3 {
		t.Errorf("expected 3 unique articles, got %d", len(res.Processing.Articles))
	}
	if len(f.store.stored) != 3 {
		t.Errorf("expected 3 stored articles, got %d", len(f.store.stored))
	}
	if !strings.Contains(res.Steps[0].Summary, "Found 3 articles (Left=2 Center=1 Right=0)") {
		t.Errorf("unexpected discovery summary: %q", res.Steps[0].Summary)
	}
}

func TestRun_Publish(t *testing.T) {
	f := newFixture(electionArticles())

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val"}, WithPublish(true))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.publisher.calls != 1 {
		t.Errorf("expected one publish call, got %d", f.publisher.calls)
	}
	if res.Processing.PublishID == nil || *res.Processing.PublishID != "123" {
		t.Errorf("publish id = %v", res.Processing.PublishID)
	}
	if got := f.reports.reports[0].PublishID; got == nil || *got != "123" {
		t.Errorf("report publish id = %v", got)
	}
}

func TestRun_PublishFailure(t *testing.T) {
	f := newFixture(electionArticles())
	f.publisher.err = errors.New("wordpress 500")

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val"}, WithPublish(true))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processing.PublishID != nil {
		t.Errorf("expected nil publish id, got %q", *res.Processing.PublishID)
	}
	if res.Processing.IsError() {
		t.Error("publish failure should not turn the result into an error")
	}
}

func TestRun_RecordsReport(t *testing.T) {
	f := newFixture(electionArticles())

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.reports.reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(f.reports.reports))
	}
	rep := f.reports.reports[0]
	if rep.ID != res.RunID {
		t.Errorf("report id = %q, want %q", rep.ID, res.RunID)
	}
	if rep.ArticleCount != 3 || rep.Topic != "Val" || rep.Query != "Val" {
		t.Errorf("unexpected report: %+v", rep)
	}

	var decoded news.ProcessingResult
	if err := json.Unmarshal([]byte(rep.ResultJSON), &decoded); err != nil {
		t.Fatalf("decoding report json: %v", err)
	}
	if decoded.Topic != "Val" || len(decoded.Articles) != 3 {
		t.Errorf("unexpected decoded result: %+v", decoded)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	f := newFixture(electionArticles())
	f.synth.panicMsg = "boom"

	res, err := f.pipeline().Run(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Processing.IsError() {
		t.Fatal("expected error variant after panic")
	}
	if !strings.Contains(res.Processing.Neutral.Summary, "boom") {
		t.Errorf("summary should carry the failure: %q", res.Processing.Neutral.Summary)
	}
}

// keyFactsPanicProvider answers every prompt but panics on key fact extraction.
type keyFactsPanicProvider struct{}

func (keyFactsPanicProvider) Generate(_ context.Context, _ string, maxTokens int) (string, error) {
	if maxTokens == synthesize.DefaultMaxTokens.KeyFacts {
		panic("malformed key facts")
	}
	return "Sammanfattning.", nil
}

func (keyFactsPanicProvider) IsConfigured() bool { return true }

func TestRun_KeyFactsPanicKeepsResult(t *testing.T) {
	f := newFixture(electionArticles())
	p := New(Deps{
		Sources: f.sources,
		Store:   f.store,
		Synth:   synthesize.NewSynthesizer(keyFactsPanicProvider{}),
		Reports: f.reports,
	})

	res, err := p.Run(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Processing
	if r.IsError() {
		t.Fatalf("expected a full result, got error variant: %q", r.Neutral.Summary)
	}
	if len(r.BiasSummaries) != 3 {
		t.Errorf("expected 3 bias summaries, got %d", len(r.BiasSummaries))
	}
	if r.Neutral.Summary != "Sammanfattning." {
		t.Errorf("neutral summary = %q", r.Neutral.Summary)
	}
	if r.Neutral.KeyFacts == nil || len(r.Neutral.KeyFacts) != 0 {
		t.Errorf("expected empty key facts, got %v", r.Neutral.KeyFacts)
	}
	if len(f.store.stored) != 3 {
		t.Errorf("expected articles stored, got %d", len(f.store.stored))
	}
}

func TestRun_NilStoreAndReports(t *testing.T) {
	f := newFixture(electionArticles())
	p := New(Deps{Sources: f.sources, Synth: f.synth})

	res, err := p.Run(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processing.IsError() {
		t.Error("expected a full result without store")
	}
}

func TestDryRun(t *testing.T) {
	f := newFixture(electionArticles())

	res, err := f.pipeline().DryRun(context.Background(), news.ProcessingInput{Title: "Val"})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if res.Processing != nil {
		t.Error("dry run should not build a result")
	}
	if f.synth.calls != 0 || len(f.store.stored) != 0 || f.publisher.calls != 0 || len(f.reports.reports) != 0 {
		t.Error("dry run must not generate, store, publish or record")
	}
	for _, s := range res.Steps {
		if !strings.HasPrefix(s.Summary, "[dry-run]") {
			t.Errorf("step %s summary missing prefix: %q", s.Name, s.Summary)
		}
	}
	if !strings.Contains(res.Steps[2].Summary, "Left=2 Center=1 Right=0") {
		t.Errorf("unexpected bias step: %q", res.Steps[2].Summary)
	}
}

func TestDryRun_NoInput(t *testing.T) {
	f := newFixture(nil)
	if _, err := f.pipeline().DryRun(context.Background(), news.ProcessingInput{}); !errors.Is(err, news.ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}
