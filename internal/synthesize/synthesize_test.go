package synthesize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TobiSchelling/newslens/internal/news"
)

// mockProvider answers by prompt kind and records every call.
type mockProvider struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	respond  func(prompt string) (string, error)
	response string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.respond != nil {
		return m.respond(prompt)
	}
	return m.response, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testArticle(title string, bias news.BiasLabel, source string) news.Article {
	return news.Article{
		Title:      title,
		Text:       "Text about " + title,
		URL:        "https://example.se/" + strings.ReplaceAll(title, " ", "-"),
		SourceName: source,
		Bias:       bias,
	}
}

func TestSummarizeBiasEmptyGroup(t *testing.T) {
	mock := &mockProvider{response: "should not be used"}
	s := NewSynthesizer(mock)

	got := s.SummarizeBias(context.Background(), news.Right, nil)
	if got != news.NoCoverageSummary(news.Right) {
		t.Errorf("got %q", got)
	}
	if mock.callCount() != 0 {
		t.Errorf("expected no generator calls, got %d", mock.callCount())
	}
}

func TestSummarizeBiasPrompt(t *testing.T) {
	mock := &mockProvider{response: "  Vänstersammanfattning.  "}
	s := NewSynthesizer(mock)

	var articles []news.Article
	for i := 0; i < 12; i++ {
		articles = append(articles, testArticle("Artikel "+string(rune('A'+i)), news.Left, "Aftonbladet"))
	}
	got := s.SummarizeBias(context.Background(), news.Left, articles)
	if got != "Vänstersammanfattning." {
		t.Errorf("got %q", got)
	}

	prompt := mock.prompts[0]
	if !strings.Contains(prompt, "vänster-leaning") {
		t.Error("prompt does not name the label")
	}
	if !strings.Contains(prompt, "Artikel 10:") || strings.Contains(prompt, "Artikel 11:") {
		t.Error("prompt should contain exactly the first 10 articles")
	}
}

func TestSummarizeBiasFailure(t *testing.T) {
	for name, mock := range map[string]*mockProvider{
		"error": {respond: func(string) (string, error) { return "", errors.New("down") }},
		"empty": {response: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSynthesizer(mock)
			got := s.SummarizeBias(context.Background(), news.Center, []news.Article{testArticle("A", news.Center, "DN")})
			if got != news.FailedBiasSummary(news.Center) {
				t.Errorf("got %q", got)
			}
		})
	}
}

func TestSummarizeBiasNilProvider(t *testing.T) {
	s := NewSynthesizer(nil)
	got := s.SummarizeBias(context.Background(), news.Left, []news.Article{testArticle("A", news.Left, "AB")})
	if got != news.FailedBiasSummary(news.Left) {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeAllBiases(t *testing.T) {
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "center-leaning") {
			return "", errors.New("center failed")
		}
		return "ok", nil
	}}
	s := NewSynthesizer(mock)

	articles := []news.Article{
		testArticle("A", news.Left, "Aftonbladet"),
		testArticle("B", news.Left, "Expressen"),
		testArticle("C", news.Center, "DN"),
		testArticle("D", news.Left, "Aftonbladet"),
	}
	got := s.SummarizeAllBiases(context.Background(), articles)

	if len(got) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(got))
	}
	for i, l := range news.Labels {
		if got[i].Bias != l {
			t.Errorf("summary %d has label %s, want %s", i, got[i].Bias, l)
		}
	}
	if got[0].ArticleCount != 3 || got[0].Summary != "ok" {
		t.Errorf("left summary = %+v", got[0])
	}
	if strings.Join(got[0].SourceNames, ",") != "Aftonbladet,Expressen" {
		t.Errorf("left sources = %v", got[0].SourceNames)
	}
	if got[1].Summary != news.FailedBiasSummary(news.Center) {
		t.Errorf("center failure not isolated: %q", got[1].Summary)
	}
	if got[2].ArticleCount != 0 || got[2].Summary != news.NoCoverageSummary(news.Right) {
		t.Errorf("right summary = %+v", got[2])
	}
	if mock.callCount() != 2 {
		t.Errorf("expected 2 generator calls, got %d", mock.callCount())
	}
}

func neutralMock(facts string) *mockProvider {
	return &mockProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "key_facts") {
			return facts, nil
		}
		return "Neutral sammanfattning.", nil
	}}
}

func TestSummarizeNeutral(t *testing.T) {
	mock := neutralMock(`{"key_facts": ["Fakta 1", "Fakta 2"]}`)
	s := NewSynthesizer(mock)

	related := []news.ContextEntry{
		{Content: strings.Repeat("x", 300), Metadata: map[string]string{"title": "T1", "url": "https://a.se/1"}},
		{Content: "kort", Metadata: map[string]string{"title": "T2"}},
	}
	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, related, "Budget")

	if got.Summary != "Neutral sammanfattning." {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyFacts) != 2 || got.KeyFacts[0] != "Fakta 1" {
		t.Errorf("key facts = %v", got.KeyFacts)
	}
	if len(got.InternalLinks) != 1 || got.InternalLinks[0].URL != "https://a.se/1" {
		t.Errorf("links = %v", got.InternalLinks)
	}
	if len(got.RelatedSnippets) != 2 || got.RelatedSnippets[0] != strings.Repeat("x", 200)+"..." || got.RelatedSnippets[1] != "kort" {
		t.Errorf("snippets = %v", got.RelatedSnippets)
	}
	if !strings.Contains(mock.prompts[0], "Kontext 1:") {
		t.Error("neutral prompt is missing context")
	}
}

func TestSummarizeNeutralNoContext(t *testing.T) {
	mock := neutralMock("- Fakta")
	s := NewSynthesizer(mock)

	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, nil, "Budget")
	if got.Summary == "" || len(got.RelatedSnippets) != 0 || len(got.InternalLinks) != 0 {
		t.Errorf("unexpected summary: %+v", got)
	}
	if got.RelatedSnippets == nil || got.InternalLinks == nil {
		t.Error("expected empty, non-nil lists")
	}
	if !strings.Contains(mock.prompts[0], news.NoContextText) {
		t.Error("expected no-context text in prompt")
	}
}

func TestSummarizeNeutralFailureSkipsKeyFacts(t *testing.T) {
	mock := &mockProvider{respond: func(string) (string, error) { return "", errors.New("timeout") }}
	s := NewSynthesizer(mock)

	related := []news.ContextEntry{{Content: "c", Metadata: map[string]string{"title": "T", "url": "https://a.se"}}}
	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, related, "Budget")

	if got.Summary != news.FailedNeutralSummary(errors.New("timeout")) {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyFacts) != 0 {
		t.Errorf("expected no key facts, got %v", got.KeyFacts)
	}
	if len(got.InternalLinks) != 1 || len(got.RelatedSnippets) != 1 {
		t.Errorf("links and snippets should not depend on the summary: %+v", got)
	}
	if mock.callCount() != 1 {
		t.Errorf("expected 1 generator call, got %d", mock.callCount())
	}
}

func TestSummarizeNeutralKeyFactsFailure(t *testing.T) {
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "key_facts") {
			return "", errors.New("down")
		}
		return "Sammanfattning.", nil
	}}
	s := NewSynthesizer(mock)

	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, nil, "Budget")
	if got.Summary != "Sammanfattning." || len(got.KeyFacts) != 0 || got.KeyFacts == nil {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestSummarizeNeutralKeyFactsPanic(t *testing.T) {
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "key_facts") {
			panic("malformed response")
		}
		return "Sammanfattning.", nil
	}}
	s := NewSynthesizer(mock)

	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, nil, "Budget")
	if got.Summary != "Sammanfattning." {
		t.Errorf("summary = %q", got.Summary)
	}
	if got.KeyFacts == nil || len(got.KeyFacts) != 0 {
		t.Errorf("expected empty key facts, got %v", got.KeyFacts)
	}
}

func TestSummarizeNeutralPanic(t *testing.T) {
	mock := &mockProvider{respond: func(string) (string, error) { panic("boom") }}
	s := NewSynthesizer(mock)

	got := s.SummarizeNeutral(context.Background(), []news.Article{testArticle("A", news.Left, "AB")}, nil, "Budget")
	if got.Summary != news.FailedNeutralSummary(errors.New("panic: boom")) {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyFacts) != 0 {
		t.Errorf("expected no key facts, got %v", got.KeyFacts)
	}
	if mock.callCount() != 1 {
		t.Errorf("expected 1 generator call, got %d", mock.callCount())
	}
}

func TestParseKeyFacts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json", `{"key_facts": ["A", " ", "B"]}`, []string{"A", "B"}},
		{"fenced json", "```json\n{\"key_facts\": [\"A\"]}\n```", []string{"A"}},
		{"dashes", "Viktiga fakta:\n- A\n- B", []string{"A", "B"}},
		{"mixed markers", "* A\n• B\n1. C\n2) D", []string{"A", "B", "C", "D"}},
		{"leading decimal", "- 1.5 miljoner kronor\n2.3 procent\n3. C", []string{"1.5 miljoner kronor", "2.3 procent", "C"}},
		{"heading", "## Key facts\n- A", []string{"A"}},
		{"capped", "- 1\n- 2\n- 3\n- 4\n- 5\n- 6", []string{"1", "2", "3", "4", "5"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeyFacts(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ParseKeyFacts(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInternalLinksCappedAndUnique(t *testing.T) {
	entry := func(title, url string) news.ContextEntry {
		return news.ContextEntry{Metadata: map[string]string{"title": title, "url": url}}
	}
	related := []news.ContextEntry{
		entry("A", "https://a.se"),
		entry("A again", "https://a.se"),
		entry("", "https://b.se"),
		entry("C", ""),
		entry("D", "https://d.se"),
		entry("E", "https://e.se"),
		entry("F", "https://f.se"),
	}
	links := InternalLinks(related)
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %v", links)
	}
	want := []string{"https://a.se", "https://d.se", "https://e.se"}
	for i, l := range links {
		if l.URL != want[i] {
			t.Errorf("link %d = %s, want %s", i, l.URL, want[i])
		}
	}
}

func TestSnippetsCapped(t *testing.T) {
	var related []news.ContextEntry
	for i := 0; i < 5; i++ {
		related = append(related, news.ContextEntry{Content: "c"})
	}
	if got := Snippets(related); len(got) != 3 {
		t.Errorf("expected 3 snippets, got %d", len(got))
	}
}
