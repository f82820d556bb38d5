// Package synthesize turns grouped articles into per-bias and neutral
// summaries with a text generator.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/TobiSchelling/newslens/internal/llm"
	"github.com/TobiSchelling/newslens/internal/news"
)

const (
	maxPromptArticles = 10
	maxArticleChars   = 1000
	maxContextEntries = 5
	maxContextChars   = 500
	maxFactArticles   = 5
	maxKeyFacts       = 5
	maxInternalLinks  = 3
	maxSnippets       = 3
	snippetChars      = 200
)

// errEmptyOutput is returned when the generator produced only whitespace.
var errEmptyOutput = errors.New("generator returned empty output")

// MaxTokens holds the per-call token budgets.
type MaxTokens struct {
	Bias     int
	Neutral  int
	KeyFacts int
}

// DefaultMaxTokens are the budgets used by NewSynthesizer.
var DefaultMaxTokens = MaxTokens{Bias: 600, Neutral: 1200, KeyFacts: 400}

// Synthesizer writes summaries using an LLM provider.
type Synthesizer struct {
	provider  llm.Provider
	MaxTokens MaxTokens
}

// NewSynthesizer creates a synthesizer. A nil provider makes every
// generation fail, which yields the failure texts.
func NewSynthesizer(provider llm.Provider) *Synthesizer {
	return &Synthesizer{provider: provider, MaxTokens: DefaultMaxTokens}
}

func (s *Synthesizer) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if s.provider == nil {
		return "", errors.New("no LLM provider available")
	}
	text, err := s.provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyOutput
	}
	return text, nil
}

// SummarizeBias summarizes how one bias group covers the story. An empty
// group returns the no-coverage text without calling the generator.
func (s *Synthesizer) SummarizeBias(ctx context.Context, label news.BiasLabel, articles []news.Article) string {
	if len(articles) == 0 {
		return news.NoCoverageSummary(label)
	}

	prompt := fmt.Sprintf(biasPrompt, label.Swedish(), formatArticles(articles))
	text, err := s.generate(ctx, prompt, s.MaxTokens.Bias)
	if err != nil {
		slog.Error("bias summary failed", "bias", label, "articles", len(articles), "error", err)
		return news.FailedBiasSummary(label)
	}
	return text
}

// SummarizeAllBiases groups articles and summarizes each label
// concurrently. The result is always Left, Center, Right.
func (s *Synthesizer) SummarizeAllBiases(ctx context.Context, articles []news.Article) []news.BiasSummary {
	groups := news.GroupByBias(articles)
	summaries := make([]news.BiasSummary, len(news.Labels))

	var wg sync.WaitGroup
	for i, label := range news.Labels {
		group := groups[label]
		summaries[i] = news.BiasSummary{
			Bias:         label,
			ArticleCount: len(group),
			SourceNames:  news.SourceNames(group),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("bias summary panicked", "bias", label, "panic", r)
					summaries[i].Summary = news.FailedBiasSummary(label)
				}
			}()
			summaries[i].Summary = s.SummarizeBias(ctx, label, group)
		}()
	}
	wg.Wait()

	return summaries
}

// SummarizeNeutral writes the fact-only summary over all articles plus
// retrieved context. Summary text, key facts, internal links and snippets
// fail independently.
func (s *Synthesizer) SummarizeNeutral(ctx context.Context, articles []news.Article, related []news.ContextEntry, topic string) news.NeutralSummary {
	out := news.NeutralSummary{
		KeyFacts:        []string{},
		RelatedSnippets: Snippets(related),
		InternalLinks:   InternalLinks(related),
	}

	prompt := fmt.Sprintf(neutralPrompt, topic, formatArticles(articles), formatContext(related))
	text, err := s.neutralText(ctx, prompt)
	if err != nil {
		slog.Error("neutral summary failed", "topic", topic, "error", err)
		out.Summary = news.FailedNeutralSummary(err)
		return out
	}
	out.Summary = text
	out.KeyFacts = s.KeyFacts(ctx, articles, text)
	return out
}

func (s *Synthesizer) neutralText(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("neutral summary panicked", "panic", r)
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	return s.generate(ctx, prompt, s.MaxTokens.Neutral)
}

// KeyFacts asks the generator for the key facts of the articles and summary.
// Failures, including a panicking generator, yield an empty list.
func (s *Synthesizer) KeyFacts(ctx context.Context, articles []news.Article, summary string) (facts []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("key fact extraction panicked", "panic", r)
			facts = []string{}
		}
	}()

	var b strings.Builder
	for i, a := range articles {
		if i >= maxFactArticles {
			break
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", a.Title, news.Truncate(a.Text, maxArticleChars))
	}

	text, err := s.generate(ctx, fmt.Sprintf(keyFactsPrompt, b.String(), summary), s.MaxTokens.KeyFacts)
	if err != nil {
		slog.Warn("key fact extraction failed", "error", err)
		return []string{}
	}
	return ParseKeyFacts(text)
}

var bulletPrefix = regexp.MustCompile(`^(?:[-*•]\s*|\d+[.)]\s+)`)

// ParseKeyFacts reads facts from a JSON {"key_facts": [...]} object or from
// bullet lines, capped at five.
func ParseKeyFacts(text string) []string {
	facts := []string{}

	if parsed := llm.ParseJSONResponse(text); parsed != nil {
		for _, f := range llm.StringList(parsed, "key_facts") {
			if f = strings.TrimSpace(f); f != "" {
				facts = append(facts, f)
			}
		}
		return capList(facts, maxKeyFacts)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isHeading(line) {
			continue
		}
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line != "" {
			facts = append(facts, line)
		}
	}
	return capList(facts, maxKeyFacts)
}

func isHeading(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(line, "#") ||
		strings.HasPrefix(lower, "viktiga fakta") ||
		strings.HasPrefix(lower, "key facts") ||
		(strings.HasSuffix(line, ":") && !bulletPrefix.MatchString(line))
}

// InternalLinks builds links from context metadata. Entries need both a
// title and a url; urls are unique; at most three links are returned.
func InternalLinks(related []news.ContextEntry) []news.Link {
	links := []news.Link{}
	seen := make(map[string]struct{})
	for _, e := range related {
		if len(links) >= maxInternalLinks {
			break
		}
		title, u := strings.TrimSpace(e.Title()), strings.TrimSpace(e.URL())
		if title == "" || u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		links = append(links, news.Link{Title: title, URL: u})
	}
	return links
}

// Snippets previews the first three context entries.
func Snippets(related []news.ContextEntry) []string {
	snippets := []string{}
	for i, e := range related {
		if i >= maxSnippets {
			break
		}
		snippets = append(snippets, news.Preview(e.Content, snippetChars))
	}
	return snippets
}

func formatArticles(articles []news.Article) string {
	var parts []string
	for i, a := range articles {
		if i >= maxPromptArticles {
			break
		}
		parts = append(parts, fmt.Sprintf("Artikel %d:\nKälla: %s (%s)\nTitel: %s\nInnehåll: %s\nURL: %s\n---",
			i+1, a.SourceName, a.Bias, a.Title, news.Preview(a.Text, maxArticleChars), a.URL))
	}
	return strings.Join(parts, "\n\n")
}

func formatContext(related []news.ContextEntry) string {
	if len(related) == 0 {
		return news.NoContextText
	}
	var parts []string
	for i, e := range related {
		if i >= maxContextEntries {
			break
		}
		parts = append(parts, fmt.Sprintf("Kontext %d:\n%s\n---", i+1, news.Preview(e.Content, maxContextChars)))
	}
	return strings.Join(parts, "\n\n")
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
