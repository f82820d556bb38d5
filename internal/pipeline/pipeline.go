// Package pipeline runs a news topic through discovery, context retrieval,
// summarization, persistence and publication.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/news"
)

// SourceProvider discovers and extracts articles.
type SourceProvider interface {
	FindArticles(ctx context.Context, query string) ([]news.Article, error)
	FetchArticle(ctx context.Context, url string) (*news.Article, error)
}

// Store persists articles and answers similarity queries.
type Store interface {
	SimilaritySearch(ctx context.Context, query string, limit int, threshold float64) ([]news.ScoredEntry, error)
	AddBatch(ctx context.Context, articles []news.Article) ([]string, error)
}

// Summarizer writes the bias and neutral summaries.
type Summarizer interface {
	SummarizeAllBiases(ctx context.Context, articles []news.Article) []news.BiasSummary
	SummarizeNeutral(ctx context.Context, articles []news.Article, related []news.ContextEntry, topic string) news.NeutralSummary
}

// Publisher sends a finished result to a CMS and returns the post id.
type Publisher interface {
	Publish(ctx context.Context, r *news.ProcessingResult) (string, error)
}

// ReportLog records finished runs.
type ReportLog interface {
	InsertReport(ctx context.Context, r database.Report) error
}

// Deps are the collaborators of a pipeline. Publisher and Reports are
// optional.
type Deps struct {
	Sources   SourceProvider
	Store     Store
	Synth     Summarizer
	Publisher Publisher
	Reports   ReportLog

	RetrievalLimit     int
	RetrievalThreshold float64
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of a pipeline run.
type Result struct {
	RunID      string
	Processing *news.ProcessingResult
	Steps      []StepResult
}

// Pipeline orchestrates the processing steps.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a pipeline. Zero retrieval options get the defaults 5 and 0.7.
func New(deps Deps) *Pipeline {
	if deps.RetrievalLimit <= 0 {
		deps.RetrievalLimit = 5
	}
	if deps.RetrievalThreshold == 0 {
		deps.RetrievalThreshold = 0.7
	}
	return &Pipeline{deps: deps, now: time.Now}
}

type runOptions struct {
	publish bool
}

// RunOption configures a single run.
type RunOption func(*runOptions)

// WithPublish publishes the result when a publisher is configured.
func WithPublish(publish bool) RunOption {
	return func(o *runOptions) { o.publish = publish }
}

// Run processes a topic. The only error returned is news.ErrNoInput, in
// which case no collaborator is called. Every other failure, including a
// panic, yields the error variant of the result.
func (p *Pipeline) Run(ctx context.Context, input news.ProcessingInput, opts ...RunOption) (res *Result, err error) {
	query, err := input.Query()
	if err != nil {
		return nil, err
	}

	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	res = &Result{RunID: uuid.NewString()}
	slog.Info("processing topic", "run_id", res.RunID, "query", query)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panicked", "run_id", res.RunID, "panic", r)
			res.Processing = news.ErrorResult(news.UnexpectedFailureMessage(r), p.now().UTC())
			res.Steps = append(res.Steps, StepResult{Name: "Abort", Err: fmt.Errorf("panic: %v", r)})
			err = nil
		}
	}()

	// Step 1: Discovery
	articles, step := p.runDiscovery(ctx, query, input.ExplicitURL())
	res.Steps = append(res.Steps, step)
	if len(articles) == 0 {
		res.Processing = news.ErrorResult(news.NoArticlesMessage(query), p.now().UTC())
		res.Steps = append(res.Steps, p.runReport(ctx, res.RunID, query, res.Processing))
		return res, nil
	}

	// Step 2: Context retrieval
	related, step := p.runRetrieval(ctx, query)
	res.Steps = append(res.Steps, step)

	// Step 3: Bias summaries
	biasSummaries := p.deps.Synth.SummarizeAllBiases(ctx, articles)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Bias",
		Summary: fmt.Sprintf("Summarized %d labels", len(biasSummaries)),
	})

	// Step 4: Neutral summary
	neutral := p.deps.Synth.SummarizeNeutral(ctx, articles, related, query)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Neutral",
		Summary: fmt.Sprintf("%d key facts, %d links, %d snippets", len(neutral.KeyFacts), len(neutral.InternalLinks), len(neutral.RelatedSnippets)),
	})

	// Step 5: Visualization
	viz := news.Visualize(articles)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Visualize",
		Summary: fmt.Sprintf("%d entries", len(viz)),
	})

	// Step 6: Persistence
	res.Steps = append(res.Steps, p.runPersist(ctx, articles))

	res.Processing = &news.ProcessingResult{
		Topic:         query,
		Neutral:       neutral,
		BiasSummaries: biasSummaries,
		Visualization: viz,
		Articles:      articles,
		Timestamp:     p.now().UTC(),
	}

	// Step 7: Publication
	if o.publish {
		res.Steps = append(res.Steps, p.runPublish(ctx, res.Processing))
	}

	// Step 8: Report
	res.Steps = append(res.Steps, p.runReport(ctx, res.RunID, query, res.Processing))

	slog.Info("topic processed", "run_id", res.RunID, "articles", len(articles))
	return res, nil
}

// DryRun runs discovery and context retrieval only and reports what a full
// run would work with. No generator, persistence or publication call is made.
func (p *Pipeline) DryRun(ctx context.Context, input news.ProcessingInput) (*Result, error) {
	query, err := input.Query()
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: uuid.NewString()}

	articles, step := p.runDiscovery(ctx, query, input.ExplicitURL())
	step.Summary = "[dry-run] " + step.Summary
	res.Steps = append(res.Steps, step)

	related, step := p.runRetrieval(ctx, query)
	step.Summary = "[dry-run] " + step.Summary
	res.Steps = append(res.Steps, step)

	groups := news.GroupByBias(articles)
	res.Steps = append(res.Steps, StepResult{
		Name: "Bias",
		Summary: fmt.Sprintf("[dry-run] Would summarize Left=%d Center=%d Right=%d",
			len(groups[news.Left]), len(groups[news.Center]), len(groups[news.Right])),
	})
	res.Steps = append(res.Steps, StepResult{
		Name:    "Neutral",
		Summary: fmt.Sprintf("[dry-run] Would summarize %d articles with %d context entries", len(articles), len(related)),
	})
	res.Steps = append(res.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("[dry-run] Would store %d articles", len(articles)),
	})
	return res, nil
}

func (p *Pipeline) runDiscovery(ctx context.Context, query, explicitURL string) ([]news.Article, StepResult) {
	slog.Info("step 1: discovering articles", "query", query)

	articles, err := p.deps.Sources.FindArticles(ctx, query)
	if err != nil {
		slog.Warn("discovery failed", "query", query, "error", err)
		articles = nil
	}

	if explicitURL != "" {
		a, err := p.deps.Sources.FetchArticle(ctx, explicitURL)
		switch {
		case err != nil:
			slog.Warn("fetching topic url failed", "url", explicitURL, "error", err)
		case a != nil:
			articles = append(articles, *a)
		}
	}
	articles = news.Dedupe(articles)

	dist := news.BiasDistribution(articles)
	return articles, StepResult{
		Name: "Discover",
		Summary: fmt.Sprintf("Found %d articles (Left=%d Center=%d Right=%d)",
			len(articles), dist[news.Left], dist[news.Center], dist[news.Right]),
		Err: err,
	}
}

func (p *Pipeline) runRetrieval(ctx context.Context, query string) ([]news.ContextEntry, StepResult) {
	slog.Info("step 2: retrieving context")
	if p.deps.Store == nil {
		return []news.ContextEntry{}, StepResult{Name: "Context", Summary: "No store configured"}
	}

	scored, err := p.deps.Store.SimilaritySearch(ctx, query, p.deps.RetrievalLimit, p.deps.RetrievalThreshold)
	if err != nil {
		slog.Warn("context retrieval failed", "query", query, "error", err)
		return []news.ContextEntry{}, StepResult{Name: "Context", Summary: "Context unavailable", Err: err}
	}
	return news.Entries(scored), StepResult{
		Name:    "Context",
		Summary: fmt.Sprintf("Retrieved %d related entries", len(scored)),
	}
}

func (p *Pipeline) runPersist(ctx context.Context, articles []news.Article) StepResult {
	slog.Info("step 6: storing articles", "count", len(articles))
	if p.deps.Store == nil {
		return StepResult{Name: "Persist", Summary: "No store configured"}
	}
	ids, err := p.deps.Store.AddBatch(ctx, articles)
	if err != nil {
		slog.Warn("storing articles failed", "stored", len(ids), "total", len(articles), "error", err)
	}
	return StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("Stored %d of %d articles", len(ids), len(articles)),
		Err:     err,
	}
}

func (p *Pipeline) runPublish(ctx context.Context, r *news.ProcessingResult) StepResult {
	if p.deps.Publisher == nil {
		return StepResult{Name: "Publish", Summary: "No publisher configured"}
	}
	slog.Info("step 7: publishing")
	id, err := p.deps.Publisher.Publish(ctx, r)
	if err != nil {
		slog.Error("publishing failed", "topic", r.Topic, "error", err)
		r.PublishID = nil
		return StepResult{Name: "Publish", Summary: "Not published", Err: err}
	}
	r.PublishID = &id
	return StepResult{Name: "Publish", Summary: "Published as " + id}
}

func (p *Pipeline) runReport(ctx context.Context, runID, query string, r *news.ProcessingResult) StepResult {
	if p.deps.Reports == nil {
		return StepResult{Name: "Report", Summary: "No report log configured"}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	err = p.deps.Reports.InsertReport(ctx, database.Report{
		ID:           runID,
		Topic:        r.Topic,
		Query:        query,
		ArticleCount: len(r.Articles),
		PublishID:    r.PublishID,
		ResultJSON:   string(data),
		CreatedAt:    r.Timestamp,
	})
	if err != nil {
		slog.Warn("recording report failed", "run_id", runID, "error", err)
		return StepResult{Name: "Report", Err: err}
	}
	return StepResult{Name: "Report", Summary: "Recorded run " + runID}
}
