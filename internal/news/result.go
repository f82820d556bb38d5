package news

import (
	"fmt"
	"time"
)

// ErrorTopic is the topic of an error-variant result.
const ErrorTopic = "Error"

// NoContextText stands in for an empty context block in prompts.
const NoContextText = "Ingen relevant historisk kontext hittades."

// NoCoverageSummary is the fixed text for a label without articles.
func NoCoverageSummary(l BiasLabel) string {
	return fmt.Sprintf("Inga %s-orienterade källor rapporterade om detta ämne.", l.Swedish())
}

// FailedBiasSummary is the text for a label whose summary could not be generated.
func FailedBiasSummary(l BiasLabel) string {
	return fmt.Sprintf("Kunde inte generera sammanfattning för %s-orienterade källor.", l.Swedish())
}

// FailedNeutralSummary is the text used when the neutral summary failed.
func FailedNeutralSummary(err error) string {
	return fmt.Sprintf("Kunde inte generera neutral sammanfattning: %v", err)
}

// BiasSummary is the summary of one label's coverage.
type BiasSummary struct {
	Bias         BiasLabel `json:"political_bias"`
	Summary      string    `json:"summary"`
	ArticleCount int       `json:"article_count"`
	SourceNames  []string  `json:"sources"`
}

// Link is a title/url pair.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NeutralSummary is the fact-only summary across all labels.
type NeutralSummary struct {
	Summary         string   `json:"summary"`
	KeyFacts        []string `json:"key_facts"`
	RelatedSnippets []string `json:"related_context"`
	InternalLinks   []Link   `json:"internal_links"`
}

// VisualizationEntry is one article as drawn in the bias chart.
type VisualizationEntry struct {
	SourceName string    `json:"source_name"`
	Bias       BiasLabel `json:"bias"`
	URL        string    `json:"url"`
}

// ProcessingResult is the outcome of one pipeline run.
type ProcessingResult struct {
	Topic         string               `json:"topic"`
	Neutral       NeutralSummary       `json:"neutral_summary"`
	BiasSummaries []BiasSummary        `json:"bias_summaries"`
	Visualization []VisualizationEntry `json:"bias_visualization_data"`
	Articles      []Article            `json:"articles_processed"`
	Timestamp     time.Time            `json:"processing_timestamp"`
	PublishID     *string              `json:"publish_id"`
}

// IsError reports whether r is the error variant.
func (r *ProcessingResult) IsError() bool {
	return r.Topic == ErrorTopic
}

// ErrorResult builds the error variant with an explanatory message.
func ErrorResult(message string, now time.Time) *ProcessingResult {
	return &ProcessingResult{
		Topic: ErrorTopic,
		Neutral: NeutralSummary{
			Summary:         message,
			KeyFacts:        []string{},
			RelatedSnippets: []string{},
			InternalLinks:   []Link{},
		},
		BiasSummaries: []BiasSummary{},
		Visualization: []VisualizationEntry{},
		Articles:      []Article{},
		Timestamp:     now,
	}
}

// NoArticlesMessage explains an empty discovery.
func NoArticlesMessage(query string) string {
	return fmt.Sprintf("Inga artiklar hittades för ämnet %q. Kontrollera ämnet och försök igen.", query)
}

// UnexpectedFailureMessage explains a run that failed outright.
func UnexpectedFailureMessage(err any) string {
	return fmt.Sprintf("Ett fel uppstod vid bearbetning av ämnet: %v", err)
}

// Visualize maps articles to chart entries one-to-one, skipping invalid ones.
func Visualize(articles []Article) []VisualizationEntry {
	entries := make([]VisualizationEntry, 0, len(articles))
	for _, a := range articles {
		if a.Validate() != nil {
			continue
		}
		entries = append(entries, VisualizationEntry{
			SourceName: a.SourceName,
			Bias:       a.Bias,
			URL:        a.URL,
		})
	}
	return entries
}

// BiasDistribution counts articles per label.
func BiasDistribution(articles []Article) map[BiasLabel]int {
	dist := make(map[BiasLabel]int)
	for _, a := range articles {
		dist[a.Bias]++
	}
	return dist
}
