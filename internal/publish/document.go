// Package publish renders processing results as CMS posts and sends them
// to WordPress.
package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/newslens/internal/news"
)

const excerptChars = 150

var md = goldmark.New()

// Document is a post ready to be sent to a CMS.
type Document struct {
	Title    string
	Markdown string
	Content  string
	Excerpt  string
	Status   string
	Tags     []string
	Date     time.Time
	Meta     Meta
}

// Meta is the custom field data attached to a post.
type Meta struct {
	NewsTopic        string         `json:"news_topic"`
	ArticlesCount    int            `json:"articles_count"`
	BiasDistribution map[string]int `json:"bias_distribution"`
}

// BuildDocument renders a result into a post. baseTags are always included.
func BuildDocument(r *news.ProcessingResult, baseTags []string, status string) (*Document, error) {
	body := Markdown(r)
	rendered, err := RenderMarkdown(body)
	if err != nil {
		return nil, fmt.Errorf("rendering post body: %w", err)
	}

	viz, err := visualizationDiv(r.Visualization)
	if err != nil {
		return nil, err
	}

	if status == "" {
		status = "publish"
	}

	dist := make(map[string]int)
	for l, n := range news.BiasDistribution(r.Articles) {
		dist[string(l)] = n
	}

	return &Document{
		Title:    "Nyhetsanalys: " + r.Topic,
		Markdown: body,
		Content:  viz + rendered,
		Excerpt:  news.Preview(r.Neutral.Summary, excerptChars),
		Status:   status,
		Tags:     Tags(r, baseTags),
		Date:     r.Timestamp,
		Meta: Meta{
			NewsTopic:        r.Topic,
			ArticlesCount:    len(r.Articles),
			BiasDistribution: dist,
		},
	}, nil
}

// Markdown assembles the post body.
func Markdown(r *news.ProcessingResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Ämne:** %s\n\n", escape(r.Topic))
	fmt.Fprintf(&b, "*Analyserade källor: %d artiklar från svenska medier*\n\n", len(r.Articles))

	b.WriteString("## Politiska perspektiv\n\n")
	for _, s := range r.BiasSummaries {
		if s.ArticleCount == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s-orienterade medier (%d källor)\n\n%s\n\n",
			capitalize(s.Bias.Swedish()), s.ArticleCount, s.Summary)
	}

	fmt.Fprintf(&b, "## Neutral sammanfattning\n\n%s\n\n", r.Neutral.Summary)

	if len(r.Neutral.KeyFacts) > 0 {
		b.WriteString("### Viktiga fakta\n\n")
		for _, f := range r.Neutral.KeyFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(r.Neutral.InternalLinks) > 0 {
		b.WriteString("### Relaterade artiklar\n\n")
		for _, l := range r.Neutral.InternalLinks {
			fmt.Fprintf(&b, "- [%s](%s)\n", escape(l.Title), l.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Källor\n\n")
	for _, a := range r.Articles {
		fmt.Fprintf(&b, "- [%s](%s) - %s\n", escape(a.SourceName), a.URL, escape(a.Title))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "*Analys genomförd: %s UTC*\n", r.Timestamp.UTC().Format("2006-01-02 15:04"))
	return b.String()
}

// RenderMarkdown converts Markdown to HTML. Raw HTML in the input is dropped.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func visualizationDiv(entries []news.VisualizationEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encoding visualization data: %w", err)
	}
	return fmt.Sprintf("<div class=\"bias-visualization\" data-bias=\"%s\"></div>\n", html.EscapeString(string(data))), nil
}

// Tags returns the post tags: base tags, topic words longer than three
// characters and a diversity tag when more than one label has coverage.
func Tags(r *news.ProcessingResult, baseTags []string) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}

	for _, t := range baseTags {
		add(t)
	}
	for _, w := range strings.Fields(strings.ToLower(r.Topic)) {
		w = strings.Trim(w, `.,:;!?"'()`)
		if len([]rune(w)) > 3 {
			add(w)
		}
	}

	covered := 0
	for _, s := range r.BiasSummaries {
		if s.ArticleCount > 0 {
			covered++
		}
	}
	if covered > 1 {
		add("mångfald perspektiv")
	}
	return tags
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "`", "\\`", "<", "&lt;", ">", "&gt;",
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
