package news

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BiasLabel is the political leaning assigned to a source.
type BiasLabel string

const (
	Left   BiasLabel = "Left"
	Center BiasLabel = "Center"
	Right  BiasLabel = "Right"
)

// Labels lists every bias label in output order.
var Labels = []BiasLabel{Left, Center, Right}

// Valid reports whether l is one of the known labels.
func (l BiasLabel) Valid() bool {
	switch l {
	case Left, Center, Right:
		return true
	}
	return false
}

// Swedish returns the label as used in user-facing text.
func (l BiasLabel) Swedish() string {
	switch l {
	case Left:
		return "vänster"
	case Center:
		return "center"
	case Right:
		return "höger"
	}
	return strings.ToLower(string(l))
}

// ParseBiasLabel accepts any casing of a label name.
func ParseBiasLabel(s string) (BiasLabel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return Left, nil
	case "center", "centre":
		return Center, nil
	case "right":
		return Right, nil
	}
	return "", fmt.Errorf("unknown bias label %q", s)
}

// Article is a single labeled news item.
type Article struct {
	Title        string     `json:"title"`
	Text         string     `json:"content"`
	URL          string     `json:"url"`
	SourceName   string     `json:"source_name"`
	SourceDomain string     `json:"source_domain"`
	Bias         BiasLabel  `json:"political_bias"`
	PublishedAt  *time.Time `json:"publish_date,omitempty"`
	Authors      []string   `json:"authors"`
	Keywords     []string   `json:"keywords"`
}

const idPrefix = "article_"

// ContentID derives the store id for a (url, text) pair.
func ContentID(rawURL, text string) string {
	sum := sha256.Sum256([]byte(rawURL + text))
	return idPrefix + hex.EncodeToString(sum[:])[:16]
}

// ID returns the content-addressed id of the article.
func (a Article) ID() string {
	return ContentID(a.URL, a.Text)
}

// Key is the dedup key: two articles with equal keys are the same article.
type Key struct {
	URL  string
	Text string
}

// Key returns the dedup key of the article.
func (a Article) Key() Key {
	return Key{URL: a.URL, Text: a.Text}
}

// Validate checks the label and URL invariants.
func (a Article) Validate() error {
	if !a.Bias.Valid() {
		return fmt.Errorf("article %q: invalid bias label %q", a.URL, a.Bias)
	}
	u, err := url.Parse(a.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("article %q: url is not absolute", a.URL)
	}
	return nil
}

// EmbeddingText is the text embedded when the article is stored.
func (a Article) EmbeddingText() string {
	return a.Title + "\n\n" + Truncate(a.Text, 1000)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Preview returns s cut to n runes with "..." appended when it was longer.
func Preview(s string, n int) string {
	t := Truncate(s, n)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
