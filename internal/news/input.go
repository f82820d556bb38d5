package news

import (
	"errors"
	"strings"
)

// ErrNoInput is returned when a ProcessingInput names no topic at all.
var ErrNoInput = errors.New("at least one of topic_title, topic_url or topic_description is required")

// ProcessingInput is a loosely specified news topic.
type ProcessingInput struct {
	Title       string `json:"topic_title,omitempty"`
	URL         string `json:"topic_url,omitempty"`
	Description string `json:"topic_description,omitempty"`
}

// Empty reports whether no field carries a value.
func (in ProcessingInput) Empty() bool {
	return strings.TrimSpace(in.Title) == "" &&
		strings.TrimSpace(in.URL) == "" &&
		strings.TrimSpace(in.Description) == ""
}

// Query picks the search query: title, then description, then URL.
func (in ProcessingInput) Query() (string, error) {
	for _, v := range []string{in.Title, in.Description, in.URL} {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", ErrNoInput
}

// ExplicitURL returns the trimmed topic URL, if any.
func (in ProcessingInput) ExplicitURL() string {
	return strings.TrimSpace(in.URL)
}
