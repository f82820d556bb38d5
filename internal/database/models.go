package database

import "time"

// Document is a stored article (or raw text) with its embedding.
type Document struct {
	ID          string
	Content     string
	Title       string
	URL         string
	Source      string
	Bias        string
	PublishedAt *time.Time
	Metadata    map[string]string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Report is a persisted processing result.
type Report struct {
	ID           string
	Topic        string
	Query        string
	ArticleCount int
	PublishID    *string
	ResultJSON   string
	CreatedAt    time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Documents      int
	Reports        int
	LastDocumentAt *time.Time
	LastReportAt   *time.Time
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
