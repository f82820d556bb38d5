package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/newslens/internal/config"
	"github.com/TobiSchelling/newslens/internal/news"
)

// ErrNotConfigured is returned when the WordPress target is incomplete.
var ErrNotConfigured = errors.New("wordpress is not configured")

// WordPress publishes posts through the WordPress REST API using an
// application password.
type WordPress struct {
	apiBase  string
	username string
	password string
	status   string
	baseTags []string
	client   *http.Client
}

// NewWordPress creates a publisher from configuration. The password is read
// from the environment variable named in the config.
func NewWordPress(cfg config.WordPress) *WordPress {
	w := &WordPress{
		username: cfg.Username,
		password: os.Getenv(cfg.PasswordEnv),
		status:   cfg.Status,
		baseTags: cfg.Tags,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.URL != "" {
		w.apiBase = strings.TrimRight(cfg.URL, "/") + "/wp-json/wp/v2"
	}
	return w
}

// IsConfigured reports whether url, username and password are all set.
func (w *WordPress) IsConfigured() bool {
	return w.apiBase != "" && w.username != "" && w.password != ""
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt"`
	Status  string `json:"status"`
	Tags    []int  `json:"tags,omitempty"`
	DateGMT string `json:"date_gmt,omitempty"`
	Meta    Meta   `json:"meta"`
}

// Publish creates a post for the result and returns its id.
func (w *WordPress) Publish(ctx context.Context, r *news.ProcessingResult) (string, error) {
	if !w.IsConfigured() {
		return "", ErrNotConfigured
	}
	doc, err := BuildDocument(r, w.baseTags, w.status)
	if err != nil {
		return "", err
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := w.send(ctx, "/posts", w.postBody(ctx, doc), http.StatusCreated, &created); err != nil {
		return "", fmt.Errorf("creating post: %w", err)
	}
	if created.ID == 0 {
		return "", errors.New("creating post: response has no id")
	}

	id := strconv.Itoa(created.ID)
	slog.Info("published to wordpress", "post_id", id, "topic", r.Topic)
	return id, nil
}

// UpdatePost replaces the content of an existing post.
func (w *WordPress) UpdatePost(ctx context.Context, postID string, doc *Document) error {
	if !w.IsConfigured() {
		return ErrNotConfigured
	}
	if err := w.send(ctx, "/posts/"+url.PathEscape(postID), w.postBody(ctx, doc), http.StatusOK, nil); err != nil {
		return fmt.Errorf("updating post %s: %w", postID, err)
	}
	slog.Info("updated wordpress post", "post_id", postID)
	return nil
}

// Republish refreshes the post of an earlier result and returns its id.
// An empty postID creates a new post instead.
func (w *WordPress) Republish(ctx context.Context, postID string, r *news.ProcessingResult) (string, error) {
	if postID == "" {
		return w.Publish(ctx, r)
	}
	if !w.IsConfigured() {
		return "", ErrNotConfigured
	}
	doc, err := BuildDocument(r, w.baseTags, w.status)
	if err != nil {
		return "", err
	}
	if err := w.UpdatePost(ctx, postID, doc); err != nil {
		return "", err
	}
	return postID, nil
}

func (w *WordPress) postBody(ctx context.Context, doc *Document) postRequest {
	body := postRequest{
		Title:   doc.Title,
		Content: doc.Content,
		Excerpt: doc.Excerpt,
		Status:  doc.Status,
		Tags:    w.tagIDs(ctx, doc.Tags),
		Meta:    doc.Meta,
	}
	if !doc.Date.IsZero() {
		body.DateGMT = doc.Date.UTC().Format("2006-01-02T15:04:05")
	}
	return body
}

// tagIDs resolves tag names to ids, creating missing tags. Tags that cannot
// be resolved are dropped.
func (w *WordPress) tagIDs(ctx context.Context, names []string) []int {
	var ids []int
	for _, name := range names {
		id, err := w.tagID(ctx, name)
		if err != nil {
			slog.Warn("dropping wordpress tag", "tag", name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

type tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (w *WordPress) tagID(ctx context.Context, name string) (int, error) {
	var found []tag
	if err := w.do(ctx, http.MethodGet, "/tags?search="+url.QueryEscape(name), nil, http.StatusOK, &found); err != nil {
		return 0, err
	}
	for _, t := range found {
		if strings.EqualFold(t.Name, name) {
			return t.ID, nil
		}
	}

	var created tag
	if err := w.send(ctx, "/tags", map[string]string{"name": name}, http.StatusCreated, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (w *WordPress) send(ctx context.Context, path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return w.do(ctx, http.MethodPost, path, bytes.NewReader(data), want, out)
}

func (w *WordPress) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, w.apiBase+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(w.username, w.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wordpress returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
