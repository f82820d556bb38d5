package database

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var documentColumns = []string{
	"id", "content", "title", "url", "source", "bias", "published_at",
	"metadata", "embedding", "dimensions", "created_at", "updated_at",
}

// UpsertDocument inserts a document or, when the id exists, replaces its
// content, metadata and embedding while keeping created_at.
func (db *DB) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}

	meta := doc.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	var published *string
	if doc.PublishedAt != nil {
		s := formatTime(*doc.PublishedAt)
		published = &s
	}

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	now := formatTime(time.Now())

	query, args, err := db.sb.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.Content, doc.Title, doc.URL, doc.Source, doc.Bias, published,
			string(metaJSON), float32ToBlob(doc.Embedding), len(doc.Embedding), formatTime(created), now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			title = excluded.title,
			url = excluded.url,
			source = excluded.source,
			bias = excluded.bias,
			published_at = excluded.published_at,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns a document by id, or nil if it does not exist.
func (db *DB) GetDocument(ctx context.Context, id string) (*Document, error) {
	query, args, err := db.sb.Select(documentColumns...).
		From("documents").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	doc, err := scanDocument(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RecentDocuments returns the newest documents first.
func (db *DB) RecentDocuments(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := db.sb.Select(documentColumns...).
		From("documents").
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return db.queryDocuments(ctx, query, args...)
}

// AllDocuments returns every stored document ordered by id.
func (db *DB) AllDocuments(ctx context.Context) ([]Document, error) {
	query, args, err := db.sb.Select(documentColumns...).
		From("documents").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return db.queryDocuments(ctx, query, args...)
}

// CountDocuments returns the number of stored documents.
func (db *DB) CountDocuments(ctx context.Context) (int, error) {
	query, args, err := db.sb.Select("COUNT(*)").From("documents").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (db *DB) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d         Document
		published sql.NullString
		metaJSON  string
		blob      []byte
		dims      int
		created   string
		updated   string
	)
	if err := row.Scan(&d.ID, &d.Content, &d.Title, &d.URL, &d.Source, &d.Bias, &published,
		&metaJSON, &blob, &dims, &created, &updated); err != nil {
		return nil, err
	}

	if published.Valid && published.String != "" {
		t := parseTime(published.String)
		d.PublishedAt = &t
	}
	d.Metadata = map[string]string{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", d.ID, err)
		}
	}
	d.Embedding = blobToFloat32(blob, dims)
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return &d, nil
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
