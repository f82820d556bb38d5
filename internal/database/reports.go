package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var reportColumns = []string{
	"id", "topic", "query", "article_count", "publish_id", "result_json", "created_at",
}

// InsertReport stores a processing report. Re-inserting an id replaces it.
func (db *DB) InsertReport(ctx context.Context, r Report) error {
	if r.ID == "" {
		return errors.New("report id is required")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query, args, err := db.sb.Insert("reports").
		Columns(reportColumns...).
		Values(r.ID, r.Topic, r.Query, r.ArticleCount, r.PublishID, r.ResultJSON, formatTime(created)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			topic = excluded.topic,
			query = excluded.query,
			article_count = excluded.article_count,
			publish_id = excluded.publish_id,
			result_json = excluded.result_json`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building report insert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting report %s: %w", r.ID, err)
	}
	return nil
}

// GetReport returns a report by id, or nil if it does not exist.
func (db *DB) GetReport(ctx context.Context, id string) (*Report, error) {
	query, args, err := db.sb.Select(reportColumns...).
		From("reports").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	r, err := scanReport(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns reports newest first.
func (db *DB) ListReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := db.sb.Select(reportColumns...).
		From("reports").
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		r         Report
		publishID sql.NullString
		created   string
	)
	if err := row.Scan(&r.ID, &r.Topic, &r.Query, &r.ArticleCount, &publishID, &r.ResultJSON, &created); err != nil {
		return nil, err
	}
	if publishID.Valid {
		r.PublishID = &publishID.String
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		table string
		dest  *int
		last  **time.Time
	}{
		{"documents", &s.Documents, &s.LastDocumentAt},
		{"reports", &s.Reports, &s.LastReportAt},
	}

	for _, c := range counts {
		query, args, err := db.sb.Select("COUNT(*)", "COALESCE(MAX(created_at), '')").From(c.table).ToSql()
		if err != nil {
			return nil, err
		}
		var last string
		if err := db.conn.QueryRowContext(ctx, query, args...).Scan(c.dest, &last); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
		if last != "" {
			t := parseTime(last)
			*c.last = &t
		}
	}

	return s, nil
}
