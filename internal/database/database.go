package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite or Postgres database connection.
type DB struct {
	conn    *sql.DB
	path    string
	dialect Dialect
	sb      sq.StatementBuilderType
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return finishOpen(conn, dbPath, SQLite)
}

// OpenPostgres connects to a Postgres database using a lib/pq DSN.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return finishOpen(conn, "", Postgres)
}

// OpenDriver opens the database named by driver ("sqlite" or "postgres").
// For sqlite, target is a file path; for postgres, a DSN.
func OpenDriver(driver, target string) (*DB, error) {
	switch driver {
	case "", "sqlite":
		return Open(target)
	case "postgres", "postgresql":
		return OpenPostgres(target)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func finishOpen(conn *sql.DB, path string, d Dialect) (*DB, error) {
	if err := migrate(conn, d); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{
		conn:    conn,
		path:    path,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.placeholder()),
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path (empty for Postgres).
func (db *DB) Path() string {
	return db.path
}

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
