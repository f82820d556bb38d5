package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Dialect identifies the SQL flavour of a connection.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

func (d Dialect) blobType() string {
	if d == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

// getSchemaVersion reads the applied schema version.
// SQLite keeps it in PRAGMA user_version, Postgres in a schema_version table.
func getSchemaVersion(conn *sql.DB, d Dialect) (int, error) {
	var version int
	switch d {
	case Postgres:
		if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("creating schema_version: %w", err)
		}
		if err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
	default:
		if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
	}
	return version, nil
}

func setSchemaVersion(conn *sql.DB, d Dialect, version int) error {
	switch d {
	case Postgres:
		if _, err := conn.Exec(`DELETE FROM schema_version`); err != nil {
			return err
		}
		_, err := conn.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version)
		return err
	default:
		// PRAGMA does not take bind parameters.
		_, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	}
}
