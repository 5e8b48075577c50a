// Package sqlitedb holds the connection and timestamp conventions shared by
// the SQLite-backed stores.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"time"

	// Pure-Go driver, no CGO.
	_ "modernc.org/sqlite"
)

// TimeLayout is fixed width so TEXT columns sort chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Open opens (or creates) the database at path in WAL mode with a single
// connection and applies schema.
func Open(path, schema string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// Single writer connection; a transaction holds it for its duration.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime also accepts rows written with a shorter RFC3339 fraction.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
