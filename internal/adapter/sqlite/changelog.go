// Package sqlite stores the table changelog in an append-only SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/station-table-service/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS changelog (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id INTEGER NOT NULL,
	value      BLOB
)`

// Changelog is a table.Changelog persisted to a local SQLite file. A NULL
// value is a tombstone.
type Changelog struct {
	db *sql.DB
}

// Open opens (creating if needed) the changelog database at path.
func Open(path string) (*Changelog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps seq order equal to commit order.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create changelog table: %w", err)
	}
	return &Changelog{db: db}, nil
}

// Append inserts entry as the next row of the changelog table.
func (c *Changelog) Append(ctx context.Context, entry domain.ChangelogEntry) error {
	value, err := domain.EncodeValue(entry.Value)
	if err != nil {
		return err
	}
	var arg any
	if value != nil {
		arg = value
	}
	if _, err := c.db.ExecContext(ctx, `INSERT INTO changelog (station_id, value) VALUES (?, ?)`, entry.Key, arg); err != nil {
		return fmt.Errorf("insert changelog entry: %w", err)
	}
	return nil
}

// Replay calls fn for each row in insertion order.
func (c *Changelog) Replay(ctx context.Context, fn func(domain.ChangelogEntry) error) error {
	// Rows are buffered before fn runs: the single connection cannot serve
	// another statement while a cursor is open.
	rows, err := c.db.QueryContext(ctx, `SELECT seq, station_id, value FROM changelog ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query changelog: %w", err)
	}
	var entries []domain.ChangelogEntry
	for rows.Next() {
		var (
			seq   int64
			id    int64
			value []byte
		)
		if err := rows.Scan(&seq, &id, &value); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan changelog: %w", err)
		}
		station, err := domain.DecodeValue(value)
		if err != nil {
			_ = rows.Close()
			return fmt.Errorf("changelog seq %d: %w", seq, err)
		}
		if station != nil && station.StationID != id {
			_ = rows.Close()
			return fmt.Errorf("changelog seq %d: station_id %d does not match value %d", seq, id, station.StationID)
		}
		entries = append(entries, domain.ChangelogEntry{Key: id, Value: station})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate changelog: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close changelog rows: %w", err)
	}

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (c *Changelog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
