// Package sqlite provides a SQLite-backed implementation of the catalog's
// persistent cache contract. Entries are stored as JSON payloads in a
// single table keyed by (subject, name); there is deliberately no schema
// beyond that, since the cache is a best-effort accelerator and can be
// dropped wholesale at any time.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/spool/pkg/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	subject  TEXT NOT NULL,
	name     TEXT NOT NULL,
	revision TEXT NOT NULL,
	payload  BLOB NOT NULL,
	PRIMARY KEY (subject, name)
);
`

// Driver implements catalog.Cache on a SQLite database.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (and if needed creates) the cache database. The dbPath
// can be a file path or ":memory:".
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// ReadAll returns every cached entry for a subject. Rows whose payload no
// longer unmarshals are skipped, not surfaced: a corrupt cache record
// behaves as a miss.
func (d *Driver) ReadAll(ctx context.Context, subject string) (map[string]*catalog.Entry, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT payload FROM entries WHERE subject = ?", subject)
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*catalog.Entry)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}

		var entry catalog.Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		out[entry.Name] = &entry
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache rows: %w", err)
	}
	return out, nil
}

// Write upserts one entry's record.
func (d *Driver) Write(ctx context.Context, subject string, entry *catalog.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO entries (subject, name, revision, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject, name)
		DO UPDATE SET revision = excluded.revision, payload = excluded.payload`,
		subject, entry.Name, entry.Revision, payload)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry's record.
func (d *Driver) Delete(ctx context.Context, subject, name string) error {
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM entries WHERE subject = ? AND name = ?", subject, name)
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}
