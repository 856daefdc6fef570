// Package postgres provides a Postgres-backed implementation of the
// catalog's persistent cache contract, for deployments where several hosts
// share one warm cache. Same single-table JSON layout as the sqlite driver.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/spool/pkg/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS spool_cache_entries (
	subject  TEXT NOT NULL,
	name     TEXT NOT NULL,
	revision TEXT NOT NULL,
	payload  JSONB NOT NULL,
	PRIMARY KEY (subject, name)
);
`

// Driver implements catalog.Cache on a pgx connection pool.
type Driver struct {
	pool *pgxpool.Pool
}

// NewDriver connects to Postgres with the given DSN and ensures the cache
// table exists.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Driver{pool: pool}, nil
}

// ReadAll returns every cached entry for a subject, skipping rows whose
// payload no longer unmarshals.
func (d *Driver) ReadAll(ctx context.Context, subject string) (map[string]*catalog.Entry, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT payload FROM spool_cache_entries WHERE subject = $1", subject)
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

	_, err = d.pool.Exec(ctx, `
		INSERT INTO spool_cache_entries (subject, name, revision, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, name)
		DO UPDATE SET revision = EXCLUDED.revision, payload = EXCLUDED.payload`,
		subject, entry.Name, entry.Revision, payload)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry's record.
func (d *Driver) Delete(ctx context.Context, subject, name string) error {
	_, err := d.pool.Exec(ctx,
		"DELETE FROM spool_cache_entries WHERE subject = $1 AND name = $2", subject, name)
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}
