package catalog

import "context"

// Cache is the persistent cache collaborator: a keyed store of hydrated
// entries per subject. It is a best-effort accelerator, never a source of
// truth — the Store treats every cache failure as a miss and never surfaces
// one to its callers. Drivers live under pkg/cache.
type Cache interface {
	// ReadAll returns every cached entry for a subject, keyed by log name.
	ReadAll(ctx context.Context, subject string) (map[string]*Entry, error)

	// Write stores one hydrated entry. Fire-and-forget at call sites.
	Write(ctx context.Context, subject string, entry *Entry) error

	// Delete removes one entry's cache record. Fire-and-forget.
	Delete(ctx context.Context, subject, name string) error
}
