// Package inmemory provides an in-process implementation of the catalog's
// persistent cache contract. It is the default for tests and for hosts that
// do not want cross-run persistence.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/spool/pkg/catalog"
)

// Driver implements catalog.Cache using a nested map guarded by a RWMutex.
type Driver struct {
	mu sync.RWMutex

	// entries maps subject -> log name -> cached entry.
	entries map[string]map[string]*catalog.Entry
}

// NewDriver creates an empty in-memory cache.
func NewDriver() *Driver {
	return &Driver{
		entries: make(map[string]map[string]*catalog.Entry),
	}
}

// ReadAll returns copies of every cached entry for a subject.
func (d *Driver) ReadAll(_ context.Context, subject string) (map[string]*catalog.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subjectEntries, ok := d.entries[subject]
	if !ok {
		return nil, nil
	}

	out := make(map[string]*catalog.Entry, len(subjectEntries))
	for name, entry := range subjectEntries {
		out[name] = entry.Clone()
	}
	return out, nil
}

// Write stores a copy of one entry.
func (d *Driver) Write(_ context.Context, subject string, entry *catalog.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	subjectEntries, ok := d.entries[subject]
	if !ok {
		subjectEntries = make(map[string]*catalog.Entry)
		d.entries[subject] = subjectEntries
	}

	subjectEntries[entry.Name] = entry.Clone()
	return nil
}

// Delete removes one entry's record. Missing records are a no-op.
func (d *Driver) Delete(_ context.Context, subject, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if subjectEntries, ok := d.entries[subject]; ok {
		delete(subjectEntries, name)
	}
	return nil
}

// Len returns the number of cached entries for a subject.
func (d *Driver) Len(subject string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries[subject])
}
