// Package catalog owns the authoritative in-memory index of one subject's
// logs: the name → entry map, a monotonic version counter, and the stable
// ordering used by every snapshot.
//
// The Store is single-writer by construction — refresh reconciliation,
// hydration write-backs, and single-entry updates are serialized — while
// reads hand out consistent copies and may interleave freely. Hydration
// fetches run concurrently outside the Store; their write-backs pass through
// an optimistic revision re-check instead of holding a lock across the
// fetch, so a slow fetch can never clobber newer content.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/transcript"
)

// Store holds the catalog for exactly one subject at a time.
type Store struct {
	mu     sync.RWMutex
	logger *slog.Logger
	cache  Cache

	subject   string
	entries   map[string]*Entry
	version   uint64
	nextOrder int64
}

// Option configures a Store created with NewStore.
type Option func(*Store)

// WithCache injects the persistent cache collaborator. Without one, every
// cache interaction behaves as a miss.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithLogger overrides the default nop logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty catalog store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger:  logger.Nop(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshResult reports the outcome of a reconciliation pass.
type RefreshResult struct {
	// Changed is true when any entry was added, removed, or updated.
	Changed bool

	// Pending lists the names that need hydration, in backend list order.
	Pending []string
}

// Refresh reconciles the backend's authoritative list against the current
// map. Switching subjects clears the map unconditionally first. Entries
// absent from the list are removed (and their cache records deleted);
// unknown names are adopted from the cache when a hydrated record with a
// matching revision exists, otherwise created metadata-only and reported as
// pending. A revision change invalidates content and re-checks the cache
// against the new revision.
func (s *Store) Refresh(ctx context.Context, subject string, list []backend.LogInfo) RefreshResult {
	cached := s.readCache(ctx, subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	var result RefreshResult

	if s.subject != subject {
		if len(s.entries) > 0 || s.subject != "" {
			result.Changed = true
		}
		s.subject = subject
		s.entries = make(map[string]*Entry)
	}

	seen := make(map[string]struct{}, len(list))

	for _, info := range list {
		seen[info.Name] = struct{}{}

		existing, ok := s.entries[info.Name]
		if !ok {
			entry := s.adoptOrCreate(info, cached)
			s.entries[info.Name] = entry
			if !entry.Hydrated {
				result.Pending = append(result.Pending, info.Name)
			}
			result.Changed = true
			continue
		}

		if existing.Revision == info.Revision {
			// Messages stay untouched; trailing timestamps from metadata
			// are cheaper and can be more current than re-parsing content.
			if !info.LastTurnAt.IsZero() && !info.LastTurnAt.Equal(existing.LastAt) {
				existing.LastAt = info.LastTurnAt
				existing.SortStamp = sortStamp(existing.LastAt)
				result.Changed = true
			}
			// A previously failed hydration stays eligible for retry.
			if !existing.Hydrated {
				result.Pending = append(result.Pending, info.Name)
			}
			continue
		}

		s.invalidate(existing, info, cached)
		if !existing.Hydrated {
			result.Pending = append(result.Pending, info.Name)
		}
		result.Changed = true
	}

	for name := range s.entries {
		if _, ok := seen[name]; ok {
			continue
		}
		delete(s.entries, name)
		s.deleteCache(ctx, subject, name)
		result.Changed = true
	}

	if result.Changed {
		s.version++
	}

	s.logger.Debug("catalog refreshed",
		"subject", subject,
		"entries", len(s.entries),
		"pending", len(result.Pending),
		"changed", result.Changed,
	)

	return result
}

// adoptOrCreate builds the entry for a name the map does not yet hold.
func (s *Store) adoptOrCreate(info backend.LogInfo, cached map[string]*Entry) *Entry {
	order := s.nextOrder
	s.nextOrder++

	if c, ok := cached[info.Name]; ok && c.Hydrated && c.Revision == info.Revision {
		entry := c.Clone()
		entry.InsertionOrder = order
		entry.DivergesAt = DivergenceUnset
		return entry
	}

	return &Entry{
		Name:           info.Name,
		Revision:       info.Revision,
		MessageCount:   info.ApproxCount,
		LastAt:         info.LastTurnAt,
		SortStamp:      sortStamp(info.LastTurnAt),
		InsertionOrder: order,
		DivergesAt:     DivergenceUnset,
	}
}

// invalidate drops an entry's content after a revision change, re-checking
// the cache against the new revision before falling back to re-hydration.
func (s *Store) invalidate(entry *Entry, info backend.LogInfo, cached map[string]*Entry) {
	if c, ok := cached[info.Name]; ok && c.Hydrated && c.Revision == info.Revision {
		order := entry.InsertionOrder
		*entry = *c.Clone()
		entry.InsertionOrder = order
		entry.DivergesAt = DivergenceUnset
		return
	}

	entry.Revision = info.Revision
	entry.Messages = nil
	entry.Hydrated = false
	entry.DivergesAt = DivergenceUnset
	entry.MessageCount = info.ApproxCount
	if !info.LastTurnAt.IsZero() {
		entry.LastAt = info.LastTurnAt
		entry.SortStamp = sortStamp(entry.LastAt)
	}
}

// HydrationTarget captures the revision a hydration fetch is racing
// against. Returns ok=false when the entry is gone or already hydrated.
func (s *Store) HydrationTarget(name string) (revision string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[name]
	if !exists || entry.Hydrated {
		return "", false
	}
	return entry.Revision, true
}

// CompleteHydration writes fetched content into an entry if and only if its
// revision still matches the one captured when the fetch was issued. A
// false return means the result was stale (revision moved or the entry is
// gone) and the caller should re-loop rather than write.
func (s *Store) CompleteHydration(ctx context.Context, name, revision string, turns []transcript.Turn) bool {
	s.mu.Lock()

	entry, exists := s.entries[name]
	if !exists || entry.Revision != revision {
		s.mu.Unlock()
		return false
	}

	entry.applyMessages(MessagesFromTurns(name, turns))
	s.version++
	subject := s.subject
	snapshot := entry.Clone()
	s.mu.Unlock()

	s.writeCache(ctx, subject, snapshot)
	return true
}

// UpdateEntry is the lightweight path for a caller that already holds the
// freshest content for one log (typically the log being actively written
// to). The revision is recomputed from the content itself; everything else
// is preserved. Creates the entry when the backend has not reported the log
// yet. Returns true when the catalog changed.
func (s *Store) UpdateEntry(ctx context.Context, name string, turns []transcript.Turn) bool {
	msgs := MessagesFromTurns(name, turns)
	revision := ContentRevision(msgs)

	s.mu.Lock()

	entry, exists := s.entries[name]
	if exists && entry.Revision == revision && entry.Hydrated {
		s.mu.Unlock()
		return false
	}

	if !exists {
		entry = &Entry{
			Name:           name,
			InsertionOrder: s.nextOrder,
			DivergesAt:     DivergenceUnset,
		}
		s.nextOrder++
		s.entries[name] = entry
	}

	entry.Revision = revision
	entry.applyMessages(msgs)
	s.version++
	subject := s.subject
	snapshot := entry.Clone()
	s.mu.Unlock()

	s.writeCache(ctx, subject, snapshot)
	return true
}

// SetDivergence replaces every entry's divergence fact: entries named in
// points get their value, all others are reset to DivergenceUnset. Bumps
// the version once when anything changed.
func (s *Store) SetDivergence(points map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for name, entry := range s.entries {
		want, ok := points[name]
		if !ok {
			want = DivergenceUnset
		}
		if entry.DivergesAt != want {
			entry.DivergesAt = want
			changed = true
		}
	}

	if changed {
		s.version++
	}
}

// SetTags replaces an entry's host-assigned tags.
func (s *Store) SetTags(name string, tags []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return false
	}
	entry.Tags = tags
	s.version++
	return true
}

// SetAnnotations attaches auxiliary data from an annotation source.
func (s *Store) SetAnnotations(name string, annotations map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return false
	}
	entry.Annotations = annotations
	s.version++
	return true
}

// Get returns a copy of one entry.
func (s *Store) Get(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// FindByContent looks an entry up by its first and last message text. This
// is the degraded fallback for hosts that cannot supply a log name: two
// structurally identical logs are indistinguishable here, so prefer Get.
func (s *Store) FindByContent(first, last string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	firstNorm := transcript.Normalize(first)
	lastNorm := transcript.Normalize(last)

	for _, entry := range s.entries {
		if !entry.Hydrated || len(entry.Messages) == 0 {
			continue
		}
		head := entry.Messages[0].NormalizedText()
		tail := entry.Messages[len(entry.Messages)-1].NormalizedText()
		if head == firstNorm && tail == lastNorm {
			return entry.Clone(), true
		}
	}
	return nil, false
}

// Subject returns the subject the catalog currently belongs to.
func (s *Store) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// Version returns the current catalog version. It strictly increases on
// every observable mutation; derived structures keyed by a stale version
// must be recomputed before use.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) readCache(ctx context.Context, subject string) map[string]*Entry {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.ReadAll(ctx, subject)
	if err != nil {
		// Cache failures behave as misses, never as errors.
		s.logger.Debug("cache read failed", "subject", subject, "error", err)
		return nil
	}
	return cached
}

func (s *Store) writeCache(ctx context.Context, subject string, entry *Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Write(ctx, subject, entry); err != nil {
		s.logger.Debug("cache write failed", "subject", subject, "name", entry.Name, "error", err)
	}
}

func (s *Store) deleteCache(ctx context.Context, subject, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, subject, name); err != nil {
		s.logger.Debug("cache delete failed", "subject", subject, "name", name, "error", err)
	}
}
