package catalog

import (
	"sort"
	"strings"
	"time"
)

// SortField selects the ordering of a filtered snapshot.
type SortField string

const (
	// SortRecency is the canonical ordering: SortStamp descending,
	// InsertionOrder ascending, name ascending.
	SortRecency SortField = "recency"

	// SortName orders lexicographically by log name.
	SortName SortField = "name"

	// SortMessageCount orders by message count descending.
	SortMessageCount SortField = "messages"
)

// Filter narrows a snapshot. Tag membership is OR'd within itself and AND'd
// against the date range and the message-count range. Zero values disable
// each predicate.
type Filter struct {
	Tags []string

	From time.Time
	To   time.Time

	MinMessages int
	MaxMessages int
}

func (f Filter) matches(e *Entry) bool {
	if len(f.Tags) > 0 && !hasAnyTag(e.Tags, f.Tags) {
		return false
	}

	if !f.From.IsZero() && e.LastAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.LastAt.After(f.To) {
		return false
	}

	if f.MinMessages > 0 && e.MessageCount < f.MinMessages {
		return false
	}
	if f.MaxMessages > 0 && e.MessageCount > f.MaxMessages {
		return false
	}

	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// Less is the canonical comparator: SortStamp descending, InsertionOrder
// ascending, then name. Deterministic and jitter-free even while timestamps
// arrive out of order mid-hydration.
func Less(a, b *Entry) bool {
	if a.SortStamp != b.SortStamp {
		return a.SortStamp > b.SortStamp
	}
	if a.InsertionOrder != b.InsertionOrder {
		return a.InsertionOrder < b.InsertionOrder
	}
	return a.Name < b.Name
}

// Snapshot returns a copy of every entry in canonical order.
func (s *Store) Snapshot() []*Entry {
	return s.FilterSorted(Filter{}, SortRecency)
}

// FilterSorted returns a filtered, ordered snapshot. This is a pure read of
// the current map: always safe to recompute and never cached.
func (s *Store) FilterSorted(f Filter, field SortField) []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if f.matches(entry) {
			out = append(out, entry.Clone())
		}
	}
	s.mu.RUnlock()

	switch field {
	case SortName:
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return Less(out[i], out[j])
		})
	case SortMessageCount:
		sort.Slice(out, func(i, j int) bool {
			if out[i].MessageCount != out[j].MessageCount {
				return out[i].MessageCount > out[j].MessageCount
			}
			return Less(out[i], out[j])
		})
	default:
		sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	}

	return out
}

// HydratedSnapshot returns copies of the hydrated entries only, in
// canonical order. Branch detection and trie building work from this.
func (s *Store) HydratedSnapshot() []*Entry {
	entries := s.Snapshot()
	out := entries[:0]
	for _, e := range entries {
		if e.Hydrated {
			out = append(out, e)
		}
	}
	return out
}
