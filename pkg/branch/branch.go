// Package branch detects where two logs share a common prefix and diverge.
//
// Divergence is a pairwise fact: relative to one reference log, every other
// log either diverges at some turn index or is unrelated. The same concept
// expressed as a tree lives in pkg/trie; the two always agree — a pairwise
// divergence point equals the depth at which the two logs' paths split in
// the trie.
package branch

import (
	"sort"
	"time"

	"github.com/papercomputeco/spool/pkg/catalog"
)

// minSharedTurns is the minimum length for a log to participate in
// divergence detection. Single-turn logs (a greeting and nothing else)
// relate to everything and nothing.
const minSharedTurns = 2

// DivergencePoint returns the first turn index at which the two logs'
// normalized text differs, scanning from turn 1 (turn 0 must already
// match). When one log is a strict prefix of the other, the divergence
// point is the shared length. ok is false when the logs are unrelated:
// either is shorter than two turns, or their first turns differ.
func DivergencePoint(ref, candidate []catalog.Message) (point int, ok bool) {
	if len(ref) < minSharedTurns || len(candidate) < minSharedTurns {
		return 0, false
	}
	if ref[0].NormalizedText() != candidate[0].NormalizedText() {
		return 0, false
	}

	shared := min(len(ref), len(candidate))
	for i := 1; i < shared; i++ {
		if ref[i].NormalizedText() != candidate[i].NormalizedText() {
			return i, true
		}
	}

	// One is a strict prefix of the other.
	return shared, true
}

// Sibling is one log's relationship to a base log: where it diverges and
// what it says after the divergence point.
type Sibling struct {
	// Name is the sibling log's name.
	Name string `json:"name"`

	// DivergesAt is the turn index where the sibling departs from the base.
	DivergesAt int `json:"diverges_at"`

	// Suffix holds the sibling's turns after the divergence point.
	Suffix []catalog.Message `json:"suffix"`

	// LastAt is the sibling's most recent activity, used for ordering.
	LastAt time.Time `json:"last_at,omitzero"`
}

// Detector computes divergence facts over a catalog store.
type Detector struct {
	store *catalog.Store
}

// NewDetector creates a detector reading from the given store.
func NewDetector(store *catalog.Store) *Detector {
	return &Detector{store: store}
}

// DetectAll recomputes every entry's stored divergence fact relative to the
// reference log. Entries with no relation (including the reference itself)
// are reset to unset. This touches every hydrated entry, so callers run it
// off the interactive path.
func (d *Detector) DetectAll(referenceName string) {
	points := make(map[string]int)

	reference, ok := d.store.Get(referenceName)
	if ok && reference.Hydrated && len(reference.Messages) >= minSharedTurns {
		for _, entry := range d.store.HydratedSnapshot() {
			if entry.Name == referenceName {
				continue
			}
			if point, related := DivergencePoint(reference.Messages, entry.Messages); related {
				points[entry.Name] = point
			}
		}
	}

	d.store.SetDivergence(points)
}

// SiblingsOf returns the stored-divergence siblings of a log: every entry
// whose DivergesAt fact is set (relative to the current reference), with
// the suffix of turns after the divergence point, most recent first,
// truncated to limit. Pass limit <= 0 for no truncation.
func (d *Detector) SiblingsOf(name string, limit int) []Sibling {
	var siblings []Sibling

	for _, entry := range d.store.HydratedSnapshot() {
		if entry.Name == name || entry.DivergesAt == catalog.DivergenceUnset {
			continue
		}
		siblings = append(siblings, siblingFrom(entry, entry.DivergesAt))
	}

	return orderAndTruncate(siblings, limit)
}

// SiblingsOfArbitrary computes divergence on demand against an arbitrary
// base without touching any stored fact, for read-only "what diverges from
// this other log" queries.
func (d *Detector) SiblingsOfArbitrary(baseName string, limit int) []Sibling {
	base, ok := d.store.Get(baseName)
	if !ok || !base.Hydrated || len(base.Messages) < minSharedTurns {
		return nil
	}

	var siblings []Sibling
	for _, entry := range d.store.HydratedSnapshot() {
		if entry.Name == baseName {
			continue
		}
		point, related := DivergencePoint(base.Messages, entry.Messages)
		if !related {
			continue
		}
		siblings = append(siblings, siblingFrom(entry, point))
	}

	return orderAndTruncate(siblings, limit)
}

func siblingFrom(entry *catalog.Entry, point int) Sibling {
	var suffix []catalog.Message
	if point < len(entry.Messages) {
		suffix = entry.Messages[point:]
	}

	return Sibling{
		Name:       entry.Name,
		DivergesAt: point,
		Suffix:     suffix,
		LastAt:     entry.LastAt,
	}
}

func orderAndTruncate(siblings []Sibling, limit int) []Sibling {
	sort.SliceStable(siblings, func(i, j int) bool {
		return siblings[i].LastAt.After(siblings[j].LastAt)
	})

	if limit > 0 && len(siblings) > limit {
		siblings = siblings[:limit]
	}
	return siblings
}
