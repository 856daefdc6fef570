package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DivergenceUnset marks an entry with no divergence fact relative to the
// current reference log.
const DivergenceUnset = -1

// Entry is the catalog's record of one log. Entries start metadata-only the
// moment the backend reports the log exists and are promoted to hydrated
// once content arrives. Only the Store and the hydration scheduler mutate
// entries; everything handed out of the Store is a copy.
type Entry struct {
	// Name uniquely identifies the log within its subject.
	Name string `json:"name"`

	// Revision is the backend's opaque revision marker, compared only for
	// equality. UpdateEntry derives it from content when the caller
	// bypasses the backend.
	Revision string `json:"revision"`

	// MessageCount is the backend's estimate until hydration, then exact.
	MessageCount int `json:"message_count"`

	// Messages is empty until hydrated.
	Messages []Message `json:"messages,omitempty"`

	// FirstAt and LastAt are zero when no turn carried a timestamp.
	FirstAt time.Time `json:"first_at,omitzero"`
	LastAt  time.Time `json:"last_at,omitzero"`

	// SortStamp is the stable recency key: LastAt in unix milliseconds,
	// falling back to 0 when no timestamp exists.
	SortStamp int64 `json:"sort_stamp"`

	// InsertionOrder is assigned monotonically on creation and used as a
	// tie-breaker so list order does not jitter while entries hydrate.
	InsertionOrder int64 `json:"insertion_order"`

	// DivergesAt is the turn index where this log diverges from the
	// reference log, DivergenceUnset when no fact is known.
	DivergesAt int `json:"diverges_at"`

	// Hydrated reports whether Messages holds full content.
	Hydrated bool `json:"hydrated"`

	// Tags are host-assigned labels used by snapshot filtering.
	Tags []string `json:"tags,omitempty"`

	// Annotations is auxiliary data attached by an annotation source.
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Clone returns a copy of the entry. Slices and maps are shared; snapshot
// consumers treat them as read-only.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// applyMessages installs hydrated content and recomputes the derived
// timestamp fields.
func (e *Entry) applyMessages(msgs []Message) {
	e.Messages = msgs
	e.MessageCount = len(msgs)
	e.FirstAt = time.Time{}
	e.LastAt = time.Time{}

	for i := range msgs {
		ts := msgs[i].Timestamp
		if ts.IsZero() {
			continue
		}
		if e.FirstAt.IsZero() || ts.Before(e.FirstAt) {
			e.FirstAt = ts
		}
		if ts.After(e.LastAt) {
			e.LastAt = ts
		}
	}

	e.SortStamp = sortStamp(e.LastAt)
	e.Hydrated = true
}

// sortStamp converts a last-activity time into the stable ordering key.
// Logs without timestamps all share the fallback and order by insertion.
func sortStamp(lastAt time.Time) int64 {
	if lastAt.IsZero() {
		return 0
	}
	return lastAt.UnixMilli()
}

// ContentRevision derives a revision marker from message content. Used by
// UpdateEntry so that content written around the backend still produces a
// marker that a later backend-reported revision can differ from.
func ContentRevision(msgs []Message) string {
	h := sha256.New()
	for i := range msgs {
		h.Write([]byte(msgs[i].Role))
		h.Write([]byte{0})
		h.Write([]byte(msgs[i].Text))
		h.Write([]byte{0})
	}
	return "content-" + hex.EncodeToString(h.Sum(nil))[:16]
}
