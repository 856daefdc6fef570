package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeHydrationProgress is emitted after every hydration batch.
	EventTypeHydrationProgress = "spool.hydration.progress"
)

// HydrationProgressEvent is a transport-neutral progress payload. Within a
// hydration session, Loaded never decreases; a new session id starts a new
// monotonic series.
type HydrationProgressEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Subject identifies whose logs are hydrating.
	Subject string `json:"subject"`

	// Session is the hydration session id the progress belongs to.
	Session uint64 `json:"session"`

	Loaded   int  `json:"loaded"`
	Total    int  `json:"total"`
	Complete bool `json:"complete"`
}

// NewHydrationProgressEvent builds a fully-populated progress event.
func NewHydrationProgressEvent(subject string, session uint64, loaded, total int, complete bool) *HydrationProgressEvent {
	return &HydrationProgressEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeHydrationProgress,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Subject:       subject,
		Session:       session,
		Loaded:        loaded,
		Total:         total,
		Complete:      complete,
	}
}
