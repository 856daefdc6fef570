// Package backend defines the port through which the core obtains a
// subject's logs. The core never reads storage directly; hosts supply an
// implementation (filesystem directory, remote API, test double) and the
// catalog and hydration layers stay agnostic to where logs actually live.
package backend

import (
	"context"
	"time"

	"github.com/papercomputeco/spool/pkg/transcript"
)

// LogInfo is the metadata a backend reports for one log without fetching
// its content.
type LogInfo struct {
	// Name uniquely identifies the log within its subject.
	Name string `json:"name"`

	// Revision is an opaque marker that changes whenever the log's content
	// changes. The core only ever compares revisions for equality.
	Revision string `json:"revision"`

	// ApproxCount is the backend's message count estimate, 0 if unknown.
	ApproxCount int `json:"approx_count,omitempty"`

	// LastTurnAt is the timestamp of the most recent turn, zero if unknown.
	LastTurnAt time.Time `json:"last_turn_at,omitzero"`
}

// Port supplies the list of known logs for a subject and full content for a
// given log. Implementations must be safe for concurrent use: hydration
// fetches multiple logs in parallel.
type Port interface {
	// ListLogs returns metadata for every log the backend knows about for
	// the subject. A failed list must not be partially applied by callers.
	ListLogs(ctx context.Context, subject string) ([]LogInfo, error)

	// FetchLogContent returns the ordered raw turns of one log.
	FetchLogContent(ctx context.Context, subject, name string) ([]transcript.RawTurn, error)
}
