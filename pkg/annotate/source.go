// Package annotate provides a pluggable annotation layer for the catalog.
//
// Annotation sources attach auxiliary key/value data to log entries —
// summaries, labels, quality scores — derived outside the index core. The
// [Source] interface is intentionally minimal: Annotate produces the data
// for one log, and Close releases resources. Annotations are one-way; the
// catalog stores whatever the source returns and never writes back.
//
// Sources are pluggable via configuration:
//
//	[annotate]
//	provider = "local"   # or "none"
package annotate

import (
	"context"

	"github.com/papercomputeco/spool/pkg/catalog"
)

// Source produces annotations for a log entry.
type Source interface {
	// Annotate returns auxiliary data for one log given its hydrated
	// messages. A nil map means the source has nothing to say; it is not
	// an error.
	Annotate(ctx context.Context, subject, name string, msgs []catalog.Message) (map[string]string, error)

	// Close releases source resources.
	Close() error
}
