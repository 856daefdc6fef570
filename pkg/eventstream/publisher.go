// Package eventstream publishes hydration progress to an event stream
// backend. Publishing is strictly best-effort: the hydration scheduler logs
// and continues on any publish failure.
package eventstream

import "context"

// Publisher publishes hydration progress events to an event stream backend.
type Publisher interface {
	PublishProgress(ctx context.Context, event *HydrationProgressEvent) error
	Close() error
}
