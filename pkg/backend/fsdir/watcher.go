package fsdir

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch emits a coalesced pulse whenever anything changes under the
// subject's directory, so hosts can trigger a refresh instead of polling.
// Events arriving within the debounce window collapse into one pulse. The
// returned channel closes when ctx is done or the underlying watcher fails.
func (p *Port) Watch(ctx context.Context, subject string, debounce time.Duration) (<-chan struct{}, error) {
	dir, err := p.subjectDir(subject)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}

	pulses := make(chan struct{}, 1)
	go func() {
		defer close(pulses)
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					timer.Reset(debounce)
				}
			case <-fire:
				timer = nil
				fire = nil
				select {
				case pulses <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return pulses, nil
}
