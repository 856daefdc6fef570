// Package hydrate fills in full content for catalog entries that only have
// metadata. A single background loop pops bounded batches off a FIFO queue
// and fetches each batch concurrently through the backend port; every
// write-back passes the catalog's optimistic revision re-check, so a fetch
// that raced a refresh is discarded and re-queued instead of clobbering
// newer content.
//
// Cancellation is coarse-grained and session-based: switching subjects (or
// an explicit reset) bumps the session id, and any loop or in-flight fetch
// holding a stale session aborts without side effects. There are no
// per-request cancellation tokens and no timeouts — a stalled fetch simply
// blocks its one slot in the batch.
package hydrate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/transcript"
)

// DefaultBatchSize bounds how many fetches run concurrently per batch,
// tuned for typical backend throughput.
const DefaultBatchSize = 5

// Progress is a point-in-time view of the current hydration session.
// Loaded is monotonic within one session.
type Progress struct {
	Loaded int `json:"loaded"`
	Total  int `json:"total"`
}

// outcome classifies how one fetch slot resolved.
type outcome int

const (
	// outcomeApplied: content written into the catalog (or the slot was
	// satisfied by another path).
	outcomeApplied outcome = iota

	// outcomeStale: the revision moved while the fetch was in flight; the
	// name goes back on the queue within the same session.
	outcomeStale

	// outcomeFailed: the fetch errored; the entry stays un-hydrated and
	// becomes eligible again on the next refresh or manual retry.
	outcomeFailed

	// outcomeAbandoned: the session changed mid-flight; nothing is
	// observable.
	outcomeAbandoned
)

// Scheduler owns the hydration queue for one catalog store.
type Scheduler struct {
	store     *catalog.Store
	port      backend.Port
	logger    *slog.Logger
	publisher eventstream.Publisher
	batchSize int

	mu       sync.Mutex
	session  uint64
	subject  string
	queue    []string
	queued   map[string]struct{}
	inflight map[string]chan struct{}
	running  bool
	loaded   int
	total    int

	subs    map[int]func(Progress)
	nextSub int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger overrides the default nop logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithPublisher attaches an eventstream publisher for progress events.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// NewScheduler creates a scheduler bound to one store and backend port.
func NewScheduler(store *catalog.Store, port backend.Port, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		port:      port,
		logger:    logger.Nop(),
		batchSize: DefaultBatchSize,
		queued:    make(map[string]struct{}),
		inflight:  make(map[string]chan struct{}),
		subs:      make(map[int]func(Progress)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset starts a new hydration session for a subject. The previous
// session's loop and in-flight fetches abandon themselves on their next
// session check; nothing they do afterwards is observable.
func (s *Scheduler) Reset(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session++
	s.subject = subject
	s.queue = nil
	s.queued = make(map[string]struct{})
	s.inflight = make(map[string]chan struct{})
	s.running = false
	s.loaded = 0
	s.total = 0
}

// Enqueue schedules one name for hydration. No-op when the entry is
// already hydrated, already queued, or already in flight. Restarts the
// loop if it had drained and exited.
func (s *Scheduler) Enqueue(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queued[name]; ok {
		s.kick()
		return
	}
	if _, ok := s.inflight[name]; ok {
		return
	}
	if _, ok := s.store.HydrationTarget(name); !ok {
		return
	}

	s.queue = append(s.queue, name)
	s.queued[name] = struct{}{}
	s.total++
	s.kick()
}

// kick starts the background loop when queued work exists and no loop is
// running. Callers must hold mu. Every path that grows the queue kicks,
// so a name can never sit queued with no loop to serve it.
func (s *Scheduler) kick() {
	if len(s.queue) > 0 && !s.running {
		s.running = true
		go s.run(s.session)
	}
}

// Prioritize moves an already-queued name to the front of the queue, for
// when the host needs one specific log immediately.
func (s *Scheduler) Prioritize(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, queued := range s.queue {
		if queued != name {
			continue
		}
		copy(s.queue[1:i+1], s.queue[:i])
		s.queue[0] = name
		return
	}
}

// Complete reports whether hydration has converged: both the queue and the
// in-flight map are empty.
func (s *Scheduler) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && len(s.inflight) == 0
}

// Progress returns the current session's counters.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{Loaded: s.loaded, Total: s.total}
}

// Subscribe registers a progress callback invoked after every batch. The
// returned function unsubscribes it.
func (s *Scheduler) Subscribe(fn func(Progress)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// HydrateNow fetches one log synchronously, bypassing the queue. A fetch
// already in flight for the name is coalesced: the call waits for it
// instead of issuing a duplicate. Returns true when the entry ends up
// hydrated.
func (s *Scheduler) HydrateNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	session := s.session
	subject := s.subject

	if done, ok := s.inflight[name]; ok {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return false
		}
		return s.isHydrated(name)
	}

	revision, ok := s.store.HydrationTarget(name)
	if !ok {
		s.mu.Unlock()
		return s.isHydrated(name)
	}

	// Claim the name: pull it off the queue if present so the loop does
	// not race this fetch.
	wasQueued := false
	if _, ok := s.queued[name]; ok {
		wasQueued = true
		delete(s.queued, name)
		for i, queued := range s.queue {
			if queued == name {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	}
	done := make(chan struct{})
	s.inflight[name] = done
	s.mu.Unlock()
	defer close(done)

	result := s.fetch(ctx, session, subject, name, revision)

	s.mu.Lock()
	if session == s.session {
		delete(s.inflight, name)
		if wasQueued {
			switch result {
			case outcomeApplied:
				s.loaded++
			case outcomeStale:
				// The loop may have drained and exited while this fetch
				// was in flight; restart it for the retry.
				s.queue = append(s.queue, name)
				s.queued[name] = struct{}{}
				s.kick()
			default:
				s.total--
			}
		}
	}
	s.mu.Unlock()

	return result == outcomeApplied || s.isHydrated(name)
}

func (s *Scheduler) isHydrated(name string) bool {
	entry, ok := s.store.Get(name)
	return ok && entry.Hydrated
}

// run is the background loop for one session. It exits when the queue
// drains or the session goes stale.
func (s *Scheduler) run(session uint64) {
	ctx := context.Background()

	for {
		s.mu.Lock()
		if session != s.session {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			s.emit(session)
			return
		}

		n := min(s.batchSize, len(s.queue))
		batch := make([]string, n)
		copy(batch, s.queue[:n])
		s.queue = s.queue[n:]

		dones := make([]chan struct{}, n)
		for i, name := range batch {
			delete(s.queued, name)
			dones[i] = make(chan struct{})
			s.inflight[name] = dones[i]
		}
		subject := s.subject
		s.mu.Unlock()

		var wg sync.WaitGroup
		for i, name := range batch {
			wg.Add(1)
			go func(name string, done chan struct{}) {
				defer wg.Done()
				defer close(done)
				s.fetchInto(ctx, session, subject, name)
			}(name, dones[i])
		}
		wg.Wait()

		s.emit(session)
	}
}

// fetchInto fetches one queued name and settles the session counters.
func (s *Scheduler) fetchInto(ctx context.Context, session uint64, subject, name string) {
	var result outcome

	revision, ok := s.store.HydrationTarget(name)
	if !ok {
		// Hydrated by another path, or gone. The slot is satisfied.
		result = outcomeApplied
	} else {
		result = s.fetch(ctx, session, subject, name, revision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session != s.session {
		return
	}

	delete(s.inflight, name)

	switch result {
	case outcomeApplied:
		s.loaded++
	case outcomeStale:
		// Re-loop for this name instead of writing stale content.
		if _, ok := s.store.HydrationTarget(name); ok {
			s.queue = append(s.queue, name)
			s.queued[name] = struct{}{}
			s.kick()
		} else {
			s.total--
		}
	case outcomeFailed:
		s.total--
	}
}

// fetch performs the backend call and the optimistically-checked
// write-back.
func (s *Scheduler) fetch(ctx context.Context, session uint64, subject, name, revision string) outcome {
	raw, err := s.port.FetchLogContent(ctx, subject, name)

	s.mu.Lock()
	stale := session != s.session
	s.mu.Unlock()
	if stale {
		// Subject switched while the fetch was in flight; drop everything.
		return outcomeAbandoned
	}

	if err != nil {
		// The entry stays un-hydrated and eligible for re-enqueue on the
		// next refresh or manual retry.
		s.logger.Warn("log fetch failed, will retry later",
			"subject", subject,
			"name", name,
			"error", err,
		)
		return outcomeFailed
	}

	if !s.store.CompleteHydration(ctx, name, revision, transcript.ParseTurns(raw)) {
		s.logger.Debug("discarded stale hydration result",
			"subject", subject,
			"name", name,
			"revision", revision,
		)
		return outcomeStale
	}

	return outcomeApplied
}

// emit pushes a progress snapshot to subscribers and, when configured, the
// eventstream publisher. Skipped entirely for stale sessions.
func (s *Scheduler) emit(session uint64) {
	s.mu.Lock()
	if session != s.session {
		s.mu.Unlock()
		return
	}
	progress := Progress{Loaded: s.loaded, Total: s.total}
	complete := len(s.queue) == 0 && len(s.inflight) == 0
	subject := s.subject
	subs := make([]func(Progress), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(progress)
	}

	if s.publisher != nil {
		event := eventstream.NewHydrationProgressEvent(
			subject, session, progress.Loaded, progress.Total, complete)
		if err := s.publisher.PublishProgress(context.Background(), event); err != nil {
			s.logger.Debug("progress publish failed", "error", err)
		}
	}
}
