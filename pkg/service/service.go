// Package service is the host-facing facade over the index core. It owns
// the catalog store, the hydration scheduler, and the branch detector for
// one subject at a time, and exposes the read surface (snapshots, siblings,
// tries) that presentation layers consume.
//
// A Service has an explicit lifecycle: construct with New, drive with
// Refresh, tear down with Dispose. Nothing is module-level, so multiple
// subjects or test instances coexist freely.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papercomputeco/spool/pkg/annotate"
	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/branch"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/eventstream"
	"github.com/papercomputeco/spool/pkg/hydrate"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/transcript"
	"github.com/papercomputeco/spool/pkg/trie"
)

// ErrRefreshInFlight is returned when Refresh is called while another
// refresh has not yet finished reconciling. At most one refresh runs at a
// time; callers retry after the current one returns.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// Service wires the index core together behind one handle.
type Service struct {
	store     *catalog.Store
	scheduler *hydrate.Scheduler
	detector  *branch.Detector
	port      backend.Port
	annotator annotate.Source
	logger    *slog.Logger

	refreshMu sync.Mutex

	mu      sync.Mutex
	subject string
}

// Option configures a Service.
type Option func(*options)

type options struct {
	cache     catalog.Cache
	logger    *slog.Logger
	publisher eventstream.Publisher
	annotator annotate.Source
	batchSize int
}

// WithCache injects the persistent read-through cache.
func WithCache(c catalog.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger overrides the default nop logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublisher attaches an eventstream publisher for hydration progress.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithAnnotator attaches an annotation source.
func WithAnnotator(a annotate.Source) Option {
	return func(o *options) { o.annotator = a }
}

// WithBatchSize overrides the hydration batch size.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// New creates a Service over the given backend port.
func New(port backend.Port, opts ...Option) *Service {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []catalog.Option{catalog.WithLogger(o.logger)}
	if o.cache != nil {
		storeOpts = append(storeOpts, catalog.WithCache(o.cache))
	}
	store := catalog.NewStore(storeOpts...)

	schedOpts := []hydrate.Option{hydrate.WithLogger(o.logger)}
	if o.publisher != nil {
		schedOpts = append(schedOpts, hydrate.WithPublisher(o.publisher))
	}
	if o.batchSize > 0 {
		schedOpts = append(schedOpts, hydrate.WithBatchSize(o.batchSize))
	}

	return &Service{
		store:     store,
		scheduler: hydrate.NewScheduler(store, port, schedOpts...),
		detector:  branch.NewDetector(store),
		port:      port,
		annotator: o.annotator,
		logger:    o.logger,
	}
}

// RefreshOption configures one Refresh call.
type RefreshOption func(*refreshOptions)

type refreshOptions struct {
	onMetadataReady func()
	onProgress      func(hydrate.Progress)
}

// WithMetadataReady registers a callback invoked once the backend list has
// been reconciled, before hydration begins. Snapshots taken inside it see
// every entry in at least metadata-only form.
func WithMetadataReady(fn func()) RefreshOption {
	return func(o *refreshOptions) { o.onMetadataReady = fn }
}

// WithProgress registers a callback for this refresh's hydration progress.
// It is unsubscribed automatically once hydration completes.
func WithProgress(fn func(hydrate.Progress)) RefreshOption {
	return func(o *refreshOptions) { o.onProgress = fn }
}

// Refresh reconciles the backend's list for a subject into the catalog and
// schedules hydration for everything still metadata-only. A backend list
// failure leaves the catalog untouched. Returns ErrRefreshInFlight when
// another refresh is still reconciling.
func (s *Service) Refresh(ctx context.Context, subject string, opts ...RefreshOption) error {
	var o refreshOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !s.refreshMu.TryLock() {
		return ErrRefreshInFlight
	}
	defer s.refreshMu.Unlock()

	list, err := s.port.ListLogs(ctx, subject)
	if err != nil {
		return fmt.Errorf("listing logs for %q: %w", subject, err)
	}

	s.mu.Lock()
	subjectChanged := s.subject != subject
	s.subject = subject
	s.mu.Unlock()

	// A subject switch invalidates the old hydration session before the
	// new subject's entries land in the catalog, so an old-subject fetch
	// can never settle into them even when names and revision strings
	// coincide. Within a subject the session carries on so progress
	// counters keep accumulating across incremental refreshes.
	if subjectChanged {
		s.scheduler.Reset(subject)
	}

	result := s.store.Refresh(ctx, subject, list)

	if o.onMetadataReady != nil {
		o.onMetadataReady()
	}

	var settleProgress func()
	if o.onProgress != nil {
		settleProgress = s.subscribeUntilComplete(o.onProgress)
	}

	for _, name := range result.Pending {
		s.scheduler.Enqueue(name)
	}

	if settleProgress != nil {
		settleProgress()
	}

	s.logger.Debug("refresh scheduled",
		"subject", subject,
		"pending", len(result.Pending),
		"changed", result.Changed,
	)

	return nil
}

// subscribeUntilComplete attaches a progress callback that detaches itself
// once the scheduler drains. The returned settle function handles the
// refresh that scheduled nothing: when the scheduler is already complete
// it fires one terminal snapshot and detaches, so the subscription never
// outlives its refresh to observe a later session's progress.
func (s *Service) subscribeUntilComplete(fn func(hydrate.Progress)) func() {
	var once sync.Once
	var unsubscribe func()

	unsubscribe = s.scheduler.Subscribe(func(p hydrate.Progress) {
		fn(p)
		if s.scheduler.Complete() {
			once.Do(unsubscribe)
		}
	})

	return func() {
		if s.scheduler.Complete() {
			once.Do(func() {
				unsubscribe()
				fn(s.scheduler.Progress())
			})
		}
	}
}

// GetSortedSnapshot returns every entry in canonical order: most recent
// first, insertion order then name as tie-breakers.
func (s *Service) GetSortedSnapshot() []*catalog.Entry {
	return s.store.Snapshot()
}

// GetFilteredSortedSnapshot returns a filtered snapshot in the given order.
func (s *Service) GetFilteredSortedSnapshot(f catalog.Filter, field catalog.SortField) []*catalog.Entry {
	return s.store.FilterSorted(f, field)
}

// GetEntry returns a copy of one entry.
func (s *Service) GetEntry(name string) (*catalog.Entry, bool) {
	return s.store.Get(name)
}

// FindEntryByContent resolves an entry by first and last message text. This
// is the degraded fallback for hosts that cannot supply a log name; two
// structurally identical logs are indistinguishable here.
func (s *Service) FindEntryByContent(first, last string) (*catalog.Entry, bool) {
	return s.store.FindByContent(first, last)
}

// IsHydrationComplete reports whether every scheduled log has settled.
func (s *Service) IsHydrationComplete() bool {
	return s.scheduler.Complete()
}

// HydrationProgress returns the current session's loaded/total counters.
func (s *Service) HydrationProgress() hydrate.Progress {
	return s.scheduler.Progress()
}

// SubscribeToHydrationUpdates registers a progress callback and returns its
// unsubscribe function.
func (s *Service) SubscribeToHydrationUpdates(fn func(hydrate.Progress)) func() {
	return s.scheduler.Subscribe(fn)
}

// PrioritizeHydration moves a queued log to the front of the queue.
func (s *Service) PrioritizeHydration(name string) {
	s.scheduler.Prioritize(name)
}

// HydrateNow fetches one log synchronously, coalescing with any in-flight
// fetch for the same name. Returns true when the entry ends up hydrated.
func (s *Service) HydrateNow(ctx context.Context, name string) bool {
	return s.scheduler.HydrateNow(ctx, name)
}

// UpdateSingleEntry installs fresh content for one log without a backend
// round-trip, for the log the host is actively writing to. Annotations are
// refreshed best-effort when a source is configured.
func (s *Service) UpdateSingleEntry(ctx context.Context, name string, turns []transcript.Turn) bool {
	changed := s.store.UpdateEntry(ctx, name, turns)
	if changed && s.annotator != nil {
		if err := s.AnnotateEntry(ctx, name); err != nil {
			s.logger.Debug("annotation failed", "name", name, "error", err)
		}
	}
	return changed
}

// AnnotateEntry asks the configured annotation source for one entry's
// auxiliary data and stores it. Returns ErrNotConfigured without a source.
func (s *Service) AnnotateEntry(ctx context.Context, name string) error {
	if s.annotator == nil {
		return annotate.ErrNotConfigured
	}

	entry, ok := s.store.Get(name)
	if !ok {
		return fmt.Errorf("annotating %q: no such entry", name)
	}

	annotations, err := s.annotator.Annotate(ctx, s.store.Subject(), name, entry.Messages)
	if err != nil {
		return fmt.Errorf("annotating %q: %w", name, err)
	}
	if annotations != nil {
		s.store.SetAnnotations(name, annotations)
	}
	return nil
}

// SetTags replaces one entry's host-assigned tags.
func (s *Service) SetTags(name string, tags []string) bool {
	return s.store.SetTags(name, tags)
}

// DetectBranches recomputes every entry's divergence fact relative to the
// reference log. Run off the interactive path; it touches every hydrated
// entry.
func (s *Service) DetectBranches(referenceName string) {
	s.detector.DetectAll(referenceName)
}

// SiblingsOf returns the stored-divergence siblings of a log, most recent
// first, truncated to limit.
func (s *Service) SiblingsOf(name string, limit int) []branch.Sibling {
	return s.detector.SiblingsOf(name, limit)
}

// SiblingsOfArbitrary computes siblings on demand against an arbitrary base
// without touching stored divergence facts.
func (s *Service) SiblingsOfArbitrary(baseName string, limit int) []branch.Sibling {
	return s.detector.SiblingsOfArbitrary(baseName, limit)
}

// BuildTrie merges the hydrated entries into a laid-out prefix tree.
// activeLog marks the log whose path sorts first at every node; focusLog,
// when non-empty, re-roots the tree at the deepest branch point on that
// log's path. Either may be empty.
func (s *Service) BuildTrie(activeLog, focusLog string) *trie.Tree {
	var opts []trie.Option
	if activeLog != "" {
		opts = append(opts, trie.WithActiveLog(activeLog))
	}
	if focusLog != "" {
		opts = append(opts, trie.WithFocus(focusLog))
	}
	return trie.Build(s.store.HydratedSnapshot(), opts...)
}

// Version returns the catalog version. It strictly increases on every
// observable mutation; consumers caching derived structures recompute when
// it moves.
func (s *Service) Version() uint64 {
	return s.store.Version()
}

// Subject returns the subject the service currently indexes.
func (s *Service) Subject() string {
	return s.store.Subject()
}

// Dispose tears the service down: in-flight hydration is abandoned via
// session invalidation and the annotation source is closed. The catalog
// remains readable but no further hydration runs.
func (s *Service) Dispose() error {
	s.scheduler.Reset("")
	if s.annotator != nil {
		if err := s.annotator.Close(); err != nil {
			return fmt.Errorf("closing annotation source: %w", err)
		}
	}
	return nil
}
