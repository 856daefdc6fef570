// Package inmemory provides a scripted backend.Port implementation. Tests
// and demo seeding drive it directly: logs are registered per subject, list
// and fetch calls are counted, and fetches can be delayed or failed to
// exercise hydration races.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/transcript"
)

type logRecord struct {
	info  backend.LogInfo
	turns []transcript.RawTurn
}

// Port implements backend.Port from in-process data.
type Port struct {
	mu sync.Mutex

	logs map[string]map[string]*logRecord

	listCalls  int
	fetchCalls map[string]int

	// FetchDelay, when set, is waited before every fetch returns. Lets
	// tests hold fetches in flight while mutating the catalog.
	FetchDelay time.Duration

	// FailFetches marks log names whose fetches return an error.
	FailFetches map[string]bool

	// FetchGate, when non-nil, is received from before every fetch
	// returns, giving tests precise control over fetch completion order.
	FetchGate chan struct{}
}

// NewPort creates an empty scripted backend.
func NewPort() *Port {
	return &Port{
		logs:        make(map[string]map[string]*logRecord),
		fetchCalls:  make(map[string]int),
		FailFetches: make(map[string]bool),
	}
}

// SetLog registers (or replaces) one log for a subject.
func (p *Port) SetLog(subject string, info backend.LogInfo, turns []transcript.RawTurn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subjectLogs, ok := p.logs[subject]
	if !ok {
		subjectLogs = make(map[string]*logRecord)
		p.logs[subject] = subjectLogs
	}
	subjectLogs[info.Name] = &logRecord{info: info, turns: turns}
}

// RemoveLog unregisters one log.
func (p *Port) RemoveLog(subject, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if subjectLogs, ok := p.logs[subject]; ok {
		delete(subjectLogs, name)
	}
}

// ListLogs returns the registered metadata for a subject.
func (p *Port) ListLogs(_ context.Context, subject string) ([]backend.LogInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listCalls++

	var infos []backend.LogInfo
	for _, rec := range p.logs[subject] {
		infos = append(infos, rec.info)
	}
	return infos, nil
}

// FetchLogContent returns the registered raw turns for one log.
func (p *Port) FetchLogContent(ctx context.Context, subject, name string) ([]transcript.RawTurn, error) {
	p.mu.Lock()
	p.fetchCalls[subject+"/"+name]++
	delay := p.FetchDelay
	gate := p.FetchGate
	fail := p.FailFetches[name]
	rec, ok := p.logs[subject][name]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, fmt.Errorf("scripted fetch failure for %s", name)
	}
	if !ok {
		return nil, fmt.Errorf("no such log %s/%s", subject, name)
	}

	turns := make([]transcript.RawTurn, len(rec.turns))
	copy(turns, rec.turns)
	return turns, nil
}

// ListCalls returns how many times ListLogs ran.
func (p *Port) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// FetchCalls returns how many times one log's content was fetched.
func (p *Port) FetchCalls(subject, name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls[subject+"/"+name]
}

// TotalFetchCalls returns the total number of content fetches.
func (p *Port) TotalFetchCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, n := range p.fetchCalls {
		total += n
	}
	return total
}
