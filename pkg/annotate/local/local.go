// Package local provides an in-process implementation of the
// annotate.Source interface.
//
// Annotations are supplied by the host through Put and keyed by subject and
// log name. Annotate additionally derives a turn-count annotation from the
// messages it is handed, so even an empty store yields something useful.
// This is a local-dev story; richer backends can derive annotations from
// content pipelines.
package local

import (
	"context"
	"strconv"
	"sync"

	"github.com/papercomputeco/spool/pkg/catalog"
)

// Config holds configuration for the local annotation source.
type Config struct {
	// Enabled controls whether the source returns annotations.
	// When false, Annotate returns nil.
	Enabled bool
}

// Source implements annotate.Source using in-process data structures.
type Source struct {
	config Config

	mu sync.RWMutex

	// data maps subject -> log name -> host-supplied annotations.
	data map[string]map[string]map[string]string
}

// NewSource creates a local annotation source.
func NewSource(config Config) *Source {
	return &Source{
		config: config,
		data:   make(map[string]map[string]map[string]string),
	}
}

// Put records host-supplied annotations for one log, replacing any
// previous set.
func (s *Source) Put(subject, name string, annotations map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs, ok := s.data[subject]
	if !ok {
		logs = make(map[string]map[string]string)
		s.data[subject] = logs
	}
	logs[name] = annotations
}

// Annotate returns the host-supplied annotations for the log merged with a
// derived turn count. Returns nil when the source is disabled.
func (s *Source) Annotate(_ context.Context, subject, name string, msgs []catalog.Message) (map[string]string, error) {
	if !s.config.Enabled {
		return nil, nil
	}

	out := map[string]string{
		"turns": strconv.Itoa(len(msgs)),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.data[subject][name] {
		out[k] = v
	}
	return out, nil
}

// Close releases source resources. The local source holds none.
func (s *Source) Close() error {
	return nil
}
