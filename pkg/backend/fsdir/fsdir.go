// Package fsdir implements backend.Port over a directory tree of JSONL
// transcripts: one directory per subject, one .jsonl file per log, one raw
// turn per line.
//
// Revisions are derived from file metadata (mtime plus size), so a rewrite
// is visible to the catalog without reading content. Malformed lines are
// skipped rather than failing the whole log.
package fsdir

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/transcript"
)

const logExt = ".jsonl"

// Port reads logs from root/<subject>/<name>.jsonl.
type Port struct {
	root string
}

// NewPort creates a filesystem backend rooted at the given directory.
func NewPort(root string) *Port {
	return &Port{root: root}
}

// subjectDir maps a subject to its directory, rejecting names that would
// escape the root.
func (p *Port) subjectDir(subject string) (string, error) {
	if subject == "" || subject != filepath.Base(subject) {
		return "", fmt.Errorf("invalid subject %q", subject)
	}
	return filepath.Join(p.root, subject), nil
}

// ListLogs returns metadata for every .jsonl file in the subject's
// directory. A missing directory is an empty subject, not an error.
func (p *Port) ListLogs(_ context.Context, subject string) ([]backend.LogInfo, error) {
	dir, err := p.subjectDir(subject)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing logs for %q: %w", subject, err)
	}

	var infos []backend.LogInfo
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), logExt) {
			continue
		}
		stat, err := de.Info()
		if err != nil {
			// The file vanished between readdir and stat; skip it, the
			// next refresh will reconcile.
			continue
		}
		infos = append(infos, backend.LogInfo{
			Name:       strings.TrimSuffix(de.Name(), logExt),
			Revision:   fileRevision(stat),
			LastTurnAt: stat.ModTime().UTC(),
		})
	}
	return infos, nil
}

// FetchLogContent reads one log's turns, one JSON object per line.
// Malformed lines and blank lines are skipped.
func (p *Port) FetchLogContent(_ context.Context, subject, name string) ([]transcript.RawTurn, error) {
	dir, err := p.subjectDir(subject)
	if err != nil {
		return nil, err
	}
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid log name %q", name)
	}

	file, err := os.Open(filepath.Join(dir, name+logExt))
	if err != nil {
		return nil, fmt.Errorf("opening log %s/%s: %w", subject, name, err)
	}
	defer file.Close()

	var turns []transcript.RawTurn
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var turn transcript.RawTurn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log %s/%s: %w", subject, name, err)
	}
	return turns, nil
}

// WriteLog writes turns out as a JSONL file, creating the subject directory
// as needed. Used by seeding tools and tests; the catalog itself never
// writes through the port.
func (p *Port) WriteLog(subject, name string, turns []transcript.RawTurn) error {
	dir, err := p.subjectDir(subject)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating subject dir: %w", err)
	}

	var sb strings.Builder
	for _, turn := range turns {
		line, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}

	path := filepath.Join(dir, name+logExt)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing log %s/%s: %w", subject, name, err)
	}
	return nil
}

// fileRevision derives the opaque revision marker from file metadata.
func fileRevision(stat fs.FileInfo) string {
	return fmt.Sprintf("%d-%d", stat.ModTime().UnixNano(), stat.Size())
}
