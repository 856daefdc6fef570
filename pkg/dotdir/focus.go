package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	focusFile = "focus.json"
)

// FocusState represents the persisted focus state: which subject and log
// the user last had open, and which log branch detection was last run
// against.
type FocusState struct {
	// Subject is the owner key whose catalog was loaded.
	Subject string `json:"subject"`

	// LogName is the log that was open, empty when none was.
	LogName string `json:"log_name,omitempty"`

	// Reference is the log divergence facts were computed against, empty
	// when detection has not run.
	Reference string `json:"reference,omitempty"`
}

// LoadFocusState loads the focus state from a target .spool/focus.json.
// Returns nil, nil if no focus state exists (fresh session).
// If overrideDir is non-empty, it is used instead of the default ~/.spool/ location.
func (m *Manager) LoadFocusState(overrideDir string) (*FocusState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, focusFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading focus state: %w", err)
	}

	state := &FocusState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing focus state: %w", err)
	}

	return state, nil
}

// SaveFocus persists the focus state to a target .spool/focus.json.
func (m *Manager) SaveFocus(state *FocusState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil focus state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling focus state: %w", err)
	}

	path := filepath.Join(dir, focusFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing focus state: %w", err)
	}

	return nil
}

// ClearFocus removes the focus state file so the next session starts
// without a remembered position.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearFocus(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, focusFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing focus state: %w", err)
	}

	return nil
}
