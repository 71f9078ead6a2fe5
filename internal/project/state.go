package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const stateFile = "state.json"

// State is the persisted sync bookkeeping: the last sync timestamp, the
// modification times of every tracked agent file recorded at the end of
// the previous successful sync, and the agent detection cache.
type State struct {
	LastSync time.Time `json:"last_sync"`

	// Tracked maps project-relative output paths to the mtime observed
	// right after the last export. A live file newer than this was edited
	// outside the sync.
	Tracked map[string]time.Time `json:"tracked,omitempty"`

	Detection *DetectionCache `json:"detection,omitempty"`
}

// DetectionCache avoids re-prompting about agents already seen.
type DetectionCache struct {
	Timestamp  time.Time `json:"timestamp"`
	Detected   []string  `json:"detected"`
	Configured []string  `json:"configured"`
}

// StatePath returns the full path to the state file.
func StatePath(projectPath string) string {
	return filepath.Join(Dir(projectPath), stateFile)
}

// LoadState reads the sync state. A missing file yields a fresh zero state
// (first sync), not an error.
func LoadState(projectPath string) (*State, error) {
	data, err := os.ReadFile(StatePath(projectPath))
	if os.IsNotExist(err) {
		return &State{Tracked: make(map[string]time.Time)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing sync state: %w", err)
	}
	if state.Tracked == nil {
		state.Tracked = make(map[string]time.Time)
	}
	return &state, nil
}

// SaveState writes the sync state.
func SaveState(projectPath string, state *State) error {
	if err := os.MkdirAll(Dir(projectPath), 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sync state: %w", err)
	}
	if err := os.WriteFile(StatePath(projectPath), data, 0644); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}
	return nil
}
