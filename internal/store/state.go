package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"arbsim/internal/engine"
)

const stateFileName = "state.json"

// StateFile persists the engine's restart snapshot (symbol, wallets, PnL
// counters) as a single JSON file next to the SQLite database. Writes use
// atomic file replacement (write to .tmp, then rename) so the file is never
// left in a partial state after a crash mid-save.
type StateFile struct {
	path string
	mu   sync.Mutex // serializes file operations
}

// NewStateFile returns a handle to dataDir/state.json, creating the
// directory if needed.
func NewStateFile(dataDir string) (*StateFile, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &StateFile{path: filepath.Join(dataDir, stateFileName)}, nil
}

// Save atomically persists the snapshot.
func (f *StateFile) Save(st engine.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// Load restores the snapshot from disk. Returns nil, nil if no snapshot
// exists (fresh start).
func (f *StateFile) Load() (*engine.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}
