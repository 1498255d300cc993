// Package state persists the carry-forward record between cycles.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"TreasuryCycler/internal/model"
)

// FileStore keeps a single CycleState as JSON at a fixed path.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore creates a store for the given path.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the persisted state. A missing or unusable record yields the zero state.
func (s *FileStore) Load() model.CycleState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("state unreadable, starting from zero")
		}
		return model.CycleState{}
	}
	var st model.CycleState
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("state corrupt, starting from zero")
		return model.CycleState{}
	}
	if st.CarriedSettlementBalance.IsNegative() {
		s.log.Warn().Str("carried", st.CarriedSettlementBalance.String()).Msg("negative carry in state, starting from zero")
		return model.CycleState{}
	}
	return st
}

// Save replaces the persisted state by writing a temp file and renaming it over the target.
func (s *FileStore) Save(st model.CycleState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
