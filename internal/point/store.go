package point

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store is the persistence boundary for point state. Load returns
// (nil, nil) when no prior state exists.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore keeps the state as indented JSON on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("point store: read %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("point store: parse %s: %w", s.path, err)
	}
	return &state, nil
}

func (s *FileStore) Save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("point store: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("point store: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("point store: write %s: %w", s.path, err)
	}
	return nil
}

// MemStore holds state in memory, for fresh shows and tests.
type MemStore struct {
	state *State
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (*State, error) {
	if s.state == nil {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}

func (s *MemStore) Save(state *State) error {
	copied := *state
	s.state = &copied
	return nil
}
