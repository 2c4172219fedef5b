package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore persists revisions as a YAML map, rewriting the whole file on each Set
type FileStore struct {
	mu        sync.Mutex
	path      string
	revisions map[string]string
}

type fileState struct {
	Revisions map[string]string `yaml:"revisions"`
}

// OpenFileStore loads path if it exists
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store needs a path")
	}
	s := &FileStore{path: path, revisions: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for k, v := range state.Revisions {
		s.revisions[k] = v
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, changeID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revisions[changeID]
	return rev, ok, nil
}

func (s *FileStore) Set(ctx context.Context, changeID, revision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.revisions[changeID]
	s.revisions[changeID] = revision
	if err := s.flush(); err != nil {
		if existed {
			s.revisions[changeID] = previous
		} else {
			delete(s.revisions, changeID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// flush writes to a temp file and renames it over the target
func (s *FileStore) flush() error {
	data, err := yaml.Marshal(fileState{Revisions: s.revisions})
	if err != nil {
		return fmt.Errorf("failed to encode revisions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".revisions-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write revisions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write revisions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
