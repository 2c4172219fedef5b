package store

import (
	"context"
	"sync"
)

// MemoryStore keeps revisions for the lifetime of the process
type MemoryStore struct {
	mu        sync.RWMutex
	revisions map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revisions: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, changeID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rev, ok := s.revisions[changeID]
	return rev, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, changeID, revision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions[changeID] = revision
	return nil
}

func (s *MemoryStore) Close() error { return nil }
