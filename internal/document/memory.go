package document

import (
	"context"
	"sync"

	"dealroom/pkg/platform/sentinel"
)

// MemoryStore keeps documents in process; the file reference is the key.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), content...)
	return key, nil
}

func (s *MemoryStore) Get(_ context.Context, fileRef string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[fileRef]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Delete(_ context.Context, fileRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, fileRef)
	return nil
}
