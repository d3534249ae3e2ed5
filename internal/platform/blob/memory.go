package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// memoryStore backs local development and tests; nothing survives a restart.
type memoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{objects: make(map[string][]byte)}
}

func memKey(category Category, key string) string {
	return string(category) + "/" + key
}

func (s *memoryStore) Upload(_ context.Context, category Category, key string, _ string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[memKey(category, key)] = data
	return nil
}

func (s *memoryStore) Download(_ context.Context, category Category, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[memKey(category, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStore) Exists(_ context.Context, category Category, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[memKey(category, key)]
	return ok, nil
}
