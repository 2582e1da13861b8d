package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStorage keeps objects in-process for tests and local runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func key(bucket, path string) string { return bucket + "/" + path }

func (s *MemoryStorage) Upload(_ context.Context, bucket, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read upload data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key(bucket, path)] = b
	return nil
}

func (s *MemoryStorage) Download(_ context.Context, bucket, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key(bucket, path))
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStorage) Delete(_ context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key(bucket, path))
	return nil
}
