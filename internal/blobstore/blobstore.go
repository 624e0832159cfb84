// Package blobstore stores item photos.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"
)

// Store holds photo bytes addressed by key.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys []string) error
	// URL returns a time-limited download URL for key.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// PhotoKey is the object key of a photo belonging to an item.
func PhotoKey(userID, itemID, photoID, filename string) string {
	return fmt.Sprintf("users/%s/items/%s/%s%s", userID, itemID, photoID, path.Ext(filename))
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func (m *MemoryStore) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "memory://" + key, nil
}

// Has reports whether key is stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}
