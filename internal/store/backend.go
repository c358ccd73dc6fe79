// Package store implements the durable key/value layer shared by all
// cache families: a pluggable backend, a JSON store with corruption
// recovery and a quota eviction ladder, and a debounce flusher.
package store

import "sync"

// Backend is the raw durable storage capability. Implementations must be
// safe for concurrent use. Keys returns keys in insertion order, which the
// settings cache relies on for its FIFO-like eviction.
type Backend interface {
	// Get returns the stored payload or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set persists a payload. It returns ErrQuotaExceeded when the write
	// would push the backend past its byte ceiling.
	Set(key string, value []byte) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(key string) error

	// Keys enumerates all stored keys in insertion order.
	Keys() ([]string, error)
}

// MemoryBackend is an in-memory Backend used in tests and for ephemeral
// sessions that should not touch the disk.
type MemoryBackend struct {
	mu      sync.Mutex
	quota   int64 // 0 means unlimited
	size    int64
	entries map[string][]byte
	order   []string
}

// NewMemoryBackend creates an empty in-memory backend without a quota.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

// SetQuota sets a byte ceiling. Writes that would exceed it fail with
// ErrQuotaExceeded, mirroring the file backend.
func (b *MemoryBackend) SetQuota(quota int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quota = quota
}

// Get returns the stored payload or ErrKeyNotFound.
func (b *MemoryBackend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	value, ok := b.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Set persists a payload, enforcing the quota if one is configured.
func (b *MemoryBackend) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := int64(len(b.entries[key]))
	if b.quota > 0 && b.size-old+int64(len(value)) > b.quota {
		return ErrQuotaExceeded
	}

	if _, ok := b.entries[key]; !ok {
		b.order = append(b.order, key)
	}
	b.entries[key] = value
	b.size += int64(len(value)) - old
	return nil
}

// Remove deletes a key.
func (b *MemoryBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	value, ok := b.entries[key]
	if !ok {
		return nil
	}
	delete(b.entries, key)
	b.size -= int64(len(value))
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Keys returns all keys in insertion order.
func (b *MemoryBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, len(b.order))
	copy(keys, b.order)
	return keys, nil
}

// Size returns the total payload bytes currently stored.
func (b *MemoryBackend) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
