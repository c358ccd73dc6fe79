package store

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// ShapeValidator lets a stored type reject structurally invalid payloads
// that still parse as JSON. A failing check is treated exactly like an
// unparseable payload: cache miss plus deletion of the offending key.
type ShapeValidator interface {
	ValidShape() bool
}

// Store is the durable key/value layer shared by all cache families. Reads
// treat corrupt payloads as absent and delete them; writes never surface an
// error to the caller. Quota-exhausted writes run a single-pass recovery
// ladder: evict across registered cache families, drop auxiliary caches,
// retry, retry a reduced payload, then give up with a log line.
type Store struct {
	backend Backend

	mu          sync.Mutex
	evictors    []func() int
	auxiliaries []string
}

// New creates a Store on top of a Backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// RegisterEvictor registers a cache-family eviction hook for the quota
// ladder. The hook returns the number of entries it freed.
func (s *Store) RegisterEvictor(fn func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictors = append(s.evictors, fn)
}

// RegisterAuxiliary marks a key as a secondary cache that may be removed
// entirely under quota pressure.
func (s *Store) RegisterAuxiliary(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auxiliaries = append(s.auxiliaries, key)
}

// Load reads a key into the given pointer. It returns false on absence,
// on an unparseable payload, or when the target's shape check fails; in the
// latter two cases the key is deleted so the failure does not repeat.
func (s *Store) Load(key string, into any) bool {
	data, err := s.backend.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false
	}
	if err != nil {
		log.Warn("store: read failed", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal(data, into); err != nil {
		log.Warn("store: dropping corrupt entry", "key", key, "error", errors.Join(ErrCorruptPayload, err))
		_ = s.backend.Remove(key)
		return false
	}

	if v, ok := into.(ShapeValidator); ok && !v.ValidShape() {
		log.Warn("store: dropping malformed entry", "key", key, "error", ErrCorruptShape)
		_ = s.backend.Remove(key)
		return false
	}

	return true
}

// Save persists a value with best-effort semantics.
func (s *Store) Save(key string, v any) {
	s.save(key, v, nil)
}

// SaveWithFallback persists a value; if the write still exceeds the quota
// after eviction, the minimal reduced form is written instead.
func (s *Store) SaveWithFallback(key string, v, minimal any) {
	s.save(key, v, minimal)
}

// Remove deletes a key. Failures are logged, not surfaced.
func (s *Store) Remove(key string) {
	if err := s.backend.Remove(key); err != nil {
		log.Warn("store: delete failed", "key", key, "error", err)
	}
}

// Keys returns all stored keys with the given prefix, oldest first.
func (s *Store) Keys(prefix string) []string {
	all, err := s.backend.Keys()
	if err != nil {
		log.Warn("store: key enumeration failed", "prefix", prefix, "error", err)
		return nil
	}
	if prefix == "" {
		return all
	}
	keys := all[:0:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *Store) save(key string, v, minimal any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("store: marshal failed", "key", key, "error", err)
		return
	}

	err = s.backend.Set(key, payload)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		log.Warn("store: write failed", "key", key, "error", err)
		return
	}

	// Quota recovery ladder. Exactly one pass: evict, drop auxiliaries,
	// retry, then fall back to the reduced payload.
	freed := s.runRecovery(key)
	if err := s.backend.Set(key, payload); err == nil {
		log.Info("store: write recovered after eviction",
			"key", key, "freed", freed, "size", humanize.Bytes(uint64(len(payload))))
		return
	}

	if minimal != nil {
		reduced, err := json.Marshal(minimal)
		if err == nil {
			if err := s.backend.Set(key, reduced); err == nil {
				log.Warn("store: persisted reduced payload",
					"key", key, "size", humanize.Bytes(uint64(len(reduced))))
				return
			}
		}
	}

	log.Warn("store: giving up on write",
		"key", key, "size", humanize.Bytes(uint64(len(payload))))
}

// runRecovery frees space for a quota-exhausted write: cache families evict
// their least-recently-kept entries, then auxiliary caches are removed
// entirely. The failing key itself is never evicted here.
func (s *Store) runRecovery(key string) int {
	s.mu.Lock()
	evictors := make([]func() int, len(s.evictors))
	copy(evictors, s.evictors)
	auxiliaries := make([]string, len(s.auxiliaries))
	copy(auxiliaries, s.auxiliaries)
	s.mu.Unlock()

	freed := 0
	for _, evict := range evictors {
		freed += evict()
	}
	for _, aux := range auxiliaries {
		if aux == key {
			continue
		}
		if err := s.backend.Remove(aux); err == nil {
			freed++
		}
	}
	log.Debug("store: quota recovery pass", "key", key, "freed", freed)
	return freed
}
