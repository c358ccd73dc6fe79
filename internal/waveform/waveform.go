// Package waveform caches rendered waveform peak data keyed by a canonical
// audio locator, mirroring one persisted blob with a debounced flush.
package waveform

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lukaswana/voicelab/internal/store"
)

// StoreKey is the single blob this cache owns. The version tag orphans
// old-format entries when the entry layout changes; no migration step.
const StoreKey = "waveform-cache-v2"

const (
	// DefaultCapacity is the maximum number of retained entries.
	DefaultCapacity = 500
	// DefaultFlushDelay is the debounce window for persisting the map.
	DefaultFlushDelay = 500 * time.Millisecond
)

// Entry holds the amplitude samples for one audio resource.
type Entry struct {
	Peaks     []float64 `json:"peaks"`
	Timestamp int64     `json:"timestamp"` // unix milliseconds
}

// Cache is an in-memory mirror of the persisted waveform map. All writes
// go through the canonical key and arm a single debounce flush that
// serializes the whole map to the store.
type Cache struct {
	store    *store.Store
	capacity int
	flusher  *store.Flusher

	mu      sync.Mutex
	entries map[string]Entry

	now func() time.Time
}

// New creates the cache, loading any previously persisted map. The store
// key is registered as an auxiliary cache so the quota ladder may drop it
// entirely.
func New(st *store.Store, capacity int, flushDelay time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}

	c := &Cache{
		store:    st,
		capacity: capacity,
		entries:  make(map[string]Entry),
		now:      time.Now,
	}
	if st.Load(StoreKey, &c.entries) {
		log.Debug("waveform: loaded persisted cache", "entries", len(c.entries))
		// A capacity reduction since the last session must apply now, not
		// on the next write.
		if len(c.entries) > c.capacity {
			c.trimLocked()
		}
	}
	c.flusher = store.NewFlusher(flushDelay, c.persist)
	st.RegisterAuxiliary(StoreKey)
	return c
}

// CanonicalKey normalizes heterogeneous resource locators into one cache
// key: absolute URLs reduce to their path component, everything else gains
// a single leading slash. "http://host/api/audio/x", "/api/audio/x", and
// "api/audio/x" all collapse to "/api/audio/x".
func CanonicalKey(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.IsAbs() && u.Host != "" {
		if u.Path == "" {
			return "/"
		}
		if !strings.HasPrefix(u.Path, "/") {
			return "/" + u.Path
		}
		return u.Path
	}
	if strings.HasPrefix(locator, "/") {
		return locator
	}
	return "/" + locator
}

// Get returns the cached peaks for a locator.
func (c *Cache) Get(locator string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[CanonicalKey(locator)]
	if !ok {
		return nil, false
	}
	return entry.Peaks, true
}

// Set stores peaks for a locator, trims past the capacity, and arms the
// debounce flush. A burst of writes within the window persists once.
func (c *Cache) Set(locator string, peaks []float64) {
	c.mu.Lock()
	c.entries[CanonicalKey(locator)] = Entry{
		Peaks:     peaks,
		Timestamp: c.now().UnixMilli(),
	}
	if len(c.entries) > c.capacity {
		c.trimLocked()
	}
	c.mu.Unlock()

	c.flusher.Touch()
}

// Delete removes a locator's entry.
func (c *Cache) Delete(locator string) {
	c.mu.Lock()
	_, ok := c.entries[CanonicalKey(locator)]
	if ok {
		delete(c.entries, CanonicalKey(locator))
	}
	c.mu.Unlock()

	if ok {
		c.flusher.Touch()
	}
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush forces a pending persist through immediately.
func (c *Cache) Flush() {
	c.flusher.Flush()
}

// trimLocked drops everything but the newest entries by timestamp. Caller
// holds mu.
func (c *Cache) trimLocked() {
	type keyed struct {
		key string
		ts  int64
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{k, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts > all[j].ts })

	for _, victim := range all[c.capacity:] {
		delete(c.entries, victim.key)
	}
	log.Debug("waveform: trimmed cache", "dropped", len(all)-c.capacity, "capacity", c.capacity)
}

// persist serializes the whole in-memory map to the store as one blob.
func (c *Cache) persist() {
	c.mu.Lock()
	snapshot := make(map[string]Entry, len(c.entries))
	for k, e := range c.entries {
		snapshot[k] = e
	}
	c.mu.Unlock()

	c.store.Save(StoreKey, snapshot)
}
