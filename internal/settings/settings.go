// Package settings persists per-voice, per-slot generation parameter
// bundles with field-level sanitization, capped key count, and debounced
// writes.
package settings

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lukaswana/voicelab/internal/store"
)

// KeyPrefix is the store namespace owned by this cache family.
const KeyPrefix = "variant-settings:"

const (
	// DefaultCapacity is the maximum number of distinct (voice, slot) keys.
	DefaultCapacity = 50
	// DefaultDebounce is the write-coalescing delay.
	DefaultDebounce = 300 * time.Millisecond
)

// Preset slot names. Unknown slots fall back to SlotDefault.
const (
	SlotDefault    = "default"
	SlotExpressive = "expressive"
	SlotFast       = "fast"
	SlotPrecise    = "precise"
)

// Settings is a validated generation parameter bundle. Every field holds
// either a sanitized stored value or the slot default; never NaN.
type Settings struct {
	// Generation knobs. Speed, Temperature, and NoiseScale are strictly
	// positive; Pitch is in semitones and may be negative.
	Speed       float64 `json:"speed"`
	Pitch       float64 `json:"pitch"`
	Temperature float64 `json:"temperature"`
	NoiseScale  float64 `json:"noise_scale"`
	Seed        int     `json:"seed"`

	// Quality enhancement flags.
	EnhanceQuality  bool `json:"enhance_quality"`
	RemoveSilence   bool `json:"remove_silence"`
	NormalizeVolume bool `json:"normalize_volume"`
}

// storedSettings is the persisted form. Pointer fields distinguish
// explicitly-present values from absent ones so a partially corrupted or
// schema-drifted bundle degrades field by field instead of wholesale.
type storedSettings struct {
	Speed       *float64 `json:"speed,omitempty"`
	Pitch       *float64 `json:"pitch,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	NoiseScale  *float64 `json:"noise_scale,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	EnhanceQuality  *bool `json:"enhance_quality,omitempty"`
	RemoveSilence   *bool `json:"remove_silence,omitempty"`
	NormalizeVolume *bool `json:"normalize_volume,omitempty"`
}

// slotDefaults documents the built-in defaults for each preset slot.
var slotDefaults = map[string]Settings{
	SlotDefault: {
		Speed: 1.0, Pitch: 0, Temperature: 0.7, NoiseScale: 0.667,
	},
	SlotExpressive: {
		Speed: 0.95, Pitch: 0, Temperature: 0.9, NoiseScale: 0.8,
		EnhanceQuality: true,
	},
	SlotFast: {
		Speed: 1.25, Pitch: 0, Temperature: 0.55, NoiseScale: 0.5,
	},
	SlotPrecise: {
		Speed: 1.0, Pitch: 0, Temperature: 0.4, NoiseScale: 0.45,
		RemoveSilence: true, NormalizeVolume: true,
	},
}

// SlotDefaults returns the built-in defaults for a slot, falling back to
// the default slot for unknown names.
func SlotDefaults(slotID string) Settings {
	if def, ok := slotDefaults[slotID]; ok {
		return def
	}
	return slotDefaults[SlotDefault]
}

// Key returns the store key for a (voice, slot) pair.
func Key(voiceID, slotID string) string {
	return KeyPrefix + voiceID + "/" + slotID
}

// Cache is the variant-settings cache family.
type Cache struct {
	store    *store.Store
	capacity int
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSave

	// sweepRoll is swappable in tests; defaults to a 1-in-10 coin flip.
	sweepRoll func() bool
}

// pendingSave tracks the latest unsaved value for one debounce key.
type pendingSave struct {
	storeKey string
	value    Settings
	flusher  *store.Flusher
}

// New creates the cache and registers its eviction hook with the store.
func New(st *store.Store, capacity int, debounce time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	c := &Cache{
		store:     st,
		capacity:  capacity,
		debounce:  debounce,
		pending:   make(map[string]*pendingSave),
		sweepRoll: func() bool { return rand.Intn(10) == 0 },
	}
	st.RegisterEvictor(c.evictForQuota)
	return c
}

// Load returns the settings for a (voice, slot) pair, merging the stored
// bundle field by field against the slot defaults.
func (c *Cache) Load(voiceID, slotID string) Settings {
	def := SlotDefaults(slotID)

	var stored storedSettings
	if !c.store.Load(Key(voiceID, slotID), &stored) {
		return def
	}
	return merge(stored, def)
}

// Save schedules a debounced write for a (voice, slot) pair. The debounce
// key includes the tab context so edits in different tabs do not coalesce.
// Only the final state after a burst of edits is persisted.
func (c *Cache) Save(voiceID, slotID, tabCtx string, s Settings) {
	debounceKey := voiceID + "\x00" + slotID + "\x00" + tabCtx

	c.mu.Lock()
	p, ok := c.pending[debounceKey]
	if !ok {
		p = &pendingSave{storeKey: Key(voiceID, slotID)}
		p.flusher = store.NewFlusher(c.debounce, func() { c.persist(debounceKey) })
		c.pending[debounceKey] = p
	}
	p.value = s
	c.mu.Unlock()

	p.flusher.Touch()
}

// Flush forces all pending debounced writes through immediately.
func (c *Cache) Flush() {
	c.mu.Lock()
	flushers := make([]*store.Flusher, 0, len(c.pending))
	for _, p := range c.pending {
		flushers = append(flushers, p.flusher)
	}
	c.mu.Unlock()

	for _, f := range flushers {
		f.Flush()
	}
}

// Len returns the number of persisted (voice, slot) keys.
func (c *Cache) Len() int {
	return len(c.store.Keys(KeyPrefix))
}

func (c *Cache) persist(debounceKey string) {
	c.mu.Lock()
	p, ok := c.pending[debounceKey]
	if !ok {
		c.mu.Unlock()
		return
	}
	storeKey, value := p.storeKey, p.value
	c.mu.Unlock()

	c.store.SaveWithFallback(storeKey, toStored(value), minimalStored(value))

	// Amortized sweep, independent of the hard cap check below.
	if c.sweepRoll() {
		c.sweep()
	}
	c.enforceCap()
}

// enforceCap deletes the oldest keys (store enumeration order, not a true
// access-time LRU) until the key count is back under the cap.
func (c *Cache) enforceCap() {
	keys := c.store.Keys(KeyPrefix)
	if len(keys) <= c.capacity {
		return
	}
	for _, key := range keys[:len(keys)-c.capacity] {
		c.store.Remove(key)
	}
	log.Debug("settings: capacity eviction",
		"removed", len(keys)-c.capacity, "capacity", c.capacity)
}

// sweep is the probabilistic cleanup pass: it drops over-cap keys and any
// key that no longer parses as a settings bundle.
func (c *Cache) sweep() {
	for _, key := range c.store.Keys(KeyPrefix) {
		var stored storedSettings
		// Load deletes the key itself when the payload is corrupt.
		c.store.Load(key, &stored)
	}
	c.enforceCap()
}

// evictForQuota is the store's quota-ladder hook: it frees the oldest half
// of the persisted keys.
func (c *Cache) evictForQuota() int {
	keys := c.store.Keys(KeyPrefix)
	n := len(keys) / 2
	if n == 0 && len(keys) > 0 {
		n = len(keys)
	}
	for _, key := range keys[:n] {
		c.store.Remove(key)
	}
	if n > 0 {
		log.Debug("settings: quota eviction", "removed", n)
	}
	return n
}

// merge applies the field-level sanitization rules: numeric fields must be
// finite (and strictly positive where documented), booleans must be
// explicitly present; everything else reverts to the slot default.
func merge(stored storedSettings, def Settings) Settings {
	s := def

	keepFloat(&s.Speed, stored.Speed, true)
	keepFloat(&s.Pitch, stored.Pitch, false)
	keepFloat(&s.Temperature, stored.Temperature, true)
	keepFloat(&s.NoiseScale, stored.NoiseScale, true)
	if stored.Seed != nil {
		s.Seed = *stored.Seed
	}

	if stored.EnhanceQuality != nil {
		s.EnhanceQuality = *stored.EnhanceQuality
	}
	if stored.RemoveSilence != nil {
		s.RemoveSilence = *stored.RemoveSilence
	}
	if stored.NormalizeVolume != nil {
		s.NormalizeVolume = *stored.NormalizeVolume
	}

	return s
}

func keepFloat(dst *float64, src *float64, strictlyPositive bool) {
	if src == nil {
		return
	}
	v := *src
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if strictlyPositive && v <= 0 {
		return
	}
	*dst = v
}

func toStored(s Settings) storedSettings {
	return storedSettings{
		Speed:           &s.Speed,
		Pitch:           &s.Pitch,
		Temperature:     &s.Temperature,
		NoiseScale:      &s.NoiseScale,
		Seed:            &s.Seed,
		EnhanceQuality:  &s.EnhanceQuality,
		RemoveSilence:   &s.RemoveSilence,
		NormalizeVolume: &s.NormalizeVolume,
	}
}

// minimalStored is the reduced field subset used as the last rung of the
// quota ladder: generation knobs only, enhancement flags dropped.
func minimalStored(s Settings) storedSettings {
	return storedSettings{
		Speed:       &s.Speed,
		Pitch:       &s.Pitch,
		Temperature: &s.Temperature,
		NoiseScale:  &s.NoiseScale,
		Seed:        &s.Seed,
	}
}

// Slots returns the known preset slot names in a stable order.
func Slots() []string {
	return []string{SlotDefault, SlotExpressive, SlotFast, SlotPrecise}
}

// IsKnownSlot reports whether slotID names a built-in preset. Matching is
// case-sensitive, the same as SlotDefaults.
func IsKnownSlot(slotID string) bool {
	_, ok := slotDefaults[slotID]
	return ok
}
