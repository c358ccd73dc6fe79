package store

import (
	"sync"
	"time"
)

// Flusher coalesces a burst of mutations into a single delayed write: a
// dirty flag plus one pending timer. Each cache family owns its own
// Flusher (or one per key for per-key debouncing).
type Flusher struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
	dirty bool
}

// NewFlusher creates a Flusher that runs fn once the delay elapses after
// the most recent Touch.
func NewFlusher(delay time.Duration, fn func()) *Flusher {
	return &Flusher{delay: delay, fn: fn}
}

// Touch marks the state dirty and arms (or re-arms) the timer. Multiple
// touches within the window produce exactly one flush.
func (f *Flusher) Touch() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dirty = true
	if f.timer == nil {
		f.timer = time.AfterFunc(f.delay, f.fire)
	} else {
		f.timer.Reset(f.delay)
	}
}

// Flush runs the pending write immediately if the state is dirty and
// disarms the timer.
func (f *Flusher) Flush() {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	dirty := f.dirty
	f.dirty = false
	f.mu.Unlock()

	if dirty {
		f.fn()
	}
}

// Stop disarms the timer and discards any pending write.
func (f *Flusher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.dirty = false
}

// Dirty reports whether a write is pending.
func (f *Flusher) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *Flusher) fire() {
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return
	}
	f.dirty = false
	f.timer = nil
	f.mu.Unlock()

	f.fn()
}
