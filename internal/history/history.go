// Package history keeps a bounded, de-duplicated list of saved text
// snapshots per tab, plus an independent current-draft buffer, both backed
// by the durable store.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lukaswana/voicelab/internal/store"
)

// Store key namespaces owned by this cache family.
const (
	VersionsPrefix = "text-versions:"
	DraftPrefix    = "text-draft:"
)

// MaxVersions bounds each tab's version list; the oldest entry is dropped
// first.
const MaxVersions = 20

// Version is one saved text snapshot.
type Version struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// History manages text snapshots and the per-tab draft buffer. One tab is
// active at a time; its draft and version list live in memory and are
// flushed to the store on tab switch.
type History struct {
	store *store.Store

	mu       sync.Mutex
	tab      string
	draft    string
	versions []Version
}

// New creates a History with the given tab active, loading its persisted
// state.
func New(st *store.Store, tab string) *History {
	h := &History{store: st}
	h.loadTabLocked(tab)
	return h
}

// ActiveTab returns the currently active tab id.
func (h *History) ActiveTab() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tab
}

// Draft returns the active tab's current text buffer.
func (h *History) Draft() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draft
}

// SetDraft updates the active tab's current text buffer. The draft is
// independent of the saved-versions list and is persisted on tab switch or
// Flush.
func (h *History) SetDraft(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draft = text
}

// SwitchTab flushes the outgoing tab's draft and version list to the
// store, then loads the incoming tab. The two steps are strictly ordered
// so a torn read cannot observe the new tab with the old tab's data.
func (h *History) SwitchTab(tab string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tab == h.tab {
		return
	}
	h.flushTabLocked()
	h.loadTabLocked(tab)
}

// SaveVersion records a text snapshot for a tab. Blank text and text whose
// trimmed form already exists in the tab's list are no-ops. New versions
// are prepended; the list is trimmed to MaxVersions. It reports whether a
// version was added.
func (h *History) SaveVersion(tab, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	versions := h.versionsForLocked(tab)
	for _, v := range versions {
		if strings.TrimSpace(v.Text) == trimmed {
			return false
		}
	}

	versions = append([]Version{{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now(),
	}}, versions...)
	if len(versions) > MaxVersions {
		versions = versions[:MaxVersions]
	}

	h.storeVersionsLocked(tab, versions)
	log.Debug("history: saved version", "tab", tab, "versions", len(versions))
	return true
}

// DeleteVersion removes a version by id. It reports whether anything was
// removed.
func (h *History) DeleteVersion(tab, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	versions := h.versionsForLocked(tab)
	for i, v := range versions {
		if v.ID == id {
			versions = append(versions[:i], versions[i+1:]...)
			h.storeVersionsLocked(tab, versions)
			return true
		}
	}
	return false
}

// Versions returns a copy of a tab's saved versions, newest first.
func (h *History) Versions(tab string) []Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	versions := h.versionsForLocked(tab)
	out := make([]Version, len(versions))
	copy(out, versions)
	return out
}

// Flush persists the active tab's draft and version list without switching
// tabs.
func (h *History) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushTabLocked()
}

// versionsForLocked returns the version list for a tab: the in-memory list
// for the active tab, a store read otherwise. Caller holds mu.
func (h *History) versionsForLocked(tab string) []Version {
	if tab == h.tab {
		return h.versions
	}
	return h.loadVersions(tab)
}

// storeVersionsLocked writes a tab's version list back, updating the
// in-memory copy when the tab is active. Caller holds mu.
func (h *History) storeVersionsLocked(tab string, versions []Version) {
	if tab == h.tab {
		h.versions = versions
	}
	h.store.Save(VersionsPrefix+tab, versions)
}

func (h *History) flushTabLocked() {
	h.store.Save(DraftPrefix+h.tab, h.draft)
	h.store.Save(VersionsPrefix+h.tab, h.versions)
}

func (h *History) loadTabLocked(tab string) {
	h.tab = tab
	h.draft = ""
	h.versions = nil

	// A corrupted (non-array-shaped) stored list fails to unmarshal; the
	// store clears the key and this starts empty.
	var versions []Version
	if h.store.Load(VersionsPrefix+tab, &versions) {
		h.versions = versions
	}
	var draft string
	if h.store.Load(DraftPrefix+tab, &draft) {
		h.draft = draft
	}
}

func (h *History) loadVersions(tab string) []Version {
	var versions []Version
	h.store.Load(VersionsPrefix+tab, &versions)
	return versions
}
