package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lukaswana/voicelab/internal/store"
)

func newTestHistory(t *testing.T) (*History, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	return New(store.New(backend), "main"), backend
}

func TestSaveVersionSkipsBlankText(t *testing.T) {
	h, _ := newTestHistory(t)

	for _, text := range []string{"", "   ", "\n\t "} {
		if h.SaveVersion("main", text) {
			t.Errorf("SaveVersion(%q) saved a blank snapshot", text)
		}
	}
	if got := len(h.Versions("main")); got != 0 {
		t.Errorf("versions = %d, want 0", got)
	}
}

// TestSaveVersionDeduplicatesTrimmedText verifies that "Hello " followed
// by "Hello" yields exactly one stored version.
func TestSaveVersionDeduplicatesTrimmedText(t *testing.T) {
	h, _ := newTestHistory(t)

	if !h.SaveVersion("main", "Hello ") {
		t.Fatal("first snapshot should save")
	}
	if h.SaveVersion("main", "Hello") {
		t.Error("duplicate trimmed text should not save")
	}

	if got := len(h.Versions("main")); got != 1 {
		t.Errorf("versions = %d, want 1", got)
	}
}

func TestSaveVersionPrependsAndCaps(t *testing.T) {
	h, _ := newTestHistory(t)

	for i := 0; i < MaxVersions+5; i++ {
		h.SaveVersion("main", fmt.Sprintf("draft %d", i))
	}

	versions := h.Versions("main")
	if len(versions) != MaxVersions {
		t.Fatalf("versions = %d, want %d", len(versions), MaxVersions)
	}
	if versions[0].Text != fmt.Sprintf("draft %d", MaxVersions+4) {
		t.Errorf("newest version = %q, want the latest draft", versions[0].Text)
	}
	// The oldest snapshots fell off the end.
	if versions[len(versions)-1].Text != "draft 5" {
		t.Errorf("oldest retained = %q, want %q", versions[len(versions)-1].Text, "draft 5")
	}
}

func TestDeleteVersion(t *testing.T) {
	h, _ := newTestHistory(t)

	h.SaveVersion("main", "keep me")
	h.SaveVersion("main", "delete me")

	versions := h.Versions("main")
	var victim string
	for _, v := range versions {
		if v.Text == "delete me" {
			victim = v.ID
		}
	}

	if !h.DeleteVersion("main", victim) {
		t.Fatal("DeleteVersion should report removal")
	}
	if h.DeleteVersion("main", victim) {
		t.Error("second delete should be a no-op")
	}

	versions = h.Versions("main")
	if len(versions) != 1 || versions[0].Text != "keep me" {
		t.Errorf("versions after delete = %+v", versions)
	}
}

// TestSwitchTabFlushesThenLoads verifies the strict flush-then-load order:
// the outgoing tab's draft and versions are durable before the incoming
// tab's state replaces them.
func TestSwitchTabFlushesThenLoads(t *testing.T) {
	h, _ := newTestHistory(t)

	h.SetDraft("work in progress")
	h.SaveVersion("main", "saved text")

	h.SwitchTab("other")
	if h.Draft() != "" {
		t.Errorf("incoming tab draft = %q, want empty", h.Draft())
	}
	h.SetDraft("other draft")

	h.SwitchTab("main")
	if h.Draft() != "work in progress" {
		t.Errorf("restored draft = %q, want %q", h.Draft(), "work in progress")
	}
	versions := h.Versions("main")
	if len(versions) != 1 || versions[0].Text != "saved text" {
		t.Errorf("restored versions = %+v", versions)
	}

	h.SwitchTab("other")
	if h.Draft() != "other draft" {
		t.Errorf("other tab draft = %q, want %q", h.Draft(), "other draft")
	}
}

// TestCorruptedVersionListIsDiscarded verifies that a non-array-shaped
// stored list is treated as empty and the key is cleared.
func TestCorruptedVersionListIsDiscarded(t *testing.T) {
	backend := store.NewMemoryBackend()
	if err := backend.Set(VersionsPrefix+"main", []byte(`{"not":"an array"}`)); err != nil {
		t.Fatal(err)
	}

	h := New(store.New(backend), "main")

	if got := len(h.Versions("main")); got != 0 {
		t.Errorf("versions from corrupt list = %d, want 0", got)
	}
	if _, err := backend.Get(VersionsPrefix + "main"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("corrupt key should be cleared, err = %v", err)
	}
}

func TestVersionsForInactiveTab(t *testing.T) {
	h, _ := newTestHistory(t)

	h.SaveVersion("background", "from another tab")

	versions := h.Versions("background")
	if len(versions) != 1 || versions[0].Text != "from another tab" {
		t.Errorf("inactive tab versions = %+v", versions)
	}
	if got := len(h.Versions("main")); got != 0 {
		t.Errorf("active tab versions = %d, want 0", got)
	}
}
