package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close() //nolint:errcheck

	if err := b.Set("key", []byte("value")); err != nil {
		t.Fatal(err)
	}

	got, err := b.Get("key")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}

	if err := b.Remove("key"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get("key"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after Remove err = %v, want ErrKeyNotFound", err)
	}
}

func TestFileBackendKeysInsertionOrder(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close() //nolint:errcheck

	for _, k := range []string{"c", "a", "b"} {
		if err := b.Set(k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := b.Keys()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestFileBackendQuota(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), 64)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close() //nolint:errcheck

	// Incompressible payload so the compressed size stays past the quota.
	big := make([]byte, 4096)
	seed := uint32(1)
	for i := range big {
		seed = seed*1664525 + 1013904223
		big[i] = byte(seed >> 24)
	}

	if err := b.Set("big", big); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set over quota err = %v, want ErrQuotaExceeded", err)
	}

	// A small write still fits after the failed one.
	if err := b.Set("small", []byte("x")); err != nil {
		t.Errorf("Set small err = %v", err)
	}
}

func TestFileBackendReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Set("persist", []byte("me")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileBackend(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close() //nolint:errcheck

	got, err := reopened.Get("persist")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "me" {
		t.Errorf("Get after reopen = %q, want %q", got, "me")
	}
}

// TestFileBackendClosed verifies that every operation after Close fails
// with ErrBackendClosed, including a second Close.
func TestFileBackendClosed(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Set("key", []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Get("key"); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Get after Close err = %v, want ErrBackendClosed", err)
	}
	if err := b.Set("key", []byte("x")); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Set after Close err = %v, want ErrBackendClosed", err)
	}
	if err := b.Remove("key"); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Remove after Close err = %v, want ErrBackendClosed", err)
	}
	if _, err := b.Keys(); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("Keys after Close err = %v, want ErrBackendClosed", err)
	}
	if err := b.Close(); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("second Close err = %v, want ErrBackendClosed", err)
	}
}

// TestFileBackendCorruptFile verifies that an undecodable file is treated
// as absent and dropped from the index.
func TestFileBackendCorruptFile(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close() //nolint:errcheck

	if err := b.Set("key", []byte("value")); err != nil {
		t.Fatal(err)
	}

	// Scribble over the stored file.
	if err := os.WriteFile(filepath.Join(dir, fileNameForKey("key")), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Get("key"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get corrupt err = %v, want ErrKeyNotFound", err)
	}

	keys, err := b.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys after corruption = %v, want empty", keys)
	}
}
