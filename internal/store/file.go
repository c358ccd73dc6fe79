package store

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFileName = "index.gob"

// FileBackend is a durable Backend that keeps one zstd-compressed file per
// key under a directory, with a gob index for key enumeration and a hard
// byte quota. It tolerates missing or unreadable files by treating the
// entry as absent.
type FileBackend struct {
	basePath string
	quota    int64 // compressed bytes, 0 means unlimited

	mu     sync.Mutex
	index  map[string]*fileEntry
	order  []string
	size   int64
	closed bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// fileEntry describes one stored key in the on-disk index.
type fileEntry struct {
	Name   string // file name relative to basePath
	Size   int64  // compressed size on disk
	Stored time.Time
}

// fileIndex is the gob-serialized index payload.
type fileIndex struct {
	Entries map[string]*fileEntry
	Order   []string
}

// NewFileBackend opens (or creates) a file-backed store rooted at basePath
// with the given byte quota.
func NewFileBackend(basePath string, quota int64) (*FileBackend, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	b := &FileBackend{
		basePath: basePath,
		quota:    quota,
		index:    make(map[string]*fileEntry),
		encoder:  encoder,
		decoder:  decoder,
	}

	if err := b.loadIndex(); err != nil {
		// Non-fatal: start with an empty index. Orphaned files are
		// overwritten as their keys are written again.
		log.Warn("store: resetting unreadable index", "path", basePath, "error", err)
		b.index = make(map[string]*fileEntry)
		b.order = nil
	}
	b.recalculateSize()

	return b, nil
}

// Get returns the stored payload or ErrKeyNotFound. A missing or
// undecodable file drops the entry from the index so the failure does not
// repeat.
func (b *FileBackend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBackendClosed
	}
	entry, ok := b.index[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	data, err := os.ReadFile(filepath.Join(b.basePath, entry.Name))
	if err != nil {
		b.dropLocked(key, entry)
		return nil, ErrKeyNotFound
	}

	decoded, err := b.decoder.DecodeAll(data, nil)
	if err != nil {
		b.dropLocked(key, entry)
		_ = os.Remove(filepath.Join(b.basePath, entry.Name))
		return nil, ErrKeyNotFound
	}

	return decoded, nil
}

// Set persists a payload, enforcing the quota against the compressed size.
func (b *FileBackend) Set(key string, value []byte) error {
	compressed := b.encoder.EncodeAll(value, nil)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	var old int64
	if entry, ok := b.index[key]; ok {
		old = entry.Size
	}
	if b.quota > 0 && b.size-old+int64(len(compressed)) > b.quota {
		return ErrQuotaExceeded
	}

	name := fileNameForKey(key)
	if err := os.WriteFile(filepath.Join(b.basePath, name), compressed, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	if _, ok := b.index[key]; !ok {
		b.order = append(b.order, key)
	}
	b.index[key] = &fileEntry{Name: name, Size: int64(len(compressed)), Stored: time.Now()}
	b.size += int64(len(compressed)) - old

	b.saveIndex()
	return nil
}

// Remove deletes a key and its file.
func (b *FileBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	entry, ok := b.index[key]
	if !ok {
		return nil
	}
	_ = os.Remove(filepath.Join(b.basePath, entry.Name))
	b.dropLocked(key, entry)
	b.saveIndex()
	return nil
}

// Keys returns all stored keys, oldest write first.
func (b *FileBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBackendClosed
	}
	keys := make([]string, len(b.order))
	copy(keys, b.order)
	return keys, nil
}

// Size returns the compressed bytes currently on disk, excluding the index.
func (b *FileBackend) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Close flushes the index to disk and marks the backend unusable. Any
// later use, including another Close, returns ErrBackendClosed.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	b.saveIndex()
	b.closed = true
	return nil
}

// dropLocked removes a key from the in-memory index. Caller holds mu.
func (b *FileBackend) dropLocked(key string, entry *fileEntry) {
	delete(b.index, key)
	b.size -= entry.Size
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *FileBackend) loadIndex() error {
	f, err := os.Open(filepath.Join(b.basePath, indexFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	var idx fileIndex
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return err
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*fileEntry)
	}
	b.index = idx.Entries
	b.order = idx.Order
	return nil
}

// saveIndex writes the index file. Failures are logged, not surfaced: a
// stale index only costs re-writes after the next restart. Caller holds mu.
func (b *FileBackend) saveIndex() {
	path := filepath.Join(b.basePath, indexFileName)
	f, err := os.Create(path)
	if err != nil {
		log.Warn("store: unable to write index", "path", path, "error", err)
		return
	}
	defer f.Close() //nolint:errcheck

	if err := gob.NewEncoder(f).Encode(fileIndex{Entries: b.index, Order: b.order}); err != nil {
		log.Warn("store: unable to encode index", "path", path, "error", err)
	}
}

func (b *FileBackend) recalculateSize() {
	b.size = 0
	for _, entry := range b.index {
		b.size += entry.Size
	}
}

func fileNameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".bin"
}
