package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is the durable-storage contract. The workspace hands it opaque
// byte blobs under stable keys; writing them to disk, browser storage, or
// a remote bucket is the sink's business. Implementations must make Put
// atomic per key.
type Sink interface {
	// Put stores data under key, replacing any previous blob.
	Put(key string, data []byte) error

	// Get returns the blob under key, or ok=false when absent.
	Get(key string) (data []byte, ok bool, err error)
}

// MemorySink is an in-memory Sink for tests and ephemeral workspaces.
type MemorySink struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{blobs: make(map[string][]byte)}
}

// Put implements Sink.
func (s *MemorySink) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := make([]byte, len(data))
	copy(blob, data)
	s.blobs[key] = blob
	return nil
}

// Get implements Sink.
func (s *MemorySink) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

// Keys returns the number of stored blobs. Test helper.
func (s *MemorySink) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// FileSink stores blobs as files in one directory, one file per key.
// Writes go through a temp file and rename so a crash never leaves a
// half-written blob under the final name.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed and returns a sink over it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Put implements Sink.
func (s *FileSink) Put(key string, data []byte) error {
	final := filepath.Join(s.dir, key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file sink put %q: %w", key, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("file sink put %q: %w", key, err)
	}
	return nil
}

// Get implements Sink.
func (s *FileSink) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file sink get %q: %w", key, err)
	}
	return data, true, nil
}
