package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage is a flat key→string mapping persisted across process restarts.
// Implementations must make each mutation durable before returning.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// MemoryStorage is a non-durable Storage for tests and for callers that opt
// out of persistence.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = map[string]string{}
	return nil
}

// FileStorage persists the mapping as a single JSON document. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash mid-write leaves the previous state intact.
type FileStorage struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenFileStorage opens (or creates) file-backed storage at path.
func OpenFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path:   path,
		values: map[string]string{},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential storage: %w", err)
	}

	if err := json.Unmarshal(raw, &s.values); err != nil {
		return nil, fmt.Errorf("decoding credential storage %s: %w", path, err)
	}

	return s, nil
}

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.values[key]
	return v, ok
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[key] = value
	return f.write()
}

func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, key)
	return f.write()
}

func (f *FileStorage) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values = map[string]string{}
	return f.write()
}

// write must be called with the mutex held.
func (f *FileStorage) write() error {
	raw, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("encoding credential storage: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing credential storage: %w", err)
	}
	if err := os.Rename(tmp, filepath.Clean(f.path)); err != nil {
		return fmt.Errorf("replacing credential storage: %w", err)
	}

	return nil
}
