package kv

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	json "github.com/goccy/go-json"

	"deskfs/internal/logging"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("kv-file")
)

// FileStore keeps the whole key space in one JSON document on disk, the
// same shape browser local storage has: a single origin-scoped map. Every
// Set or Remove rewrites the document.
type FileStore struct {
	path   string
	values map[string]string
	mu     sync.RWMutex
}

var (
	_ Store  = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)

// NewFileStore opens the document at path, creating it and its directory
// if necessary. It fails when the location is not writable.
func NewFileStore(path string) (*FileStore, error) {
	fileLogger.Debug("Opening file store: %s", path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	if mkdirErr := os.MkdirAll(dir, 0755); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, mkdirErr)
	}

	// Verify we can write next to the document before accepting it.
	f, writeErr := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE, 0600)
	if writeErr != nil {
		return nil, fmt.Errorf("%w: failed to open store file %s: %v", ErrUnavailable, absPath, writeErr)
	}
	f.Close()

	s := &FileStore{
		path:   absPath,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("failed to parse store file %s: %w", absPath, err)
		}
	}

	fileLogger.Info("File store opened with %d keys", len(s.values))
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.values[key]
	s.values[key] = value
	if err := s.flush(); err != nil {
		if existed {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.values[key]
	if !existed {
		return nil
	}
	delete(s.values, key)
	if err := s.flush(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(slices.Collect(maps.Keys(s.values)), prefix), nil
}

func (s *FileStore) Close() error { return nil }

// flush writes the document to a temporary file, renames it over the
// previous one and verifies the result. Must be called with mu held.
func (s *FileStore) flush() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	fileLogger.Trace("Writing %d bytes of store data", len(data))
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to verify written store: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return fmt.Errorf("store file size mismatch after write: %d != %d", info.Size(), len(data))
	}
	return nil
}
