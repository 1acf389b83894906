// Package store holds the kernel's small persistence layers: the settings
// snapshot, usage counters, and the audit log.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// AppStatesKey is the reserved kernel-owned settings key holding the
// serialized {app_id: status} map.
const AppStatesKey = "kernel.app_states"

// Settings is a file-backed key/value store. Values are kept in memory and
// the whole map is rewritten atomically (temp file + rename) on every Set.
type Settings struct {
	mu     sync.RWMutex
	path   string
	values map[string]interface{}
}

// NewSettings opens or creates the settings store at path. A missing or
// unreadable file starts empty; corruption never aborts startup.
func NewSettings(path string) *Settings {
	s := &Settings{
		path:   path,
		values: make(map[string]interface{}),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		// Best effort: a corrupt snapshot is discarded, not fatal.
		_ = sonic.Unmarshal(data, &s.values)
		if s.values == nil {
			s.values = make(map[string]interface{})
		}
	}
	return s
}

// Get retrieves a value by key.
func (s *Settings) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and persists the snapshot.
func (s *Settings) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flush()
}

// Delete removes a key and persists the snapshot.
func (s *Settings) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.flush()
}

// Keys returns all stored keys.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// flush writes the snapshot atomically. Caller must hold the write lock.
func (s *Settings) flush() error {
	if s.path == "" {
		return nil
	}

	data, err := sonic.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close settings file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
