package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) isExpired() bool {
	return e.hasTTL && time.Now().After(e.expiresAt)
}

func (e memEntry) size(key string) int {
	return len(key) + len(e.value)
}

type memoryStateStore struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	used       int
	quotaBytes int
	snapshot   string
}

// NewMemoryStateStore returns an in-process fast tier. quotaBytes bounds the
// sum of key and value sizes; zero or negative means unbounded.
func NewMemoryStateStore(quotaBytes int) StateStore {
	return &memoryStateStore{
		entries:    make(map[string]memEntry),
		quotaBytes: quotaBytes,
	}
}

// snapshotEntry is the on-disk form of one memEntry.
type snapshotEntry struct {
	Value     []byte    `json:"v"`
	ExpiresAt time.Time `json:"e,omitempty"`
}

// NewSnapshotStateStore is the memory tier persisted to a JSON file after
// every write, so credentials and flags survive a restart of a standalone
// till. A missing file starts empty.
func NewSnapshotStateStore(quotaBytes int, path string) (StateStore, error) {
	s := &memoryStateStore{
		entries:    make(map[string]memEntry),
		quotaBytes: quotaBytes,
		snapshot:   path,
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fast tier snapshot: %w", err)
	}
	var saved map[string]snapshotEntry
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("decode fast tier snapshot %s: %w", path, err)
	}
	for key, e := range saved {
		entry := memEntry{value: e.Value, expiresAt: e.ExpiresAt, hasTTL: !e.ExpiresAt.IsZero()}
		if entry.isExpired() {
			continue
		}
		s.entries[key] = entry
		s.used += entry.size(key)
	}
	return s, nil
}

// persistLocked rewrites the snapshot file. Caller holds s.mu.
func (s *memoryStateStore) persistLocked() error {
	if s.snapshot == "" {
		return nil
	}
	saved := make(map[string]snapshotEntry, len(s.entries))
	for key, e := range s.entries {
		se := snapshotEntry{Value: e.value}
		if e.hasTTL {
			se.ExpiresAt = e.expiresAt
		}
		saved[key] = se
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.snapshot), ".fast-tier-*")
	if err != nil {
		return fmt.Errorf("write fast tier snapshot: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write fast tier snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write fast tier snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), s.snapshot)
}

func (s *memoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = time.Now().Add(ttl)
	}

	used := s.used
	if old, ok := s.entries[key]; ok {
		used -= old.size(key)
	}
	if s.quotaBytes > 0 && used+entry.size(key) > s.quotaBytes {
		return ErrQuotaExceeded
	}
	s.entries[key] = entry
	s.used = used + entry.size(key)
	return s.persistLocked()
}

func (s *memoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.isExpired() {
		if ok && entry.isExpired() {
			s.mu.Lock()
			s.deleteLocked(key)
			s.mu.Unlock()
		}
		return nil, nil
	}
	return entry.value, nil
}

func (s *memoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	s.deleteLocked(key)
	return s.persistLocked()
}

func (s *memoryStateStore) Exists(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	return v != nil, err
}

func (s *memoryStateStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memEntry)
	s.used = 0
	return s.persistLocked()
}

func (s *memoryStateStore) deleteLocked(key string) {
	if entry, ok := s.entries[key]; ok {
		s.used -= entry.size(key)
		delete(s.entries, key)
	}
}
