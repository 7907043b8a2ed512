// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache provides result caching for tool executions.
//
// Caching is best-effort and advisory: a cache failure never fails a tool
// call, and nothing gates behavior on cache statistics. The package provides
// pluggable backends (memory, Redis) behind the Store interface, plus the
// CachedExecutor decorator that memoizes API tool executions.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL key-value store for tool results.
// Implementations must be safe for concurrent use. Expired entries are
// treated as absent on read; Cleanup purges them eagerly.
type Store interface {
	// Get retrieves a value. The second return is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores a value with the given TTL, replacing any existing entry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a single entry.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Cleanup eagerly purges expired entries.
	Cleanup(ctx context.Context) error

	// Len reports the current entry count, including not-yet-purged
	// expired entries for the in-memory implementation.
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// entry is one cached value in the in-memory store.
type entry struct {
	value      any
	expiresAt  time.Time
	insertedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore is the in-process Store implementation.
// It is size-bounded: when full, the oldest entry (by insertion time) is
// evicted to make room.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int

	cleanupStop chan struct{}
	cleanupOnce sync.Once
}

// NewMemoryStore creates an in-memory store bounded to maxEntries.
// maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]*entry),
		maxEntries:  maxEntries,
		cleanupStop: make(chan struct{}),
	}
}

// StartCleanup launches a background loop that purges expired entries every
// interval. The loop stops when the store is closed.
func (s *MemoryStore) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Cleanup(context.Background())
			case <-s.cleanupStop:
				return
			}
		}
	}()
}

// Get retrieves a value, treating expired entries as absent (lazy eviction).
func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry.
		if cur, ok := s.entries[key]; ok && cur.expired(time.Now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value, evicting the oldest entry when the store is full.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[key] = &entry{
		value:      value,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
	}
	return nil
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Caller must hold the write lock.
func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range s.entries {
		if oldestKey == "" || e.insertedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.insertedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

// Delete removes a single entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// Cleanup eagerly purges expired entries.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len reports the current entry count.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close stops the cleanup loop, if running.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() { close(s.cleanupStop) })
	return nil
}
