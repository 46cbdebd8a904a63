package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxEntries      = 100_000
	defaultCleanupInterval = 5 * time.Minute
)

type memoryEntry struct {
	verdict   Verdict
	expiresAt time.Time
	storedAt  time.Time
}

// MemoryStore is an in-process verification cache with lazy expiry, a size
// cap, and periodic cleanup. Suitable for single-instance deployments; use
// RedisStore when multiple instances share replay state.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	max     int

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxEntries caps the number of cached signatures.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.max = n
		}
	}
}

// NewMemoryStore builds the store and starts its cleanup goroutine.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		max:     defaultMaxEntries,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) Get(_ context.Context, sig string) (Verdict, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[sig]
	s.mu.RUnlock()
	if !ok {
		return Verdict{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sig)
		s.mu.Unlock()
		return Verdict{}, false, nil
	}
	return entry.verdict, true, nil
}

func (s *MemoryStore) Put(_ context.Context, sig string, verdict Verdict, ttl time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.max {
		s.evictOldestLocked()
	}
	s.entries[sig] = memoryEntry{
		verdict:   verdict,
		expiresAt: now.Add(ttl),
		storedAt:  now,
	}
	return nil
}

func (s *MemoryStore) Has(ctx context.Context, sig string) (bool, error) {
	_, ok, err := s.Get(ctx, sig)
	return ok, err
}

func (s *MemoryStore) Delete(_ context.Context, sig string) error {
	s.mu.Lock()
	delete(s.entries, sig)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Len reports the current entry count, expired entries included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldestLocked drops the entry stored longest ago. Caller holds mu.
func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range s.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
