package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// leaseTimeout caps how long a dequeued entry stays invisible. An entry whose
// lease was never released (the worker died, or Retry failed mid-flight)
// becomes available again once the lease expires.
const leaseTimeout = time.Minute

// MemoryQueue keeps deliveries in process memory. Entries do not survive a
// restart; use the Redis or Postgres queue when that matters.
type MemoryQueue struct {
	mu           sync.Mutex
	entries      map[string]*Entry
	leased       map[string]time.Time
	leaseTimeout time.Duration
}

// NewMemoryQueue builds an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries:      make(map[string]*Entry),
		leased:       make(map[string]time.Time),
		leaseTimeout: leaseTimeout,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	stored := entry
	q.entries[entry.ID] = &stored
	return entry.ID, nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Entry, error) {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *Entry
	for id, entry := range q.entries {
		if leasedAt, ok := q.leased[id]; ok {
			if now.Sub(leasedAt) < q.leaseTimeout {
				continue
			}
			delete(q.leased, id)
		}
		if entry.NextAttempt.After(now) {
			continue
		}
		if next == nil || entry.NextAttempt.Before(next.NextAttempt) {
			next = entry
		}
	}
	if next == nil {
		return nil, nil
	}

	q.leased[next.ID] = now
	out := *next
	return &out, nil
}

func (q *MemoryQueue) Retry(_ context.Context, entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := entry
	q.entries[entry.ID] = &stored
	delete(q.leased, entry.ID)
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	delete(q.leased, id)
	return nil
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

func (q *MemoryQueue) List(_ context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttempt.Before(out[j].NextAttempt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
