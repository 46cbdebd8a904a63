package webhooks

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueLifecycle(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Entry{
		URL:         "https://example.com/hook",
		Payload:     []byte(`{}`),
		EventType:   EventPaymentVerified,
		MaxAttempts: 3,
		NextAttempt: time.Now().Add(-time.Second),
	})
	if err != nil || id == "" {
		t.Fatalf("Enqueue = %q, %v", id, err)
	}

	entry, err := q.Dequeue(ctx)
	if err != nil || entry == nil {
		t.Fatalf("Dequeue = %v, %v", entry, err)
	}
	if entry.ID != id {
		t.Errorf("dequeued %q, want %q", entry.ID, id)
	}

	// Leased: not handed out again.
	if again, _ := q.Dequeue(ctx); again != nil {
		t.Error("leased entry dequeued twice")
	}

	if err := q.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Errorf("Size = %d after remove, want 0", n)
	}
}

func TestMemoryQueueNotReadyUntilNextAttempt(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Entry{
		URL:         "https://example.com/hook",
		Payload:     []byte(`{}`),
		NextAttempt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if entry, _ := q.Dequeue(ctx); entry != nil {
		t.Error("future entry dequeued early")
	}
	if n, _ := q.Size(ctx); n != 1 {
		t.Errorf("Size = %d, want 1", n)
	}
}

func TestMemoryQueueRetryReschedules(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, Entry{
		URL:         "https://example.com/hook",
		Payload:     []byte(`{}`),
		MaxAttempts: 3,
		NextAttempt: time.Now().Add(-time.Second),
	})

	entry, _ := q.Dequeue(ctx)
	if entry == nil {
		t.Fatal("expected entry")
	}

	entry.Attempts = 1
	entry.LastError = "status 503"
	entry.NextAttempt = time.Now().Add(-time.Millisecond)
	if err := q.Retry(ctx, *entry); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	again, _ := q.Dequeue(ctx)
	if again == nil || again.ID != id {
		t.Fatalf("rescheduled entry not dequeued: %v", again)
	}
	if again.Attempts != 1 || again.LastError != "status 503" {
		t.Errorf("retry state lost: %+v", again)
	}
}

func TestMemoryQueueLeaseExpires(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	q.leaseTimeout = 10 * time.Millisecond
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, Entry{
		URL:         "https://example.com/hook",
		Payload:     []byte(`{}`),
		MaxAttempts: 3,
		NextAttempt: time.Now().Add(-time.Second),
	})

	if entry, _ := q.Dequeue(ctx); entry == nil {
		t.Fatal("expected entry")
	}
	if again, _ := q.Dequeue(ctx); again != nil {
		t.Fatal("leased entry dequeued before lease expiry")
	}

	// A lease never released (worker died, Retry failed) must not strand the
	// entry forever.
	time.Sleep(20 * time.Millisecond)
	reclaimed, _ := q.Dequeue(ctx)
	if reclaimed == nil || reclaimed.ID != id {
		t.Fatalf("expired lease not reclaimed: %v", reclaimed)
	}
}

func TestMemoryQueueDequeueOrder(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	later, _ := q.Enqueue(ctx, Entry{
		URL: "https://example.com/hook", Payload: []byte(`{}`),
		NextAttempt: time.Now().Add(-time.Second),
	})
	earlier, _ := q.Enqueue(ctx, Entry{
		URL: "https://example.com/hook", Payload: []byte(`{}`),
		NextAttempt: time.Now().Add(-time.Minute),
	})

	first, _ := q.Dequeue(ctx)
	if first == nil || first.ID != earlier {
		t.Errorf("first dequeue = %v, want earliest entry %q", first, earlier)
	}
	second, _ := q.Dequeue(ctx)
	if second == nil || second.ID != later {
		t.Errorf("second dequeue = %v, want %q", second, later)
	}
}

func TestMemoryQueueList(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = q.Enqueue(ctx, Entry{
			URL: "https://example.com/hook", Payload: []byte(`{}`),
			NextAttempt: time.Now().Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := q.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].NextAttempt.Before(entries[i-1].NextAttempt) {
			t.Error("List not ordered by next attempt")
		}
	}
}
