package webhooks

import "context"

// Queue is the persistent delivery queue. A dequeued entry is leased to the
// caller: it will not be handed out again until Retry reschedules it, and
// Remove finishes it. Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue stores the entry and returns its id. An entry without an ID
	// gets one assigned.
	Enqueue(ctx context.Context, entry Entry) (string, error)

	// Dequeue leases the next entry whose NextAttempt has passed, or
	// returns nil when none is ready.
	Dequeue(ctx context.Context) (*Entry, error)

	// Retry reschedules a leased entry with its updated Attempts,
	// NextAttempt and LastError fields.
	Retry(ctx context.Context, entry Entry) error

	// Remove deletes the entry.
	Remove(ctx context.Context, id string) error

	// Size reports how many entries are queued, leased ones included.
	Size(ctx context.Context) (int, error)

	// List returns up to limit entries ordered by next attempt time, for
	// the admin API.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}
