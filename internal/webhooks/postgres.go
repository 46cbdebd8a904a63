package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresQueue persists deliveries in a webhook_queue table so they survive
// restarts and can be worked by multiple instances (FOR UPDATE SKIP LOCKED
// arbitrates leases).
type PostgresQueue struct {
	db *sql.DB
}

// NewPostgresQueue opens the connection, verifies it, and ensures the
// schema exists.
func NewPostgresQueue(ctx context.Context, dsn string) (*PostgresQueue, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	q := &PostgresQueue{db: db}
	if err := q.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS webhook_queue (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL,
	payload         JSONB NOT NULL,
	event_type      TEXT NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	max_attempts    INT NOT NULL,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	last_error      TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_webhook_queue_ready
	ON webhook_queue (next_attempt_at) WHERE status = 'pending';`

	if _, err := q.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure webhook_queue schema: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const insert = `
INSERT INTO webhook_queue (id, url, payload, event_type, attempts, max_attempts, next_attempt_at, last_error, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)`

	_, err := q.db.ExecContext(ctx, insert,
		entry.ID, entry.URL, []byte(entry.Payload), entry.EventType,
		entry.Attempts, entry.MaxAttempts, entry.NextAttempt,
		nullString(entry.LastError), entry.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert webhook entry: %w", err)
	}
	return entry.ID, nil
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*Entry, error) {
	const lease = `
UPDATE webhook_queue SET status = 'processing'
WHERE id = (
	SELECT id FROM webhook_queue
	WHERE status = 'pending' AND next_attempt_at <= now()
	ORDER BY next_attempt_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, url, payload, event_type, attempts, max_attempts, next_attempt_at, COALESCE(last_error, ''), created_at`

	var entry Entry
	var payload []byte
	err := q.db.QueryRowContext(ctx, lease).Scan(
		&entry.ID, &entry.URL, &payload, &entry.EventType,
		&entry.Attempts, &entry.MaxAttempts, &entry.NextAttempt,
		&entry.LastError, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lease webhook entry: %w", err)
	}
	entry.Payload = payload
	return &entry, nil
}

func (q *PostgresQueue) Retry(ctx context.Context, entry Entry) error {
	const update = `
UPDATE webhook_queue
SET status = 'pending', attempts = $2, next_attempt_at = $3, last_error = $4
WHERE id = $1`

	_, err := q.db.ExecContext(ctx, update,
		entry.ID, entry.Attempts, entry.NextAttempt, nullString(entry.LastError))
	if err != nil {
		return fmt.Errorf("reschedule webhook entry: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM webhook_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete webhook entry: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Size(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM webhook_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhook entries: %w", err)
	}
	return n, nil
}

func (q *PostgresQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT id, url, payload, event_type, attempts, max_attempts, next_attempt_at, COALESCE(last_error, ''), created_at
FROM webhook_queue
ORDER BY next_attempt_at
LIMIT $1`

	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var payload []byte
		err := rows.Scan(&entry.ID, &entry.URL, &payload, &entry.EventType,
			&entry.Attempts, &entry.MaxAttempts, &entry.NextAttempt,
			&entry.LastError, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan webhook entry: %w", err)
		}
		entry.Payload = payload
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (q *PostgresQueue) Close() error {
	return q.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
