package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Real-Craft-Tech/stampwire/internal/database"
)

// Queue statuses. pending and retrying rows are live; delivered and failed
// rows are terminal and eventually purged by the retention job.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// QueuedDelivery is one outbound delivery. The payload is stored as the
// exact bytes that will be signed and sent; every attempt reuses DeliveryID
// but carries a fresh timestamp and signature.
type QueuedDelivery struct {
	ID            string     `json:"id"`
	DeliveryID    string     `json:"delivery_id"`
	EndpointURL   string     `json:"endpoint_url"`
	Secret        string     `json:"-"`
	EventType     string     `json:"event_type"`
	Payload       string     `json:"payload"`
	Attempt       int        `json:"attempt"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	Status        string     `json:"status"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DLQEntry is a delivery that exhausted its attempts.
type DLQEntry struct {
	ID          string    `json:"id"`
	DeliveryID  string    `json:"delivery_id"`
	EndpointURL string    `json:"endpoint_url"`
	EventType   string    `json:"event_type"`
	Payload     string    `json:"payload"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
}

// QueueStore persists the outbound dispatch queue and dead-letter queue.
type QueueStore struct {
	db *database.DB
}

func NewQueueStore(db *database.DB) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue inserts a new pending delivery.
func (s *QueueStore) Enqueue(ctx context.Context, d *QueuedDelivery) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _stampwire_dispatch_queue
			(id, delivery_id, endpoint_url, secret, event_type, payload, attempt, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, d.ID, d.DeliveryID, d.EndpointURL, d.Secret, d.EventType, d.Payload, StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("enqueueing delivery: %w", err)
	}

	return nil
}

// Due returns live deliveries whose next attempt is due, oldest first.
func (s *QueueStore) Due(ctx context.Context, limit int) ([]*QueuedDelivery, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, endpoint_url, secret, event_type, payload, attempt,
		       next_attempt_at, status, COALESCE(last_error, ''), created_at, updated_at
		FROM _stampwire_dispatch_queue
		WHERE status IN (?, ?)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, StatusPending, StatusRetrying, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// MarkDelivered moves a delivery to its terminal success state.
func (s *QueueStore) MarkDelivered(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		UPDATE _stampwire_dispatch_queue
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, StatusDelivered, now, id)
	if err != nil {
		return fmt.Errorf("marking delivered: %w", err)
	}

	return nil
}

// ScheduleRetry records a failed attempt and the time of the next one.
func (s *QueueStore) ScheduleRetry(ctx context.Context, id string, attempt int, nextAt time.Time, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		UPDATE _stampwire_dispatch_queue
		SET attempt = ?, next_attempt_at = ?, status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, attempt, nextAt.UTC().Format(time.RFC3339), StatusRetrying, lastError, now, id)
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}

	return nil
}

// MoveToDLQ parks an exhausted delivery in the dead-letter queue and marks
// the queue row failed, in one transaction.
func (s *QueueStore) MoveToDLQ(ctx context.Context, d *QueuedDelivery, lastError string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dlqID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO _stampwire_dispatch_dlq
			(id, delivery_id, endpoint_url, secret, event_type, payload, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, dlqID, d.DeliveryID, d.EndpointURL, d.Secret, d.EventType, d.Payload, d.Attempt, lastError, now)
	if err != nil {
		return "", fmt.Errorf("inserting into DLQ: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE _stampwire_dispatch_queue
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, StatusFailed, lastError, now, d.ID)
	if err != nil {
		return "", fmt.Errorf("updating queue status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}

	return dlqID, nil
}

// Requeue moves a DLQ entry back into the queue as a fresh pending
// delivery, keeping its original delivery ID and secret.
func (s *QueueStore) Requeue(ctx context.Context, dlqID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entry DLQEntry
	var secret string
	err = tx.QueryRowContext(ctx, `
		SELECT delivery_id, endpoint_url, secret, event_type, payload
		FROM _stampwire_dispatch_dlq
		WHERE id = ?
	`, dlqID).Scan(&entry.DeliveryID, &entry.EndpointURL, &secret, &entry.EventType, &entry.Payload)
	if err != nil {
		return fmt.Errorf("loading DLQ entry: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO _stampwire_dispatch_queue
			(id, delivery_id, endpoint_url, secret, event_type, payload, attempt, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, uuid.New().String(), entry.DeliveryID, entry.EndpointURL, secret, entry.EventType, entry.Payload, StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("requeueing delivery: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM _stampwire_dispatch_dlq WHERE id = ?`, dlqID); err != nil {
		return fmt.Errorf("removing DLQ entry: %w", err)
	}

	return tx.Commit()
}

// ListQueue returns the newest queue rows, up to limit.
func (s *QueueStore) ListQueue(ctx context.Context, limit int) ([]*QueuedDelivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, endpoint_url, secret, event_type, payload, attempt,
		       next_attempt_at, status, COALESCE(last_error, ''), created_at, updated_at
		FROM _stampwire_dispatch_queue
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// ListDLQ returns the newest DLQ entries, up to limit.
func (s *QueueStore) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, endpoint_url, event_type, payload, attempts, last_error, created_at
		FROM _stampwire_dispatch_dlq
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing DLQ: %w", err)
	}
	defer rows.Close()

	var entries []DLQEntry
	for rows.Next() {
		var e DLQEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.EndpointURL, &e.EventType, &e.Payload, &e.Attempts, &e.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning DLQ entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Depth returns the number of live queue rows and DLQ entries.
func (s *QueueStore) Depth(ctx context.Context) (queued, dlq int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM _stampwire_dispatch_queue WHERE status IN (?, ?)
	`, StatusPending, StatusRetrying).Scan(&queued)
	if err != nil {
		return 0, 0, fmt.Errorf("counting queue: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _stampwire_dispatch_dlq`).Scan(&dlq)
	if err != nil {
		return 0, 0, fmt.Errorf("counting DLQ: %w", err)
	}

	return queued, dlq, nil
}

// PurgeTerminalOlderThan removes delivered and failed queue rows older than
// the cutoff.
func (s *QueueStore) PurgeTerminalOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM _stampwire_dispatch_queue
		WHERE status IN (?, ?) AND updated_at < ?
	`, StatusDelivered, StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging queue: %w", err)
	}

	return res.RowsAffected()
}

func scanDeliveries(rows *sql.Rows) ([]*QueuedDelivery, error) {
	var deliveries []*QueuedDelivery

	for rows.Next() {
		var d QueuedDelivery
		var nextAttemptAt sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(
			&d.ID,
			&d.DeliveryID,
			&d.EndpointURL,
			&d.Secret,
			&d.EventType,
			&d.Payload,
			&d.Attempt,
			&nextAttemptAt,
			&d.Status,
			&d.LastError,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}

		if nextAttemptAt.Valid {
			t, err := time.Parse(time.RFC3339, nextAttemptAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing next_attempt_at: %w", err)
			}
			d.NextAttemptAt = &t
		}

		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}
