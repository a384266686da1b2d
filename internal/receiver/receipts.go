package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/Real-Craft-Tech/stampwire/internal/database"
)

// Receipt records one verified delivery. Receipts back idempotent handling:
// a delivery ID that already has a receipt is acknowledged without
// re-invoking handlers. The retention job bounds how long receipts are
// kept, which in turn bounds the idempotency window.
type Receipt struct {
	DeliveryID string    `json:"delivery_id"`
	Endpoint   string    `json:"endpoint"`
	EventType  string    `json:"event_type"`
	ReceivedAt time.Time `json:"received_at"`
}

// ReceiptStore persists delivery receipts.
type ReceiptStore struct {
	db *database.DB
}

func NewReceiptStore(db *database.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Record inserts a receipt for a delivery and reports whether the delivery
// ID was already present. The insert and the duplicate check are a single
// statement, so concurrent redeliveries of the same ID cannot both pass.
func (s *ReceiptStore) Record(ctx context.Context, deliveryID, endpoint, eventType string) (duplicate bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO _stampwire_receipts (delivery_id, endpoint, event_type, received_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (delivery_id) DO NOTHING
	`, deliveryID, endpoint, eventType, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("recording receipt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking receipt insert: %w", err)
	}

	return affected == 0, nil
}

// Release deletes the receipt for a delivery. Called when handling fails
// after Record claimed the ID, so the sender's retry of the same delivery
// is processed instead of being acknowledged as a duplicate.
func (s *ReceiptStore) Release(ctx context.Context, deliveryID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM _stampwire_receipts WHERE delivery_id = ?
	`, deliveryID); err != nil {
		return fmt.Errorf("releasing receipt: %w", err)
	}
	return nil
}

// Recent returns the newest receipts, up to limit.
func (s *ReceiptStore) Recent(ctx context.Context, limit int) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT delivery_id, endpoint, event_type, received_at
		FROM _stampwire_receipts
		ORDER BY received_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var r Receipt
		var receivedAt string
		if err := rows.Scan(&r.DeliveryID, &r.Endpoint, &r.EventType, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		r.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		receipts = append(receipts, r)
	}

	return receipts, rows.Err()
}

// PurgeOlderThan deletes receipts received before the cutoff and returns
// how many were removed.
func (s *ReceiptStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM _stampwire_receipts WHERE received_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging receipts: %w", err)
	}

	return res.RowsAffected()
}
