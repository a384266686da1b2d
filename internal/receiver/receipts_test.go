package receiver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptStoreRecord(t *testing.T) {
	store := NewReceiptStore(testDB(t))
	ctx := context.Background()

	duplicate, err := store.Record(ctx, "msg_1", "stamps", "stamp.uploaded")
	require.NoError(t, err)
	assert.False(t, duplicate)

	duplicate, err = store.Record(ctx, "msg_1", "stamps", "stamp.uploaded")
	require.NoError(t, err)
	assert.True(t, duplicate)

	duplicate, err = store.Record(ctx, "msg_2", "stamps", "stamp.failed")
	require.NoError(t, err)
	assert.False(t, duplicate)
}

func TestReceiptStoreRelease(t *testing.T) {
	store := NewReceiptStore(testDB(t))
	ctx := context.Background()

	duplicate, err := store.Record(ctx, "msg_failed", "stamps", "stamp.failed")
	require.NoError(t, err)
	assert.False(t, duplicate)

	// Handler failure gives the claim back; the same ID records fresh.
	require.NoError(t, store.Release(ctx, "msg_failed"))

	duplicate, err = store.Record(ctx, "msg_failed", "stamps", "stamp.failed")
	require.NoError(t, err)
	assert.False(t, duplicate)

	// Releasing an ID with no receipt is a no-op.
	require.NoError(t, store.Release(ctx, "msg_never_seen"))
}

func TestReceiptStoreRecent(t *testing.T) {
	store := NewReceiptStore(testDB(t))
	ctx := context.Background()

	for _, id := range []string{"msg_a", "msg_b", "msg_c"} {
		_, err := store.Record(ctx, id, "stamps", "order.delivered")
		require.NoError(t, err)
	}

	receipts, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)

	receipts, err = store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, receipts, 3)
	for _, r := range receipts {
		assert.Equal(t, "stamps", r.Endpoint)
		assert.Equal(t, "order.delivered", r.EventType)
		assert.WithinDuration(t, time.Now(), r.ReceivedAt, time.Minute)
	}
}

func TestReceiptStorePurge(t *testing.T) {
	db := testDB(t)
	store := NewReceiptStore(db)
	ctx := context.Background()

	_, err := store.Record(ctx, "msg_old", "stamps", "stamp.uploaded")
	require.NoError(t, err)
	_, err = store.Record(ctx, "msg_new", "stamps", "stamp.uploaded")
	require.NoError(t, err)

	// Age one receipt past the cutoff.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `UPDATE _stampwire_receipts SET received_at = ? WHERE delivery_id = 'msg_old'`, old)
	require.NoError(t, err)

	purged, err := store.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	// The purged ID is accepted again: the idempotency window has passed.
	duplicate, err := store.Record(ctx, "msg_old", "stamps", "stamp.uploaded")
	require.NoError(t, err)
	assert.False(t, duplicate)
}
