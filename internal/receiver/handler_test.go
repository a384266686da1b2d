package receiver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/database"
	"github.com/Real-Craft-Tech/stampwire/internal/secrets"
	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout:  time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSecretsStore(t *testing.T) *secrets.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	content := fmt.Sprintf("endpoints:\n  stamps:\n    secrets:\n      - %s\n", testSecret)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := secrets.NewStore(path, standardwebhooks.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testServer(t *testing.T, registry *Registry) *httptest.Server {
	t.Helper()
	handler := NewHandler(testSecretsStore(t), NewReceiptStore(testDB(t)), registry)

	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/{endpoint}", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signedRequest(t *testing.T, url, id, body string) *http.Request {
	t.Helper()
	wh, err := standardwebhooks.New(testSecret)
	require.NoError(t, err)

	now := time.Now()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(standardwebhooks.HeaderID, id)
	req.Header.Set(standardwebhooks.HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(standardwebhooks.HeaderSignature, wh.Sign(id, now, []byte(body)))
	return req
}

func TestHandlerValidDelivery(t *testing.T) {
	registry := NewRegistry()

	var got *standardwebhooks.Event
	registry.Register(standardwebhooks.EventStampUploaded, func(ctx context.Context, event *standardwebhooks.Event) error {
		got = event
		return nil
	})

	srv := testServer(t, registry)

	body := `{"type":"stamp.uploaded","data":{"orderId":"ord_42","documentUrl":"https://example.com/stamped.pdf"}}`
	req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_valid", body)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, got)
	assert.Equal(t, standardwebhooks.EventStampUploaded, got.Type)
	assert.JSONEq(t, `{"orderId":"ord_42","documentUrl":"https://example.com/stamped.pdf"}`, string(got.Data))
}

func TestHandlerDuplicateDeliveryNotReprocessed(t *testing.T) {
	registry := NewRegistry()

	calls := 0
	registry.Register(standardwebhooks.EventOrderDelivered, func(ctx context.Context, event *standardwebhooks.Event) error {
		calls++
		return nil
	})

	srv := testServer(t, registry)
	body := `{"type":"order.delivered","data":{"orderId":"ord_7"}}`

	for i := 0; i < 3; i++ {
		// Redeliveries reuse the delivery ID but are re-signed per attempt.
		req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_dup", body)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "duplicates are still acknowledged")
	}

	assert.Equal(t, 1, calls, "handler must run once per delivery ID")
}

func TestHandlerUnknownEventTypeAcknowledged(t *testing.T) {
	srv := testServer(t, NewRegistry())

	body := `{"type":"credit.purchased","data":{"credits":500}}`
	req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_unknown", body)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerRejections(t *testing.T) {
	srv := testServer(t, NewRegistry())
	body := `{"type":"stamp.uploaded","data":{}}`

	tests := []struct {
		name       string
		mutate     func(*http.Request)
		wantStatus int
	}{
		{
			"missing signature header",
			func(r *http.Request) { r.Header.Del(standardwebhooks.HeaderSignature) },
			http.StatusBadRequest,
		},
		{
			"missing id header",
			func(r *http.Request) { r.Header.Del(standardwebhooks.HeaderID) },
			http.StatusBadRequest,
		},
		{
			"tampered signature",
			func(r *http.Request) { r.Header.Set(standardwebhooks.HeaderSignature, "v1,AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=") },
			http.StatusUnauthorized,
		},
		{
			"stale timestamp",
			func(r *http.Request) {
				r.Header.Set(standardwebhooks.HeaderTimestamp, strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10))
			},
			http.StatusBadRequest,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(t, srv.URL+"/webhooks/stamps", fmt.Sprintf("msg_reject_%d", i), body)
			tt.mutate(req)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHandlerTamperedBody(t *testing.T) {
	srv := testServer(t, NewRegistry())

	body := `{"type":"stamp.uploaded","data":{"orderId":"ord_1"}}`

	// Headers signed over the original body, a single byte changed in transit.
	signed := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_tampered", body)
	tampered := strings.Replace(body, "ord_1", "ord_2", 1)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/stamps", strings.NewReader(tampered))
	require.NoError(t, err)
	req.Header = signed.Header

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerUnknownEndpoint(t *testing.T) {
	srv := testServer(t, NewRegistry())

	req := signedRequest(t, srv.URL+"/webhooks/nonexistent", "msg_noep", `{"type":"stamp.uploaded","data":{}}`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerFailingHandlerReturns500(t *testing.T) {
	registry := NewRegistry()
	registry.Register(standardwebhooks.EventStampFailed, func(ctx context.Context, event *standardwebhooks.Event) error {
		return fmt.Errorf("downstream unavailable")
	})

	srv := testServer(t, registry)

	body := `{"type":"stamp.failed","data":{"orderId":"ord_9","reason":"portal timeout"}}`
	req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_handler_fail", body)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandlerRetryAfterHandlerFailureReachesHandler(t *testing.T) {
	registry := NewRegistry()

	calls := 0
	registry.Register(standardwebhooks.EventStampUploaded, func(ctx context.Context, event *standardwebhooks.Event) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("downstream unavailable")
		}
		return nil
	})

	srv := testServer(t, registry)
	body := `{"type":"stamp.uploaded","data":{"orderId":"ord_11"}}`

	// First attempt fails in the handler; the 500 tells the sender to retry.
	req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_retry_after_fail", body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The sender's retry reuses the delivery ID. It must run the handler
	// again, not be swallowed as a duplicate of the failed attempt.
	retry := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_retry_after_fail", body)
	resp, err = http.DefaultClient.Do(retry)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls, "retry of a failed delivery must reach the handler")

	// Once handled successfully the ID dedupes as usual.
	again := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_retry_after_fail", body)
	resp, err = http.DefaultClient.Do(again)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls, "successful delivery must not be reprocessed")
}

func TestHandlerSecretRotation(t *testing.T) {
	// Endpoint configured with two secrets; a delivery signed with the
	// older one must still verify.
	oldSecret := testSecret
	newSecret, err := secrets.Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	content := fmt.Sprintf("endpoints:\n  stamps:\n    secrets:\n      - %s\n      - %s\n", newSecret, oldSecret)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := secrets.NewStore(path, standardwebhooks.Options{})
	require.NoError(t, err)
	defer store.Close()

	handler := NewHandler(store, NewReceiptStore(testDB(t)), NewRegistry())
	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/{endpoint}", handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	body := `{"type":"order.cancelled","data":{"orderId":"ord_3"}}`
	req := signedRequest(t, srv.URL+"/webhooks/stamps", "msg_rotation", body)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
