// Package receiver consumes signed webhook deliveries: it verifies each
// delivery against the endpoint's secrets, deduplicates by delivery ID, and
// hands validated events to registered handlers.
package receiver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Real-Craft-Tech/stampwire/internal/metrics"
	"github.com/Real-Craft-Tech/stampwire/internal/secrets"
	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

// Handler is the HTTP entry point for inbound deliveries, mounted at
// POST /webhooks/{endpoint}.
type Handler struct {
	store    *secrets.Store
	receipts *ReceiptStore
	registry *Registry
}

func NewHandler(store *secrets.Store, receipts *ReceiptStore, registry *Registry) *Handler {
	return &Handler{
		store:    store,
		receipts: receipts,
		registry: registry,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")

	verifiers, ok := h.store.Verifiers(endpoint)
	if !ok {
		log.Debug().Str("endpoint", endpoint).Msg("Unknown webhook endpoint")
		writeError(w, http.StatusNotFound, "unknown_endpoint", "no such webhook endpoint")
		return
	}

	// The raw bytes are the signing input. They must reach the verifier
	// untouched: parsing and re-serializing first would break verification.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_body", "failed to read request body")
		return
	}

	start := time.Now()
	event, err := h.verify(verifiers, r.Header, body)
	verifyTime := time.Since(start)

	if err != nil {
		h.rejectDelivery(w, r, endpoint, err, verifyTime)
		return
	}

	metrics.RecordDelivery(endpoint, "verified", verifyTime)

	deliveryID := r.Header.Get(standardwebhooks.HeaderID)
	duplicate, err := h.receipts.Record(r.Context(), deliveryID, endpoint, string(event.Type))
	if err != nil {
		log.Error().Err(err).Str("delivery_id", deliveryID).Msg("Failed to record receipt")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to record delivery")
		return
	}

	if duplicate {
		// Redelivery of an already-processed delivery. Acknowledge so the
		// sender stops retrying, but do not run handlers again.
		log.Debug().Str("delivery_id", deliveryID).Str("endpoint", endpoint).Msg("Duplicate delivery acknowledged")
		metrics.RecordDuplicate(endpoint)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
		return
	}

	handled, err := h.registry.Dispatch(r.Context(), event)
	if err != nil {
		// The receipt claimed the delivery ID before the handler ran so
		// concurrent redeliveries cannot race past each other. The handler
		// failed, so give the claim back: the sender retries this ID and
		// the retry must reach the handler, not the duplicate path.
		if relErr := h.receipts.Release(r.Context(), deliveryID); relErr != nil {
			log.Error().Err(relErr).Str("delivery_id", deliveryID).Msg("Failed to release receipt after handler error")
		}
		log.Error().
			Err(err).
			Str("delivery_id", deliveryID).
			Str("endpoint", endpoint).
			Str("event_type", string(event.Type)).
			Msg("Event handler failed")
		writeError(w, http.StatusInternalServerError, "handler_error", "event handler failed")
		return
	}

	if !handled {
		log.Info().
			Str("delivery_id", deliveryID).
			Str("event_type", string(event.Type)).
			Msg("No handler for event type, acknowledged and dropped")
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// verify tries each of the endpoint's secrets in order. Only a signature
// mismatch moves on to the next secret; every other failure is independent
// of the key and final.
func (h *Handler) verify(verifiers []*standardwebhooks.Webhook, headers http.Header, body []byte) (*standardwebhooks.Event, error) {
	var lastErr error
	for _, wh := range verifiers {
		event, err := wh.Verify(headers, body)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, standardwebhooks.ErrSignatureMismatch) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (h *Handler) rejectDelivery(w http.ResponseWriter, r *http.Request, endpoint string, err error, verifyTime time.Duration) {
	deliveryID := r.Header.Get(standardwebhooks.HeaderID)

	switch {
	case errors.Is(err, standardwebhooks.ErrMissingHeader):
		metrics.RecordDelivery(endpoint, "missing_header", verifyTime)
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("Delivery missing required headers")
		writeError(w, http.StatusBadRequest, "missing_header", err.Error())

	case errors.Is(err, standardwebhooks.ErrTimestampOutOfRange):
		metrics.RecordDelivery(endpoint, "timestamp_out_of_range", verifyTime)
		log.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Str("delivery_id", deliveryID).
			Str("remote_addr", r.RemoteAddr).
			Msg("Delivery timestamp out of range, possible replay")
		writeError(w, http.StatusBadRequest, "timestamp_out_of_range", "delivery timestamp outside tolerance")

	case errors.Is(err, standardwebhooks.ErrSignatureMismatch):
		metrics.RecordDelivery(endpoint, "signature_mismatch", verifyTime)
		log.Warn().
			Str("endpoint", endpoint).
			Str("delivery_id", deliveryID).
			Str("remote_addr", r.RemoteAddr).
			Msg("Delivery signature mismatch")
		writeError(w, http.StatusUnauthorized, "signature_mismatch", "signature verification failed")

	case errors.Is(err, standardwebhooks.ErrMalformedPayload):
		// Authentically signed but unparseable. Not a trust failure.
		metrics.RecordDelivery(endpoint, "malformed_payload", verifyTime)
		log.Warn().Err(err).Str("endpoint", endpoint).Str("delivery_id", deliveryID).Msg("Delivery payload malformed")
		writeError(w, http.StatusBadRequest, "malformed_payload", "payload is not a valid event envelope")

	default:
		metrics.RecordDelivery(endpoint, "error", verifyTime)
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Delivery verification error")
		writeError(w, http.StatusInternalServerError, "internal_error", "verification error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
