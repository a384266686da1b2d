package standardwebhooks

import (
	"encoding/json"
	"fmt"
)

// EventType identifies what a delivery is about. The set below is what the
// platform emits today, but the enumeration is open: senders may introduce
// new types at any time, so unknown values parse successfully and it is up
// to the consumer to ignore them.
type EventType string

const (
	EventStampUploaded  EventType = "stamp.uploaded"
	EventStampFailed    EventType = "stamp.failed"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCancelled EventType = "order.cancelled"
)

// Known reports whether the event type is one the platform currently
// documents.
func (t EventType) Known() bool {
	switch t {
	case EventStampUploaded, EventStampFailed, EventOrderDelivered, EventOrderCancelled:
		return true
	}
	return false
}

// Event is the envelope carried in every delivery body.
type Event struct {
	// Type names the event. Unknown values are valid; see EventType.
	Type EventType `json:"type"`

	// Timestamp is an informational ISO-8601 string. It is NOT part of
	// the signing input; the signed timestamp travels in the
	// webhook-timestamp header.
	Timestamp string `json:"timestamp,omitempty"`

	// Data is the event-specific payload, opaque to the verifier. Its
	// shape is keyed by Type and only meaningful to the consumer.
	Data json.RawMessage `json:"data"`
}

// parseEvent decodes the raw body into an envelope. Called only after the
// signature has been verified, so a failure here means an authentically
// signed but structurally invalid payload.
func parseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &event, nil
}
