// Package standardwebhooks implements signing and verification of webhook
// deliveries following the Standard Webhooks HMAC-SHA256 scheme.
//
// A delivery is signed over the canonical string "{id}.{timestamp}.{body}"
// keyed by a shared per-workspace secret. The verifier recomputes the
// signature from the received headers and the raw body, compares it in
// constant time against every signature token in the webhook-signature
// header, and independently enforces a timestamp freshness window to
// reject replayed deliveries.
package standardwebhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names carried by every signed delivery. Lookup via http.Header is
// case-insensitive.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// SecretPrefix marks a string as a webhook signing secret. The prefix is
// stripped before base64-decoding and is never part of the HMAC key.
const SecretPrefix = "whsec_"

// signatureVersion tags signatures produced by this scheme. Tokens carrying
// other versions are skipped during verification.
const signatureVersion = "v1,"

// DefaultTolerance is the freshness window applied when no explicit
// tolerance is configured. Deliveries whose timestamp differs from the
// current time by more than this, in either direction, are rejected.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSecret indicates the secret is not a whsec_-prefixed
	// base64 string.
	ErrInvalidSecret = errors.New("invalid webhook secret")

	// ErrMissingHeader indicates one of the three required headers is
	// absent or empty.
	ErrMissingHeader = errors.New("missing required webhook header")

	// ErrTimestampOutOfRange indicates the delivery timestamp falls
	// outside the freshness window, covering both stale replays and
	// timestamps too far in the future.
	ErrTimestampOutOfRange = errors.New("webhook timestamp out of range")

	// ErrSignatureMismatch indicates no signature token matched the
	// expected value.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")

	// ErrMalformedPayload indicates the signature was valid but the body
	// could not be parsed as an event envelope. This is distinct from a
	// trust failure: the payload is authentic, just structurally invalid.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Webhook signs and verifies deliveries for a single secret. It holds no
// mutable state and is safe for concurrent use.
type Webhook struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// Options adjusts verification behavior. The zero value selects the
// defaults.
type Options struct {
	// Tolerance is the maximum allowed skew between the delivery
	// timestamp and the current time. Defaults to DefaultTolerance.
	Tolerance time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates a Webhook from a whsec_-prefixed secret using default
// options.
func New(secret string) (*Webhook, error) {
	return NewWithOptions(secret, Options{})
}

// NewWithOptions creates a Webhook from a whsec_-prefixed secret.
func NewWithOptions(secret string, opts Options) (*Webhook, error) {
	encoded, ok := strings.CutPrefix(secret, SecretPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidSecret, SecretPrefix)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Webhook{
		key:       key,
		tolerance: opts.Tolerance,
		now:       opts.Now,
	}, nil
}

// Sign computes the versioned signature for a delivery. It is a pure
// function of its inputs and the secret.
func (w *Webhook) Sign(id string, timestamp time.Time, payload []byte) string {
	return w.sign(id, strconv.FormatInt(timestamp.Unix(), 10), payload)
}

// sign computes the signature over the canonical message
// "{id}.{timestamp}.{body}". The timestamp is the literal string as it
// appears on the wire; re-formatting it would change the signed bytes.
func (w *Webhook) sign(id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, w.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return signatureVersion + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery's signature and freshness, then parses the raw
// body as an event envelope.
//
// The payload must be the exact bytes received on the wire. Re-serializing
// the body before verification changes the signed bytes and breaks
// verification.
//
// Failures are reported as ErrMissingHeader, ErrTimestampOutOfRange,
// ErrSignatureMismatch, or ErrMalformedPayload; match with errors.Is.
func (w *Webhook) Verify(headers http.Header, payload []byte) (*Event, error) {
	id := headers.Get(HeaderID)
	timestamp := headers.Get(HeaderTimestamp)
	signature := headers.Get(HeaderSignature)

	switch {
	case id == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderID)
	case timestamp == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderTimestamp)
	case signature == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSignature)
	}

	if err := w.checkTimestamp(timestamp); err != nil {
		return nil, err
	}

	if !w.matchSignature(id, timestamp, signature, payload) {
		return nil, ErrSignatureMismatch
	}

	return parseEvent(payload)
}

// checkTimestamp enforces the freshness window symmetrically: a timestamp
// too far in the past is a likely replay, one too far in the future is
// unacceptable clock skew. The check is independent of signature validity.
func (w *Webhook) checkTimestamp(timestamp string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", ErrTimestampOutOfRange, timestamp)
	}

	skew := w.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(w.tolerance.Seconds()) {
		return fmt.Errorf("%w: skew %ds exceeds tolerance %s", ErrTimestampOutOfRange, skew, w.tolerance)
	}

	return nil
}

// matchSignature compares the expected signature against every
// space-separated token in the signature header. Multiple tokens appear
// during key rotation; a match against any token passes. Each comparison
// is constant-time, and iteration only stops after a successful match.
func (w *Webhook) matchSignature(id, timestamp, signature string, payload []byte) bool {
	expected := []byte(w.sign(id, timestamp, payload))

	for _, token := range strings.Fields(signature) {
		if !strings.HasPrefix(token, signatureVersion) {
			continue
		}
		if hmac.Equal([]byte(token), expected) {
			return true
		}
	}

	return false
}
