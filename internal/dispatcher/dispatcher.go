// Package dispatcher delivers signed webhook events to receiver endpoints,
// retrying failed deliveries with exponential backoff and parking exhausted
// ones in a dead-letter queue.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/database"
	"github.com/Real-Craft-Tech/stampwire/internal/metrics"
	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

// maxBackoffShift caps the exponential backoff exponent so the delay
// cannot overflow.
const maxBackoffShift = 30

// Dispatcher signs and sends queued deliveries.
type Dispatcher struct {
	store      *QueueStore
	cfg        config.DispatcherConfig
	httpClient *http.Client
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(db *database.DB, cfg config.DispatcherConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		store: NewQueueStore(db),
		cfg:   cfg,
		httpClient: &http.Client{
			// Receivers get this long to answer 2xx; anything slower
			// counts as a failed attempt.
			Timeout: cfg.RequestTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Store exposes the queue store for the admin API.
func (d *Dispatcher) Store() *QueueStore {
	return d.store
}

// Enqueue serializes the event once and queues it for delivery. The stored
// payload bytes are what every attempt signs and sends; the event is never
// re-serialized afterwards. Returns the delivery ID shared by all attempts.
func (d *Dispatcher) Enqueue(ctx context.Context, endpointURL, secret string, event *standardwebhooks.Event) (string, error) {
	if _, err := standardwebhooks.New(secret); err != nil {
		return "", fmt.Errorf("validating secret: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("serializing event: %w", err)
	}

	deliveryID := "msg_" + uuid.New().String()
	queued := &QueuedDelivery{
		ID:          uuid.New().String(),
		DeliveryID:  deliveryID,
		EndpointURL: endpointURL,
		Secret:      secret,
		EventType:   string(event.Type),
		Payload:     string(payload),
	}

	if err := d.store.Enqueue(ctx, queued); err != nil {
		return "", err
	}

	log.Debug().
		Str("delivery_id", deliveryID).
		Str("endpoint", endpointURL).
		Str("event_type", string(event.Type)).
		Msg("Enqueued delivery")

	return deliveryID, nil
}

// Start begins background delivery processing.
func (d *Dispatcher) Start() {
	log.Info().
		Int("max_attempts", d.cfg.MaxAttempts).
		Dur("base_delay", d.cfg.BaseDelay).
		Dur("poll_interval", d.cfg.PollInterval).
		Msg("Starting webhook dispatcher")

	go d.run()
}

// Stop cancels background processing and waits for it to finish.
func (d *Dispatcher) Stop() {
	log.Info().Msg("Stopping webhook dispatcher")
	d.cancel()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.processQueue(); err != nil {
				log.Error().Err(err).Msg("Error processing dispatch queue")
			}
		}
	}
}

func (d *Dispatcher) processQueue() error {
	due, err := d.store.Due(d.ctx, 100)
	if err != nil {
		return err
	}

	for _, delivery := range due {
		if err := d.attempt(delivery); err != nil {
			log.Error().
				Err(err).
				Str("delivery_id", delivery.DeliveryID).
				Str("endpoint", delivery.EndpointURL).
				Int("attempt", delivery.Attempt).
				Msg("Failed to process delivery")
		}
	}

	if queued, dlq, err := d.store.Depth(d.ctx); err == nil {
		metrics.UpdateDispatchDepth(queued, dlq)
	}

	return nil
}

// attempt sends one delivery. The delivery ID stays fixed across attempts
// so receivers can deduplicate; the timestamp and signature are fresh per
// attempt because the signing time moved.
func (d *Dispatcher) attempt(delivery *QueuedDelivery) error {
	wh, err := standardwebhooks.New(delivery.Secret)
	if err != nil {
		// Secret went bad after enqueue. Nothing a retry can fix.
		_, dlqErr := d.store.MoveToDLQ(d.ctx, delivery, fmt.Sprintf("invalid secret: %v", err))
		return dlqErr
	}

	now := time.Now()
	payload := []byte(delivery.Payload)

	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, delivery.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(standardwebhooks.HeaderID, delivery.DeliveryID)
	req.Header.Set(standardwebhooks.HeaderTimestamp, fmt.Sprintf("%d", now.Unix()))
	req.Header.Set(standardwebhooks.HeaderSignature, wh.Sign(delivery.DeliveryID, now, payload))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		metrics.RecordDispatchAttempt("error")
		return d.handleFailure(delivery, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.RecordDispatchAttempt("delivered")
		log.Info().
			Str("delivery_id", delivery.DeliveryID).
			Str("endpoint", delivery.EndpointURL).
			Int("attempt", delivery.Attempt+1).
			Msg("Delivery succeeded")
		return d.store.MarkDelivered(d.ctx, delivery.ID)
	}

	metrics.RecordDispatchAttempt("rejected")
	return d.handleFailure(delivery, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
}

func (d *Dispatcher) handleFailure(delivery *QueuedDelivery, errorMsg string) error {
	delivery.Attempt++

	if delivery.Attempt >= d.cfg.MaxAttempts {
		log.Warn().
			Str("delivery_id", delivery.DeliveryID).
			Str("endpoint", delivery.EndpointURL).
			Int("attempts", delivery.Attempt).
			Msg("Delivery exhausted attempts, moving to DLQ")

		dlqID, err := d.store.MoveToDLQ(d.ctx, delivery, errorMsg)
		if err != nil {
			return err
		}

		log.Info().
			Str("delivery_id", delivery.DeliveryID).
			Str("dlq_id", dlqID).
			Msg("Moved delivery to DLQ")
		return nil
	}

	nextAt := time.Now().UTC().Add(d.backoff(delivery.Attempt))

	if err := d.store.ScheduleRetry(d.ctx, delivery.ID, delivery.Attempt, nextAt, errorMsg); err != nil {
		return err
	}

	log.Debug().
		Str("delivery_id", delivery.DeliveryID).
		Int("attempt", delivery.Attempt).
		Time("next_attempt", nextAt).
		Msg("Scheduled delivery retry")

	return nil
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return d.cfg.BaseDelay * time.Duration(1<<attempt)
}
