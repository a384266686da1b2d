// Package retention periodically purges aged delivery receipts and
// terminal dispatch queue rows. Receipt retention doubles as the
// idempotency window: once a receipt is purged, its delivery ID would be
// accepted again.
package retention

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/dispatcher"
	"github.com/Real-Craft-Tech/stampwire/internal/receiver"
)

type Job struct {
	cfg      config.RetentionConfig
	receipts *receiver.ReceiptStore
	queue    *dispatcher.QueueStore
	cron     *cron.Cron
}

func NewJob(cfg config.RetentionConfig, receipts *receiver.ReceiptStore, queue *dispatcher.QueueStore) *Job {
	return &Job{
		cfg:      cfg,
		receipts: receipts,
		queue:    queue,
		cron:     cron.New(),
	}
}

// Start schedules the purge according to the configured cron expression.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.cfg.Schedule, j.Run); err != nil {
		return fmt.Errorf("scheduling retention job: %w", err)
	}

	j.cron.Start()
	log.Info().
		Str("schedule", j.cfg.Schedule).
		Dur("receipt_max_age", j.cfg.ReceiptMaxAge).
		Dur("queue_max_age", j.cfg.QueueMaxAge).
		Msg("Started retention job")

	return nil
}

// Stop halts the schedule and waits for a running purge to finish.
func (j *Job) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Run executes one purge pass.
func (j *Job) Run() {
	ctx := context.Background()

	receipts, err := j.receipts.PurgeOlderThan(ctx, j.cfg.ReceiptMaxAge)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge receipts")
	}

	rows, err := j.queue.PurgeTerminalOlderThan(ctx, j.cfg.QueueMaxAge)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge dispatch queue")
	}

	if receipts > 0 || rows > 0 {
		log.Info().
			Int64("receipts", receipts).
			Int64("queue_rows", rows).
			Msg("Retention purge complete")
	}
}
