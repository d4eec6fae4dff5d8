package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

const (
	outcomePublished    = "published"
	outcomeRetried      = "retried"
	outcomeDeadLettered = "dead_lettered"
)

// OutboxWorker drains the identity outbox and hands records to the publisher.
// Keeping delivery out of the request path means a broker outage never blocks
// registration or reactivation writes; events wait in Postgres instead.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run drains the outbox on a fixed interval until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.drainOnce(ctx); err != nil {
			w.workerLogger().ErrorContext(ctx, "outbox drain failed",
				"operation", "drain_outbox",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drainOnce claims one batch under a fresh token and settles every record in
// it. Records the claim TTL outlives are reclaimed by a later pass, so a
// crash mid-batch loses nothing.
func (w *OutboxWorker) drainOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	counts := map[string]int{}
	for _, rec := range records {
		outcome := w.settle(ctx, claimToken, rec, now)
		counts[outcome]++
		obs.RecordOutboxEvent(outcome)
	}

	w.workerLogger().InfoContext(ctx, "outbox batch drained",
		"operation", "drain_outbox",
		"outcome", "success",
		"batch_size", len(records),
		"published_count", counts[outcomePublished],
		"retried_count", counts[outcomeRetried],
		"dead_lettered_count", counts[outcomeDeadLettered],
	)
	return nil
}

// settle publishes one identity event and records the result. An event whose
// retry budget is already spent goes straight to the dead-letter state.
func (w *OutboxWorker) settle(ctx context.Context, claimToken string, rec ports.OutboxRecord, now time.Time) string {
	if rec.RetryCount >= w.maxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry budget exhausted before publish", now)
		return outcomeDeadLettered
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.Payload)
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
		return outcomePublished
	}

	retries := rec.RetryCount + 1
	logger := w.workerLogger().With(
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"partition_key", rec.PartitionKey,
		"retry_count", retries,
		"error", err,
	)
	if retries >= w.maxRetries {
		logger.ErrorContext(ctx, "identity event dead-lettered")
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
		return outcomeDeadLettered
	}
	logger.WarnContext(ctx, "identity event publish failed, retry scheduled")
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	return outcomeRetried
}

func (w *OutboxWorker) workerLogger() *slog.Logger {
	return w.logger.With(
		"module", "events",
		"layer", "adapter",
	)
}
