package notify

import (
	"context"
	"log/slog"
	"time"

	"gatepass/internal/platform/metrics"
)

// Worker drains the outbox to the producer on a fixed cadence. Delivery is
// at-least-once: an entry is removed only after the producer accepts it, and
// failed entries stay queued with their attempt count bumped.
type Worker struct {
	store    OutboxStore
	producer Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	interval  time.Duration
	batchSize int
	// backoff applied after a batch that saw failures, so a dead broker is
	// not hammered at the drain cadence.
	failureBackoff time.Duration
}

type WorkerOption func(*Worker)

func WithWorkerInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(store OutboxStore, producer Producer, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:          store,
		producer:       producer,
		logger:         logger,
		interval:       time.Second,
		batchSize:      100,
		failureBackoff: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			failed := w.DrainOnce(ctx)
			next := w.interval
			if failed {
				next = w.failureBackoff
			}
			timer.Reset(next)
		}
	}
}

// DrainOnce publishes one batch and reports whether any delivery failed.
func (w *Worker) DrainOnce(ctx context.Context) bool {
	batch, err := w.store.NextBatch(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to read outbox batch", "error", err)
		return true
	}

	sawFailure := false
	for _, entry := range batch {
		if err := w.producer.Produce(ctx, entry.Event); err != nil {
			sawFailure = true
			w.logger.WarnContext(ctx, "event publish failed",
				"event_id", entry.ID,
				"event_type", entry.Event.Type,
				"attempts", entry.Attempts+1,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.EventPublishFailures.Inc()
			}
			if err := w.store.MarkFailed(ctx, entry.ID); err != nil {
				w.logger.ErrorContext(ctx, "failed to record publish failure", "event_id", entry.ID, "error", err)
			}
			continue
		}
		if w.metrics != nil {
			w.metrics.EventsPublished.Inc()
		}
		if err := w.store.MarkPublished(ctx, entry.ID); err != nil {
			// The event went out but stays in the outbox; it will be
			// re-published, which at-least-once delivery tolerates.
			w.logger.ErrorContext(ctx, "failed to mark entry published", "event_id", entry.ID, "error", err)
		}
	}
	return sawFailure
}

// LogProducer is the no-broker fallback: events land in the service log.
type LogProducer struct {
	logger *slog.Logger
}

func NewLogProducer(logger *slog.Logger) *LogProducer {
	return &LogProducer{logger: logger}
}

func (p *LogProducer) Produce(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "notification event",
		"event_type", event.Type,
		"request_id", event.RequestID,
		"recipient_id", event.RecipientID,
		"message", event.Message,
	)
	return nil
}

func (p *LogProducer) Close() {}
