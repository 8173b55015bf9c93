package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stream message fields written by the relay.
const (
	FieldEventID    = "event_id"
	FieldEventType  = "event_type"
	FieldJob        = "job"
	FieldRunID      = "run_id"
	FieldFinishedAt = "finished_at"
	FieldResult     = "result"
)

var errUnsupportedEvent = errors.New("unsupported event type")

// StreamPublisher is the subset of go-redis the relay writes with.
type StreamPublisher interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxStore is the outbox side of the relay.
type OutboxStore interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	Backlog(ctx context.Context) (Backlog, error)
}

// Relay delivers committed outbox events to their redis streams.
type Relay struct {
	publisher StreamPublisher
	outbox    OutboxStore
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	maxLen    int64
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxLen approximately caps each stream. Zero keeps every message.
	MaxLen int64
}

func NewRelay(db *DB, publisher StreamPublisher, logger *slog.Logger, cfg RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), publisher, logger, cfg)
}

func newRelay(outbox OutboxStore, publisher StreamPublisher, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}

	return &Relay{
		publisher: publisher,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		maxLen:    cfg.MaxLen,
	}
}

// Start drains the outbox on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain publishes batches until one comes back short.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.publishBatch(ctx)
		if err != nil {
			r.logger.Error("failed to publish outbox batch", "error", err)
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

// publishBatch delivers one batch and returns how many events it read.
// A failed event is rescheduled and the batch continues.
func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, event := range events {
		log := r.logger.With("event_id", event.ID, "event_type", event.EventType, "job", event.AggregateID)

		if err := r.publish(ctx, event); err != nil {
			log.Warn("event publish failed", "retry", event.RetryCount+1, "error", err)
			if err := r.outbox.MarkFailed(ctx, event.ID, err); err != nil {
				log.Error("failed to reschedule event", "error", err)
			}
			continue
		}

		if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
			log.Error("failed to mark event as processed", "error", err)
			continue
		}
		log.Debug("event published", "stream", event.TargetStream)
	}

	return len(events), nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.publisher.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", event.TargetStream, err)
	}
	return nil
}

// streamValues flattens an event into stream fields so consumers read the
// job and run id without decoding the payload.
func streamValues(event *OutboxEvent) (map[string]any, error) {
	switch event.EventType {
	case EventTypeJobCompleted:
		var p JobCompletedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
		if p.Job == "" {
			return nil, fmt.Errorf("job payload has no job name")
		}

		result := "null"
		if len(p.Result) > 0 {
			result = string(p.Result)
		}
		return map[string]any{
			FieldEventID:    event.ID.String(),
			FieldEventType:  event.EventType,
			FieldJob:        p.Job,
			FieldRunID:      p.RunID,
			FieldFinishedAt: p.FinishedAt.UTC().Format(time.RFC3339),
			FieldResult:     result,
		}, nil

	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedEvent, event.EventType)
	}
}

// Backlog reports undelivered and dead-lettered events.
func (r *Relay) Backlog(ctx context.Context) (Backlog, error) {
	return r.outbox.Backlog(ctx)
}
