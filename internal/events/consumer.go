package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/ratelimit"
)

// StreamClient is the subset of go-redis used by Consumer.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// JobCompleted is one finished job as published by the relay.
type JobCompleted struct {
	Job        string
	RunID      string
	FinishedAt string
	Result     json.RawMessage
}

// Handler processes one job event. A returned error leaves the message
// unacknowledged in the group's pending list.
type Handler func(ctx context.Context, ev JobCompleted) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
}

type Consumer struct {
	client  StreamClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.DefaultTargetStream
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "event_consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run reads the stream through the consumer group until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			if err := ratelimit.Sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	ev, ok, err := ParseJobCompleted(msg)
	if err != nil {
		c.logger.Error("failed to parse message", "id", msg.ID, "error", err)
	} else if ok {
		if err := c.handler(ctx, ev); err != nil {
			c.logger.Error("failed to handle event", "id", msg.ID, "job", ev.Job, "error", err)
			return
		}
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

// ParseJobCompleted reads a relay message. ok is false for messages of
// other event types.
func ParseJobCompleted(msg redis.XMessage) (JobCompleted, bool, error) {
	field := func(name string) string {
		v, _ := msg.Values[name].(string)
		return v
	}

	if field(database.FieldEventType) != database.EventTypeJobCompleted {
		return JobCompleted{}, false, nil
	}

	ev := JobCompleted{
		Job:        field(database.FieldJob),
		RunID:      field(database.FieldRunID),
		FinishedAt: field(database.FieldFinishedAt),
	}
	if ev.Job == "" {
		return JobCompleted{}, false, fmt.Errorf("missing job in event")
	}
	if result := field(database.FieldResult); result != "" {
		if !json.Valid([]byte(result)) {
			return JobCompleted{}, false, fmt.Errorf("invalid result in event")
		}
		ev.Result = json.RawMessage(result)
	}
	return ev, true, nil
}
