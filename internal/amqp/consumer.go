package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery
// channel, usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// IngestionHandler handles one decoded event. A returned error requeues the
// delivery when retryable is true and drops it otherwise.
type IngestionHandler func(ctx context.Context, ev *IngestionEvent) (retryable bool, err error)

// acknowledger is the part of amqp091.Delivery a consumer settles with.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// ConsumeIngestionEvents consumes ingestion events from the client's queue
// with manual acknowledgement until ctx is done or deliveries stop.
func (c *Client) ConsumeIngestionEvents(ctx context.Context, prefetch int, handler IngestionHandler) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ingestion events", "queue", c.queueName)
	return consume(ctx, msgs, handler)
}

func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler IngestionHandler) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			settle(ctx, &delivery, delivery.Body, handler)
		}
	}
}

// settle decodes body, runs handler and acknowledges the delivery.
func settle(ctx context.Context, d acknowledger, body []byte, handler IngestionHandler) {
	ev, err := IngestionEventFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal ingestion event", "error", err)
		_ = d.Nack(false, false) // reject and don't requeue
		return
	}

	retryable, err := handler(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle ingestion event",
			"error", err,
			"attempt_id", ev.AttemptID,
			"kind", ev.Kind,
			"requeue", retryable)
		_ = d.Nack(false, retryable)
		return
	}

	_ = d.Ack(false)
	slog.DebugContext(ctx, "Handled ingestion event",
		"attempt_id", ev.AttemptID,
		"kind", ev.Kind)
}
