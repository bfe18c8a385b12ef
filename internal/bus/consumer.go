// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notefleet_bus_consumed_total",
		Help: "Messages acknowledged after successful handling, by routing key.",
	}, []string{"queue", "routing_key"})

	handlerFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notefleet_bus_handler_failed_total",
		Help: "Handler invocations that returned an error, by routing key.",
	}, []string{"queue", "routing_key"})

	deadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notefleet_bus_dead_lettered_total",
		Help: "Messages rejected without requeue and routed to the dead-letter queue.",
	}, []string{"queue", "routing_key"})
)

// HandlerFunc processes one decoded message body. Returning nil
// acknowledges the message; returning an error rejects it. Handlers must
// be idempotent: the bus delivers at least once and replays after
// redelivery or requeue.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer binds a durable queue to a topic exchange and dispatches
// deliveries to per-routing-key handlers one at a time.
type Consumer struct {
	conn     *Conn
	exchange string
	queue    string
	pattern  string
	handlers map[string]HandlerFunc
}

// NewConsumer creates a consumer for queue bound to exchange with the
// given binding pattern (for example "identity.*").
func NewConsumer(conn *Conn, exchange, queue, pattern string) *Consumer {
	return &Consumer{
		conn:     conn,
		exchange: exchange,
		queue:    queue,
		pattern:  pattern,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for deliveries with the given routing key.
func (c *Consumer) Handle(routingKey string, fn HandlerFunc) {
	c.handlers[routingKey] = fn
}

// Run consumes until ctx is cancelled. Connection or channel failures
// trigger a reconnect with backoff; the queue topology is redeclared on
// every attempt so order of service startup does not matter.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Error("consumer disconnected, retrying",
				"queue", c.queue, "backoff", backoff, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.conn.channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareTopology(ch, c.exchange, c.queue, c.pattern); err != nil {
		return err
	}

	// One unacknowledged message at a time keeps handling strictly
	// sequential per consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	slog.Info("consumer started", "queue", c.queue, "exchange", c.exchange, "pattern", c.pattern)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch routes one delivery. Unknown routing keys are acknowledged and
// dropped so a newer publisher cannot wedge an older consumer. A failed
// handler is requeued once; if the broker redelivers it and it fails
// again, it is rejected without requeue and parked on the dead-letter
// queue for operator inspection.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	handler, ok := c.handlers[d.RoutingKey]
	if !ok {
		slog.Warn("no handler for routing key, dropping",
			"queue", c.queue, "routing_key", d.RoutingKey, "message_id", d.MessageId)
		_ = d.Ack(false)
		return
	}

	if err := handler(ctx, d.Body); err != nil {
		handlerFailedTotal.WithLabelValues(c.queue, d.RoutingKey).Inc()
		requeue := !d.Redelivered
		if !requeue {
			deadLetteredTotal.WithLabelValues(c.queue, d.RoutingKey).Inc()
		}
		slog.Error("handler failed",
			"queue", c.queue, "routing_key", d.RoutingKey,
			"message_id", d.MessageId, "requeue", requeue, "error", err)
		_ = d.Nack(false, requeue)
		return
	}

	consumedTotal.WithLabelValues(c.queue, d.RoutingKey).Inc()
	_ = d.Ack(false)
}
