// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notefleet_bus_published_total",
		Help: "Events published to the bus, by routing key.",
	}, []string{"routing_key"})

	publishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notefleet_bus_publish_failed_total",
		Help: "Publish attempts that returned an error, by routing key.",
	}, []string{"routing_key"})
)

// Publisher writes persistent JSON messages to a topic exchange.
type Publisher struct {
	conn     *Conn
	exchange string
	timeout  time.Duration
}

// NewPublisher creates a publisher for the given exchange. A zero timeout
// defaults to five seconds; no publish may block indefinitely.
func NewPublisher(conn *Conn, exchange string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{conn: conn, exchange: exchange, timeout: timeout}
}

// Publish sends one event. The message is durable (survives a broker
// restart) and carries a k-sortable message id. Callers treat a returned
// error as log-and-drop: the state change the event announces has already
// been committed and is never rolled back.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		publishFailedTotal.WithLabelValues(routingKey).Inc()
		return fmt.Errorf("encoding %s payload: %w", routingKey, err)
	}

	ch, err := p.conn.channel()
	if err != nil {
		publishFailedTotal.WithLabelValues(routingKey).Inc()
		return fmt.Errorf("opening channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		publishFailedTotal.WithLabelValues(routingKey).Inc()
		return fmt.Errorf("declaring exchange %s: %w", p.exchange, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ksuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		publishFailedTotal.WithLabelValues(routingKey).Inc()
		return fmt.Errorf("publishing %s: %w", routingKey, err)
	}

	publishedTotal.WithLabelValues(routingKey).Inc()
	return nil
}
