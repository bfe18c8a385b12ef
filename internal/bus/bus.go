// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package bus is the durable topic publish/subscribe layer over RabbitMQ.
// Publishing is best-effort: a failed publish is reported to the caller,
// who logs and drops it, never rolling back the state change it announced.
// Consumption is at-least-once with a single in-flight message per consumer.
package bus

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn is an explicitly owned, lazily-initialized AMQP connection handle.
// It is passed to publishers and consumers instead of living in package
// state, and redials transparently once the broker closes the connection.
type Conn struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConn creates a handle for the given broker URL without dialing yet.
func NewConn(url string) *Conn {
	return &Conn{url: url}
}

// channel returns a fresh channel, dialing the broker if the cached
// connection is absent or has been closed. Channels are not safe for
// concurrent use, so every caller gets its own and closes it when done.
func (c *Conn) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}

	return c.conn.Channel()
}

// Close shuts the underlying connection down, if one was established.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// declareTopology sets up the durable topic exchange, the queue's
// dead-letter companion and the consumer queue itself. The dead-letter
// exchange is per queue so each consumer parks only its own failures.
// Safe to call repeatedly.
func declareTopology(ch *amqp.Channel, exchange, queue, pattern string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	dlx := queue + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(dlq, "", dlx, false, nil); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlx,
	})
	if err != nil {
		return err
	}
	return ch.QueueBind(queue, pattern, exchange, false, nil)
}
