// Package rmq mirrors trip lifecycle events onto RabbitMQ so off-process
// consumers (matching, analytics) can follow trips without holding a
// websocket.
package rmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange and queue topology.
const (
	ExchangeTrips   = "trip_topic"
	QueueTripStatus = "trip_status"
)

// Conn manages one AMQP connection and channel, reconnecting in the
// background when the broker drops it.
type Conn struct {
	url string
	log *slog.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	alive bool
}

func New(url string, log *slog.Logger) *Conn {
	return &Conn{url: url, log: log}
}

// Connect dials the broker and starts the reconnect loop. ctx cancellation
// stops reconnecting and closes the channel.
func (c *Conn) Connect(ctx context.Context) error {
	if err := c.connectOnce(); err != nil {
		return err
	}
	if err := c.declareTopology(); err != nil {
		return err
	}
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Conn) connectOnce() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.alive = true
	c.mu.Unlock()

	c.log.Info("rabbitmq connected")
	return nil
}

func (c *Conn) reconnectLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			c.Close()
			return
		case amqpErr := <-notifyClose:
			c.mu.Lock()
			c.alive = false
			c.mu.Unlock()
			if amqpErr != nil {
				c.log.Error("rabbitmq connection lost", "error", amqpErr)
			}
		}

		ticker := time.NewTicker(4 * time.Second)
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
			}
			if err := c.connectOnce(); err != nil {
				c.log.Warn("rabbitmq reconnect failed", "error", err)
				continue
			}
			if err := c.declareTopology(); err != nil {
				c.log.Warn("rabbitmq topology redeclare failed", "error", err)
				continue
			}
			break
		}
		ticker.Stop()
	}
}

func (c *Conn) declareTopology() error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeTrips, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueueTripStatus, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(QueueTripStatus, "trip.status.*", ExchangeTrips, false, nil)
}

// Channel returns the live channel or an error while disconnected.
func (c *Conn) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.alive || c.ch == nil {
		return nil, errors.New("rabbitmq channel not available")
	}
	return c.ch, nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.alive = false
}
