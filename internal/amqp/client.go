package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// SyncHandler processes one sync request.
type SyncHandler func(ctx context.Context, msg *SyncRequest) error

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if err := c.setup(channel); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on the direct exchange
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// One sync at a time per consumer; a sync can take minutes
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// PublishSyncRequest enqueues a persistent sync request.
func (c *Client) PublishSyncRequest(ctx context.Context, msg *SyncRequest) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ch := c.currentChannel()
	if ch == nil {
		return errors.New("publish message: channel closed")
	}

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    msg.JobID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published sync request",
		"job_id", msg.JobID,
		"user_id", msg.UserID,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeSyncRequests delivers messages to handler until ctx ends or the
// channel closes.
func (c *Client) ConsumeSyncRequests(ctx context.Context, handler SyncHandler) error {
	ch := c.currentChannel()
	if ch == nil {
		return errors.New("start consuming: channel closed")
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming sync requests", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, d, d.Body, d.Redelivered, handler)
		}
	}
}

// ConsumeWithReconnect keeps consuming across broker restarts, backing off
// between reconnect attempts.
func (c *Client) ConsumeWithReconnect(ctx context.Context, handler SyncHandler) error {
	attempt := 0
	for {
		err := c.ConsumeSyncRequests(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting", "error", err, "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		c.Close()
		if err := c.connect(); err != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", err)
			attempt++
			continue
		}
		attempt = 0
	}
}

type outcome int

const (
	acked outcome = iota
	rejected
	requeued
)

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// handleDelivery runs handler and settles the delivery. A malformed body is
// dropped. A failing handler gets one more try via requeue; a second
// failure drops the message so it cannot loop forever.
func handleDelivery(ctx context.Context, d acknowledger, body []byte, redelivered bool, handler SyncHandler) outcome {
	msg, err := SyncRequestFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
		_ = d.Nack(false, false)
		return rejected
	}

	slog.InfoContext(ctx, "Processing sync request", "job_id", msg.JobID, "user_id", msg.UserID, "redelivered", redelivered)

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message", "error", err, "job_id", msg.JobID)
		if redelivered {
			_ = d.Nack(false, false)
			return rejected
		}
		_ = d.Nack(false, true)
		return requeued
	}

	_ = d.Ack(false)
	slog.InfoContext(ctx, "Successfully processed sync request", "job_id", msg.JobID)
	return acked
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Second << uint(attempt)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "channel closed", "eof", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
