// Package amqp publishes SMS messages to, and consumes them from, a RabbitMQ
// queue bound to a direct exchange under its own name.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/model"
)

const publishTimeout = 5 * time.Second

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel.
var ErrDeliveriesClosed = errors.New("message channel closed")

// Client holds one connection and channel.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	prefetch     int
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPrefetch limits unacknowledged deliveries. Zero means no limit.
func WithPrefetch(n int) Option {
	return func(c *Client) { c.prefetch = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient dials url and declares the exchange, queue and binding.
func NewClient(url, exchangeName, queueName string, opts ...Option) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
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

	_, err = c.channel.QueueDeclare(
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

	// Direct exchange: the routing key is the queue name.
	err = c.channel.QueueBind(
		c.queueName,
		c.queueName,
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	if c.prefetch > 0 {
		if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}
	return nil
}

// Publish sends msg as a persistent JSON envelope.
func (c *Client) Publish(ctx context.Context, msg model.Message) error {
	body, err := NewEnvelope(msg).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    id,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.Debug("published message",
		zap.String("message_id", id),
		zap.String("sender", msg.Sender),
		zap.String("exchange", c.exchangeName),
		zap.String("queue", c.queueName))
	return nil
}

// Consume delivers queued messages to handle until ctx is done. Undecodable
// deliveries are dropped. A handler error requeues the delivery and stops
// consumption.
func (c *Client) Consume(ctx context.Context, handle func(context.Context, model.Message) error) error {
	deliveries, err := c.channel.Consume(
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

	c.logger.Info("consuming messages", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping message consumption", zap.Error(ctx.Err()))
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			logger := c.logger.With(zap.String("message_id", delivery.MessageId))
			if err := dispatch(ctx, logger, delivery.Body, delivery, handle); err != nil {
				return err
			}
		}
	}
}

// acknowledger is the part of amqp091.Delivery that dispatch needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, logger *zap.Logger, body []byte, ack acknowledger, handle func(context.Context, model.Message) error) error {
	env, err := EnvelopeFromJSON(body)
	if err != nil {
		logger.Warn("dropping undecodable message", zap.Error(err))
		if err := ack.Nack(false, false); err != nil {
			logger.Error("nack failed", zap.Error(err))
		}
		return nil
	}

	if err := handle(ctx, env.Message()); err != nil {
		if nerr := ack.Nack(false, true); nerr != nil {
			logger.Error("nack failed", zap.Error(nerr))
		}
		return fmt.Errorf("handling message: %w", err)
	}

	if err := ack.Ack(false); err != nil {
		logger.Error("ack failed", zap.Error(err))
	}
	return nil
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
