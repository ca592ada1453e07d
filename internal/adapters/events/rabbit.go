// Package events delivers order and payment notifications to RabbitMQ for
// kitchen displays and staff alerts.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

const defaultPublishAttempts = 3

// ErrConnectionClosed is returned without retrying once the broker connection is gone
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes events to a durable fanout exchange, routed by event type.
// One channel is shared by all publishes and reopened after a failure.
type RabbitPublisher struct {
	ch          channel
	openChannel func() (channel, error)
	closeConn   func() error
	connClosed  func() bool
	backoff     resilience.BackoffStrategy
	logger      *zap.Logger
	exchange    string
	attempts    int
	mu          sync.Mutex
	closeOnce   sync.Once
}

var _ ports.EventPublisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher dials the broker and declares the exchange
func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	if err := declareExchange(conn, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ publisher initialized", zap.String("exchange", exchange))

	return &RabbitPublisher{
		openChannel: func() (channel, error) { return conn.Channel() },
		closeConn:   conn.Close,
		connClosed:  conn.IsClosed,
		backoff:     resilience.EventBackoff(),
		logger:      logger,
		exchange:    exchange,
		attempts:    defaultPublishAttempts,
	}, nil
}

func declareExchange(conn *amqp.Connection, exchange string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish sends the event, retrying broker errors with backoff
func (p *RabbitPublisher) Publish(ctx context.Context, event ports.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if p.IsClosed() {
			lastErr = ErrConnectionClosed
			break
		}
		if attempt > 0 {
			if err := resilience.Sleep(ctx, p.backoff.NextDelay(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		lastErr = p.publishOnce(ctx, event.Type, body)
		if lastErr == nil {
			observability.RecordEventPublish(event.Type, "ok")
			return nil
		}
		p.logger.Warn("Event publish failed",
			zap.String("event_type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	observability.RecordEventPublish(event.Type, "error")
	return fmt.Errorf("publish %s: %w", event.Type, lastErr)
}

func (p *RabbitPublisher) publishOnce(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.openChannel()
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		p.ch = ch
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		// a channel error closes the channel on the broker side
		_ = p.ch.Close()
		p.ch = nil
	}
	return err
}

// IsClosed reports whether the broker connection has dropped
func (p *RabbitPublisher) IsClosed() bool {
	if p.connClosed == nil {
		return false
	}
	return p.connClosed()
}

func (p *RabbitPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.ch != nil {
			_ = p.ch.Close()
			p.ch = nil
		}
		p.mu.Unlock()
		err = p.closeConn()
	})
	return err
}

// LogPublisher is used when no broker is configured; events only reach the log
type LogPublisher struct {
	logger *zap.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event ports.Event) error {
	p.logger.Debug("Event",
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.Any("data", event.Data),
	)
	observability.RecordEventPublish(event.Type, "logged")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
