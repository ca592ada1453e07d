package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// Subscribe binds a temporary queue to the exchange and calls handle for each
// event until ctx is done. Used by operator tooling to follow the kitchen feed.
func Subscribe(ctx context.Context, url, exchange string, handle func(ports.Event)) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()

	if err := declareExchange(conn, exchange); err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	return consume(ctx, deliveries, handle)
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(ports.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var evt ports.Event
			if err := json.Unmarshal(d.Body, &evt); err != nil {
				continue
			}
			handle(evt)
		}
	}
}
