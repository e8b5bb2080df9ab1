package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const reconnectDelay = 5 * time.Second

type Consumer struct {
	conn   Connection
	logger logger.Logger
	delay  time.Duration
}

var _ interfaces.MessageConsumer = (*Consumer)(nil)

func NewConsumer(conn Connection, lgr logger.Logger) *Consumer {
	return &Consumer{conn: conn, logger: lgr, delay: reconnectDelay}
}

// ConsumeOrderEvents delivers every order event to handler until ctx is done,
// reconnecting after channel failures.
func (c *Consumer) ConsumeOrderEvents(ctx context.Context, handler interfaces.OrderEventHandler) error {
	for {
		err := c.consumeOrderEvents(ctx, handler)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		c.logger.Warn("consumer_disconnected", "Order events consumer disconnected, reconnecting", "", map[string]interface{}{
			"delay": c.delay.String(),
			"error": err.Error(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}
	}
}

func (c *Consumer) consumeOrderEvents(ctx context.Context, handler interfaces.OrderEventHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))

	if err := ch.ExchangeDeclare(OrderEventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// each subscriber gets its own temporary queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", OrderEventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return errors.New("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("messages channel closed")
			}
			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Debug("order_event_skipped", "Order event handler failed", "", map[string]interface{}{
					"message_type": msg.Type,
				})
			}
		}
	}
}
