package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const (
	OrderEventsExchange = "order_events_fanout"
	InventoryExchange   = "inventory_topic"
	InventoryQueue      = "inventory_deductions"
)

// Publisher sends order events and inventory deduction commands.
type Publisher struct {
	conn Connection
	now  func() time.Time
}

var (
	_ interfaces.EventPublisher    = (*Publisher)(nil)
	_ interfaces.InventoryDeductor = (*Publisher)(nil)
)

func NewPublisher(conn Connection) *Publisher {
	return &Publisher{conn: conn, now: time.Now}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, msg interfaces.OrderEventMessage) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(OrderEventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx, OrderEventsExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(msg.Type),
		Timestamp:   msg.Timestamp,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}

// Deduct publishes a persistent deduction command. The order id is the
// message id, the inventory side uses it to drop redeliveries.
func (p *Publisher) Deduct(ctx context.Context, orderID string, lines []domain.StockLine, restaurantID, actorID string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := setupInventory(ch); err != nil {
		return err
	}

	now := p.now().UTC()
	body, err := json.Marshal(interfaces.InventoryDeductMessage{
		OrderID:      orderID,
		RestaurantID: restaurantID,
		ActorID:      actorID,
		Lines:        lines,
		RequestedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx, InventoryExchange, InventoryRoutingKey(restaurantID), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    orderID,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish deduction: %w", err)
	}
	return nil
}

func InventoryRoutingKey(restaurantID string) string {
	return "inventory.deduct." + restaurantID
}

// setupInventory declares the durable queue too, so commands published before
// the inventory consumer first starts are kept.
func setupInventory(ch Channel) error {
	if err := ch.ExchangeDeclare(InventoryExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare inventory exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(InventoryQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare inventory queue: %w", err)
	}
	if err := ch.QueueBind(InventoryQueue, "inventory.deduct.#", InventoryExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind inventory queue: %w", err)
	}
	return nil
}
