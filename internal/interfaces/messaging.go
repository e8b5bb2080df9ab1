package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/domain"
)

// RabbitMQ messages

type OrderEventType string

const (
	EventOrderCreated       OrderEventType = "order.created"
	EventOrderStatusChanged OrderEventType = "order.status_changed"
	EventOrdersTransferred  OrderEventType = "orders.transferred"
)

type OrderEventMessage struct {
	Type         OrderEventType `json:"type"`
	RestaurantID string         `json:"restaurant_id"`
	OrderID      string         `json:"order_id,omitempty"`
	OrderNumber  string         `json:"order_number,omitempty"`
	TableID      string         `json:"table_id,omitempty"`
	OldStatus    domain.Status  `json:"old_status,omitempty"`
	NewStatus    domain.Status  `json:"new_status,omitempty"`
	Total        float64        `json:"total,omitempty"`
	ChangedBy    string         `json:"changed_by,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type InventoryDeductMessage struct {
	OrderID      string             `json:"order_id"`
	RestaurantID string             `json:"restaurant_id"`
	ActorID      string             `json:"actor_id"`
	Lines        []domain.StockLine `json:"lines"`
	RequestedAt  time.Time          `json:"requested_at"`
}

// EventPublisher announces order changes. Publishing is best effort.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg OrderEventMessage) error
}

// InventoryDeductor deducts stock for a completed order.
type InventoryDeductor interface {
	Deduct(ctx context.Context, orderID string, lines []domain.StockLine, restaurantID, actorID string) error
}

type MessageConsumer interface {
	ConsumeOrderEvents(ctx context.Context, handler OrderEventHandler) error
}

type OrderEventHandler func(ctx context.Context, body []byte) error
