package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/domain"
)

// Result is the uniform outcome of every order service call. Failures are
// values, Message is safe to show to staff.
type Result[T any] struct {
	Success bool
	Data    T
	Err     error
	Message string
}

func Ok[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Data: data, Message: message}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err, Message: domain.UserMessage(err)}
}

// Commands

type CreateOrderCommand struct {
	RestaurantID string
	TableID      string
	StaffID      string
	Type         domain.OrderType
	Lines        []domain.CartLine
	TaxRate      float64
	Discount     float64
	Notes        string
}

// Listener receives the full ordered result of a live order stream.
type Listener func(orders []*domain.Order, err error)

// Service interfaces

type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) Result[*domain.Order]
	UpdateOrderStatus(ctx context.Context, restaurantID, orderID string, status domain.Status, actorID string) Result[*domain.Order]
	GetByID(ctx context.Context, restaurantID, orderID string) Result[*domain.Order]
	GetByIDs(ctx context.Context, restaurantID string, ids []string) Result[[]*domain.Order]
	GetOrders(ctx context.Context, restaurantID string) Result[[]*domain.Order]
	GetByTable(ctx context.Context, restaurantID, tableID string) Result[[]*domain.Order]
	GetActive(ctx context.Context, restaurantID string) Result[[]*domain.Order]
	GetByDateRange(ctx context.Context, restaurantID string, from, to time.Time) Result[[]*domain.Order]
	Subscribe(restaurantID string, listener Listener) (unsubscribe func(), err error)
	SubscribeActive(restaurantID string, listener Listener) (unsubscribe func(), err error)
	TransferOrders(ctx context.Context, restaurantID, sourceTable, targetTable, actorID string) Result[int]
	MergeOrders(ctx context.Context, restaurantID string, tableIDs []string) Result[[]*domain.Order]
	AnnotateForMerge(ctx context.Context, restaurantID, orderID string, mergedTableLabels []string) Result[*domain.Order]
	ClearCache(ctx context.Context, restaurantID string) error
}

type CartService interface {
	Lines(ctx context.Context, restaurantID, tableID string) []domain.CartLine
	AddLine(ctx context.Context, restaurantID, tableID string, line domain.CartLine) []domain.CartLine
	SetQuantity(ctx context.Context, restaurantID, tableID, menuItemID string, qty int) []domain.CartLine
	RemoveLine(ctx context.Context, restaurantID, tableID, menuItemID string) []domain.CartLine
	Clear(ctx context.Context, restaurantID, tableID string)
	Total(ctx context.Context, restaurantID, tableID string) domain.CartTotal
}
