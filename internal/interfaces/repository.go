package interfaces

import (
	"context"

	"github.com/YelzhanWeb/tableorders/internal/domain"
)

// OrderStore is the durable, authoritative order storage. Every method is
// scoped to one restaurant namespace.
type OrderStore interface {
	Put(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error)
	Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error)
	Update(ctx context.Context, restaurantID, orderID string, patch domain.OrderPatch) (*domain.Order, error)
	NextOrderNumber(ctx context.Context, restaurantID string) (string, error)
	// Watch pushes the full matching result set on start and after every
	// change until the returned stop function is called. Pushes come from
	// the store's own goroutine and never before Watch returns.
	Watch(ctx context.Context, restaurantID string, q domain.OrderQuery, push PushFunc) (stop func(), err error)
}

// PushFunc receives a live query result. A nil slice with a non-nil error
// reports a broken stream.
type PushFunc func(orders []*domain.Order, err error)

// KVStore is the local, process-durable key-value medium behind the order
// cache and carts.
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// StatusHistoryReader is implemented by stores that keep an audit trail of
// status changes.
type StatusHistoryReader interface {
	StatusHistory(ctx context.Context, restaurantID, orderID string) ([]domain.StatusLog, error)
}
