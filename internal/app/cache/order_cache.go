package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const DefaultTTL = 30 * time.Minute

// OrderCache mirrors each restaurant's order list in local storage for a
// bounded time. Every mutation holds mu from read to write so two writers
// on the same restaurant never interleave.
type OrderCache struct {
	kv     interfaces.KVStore
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger

	mu      sync.Mutex
	written map[string]struct{}
}

func New(kv interfaces.KVStore, ttl time.Duration, lgr logger.Logger) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderCache{
		kv:      kv,
		ttl:     ttl,
		now:     time.Now,
		logger:  lgr,
		written: make(map[string]struct{}),
	}
}

// WithClock replaces the time source, used by tests.
func (c *OrderCache) WithClock(now func() time.Time) *OrderCache {
	c.now = now
	return c
}

func ordersKey(restaurantID string) string { return fmt.Sprintf("orders:%s", restaurantID) }
func expiryKey(restaurantID string) string { return fmt.Sprintf("orders:%s:expiry", restaurantID) }

// Get returns the cached orders, or an empty slice on a miss or expiry.
func (c *OrderCache) Get(ctx context.Context, restaurantID string) []*domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, ok := c.load(ctx, restaurantID)
	if !ok {
		return []*domain.Order{}
	}
	return orders
}

// Lookup is Get that also reports whether the entry was a hit.
func (c *OrderCache) Lookup(ctx context.Context, restaurantID string) ([]*domain.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx, restaurantID)
}

func (c *OrderCache) Set(ctx context.Context, restaurantID string, orders []*domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(ctx, restaurantID, orders)
}

// Add prepends the order to a live entry. A missing entry is left missing,
// the cached list always stands for the whole restaurant.
func (c *OrderCache) Add(ctx context.Context, restaurantID string, order *domain.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, ok := c.load(ctx, restaurantID)
	if !ok {
		return false
	}
	next := make([]*domain.Order, 0, len(orders)+1)
	next = append(next, order)
	for _, o := range orders {
		if o.ID != order.ID {
			next = append(next, o)
		}
	}
	return c.store(ctx, restaurantID, next)
}

// Update replaces the order by id. It reports false when there is nothing to
// replace, the caller then has to re-read from the store.
func (c *OrderCache) Update(ctx context.Context, restaurantID string, order *domain.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, ok := c.load(ctx, restaurantID)
	if !ok {
		return false
	}
	for i, o := range orders {
		if o.ID == order.ID {
			orders[i] = order
			return c.store(ctx, restaurantID, orders)
		}
	}
	return false
}

func (c *OrderCache) Invalidate(ctx context.Context, restaurantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop(ctx, restaurantID)
}

// IsFresh checks the expiry without decoding the orders.
func (c *OrderCache) IsFresh(ctx context.Context, restaurantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh(ctx, restaurantID)
}

// Clear drops every entry this cache wrote.
func (c *OrderCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for restaurantID := range c.written {
		c.drop(ctx, restaurantID)
	}
}

func (c *OrderCache) fresh(ctx context.Context, restaurantID string) bool {
	raw, found, err := c.kv.Get(ctx, expiryKey(restaurantID))
	if err != nil {
		c.logger.Warn("cache_read_failed", "Cache expiry unreadable, treating as miss", "", map[string]interface{}{
			"restaurant_id": restaurantID,
			"error":         err.Error(),
		})
		return false
	}
	if !found {
		return false
	}
	ns, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}
	return c.now().Before(time.Unix(0, ns))
}

func (c *OrderCache) load(ctx context.Context, restaurantID string) ([]*domain.Order, bool) {
	if !c.fresh(ctx, restaurantID) {
		return nil, false
	}

	raw, found, err := c.kv.Get(ctx, ordersKey(restaurantID))
	if err != nil || !found {
		return nil, false
	}

	var docs []domain.OrderDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		c.logger.Warn("cache_decode_failed", "Cached orders unreadable, treating as miss", "", map[string]interface{}{
			"restaurant_id": restaurantID,
			"error":         err.Error(),
		})
		return nil, false
	}

	orders := make([]*domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, domain.FromDocument(doc))
	}
	return orders, true
}

func (c *OrderCache) store(ctx context.Context, restaurantID string, orders []*domain.Order) bool {
	docs := make([]domain.OrderDocument, 0, len(orders))
	for _, o := range orders {
		docs = append(docs, domain.ToDocument(o))
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache_encode_failed", "Failed to encode orders for cache", "", map[string]interface{}{
			"restaurant_id": restaurantID,
		}, err)
		return false
	}

	expiry := strconv.FormatInt(c.now().Add(c.ttl).UnixNano(), 10)

	// expiry is written last so a half-written entry reads as a miss or old data
	if err := c.kv.Set(ctx, ordersKey(restaurantID), raw); err != nil {
		c.logWriteFailure(restaurantID, err)
		return false
	}
	if err := c.kv.Set(ctx, expiryKey(restaurantID), []byte(expiry)); err != nil {
		c.logWriteFailure(restaurantID, err)
		return false
	}
	c.written[restaurantID] = struct{}{}
	return true
}

func (c *OrderCache) drop(ctx context.Context, restaurantID string) {
	if err := c.kv.Delete(ctx, ordersKey(restaurantID), expiryKey(restaurantID)); err != nil {
		c.logger.Error("cache_invalidate_failed", "Failed to drop cache entry", "", map[string]interface{}{
			"restaurant_id": restaurantID,
		}, err)
		return
	}
	delete(c.written, restaurantID)
}

func (c *OrderCache) logWriteFailure(restaurantID string, err error) {
	c.logger.Error("cache_write_failed", "Failed to write cache entry", "", map[string]interface{}{
		"restaurant_id": restaurantID,
	}, err)
}
