package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/app/cache"
	"github.com/YelzhanWeb/tableorders/internal/app/subscription"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

type Service struct {
	store     interfaces.OrderStore
	cache     *cache.OrderCache
	carts     interfaces.CartService
	inventory interfaces.InventoryDeductor
	events    interfaces.EventPublisher
	subs      *subscription.Registry
	logger    logger.Logger

	now   func() time.Time
	newID func() string
}

var _ interfaces.OrderService = (*Service)(nil)

// NewService wires the order pipeline. events may be nil when no broker is
// configured.
func NewService(
	store interfaces.OrderStore,
	orderCache *cache.OrderCache,
	carts interfaces.CartService,
	inventory interfaces.InventoryDeductor,
	events interfaces.EventPublisher,
	logger logger.Logger,
) *Service {
	return &Service{
		store:     store,
		cache:     orderCache,
		carts:     carts,
		inventory: inventory,
		events:    events,
		subs:      subscription.NewRegistry(store, logger),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateOrder commits a cart as a placed order. Nil cmd.Lines means the
// table's current cart. Stock is not touched here, it is deducted once the
// order completes.
func (s *Service) CreateOrder(ctx context.Context, cmd interfaces.CreateOrderCommand) interfaces.Result[*domain.Order] {
	requestID := logger.RequestID(ctx)

	// 1. Validate input before any I/O
	lines := cmd.Lines
	if lines == nil {
		lines = s.carts.Lines(ctx, cmd.RestaurantID, cmd.TableID)
	}
	if len(lines) == 0 {
		return interfaces.Fail[*domain.Order](domain.ErrEmptyCart)
	}
	if cmd.Type != "" && !cmd.Type.Valid() {
		return interfaces.Fail[*domain.Order](fmt.Errorf("%w: %q", domain.ErrInvalidOrderType, cmd.Type))
	}

	// 2. Project lines and compute totals
	items := domain.ToOrderLines(lines)
	totals, err := domain.ComputeTotals(items, cmd.TaxRate, cmd.Discount)
	if err != nil {
		s.logger.Error("validation_failed", "Order totals rejected", requestID, map[string]interface{}{
			"restaurant_id": cmd.RestaurantID,
			"table_id":      cmd.TableID,
		}, err)
		return interfaces.Fail[*domain.Order](err)
	}

	// 3. Restaurant scoped order number
	number, err := s.store.NextOrderNumber(ctx, cmd.RestaurantID)
	if err != nil {
		s.logger.Error("order_number_failed", "Failed to generate order number", requestID, nil, err)
		return interfaces.Fail[*domain.Order](fmt.Errorf("failed to generate order number: %w", err))
	}

	order := domain.NewOrder(s.newID(), cmd.RestaurantID, number, cmd.TableID, cmd.StaffID, cmd.Type, items, totals, cmd.Notes, s.now().UTC())

	// 4. Persist
	if err := s.store.Put(ctx, order); err != nil {
		s.logger.Error("order_save_failed", "Failed to save order", requestID, map[string]interface{}{
			"order_number": number,
		}, err)
		return interfaces.Fail[*domain.Order](err)
	}

	// 5. Write through and clear the cart
	s.cache.Add(ctx, cmd.RestaurantID, order)
	s.carts.Clear(ctx, cmd.RestaurantID, cmd.TableID)

	s.logger.Info("order_created", "Order placed", requestID, map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.Number,
		"table_id":     order.TableID,
		"total":        order.Total,
	})

	s.publish(ctx, interfaces.OrderEventMessage{
		Type:         interfaces.EventOrderCreated,
		RestaurantID: order.RestaurantID,
		OrderID:      order.ID,
		OrderNumber:  order.Number,
		TableID:      order.TableID,
		NewStatus:    order.Status,
		Total:        order.Total,
		ChangedBy:    order.StaffID,
		Timestamp:    order.CreatedAt,
	})

	return interfaces.Ok(order, fmt.Sprintf("Order %s placed successfully", order.Number))
}

// UpdateOrderStatus moves an order along its lifecycle. Requesting the
// current status again succeeds without side effects. Reaching completed
// marks the order paid and deducts stock exactly once.
func (s *Service) UpdateOrderStatus(ctx context.Context, restaurantID, orderID string, status domain.Status, actorID string) interfaces.Result[*domain.Order] {
	requestID := logger.RequestID(ctx)

	if !status.Valid() {
		return interfaces.Fail[*domain.Order](fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status))
	}

	// 1. Authoritative current state
	current, err := s.store.Get(ctx, restaurantID, orderID)
	if err != nil {
		return interfaces.Fail[*domain.Order](err)
	}
	if current.Status == status {
		return interfaces.Ok(current, fmt.Sprintf("Order %s is already %s", current.Number, status))
	}

	// 2. Compare-and-set on the status we just read
	patch, err := current.TransitionPatch(status, s.now().UTC())
	if err != nil {
		return interfaces.Fail[*domain.Order](err)
	}
	patch.ChangedBy = actorID
	patch.WriteID = s.newID()

	updated, err := s.store.Update(ctx, restaurantID, orderID, patch)
	if errors.Is(err, domain.ErrStatusConflict) {
		latest, getErr := s.store.Get(ctx, restaurantID, orderID)
		switch {
		case getErr == nil && latest.WriteID == patch.WriteID:
			// our write committed but its reply was lost, run the effects
			updated, err = latest, nil
		case getErr == nil && latest.Status == status:
			// someone else made the same change, and ran its effects
			return interfaces.Ok(latest, fmt.Sprintf("Order %s is already %s", latest.Number, status))
		default:
			return interfaces.Fail[*domain.Order](err)
		}
	}
	if err != nil {
		s.logger.Error("status_update_failed", "Failed to update order status", requestID, map[string]interface{}{
			"order_id": orderID,
			"status":   status,
		}, err)
		return interfaces.Fail[*domain.Order](err)
	}

	// 3. Only the caller that won the CAS into completed deducts stock
	if status == domain.StatusCompleted {
		s.deductStock(ctx, updated, actorID)
	}

	// 4. Cache
	if status == domain.StatusCancelled {
		s.cache.Invalidate(ctx, restaurantID)
	} else if !s.cache.Update(ctx, restaurantID, updated) {
		if fresh, err := s.store.Get(ctx, restaurantID, orderID); err == nil {
			updated = fresh
		}
	}

	s.logger.Info("order_status_changed", "Order status changed", requestID, map[string]interface{}{
		"order_id":   orderID,
		"old_status": current.Status,
		"new_status": status,
		"changed_by": actorID,
	})

	s.publish(ctx, interfaces.OrderEventMessage{
		Type:         interfaces.EventOrderStatusChanged,
		RestaurantID: restaurantID,
		OrderID:      updated.ID,
		OrderNumber:  updated.Number,
		TableID:      updated.TableID,
		OldStatus:    current.Status,
		NewStatus:    status,
		Total:        updated.Total,
		ChangedBy:    actorID,
		Timestamp:    updated.UpdatedAt,
	})

	return interfaces.Ok(updated, fmt.Sprintf("Order %s is now %s", updated.Number, status))
}

// deductStock never fails the caller, a stock accounting problem must not
// block completing an order.
func (s *Service) deductStock(ctx context.Context, order *domain.Order, actorID string) {
	if s.inventory == nil {
		return
	}
	if err := s.inventory.Deduct(ctx, order.ID, order.StockLines(), order.RestaurantID, actorID); err != nil {
		s.logger.Error("inventory_deduct_failed", "Failed to deduct stock for completed order", logger.RequestID(ctx), map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.Number,
		}, err)
		return
	}
	s.logger.Debug("inventory_deducted", "Stock deducted", logger.RequestID(ctx), map[string]interface{}{
		"order_id": order.ID,
		"lines":    len(order.Items),
	})
}

func (s *Service) publish(ctx context.Context, msg interfaces.OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, msg); err != nil {
		s.logger.Error("rabbitmq_publish_failed", "Failed to publish order event", logger.RequestID(ctx), map[string]interface{}{
			"type":     msg.Type,
			"order_id": msg.OrderID,
		}, err)
	}
}

// ClearCache drops the cached orders of one restaurant, or of every
// restaurant when restaurantID is empty.
func (s *Service) ClearCache(ctx context.Context, restaurantID string) error {
	if restaurantID == "" {
		s.cache.Clear(ctx)
	} else {
		s.cache.Invalidate(ctx, restaurantID)
	}
	s.logger.Info("cache_cleared", "Order cache cleared", logger.RequestID(ctx), map[string]interface{}{
		"restaurant_id": restaurantID,
	})
	return nil
}

// Dispose stops every live query opened through this service.
func (s *Service) Dispose() {
	s.subs.Close()
}
