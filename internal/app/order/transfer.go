package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// TransferOrders moves every active order of sourceTable to targetTable.
// Finished orders stay where they were. The restaurant's cache entry is
// dropped afterwards.
func (s *Service) TransferOrders(ctx context.Context, restaurantID, sourceTable, targetTable, actorID string) interfaces.Result[int] {
	requestID := logger.RequestID(ctx)

	if sourceTable == "" || targetTable == "" {
		return interfaces.Fail[int](domain.ErrNoTables)
	}
	if sourceTable == targetTable {
		return interfaces.Fail[int](domain.ErrSameTable)
	}

	// 1. Active orders on the source table
	orders, err := s.store.Query(ctx, restaurantID, domain.ActiveQuery(sourceTable))
	if err != nil {
		return interfaces.Fail[int](err)
	}

	// 2. Re-point each one, guarded by the status it had when read
	moved := 0
	var errs *multierror.Error
	for _, o := range orders {
		expected := o.Status
		target := targetTable
		patch := domain.OrderPatch{
			TableID:        &target,
			ExpectedStatus: &expected,
			UpdatedAt:      s.now().UTC(),
			ChangedBy:      actorID,
		}
		if _, err := s.store.Update(ctx, restaurantID, o.ID, patch); err != nil {
			if errors.Is(err, domain.ErrStatusConflict) {
				// changed status meanwhile, it is no longer ours to move
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		moved++
	}

	// 3. Cross-table change, rebuild the cache on next read
	s.cache.Invalidate(ctx, restaurantID)

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Error("transfer_partial", "Some orders were not transferred", requestID, map[string]interface{}{
			"source_table": sourceTable,
			"target_table": targetTable,
			"moved":        moved,
		}, err)
		if moved == 0 {
			return interfaces.Fail[int](err)
		}
	}

	s.logger.Info("orders_transferred", "Orders transferred", requestID, map[string]interface{}{
		"source_table": sourceTable,
		"target_table": targetTable,
		"moved":        moved,
		"changed_by":   actorID,
	})

	if moved > 0 {
		s.publish(ctx, interfaces.OrderEventMessage{
			Type:         interfaces.EventOrdersTransferred,
			RestaurantID: restaurantID,
			TableID:      targetTable,
			ChangedBy:    actorID,
			Timestamp:    s.now().UTC(),
		})
	}

	return interfaces.Ok(moved, fmt.Sprintf("Moved %d orders from table %s to table %s", moved, sourceTable, targetTable))
}

// MergeOrders lists the active orders of several tables as one bill,
// oldest first. Nothing is written.
func (s *Service) MergeOrders(ctx context.Context, restaurantID string, tableIDs []string) interfaces.Result[[]*domain.Order] {
	if len(tableIDs) == 0 {
		return interfaces.Fail[[]*domain.Order](domain.ErrNoTables)
	}

	orders, err := s.store.Query(ctx, restaurantID, domain.ActiveQuery(tableIDs...))
	if err != nil {
		return interfaces.Fail[[]*domain.Order](err)
	}
	domain.SortOldestFirst(orders)
	return interfaces.Ok(orders, fmt.Sprintf("%d orders across %d tables", len(orders), len(tableIDs)))
}

// AnnotateForMerge appends a note naming the merged tables. Items and totals
// are untouched.
func (s *Service) AnnotateForMerge(ctx context.Context, restaurantID, orderID string, mergedTableLabels []string) interfaces.Result[*domain.Order] {
	if len(mergedTableLabels) == 0 {
		return interfaces.Fail[*domain.Order](domain.ErrNoTables)
	}

	current, err := s.store.Get(ctx, restaurantID, orderID)
	if err != nil {
		return interfaces.Fail[*domain.Order](err)
	}

	note := "Merged tables: " + strings.Join(mergedTableLabels, ", ")
	if current.Notes != "" {
		note = current.Notes + "\n" + note
	}

	updated, err := s.store.Update(ctx, restaurantID, orderID, domain.OrderPatch{
		Notes:     &note,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return interfaces.Fail[*domain.Order](err)
	}

	if !s.cache.Update(ctx, restaurantID, updated) {
		s.logger.Debug("cache_skip", "Order not cached, note stored remotely only", logger.RequestID(ctx), map[string]interface{}{
			"order_id": orderID,
		})
	}
	return interfaces.Ok(updated, "Merge note added")
}
