package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

func (s *Service) GetByID(ctx context.Context, restaurantID, orderID string) interfaces.Result[*domain.Order] {
	if cached, hit := s.cache.Lookup(ctx, restaurantID); hit {
		for _, o := range cached {
			if o.ID == orderID {
				return interfaces.Ok(o, "")
			}
		}
	}

	o, err := s.store.Get(ctx, restaurantID, orderID)
	if err != nil {
		return interfaces.Fail[*domain.Order](err)
	}
	return interfaces.Ok(o, "")
}

// GetByIDs serves what it can from cache and fetches the rest one by one.
// A failed fetch is logged and left out, the batch still succeeds.
func (s *Service) GetByIDs(ctx context.Context, restaurantID string, ids []string) interfaces.Result[[]*domain.Order] {
	result := make([]*domain.Order, 0, len(ids))
	if len(ids) == 0 {
		return interfaces.Ok(result, "")
	}

	// 1. Partition into hits and misses
	byID := make(map[string]*domain.Order)
	if cached, hit := s.cache.Lookup(ctx, restaurantID); hit {
		for _, o := range cached {
			byID[o.ID] = o
		}
	}

	seen := make(map[string]struct{}, len(ids))
	var misses []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if o, ok := byID[id]; ok {
			result = append(result, o)
		} else {
			misses = append(misses, id)
		}
	}

	// 2. Fetch misses
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs *multierror.Error
	)
	for _, id := range misses {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o, err := s.store.Get(ctx, restaurantID, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("order %s: %w", id, err))
				return
			}
			result = append(result, o)
		}(id)
	}
	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Warn("batch_fetch_partial", "Some orders could not be loaded", logger.RequestID(ctx), map[string]interface{}{
			"requested": len(seen),
			"loaded":    len(result),
			"error":     err.Error(),
		})
		if len(result) == 0 {
			return interfaces.Fail[[]*domain.Order](err)
		}
	}

	// 3. Merge and sort
	domain.SortNewestFirst(result)
	return interfaces.Ok(result, fmt.Sprintf("Loaded %d of %d orders", len(result), len(seen)))
}

// GetOrders returns every order of the restaurant, cache first.
func (s *Service) GetOrders(ctx context.Context, restaurantID string) interfaces.Result[[]*domain.Order] {
	if cached, hit := s.cache.Lookup(ctx, restaurantID); hit {
		domain.SortNewestFirst(cached)
		return interfaces.Ok(cached, "")
	}

	orders, err := s.store.Query(ctx, restaurantID, domain.OrderQuery{})
	if err != nil {
		return interfaces.Fail[[]*domain.Order](err)
	}
	domain.SortNewestFirst(orders)
	s.cache.Set(ctx, restaurantID, orders)
	return interfaces.Ok(orders, "")
}

// GetByTable and GetActive ask the store without ordering, so no composite
// index is needed, and sort here.
func (s *Service) GetByTable(ctx context.Context, restaurantID, tableID string) interfaces.Result[[]*domain.Order] {
	return s.query(ctx, restaurantID, domain.OrderQuery{TableIDs: []string{tableID}})
}

func (s *Service) GetActive(ctx context.Context, restaurantID string) interfaces.Result[[]*domain.Order] {
	return s.query(ctx, restaurantID, domain.ActiveQuery())
}

// GetByDateRange lists orders created in [from, to), a zero bound is open.
// A fresh cached list holds every order of the restaurant, so it is filtered
// locally instead of asking the store.
func (s *Service) GetByDateRange(ctx context.Context, restaurantID string, from, to time.Time) interfaces.Result[[]*domain.Order] {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return interfaces.Fail[[]*domain.Order](fmt.Errorf("%w: %s is not before %s",
			domain.ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339)))
	}

	var q domain.OrderQuery
	if !from.IsZero() {
		q.CreatedFrom = &from
	}
	if !to.IsZero() {
		q.CreatedTo = &to
	}

	if s.cache.IsFresh(ctx, restaurantID) {
		if cached, hit := s.cache.Lookup(ctx, restaurantID); hit {
			matched := make([]*domain.Order, 0, len(cached))
			for _, o := range cached {
				if q.Matches(o) {
					matched = append(matched, o)
				}
			}
			domain.SortNewestFirst(matched)
			return interfaces.Ok(matched, "")
		}
	}
	return s.query(ctx, restaurantID, q)
}

func (s *Service) query(ctx context.Context, restaurantID string, q domain.OrderQuery) interfaces.Result[[]*domain.Order] {
	orders, err := s.store.Query(ctx, restaurantID, q)
	if err != nil {
		s.logger.Error("order_query_failed", "Failed to query orders", logger.RequestID(ctx), map[string]interface{}{
			"restaurant_id": restaurantID,
			"query":         q.Key(),
		}, err)
		return interfaces.Fail[[]*domain.Order](err)
	}
	domain.SortNewestFirst(orders)
	return interfaces.Ok(orders, "")
}
