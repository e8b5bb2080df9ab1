package order

import (
	"context"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// Subscribe streams every order of the restaurant. Each push replaces the
// cached list.
func (s *Service) Subscribe(restaurantID string, listener interfaces.Listener) (func(), error) {
	sink := func(orders []*domain.Order) {
		s.cache.Set(context.Background(), restaurantID, orders)
	}
	return s.subs.Subscribe(restaurantID, domain.OrderQuery{}, sink, listener)
}

// SubscribeActive streams non-terminal orders. A push only covers active
// orders, so it is folded into a live cache entry instead of replacing it.
func (s *Service) SubscribeActive(restaurantID string, listener interfaces.Listener) (func(), error) {
	sink := func(active []*domain.Order) {
		s.foldActive(context.Background(), restaurantID, active)
	}
	return s.subs.Subscribe(restaurantID, domain.ActiveQuery(), sink, listener)
}

func (s *Service) foldActive(ctx context.Context, restaurantID string, active []*domain.Order) {
	cached, hit := s.cache.Lookup(ctx, restaurantID)
	if !hit {
		return
	}

	pushed := make(map[string]struct{}, len(active))
	merged := make([]*domain.Order, 0, len(cached)+len(active))
	for _, o := range active {
		pushed[o.ID] = struct{}{}
		merged = append(merged, o)
	}
	for _, o := range cached {
		if _, ok := pushed[o.ID]; ok {
			continue
		}
		// a cached active order missing from the push has left the active
		// set; its new state is unknown here
		if o.Status.IsActive() {
			s.cache.Invalidate(ctx, restaurantID)
			return
		}
		merged = append(merged, o)
	}

	domain.SortNewestFirst(merged)
	s.cache.Set(ctx, restaurantID, merged)
}
