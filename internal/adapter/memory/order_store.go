package memory

import (
	"context"
	"sync"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// OrderStore keeps orders in process memory. It backs the "memory" store
// driver and the service tests.
type OrderStore struct {
	mu       sync.Mutex
	orders   map[string]map[string]*domain.Order // restaurant -> id -> order
	counters map[string]int                      // restaurant|day -> last sequence
	watchers map[string]map[int]*watcher         // restaurant -> watcher id
	nextID   int
	now      func() time.Time
}

type watcher struct {
	query  domain.OrderQuery
	push   interfaces.PushFunc
	notify chan struct{}
	done   chan struct{}
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:   make(map[string]map[string]*domain.Order),
		counters: make(map[string]int),
		watchers: make(map[string]map[int]*watcher),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for order numbers.
func (s *OrderStore) WithClock(now func() time.Time) *OrderStore {
	s.now = now
	return s
}

func (s *OrderStore) Put(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	byID, ok := s.orders[order.RestaurantID]
	if !ok {
		byID = make(map[string]*domain.Order)
		s.orders[order.RestaurantID] = byID
	}
	cp := *order
	byID[order.ID] = &cp
	s.mu.Unlock()

	s.signal(order.RestaurantID)
	return nil
}

func (s *OrderStore) Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[restaurantID][orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *OrderStore) Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(restaurantID, q), nil
}

func (s *OrderStore) queryLocked(restaurantID string, q domain.OrderQuery) []*domain.Order {
	result := make([]*domain.Order, 0)
	for _, o := range s.orders[restaurantID] {
		if q.Matches(o) {
			cp := *o
			result = append(result, &cp)
		}
	}
	if q.Newest {
		domain.SortNewestFirst(result)
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

func (s *OrderStore) Update(ctx context.Context, restaurantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	s.mu.Lock()
	o, ok := s.orders[restaurantID][orderID]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrOrderNotFound
	}
	if patch.ExpectedStatus != nil && *patch.ExpectedStatus != o.Status {
		s.mu.Unlock()
		return nil, domain.ErrStatusConflict
	}
	updated := o.Apply(patch)
	s.orders[restaurantID][orderID] = updated
	cp := *updated
	s.mu.Unlock()

	s.signal(restaurantID)
	return &cp, nil
}

func (s *OrderStore) NextOrderNumber(ctx context.Context, restaurantID string) (string, error) {
	now := s.now().UTC()
	key := restaurantID + "|" + now.Format("20060102")

	s.mu.Lock()
	s.counters[key]++
	seq := s.counters[key]
	s.mu.Unlock()

	return domain.GenerateOrderNumber(now, seq), nil
}

// Watch pushes asynchronously. Bursts of changes are coalesced into one push
// of the latest result.
func (s *OrderStore) Watch(ctx context.Context, restaurantID string, q domain.OrderQuery, push interfaces.PushFunc) (func(), error) {
	w := &watcher{
		query:  q,
		push:   push,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.watchers[restaurantID] == nil {
		s.watchers[restaurantID] = make(map[int]*watcher)
	}
	s.watchers[restaurantID][id] = w
	s.mu.Unlock()

	w.notify <- struct{}{}
	go s.run(restaurantID, w)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[restaurantID], id)
			s.mu.Unlock()
			close(w.done)
		})
	}
	return stop, nil
}

func (s *OrderStore) run(restaurantID string, w *watcher) {
	for {
		select {
		case <-w.done:
			return
		case <-w.notify:
			s.mu.Lock()
			result := s.queryLocked(restaurantID, w.query)
			s.mu.Unlock()

			select {
			case <-w.done:
				return
			default:
			}
			w.push(result, nil)
		}
	}
}

// WatcherCount reports open live queries for a restaurant.
func (s *OrderStore) WatcherCount(restaurantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[restaurantID])
}

func (s *OrderStore) signal(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers[restaurantID] {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}
