package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// ChangesChannel is the NOTIFY channel the orders trigger writes to. The
// payload is the restaurant id.
const ChangesChannel = "order_changes"

const reconnectDelay = 5 * time.Second

type OrderStore struct {
	db     Database
	logger logger.Logger
	now    func() time.Time
	delay  time.Duration

	mu        sync.Mutex
	watchers  map[string]map[int]*watcher
	nextID    int
	listening bool
	ctx       context.Context
	cancel    context.CancelFunc
}

type watcher struct {
	query  domain.OrderQuery
	push   interfaces.PushFunc
	notify chan struct{}
	done   chan struct{}
}

var (
	_ interfaces.OrderStore          = (*OrderStore)(nil)
	_ interfaces.StatusHistoryReader = (*OrderStore)(nil)
)

func NewOrderStore(db Database, lgr logger.Logger) *OrderStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &OrderStore{
		db:       db,
		logger:   lgr,
		now:      time.Now,
		delay:    reconnectDelay,
		watchers: make(map[string]map[int]*watcher),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *OrderStore) Put(ctx context.Context, order *domain.Order) error {
	doc, err := json.Marshal(domain.ToDocument(order))
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (id, restaurant_id, number, table_id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET table_id = EXCLUDED.table_id,
		    status = EXCLUDED.status,
		    document = EXCLUDED.document,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, query,
		order.ID, order.RestaurantID, order.Number, order.TableID, string(order.Status),
		doc, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
	)
	if err != nil {
		return classify(err, "insert order")
	}

	if err := logStatus(ctx, tx, order.ID, order.Status, order.StaffID, order.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "commit order")
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error) {
	query := `
		SELECT document
		FROM orders
		WHERE restaurant_id = $1 AND id = $2
	`
	var doc []byte
	if err := s.db.QueryRow(ctx, query, restaurantID, orderID).Scan(&doc); err != nil {
		return nil, classify(err, "get order")
	}
	return decode(doc)
}

func (s *OrderStore) Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error) {
	query, args := buildQuery(restaurantID, q)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "query orders")
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, classify(err, "scan order")
		}
		o, err := decode(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "read orders")
	}
	return orders, nil
}

// Update locks the row, checks the expected status and writes the patched
// document in one transaction.
func (s *OrderStore) Update(ctx context.Context, restaurantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, classify(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT document
		FROM orders
		WHERE restaurant_id = $1 AND id = $2
		FOR UPDATE
	`, restaurantID, orderID).Scan(&raw)
	if err != nil {
		return nil, classify(err, "lock order")
	}
	current, err := decode(raw)
	if err != nil {
		return nil, err
	}

	if patch.ExpectedStatus != nil && *patch.ExpectedStatus != current.Status {
		return nil, domain.ErrStatusConflict
	}

	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now().UTC()
	}
	updated := current.Apply(patch)
	doc, err := json.Marshal(domain.ToDocument(updated))
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	query := `
		UPDATE orders
		SET table_id = $1, status = $2, document = $3, updated_at = $4
		WHERE id = $5
	`
	if _, err := tx.Exec(ctx, query, updated.TableID, string(updated.Status), doc, updated.UpdatedAt.UTC(), orderID); err != nil {
		return nil, classify(err, "update order")
	}

	if updated.Status != current.Status {
		if err := logStatus(ctx, tx, orderID, updated.Status, patch.ChangedBy, updated.UpdatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err, "commit order update")
	}
	return updated, nil
}

func (s *OrderStore) NextOrderNumber(ctx context.Context, restaurantID string) (string, error) {
	now := s.now().UTC()

	query := `
		INSERT INTO order_counters (restaurant_id, day, last_seq)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (restaurant_id, day) DO UPDATE
		SET last_seq = order_counters.last_seq + 1
		RETURNING last_seq
	`
	var seq int
	if err := s.db.QueryRow(ctx, query, restaurantID, now.Format("2006-01-02")).Scan(&seq); err != nil {
		return "", classify(err, "increment order counter")
	}
	return domain.GenerateOrderNumber(now, seq), nil
}

func (s *OrderStore) StatusHistory(ctx context.Context, restaurantID, orderID string) ([]domain.StatusLog, error) {
	query := `
		SELECT l.status, l.changed_by, l.changed_at
		FROM order_status_log l
		JOIN orders o ON o.id = l.order_id
		WHERE o.restaurant_id = $1 AND l.order_id = $2
		ORDER BY l.changed_at, l.id
	`
	rows, err := s.db.Query(ctx, query, restaurantID, orderID)
	if err != nil {
		return nil, classify(err, "query status history")
	}
	defer rows.Close()

	history := make([]domain.StatusLog, 0)
	for rows.Next() {
		var status string
		entry := domain.StatusLog{OrderID: orderID}
		if err := rows.Scan(&status, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, classify(err, "scan status history")
		}
		entry.Status = domain.Status(status)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "read status history")
	}
	return history, nil
}

// Watch re-runs the query whenever the orders trigger notifies a change for
// the restaurant. One LISTEN connection serves every watcher.
func (s *OrderStore) Watch(ctx context.Context, restaurantID string, q domain.OrderQuery, push interfaces.PushFunc) (func(), error) {
	w := &watcher{
		query:  q,
		push:   push,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, errors.New("order store closed")
	}
	s.nextID++
	id := s.nextID
	if s.watchers[restaurantID] == nil {
		s.watchers[restaurantID] = make(map[int]*watcher)
	}
	s.watchers[restaurantID][id] = w
	if !s.listening {
		s.listening = true
		go s.listen(s.ctx)
	}
	s.mu.Unlock()

	w.notify <- struct{}{}
	go s.run(restaurantID, w)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[restaurantID], id)
			if len(s.watchers[restaurantID]) == 0 {
				delete(s.watchers, restaurantID)
			}
			s.mu.Unlock()
			close(w.done)
		})
	}
	return stop, nil
}

// Close stops the listener. Watchers must be stopped by their owners.
func (s *OrderStore) Close() {
	s.cancel()
}

func (s *OrderStore) listen(ctx context.Context) {
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("order_listen_disconnected", "Order change listener disconnected, reconnecting", "", map[string]interface{}{
			"channel": ChangesChannel,
			"delay":   s.delay.String(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

func (s *OrderStore) listenOnce(ctx context.Context) error {
	notifications, err := s.db.Listen(ctx, ChangesChannel)
	if err != nil {
		return err
	}
	defer notifications.Close()

	// changes may have been missed while disconnected
	s.signalAll()

	for {
		restaurantID, err := notifications.Wait(ctx)
		if err != nil {
			return err
		}
		s.signal(restaurantID)
	}
}

func (s *OrderStore) run(restaurantID string, w *watcher) {
	for {
		select {
		case <-w.done:
			return
		case <-w.notify:
			result, err := s.Query(s.ctx, restaurantID, w.query)

			select {
			case <-w.done:
				return
			default:
			}
			if err != nil {
				w.push(nil, err)
				continue
			}
			w.push(result, nil)
		}
	}
}

func (s *OrderStore) signal(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers[restaurantID] {
		wake(w)
	}
}

func (s *OrderStore) signalAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byID := range s.watchers {
		for _, w := range byID {
			wake(w)
		}
	}
}

func wake(w *watcher) {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func logStatus(ctx context.Context, tx Querier, orderID string, status domain.Status, changedBy string, at time.Time) error {
	query := `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, query, orderID, string(status), changedBy, at.UTC()); err != nil {
		return classify(err, "log status")
	}
	return nil
}

func decode(raw []byte) (*domain.Order, error) {
	var doc domain.OrderDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode order document: %w", err)
	}
	return domain.FromDocument(doc), nil
}

// buildQuery renders an OrderQuery as SQL. Set filters use = ANY so the
// argument count does not depend on the set size.
func buildQuery(restaurantID string, q domain.OrderQuery) (string, []any) {
	var b strings.Builder
	args := []any{restaurantID}
	b.WriteString("SELECT document FROM orders WHERE restaurant_id = $1")

	if len(q.TableIDs) > 0 {
		args = append(args, q.TableIDs)
		fmt.Fprintf(&b, " AND table_id = ANY($%d)", len(args))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, st := range q.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		fmt.Fprintf(&b, " AND status = ANY($%d)", len(args))
	}
	if q.CreatedFrom != nil {
		args = append(args, q.CreatedFrom.UTC())
		fmt.Fprintf(&b, " AND created_at >= $%d", len(args))
	}
	if q.CreatedTo != nil {
		args = append(args, q.CreatedTo.UTC())
		fmt.Fprintf(&b, " AND created_at < $%d", len(args))
	}
	if q.Newest {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
