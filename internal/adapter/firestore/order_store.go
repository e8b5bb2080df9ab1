package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// maxInValues is the Firestore limit on values in one "in" filter.
const maxInValues = 30

// OrderStore keeps orders under restaurants/{rid}/orders/{id}, daily order
// counters under restaurants/{rid}/counters/{yyyymmdd} and the status trail
// under restaurants/{rid}/orders/{id}/status_log.
type OrderStore struct {
	client *firestore.Client
	logger logger.Logger
	now    func() time.Time
}

type counterDoc struct {
	LastSeq int `firestore:"lastSeq"`
}

type statusDoc struct {
	Status    string    `firestore:"status"`
	ChangedBy string    `firestore:"changedBy"`
	ChangedAt time.Time `firestore:"changedAt"`
}

var (
	_ interfaces.OrderStore          = (*OrderStore)(nil)
	_ interfaces.StatusHistoryReader = (*OrderStore)(nil)
)

func Connect(ctx context.Context, projectID string) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

func NewOrderStore(client *firestore.Client, lgr logger.Logger) *OrderStore {
	return &OrderStore{client: client, logger: lgr, now: time.Now}
}

func (s *OrderStore) orders(restaurantID string) *firestore.CollectionRef {
	return s.client.Collection("restaurants").Doc(restaurantID).Collection("orders")
}

func (s *OrderStore) Put(ctx context.Context, order *domain.Order) error {
	ref := s.orders(order.RestaurantID).Doc(order.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(ref, domain.ToDocument(order)); err != nil {
			return err
		}
		return tx.Set(ref.Collection("status_log").NewDoc(), statusDoc{
			Status:    string(order.Status),
			ChangedBy: order.StaffID,
			ChangedAt: order.CreatedAt.UTC(),
		})
	})
	return classify(err, "put order")
}

func (s *OrderStore) Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error) {
	snap, err := s.orders(restaurantID).Doc(orderID).Get(ctx)
	if err != nil {
		return nil, classify(err, "get order")
	}
	return decode(snap)
}

func (s *OrderStore) Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error) {
	p := planQuery(q)
	docs, err := p.apply(s.orders(restaurantID).Query).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(err, "query orders")
	}
	return p.collect(q, docs)
}

// Update runs the compare-and-set inside a transaction, Firestore retries it
// on contention.
func (s *OrderStore) Update(ctx context.Context, restaurantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	ref := s.orders(restaurantID).Doc(orderID)
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now().UTC()
	}

	var updated *domain.Order
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decode(snap)
		if err != nil {
			return err
		}
		if patch.ExpectedStatus != nil && *patch.ExpectedStatus != current.Status {
			return domain.ErrStatusConflict
		}

		updated = current.Apply(patch)
		if err := tx.Set(ref, domain.ToDocument(updated)); err != nil {
			return err
		}
		if updated.Status == current.Status {
			return nil
		}
		return tx.Set(ref.Collection("status_log").NewDoc(), statusDoc{
			Status:    string(updated.Status),
			ChangedBy: patch.ChangedBy,
			ChangedAt: updated.UpdatedAt.UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, domain.ErrStatusConflict
		}
		return nil, classify(err, "update order")
	}
	return updated, nil
}

func (s *OrderStore) NextOrderNumber(ctx context.Context, restaurantID string) (string, error) {
	now := s.now().UTC()
	ref := s.client.Collection("restaurants").Doc(restaurantID).Collection("counters").Doc(now.Format("20060102"))

	var seq int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var counter counterDoc
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&counter); err != nil {
				return err
			}
		}
		seq = counter.LastSeq + 1
		return tx.Set(ref, counterDoc{LastSeq: seq})
	})
	if err != nil {
		return "", classify(err, "increment order counter")
	}
	return domain.GenerateOrderNumber(now, seq), nil
}

func (s *OrderStore) StatusHistory(ctx context.Context, restaurantID, orderID string) ([]domain.StatusLog, error) {
	iter := s.orders(restaurantID).Doc(orderID).Collection("status_log").
		OrderBy("changedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	history := make([]domain.StatusLog, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err, "query status history")
		}
		var entry statusDoc
		if err := snap.DataTo(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode status entry: %w", err)
		}
		history = append(history, domain.StatusLog{
			OrderID:   orderID,
			Status:    domain.Status(entry.Status),
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
		})
	}
	return history, nil
}

// Watch follows the query with a snapshot listener. The first snapshot is the
// initial result.
func (s *OrderStore) Watch(ctx context.Context, restaurantID string, q domain.OrderQuery, push interfaces.PushFunc) (func(), error) {
	p := planQuery(q)
	watchCtx, cancel := context.WithCancel(context.Background())
	snapshots := p.apply(s.orders(restaurantID).Query).Snapshots(watchCtx)

	go func() {
		for {
			snap, err := snapshots.Next()
			if watchCtx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Error("order_watch_failed", "Order snapshot listener stopped", "", map[string]interface{}{
					"restaurant_id": restaurantID,
					"query":         q.Key(),
				}, err)
				// the listener is done, the subscriber opens a new one
				push(nil, classify(err, "watch orders"))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				push(nil, classify(err, "read snapshot"))
				continue
			}
			orders, err := p.collect(q, docs)
			if err != nil {
				push(nil, err)
				continue
			}
			push(orders, nil)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			snapshots.Stop()
		})
	}, nil
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Order, error) {
	var doc domain.OrderDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", snap.Ref.ID, err)
	}
	if doc.ID == "" {
		doc.ID = snap.Ref.ID
	}
	return domain.FromDocument(doc), nil
}

// queryPlan splits an OrderQuery into what Firestore can filter and what has
// to be filtered after reading. Only one "in" filter is sent per query.
type queryPlan struct {
	tableEq      string
	tableIn      []string
	statusIn     []string
	from, to     *time.Time
	newest       bool
	limit        int
	clientFilter bool
}

func planQuery(q domain.OrderQuery) queryPlan {
	p := queryPlan{from: q.CreatedFrom, to: q.CreatedTo, newest: q.Newest}

	if n := len(q.Statuses); n > 0 && n <= maxInValues {
		for _, st := range q.Statuses {
			p.statusIn = append(p.statusIn, string(st))
		}
	} else if n > maxInValues {
		p.clientFilter = true
	}

	switch n := len(q.TableIDs); {
	case n == 1:
		p.tableEq = q.TableIDs[0]
	case n > 1 && p.statusIn == nil && n <= maxInValues:
		p.tableIn = append([]string(nil), q.TableIDs...)
	case n > 1:
		p.clientFilter = true
	}

	if !p.clientFilter {
		p.limit = q.Limit
	}
	return p
}

func (p queryPlan) apply(query firestore.Query) firestore.Query {
	if p.tableEq != "" {
		query = query.Where("tableId", "==", p.tableEq)
	}
	if p.tableIn != nil {
		query = query.Where("tableId", "in", p.tableIn)
	}
	if p.statusIn != nil {
		query = query.Where("status", "in", p.statusIn)
	}
	if p.from != nil {
		query = query.Where("createdAt", ">=", p.from.UTC())
	}
	if p.to != nil {
		query = query.Where("createdAt", "<", p.to.UTC())
	}
	if p.newest {
		query = query.OrderBy("createdAt", firestore.Desc)
	}
	if p.limit > 0 {
		query = query.Limit(p.limit)
	}
	return query
}

func (p queryPlan) collect(q domain.OrderQuery, docs []*firestore.DocumentSnapshot) ([]*domain.Order, error) {
	orders := make([]*domain.Order, 0, len(docs))
	for _, snap := range docs {
		o, err := decode(snap)
		if err != nil {
			return nil, err
		}
		if p.clientFilter && !q.Matches(o) {
			continue
		}
		orders = append(orders, o)
	}
	if p.clientFilter && q.Limit > 0 && len(orders) > q.Limit {
		orders = orders[:q.Limit]
	}
	return orders, nil
}

func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrOrderNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: failed to %s: %v", domain.ErrTransient, action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
