package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Store wraps an order store: identical in-flight reads share one call and
// transient failures are retried with exponential backoff. Once attempts are
// exhausted the error is wrapped with domain.ErrUnavailable.
type Store struct {
	next   interfaces.OrderStore
	policy Policy
	group  singleflight.Group
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ interfaces.OrderStore = (*Store)(nil)

func NewStore(next interfaces.OrderStore, policy Policy, lgr logger.Logger) *Store {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Store{next: next, policy: policy, logger: lgr, sleep: sleepCtx}
}

// transient markers found in driver and gRPC error texts
var transientMarkers = []string{
	"network",
	"unavailable",
	"quota",
	"resource exhausted",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
}

// IsTransient classifies err as worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func (s *Store) Put(ctx context.Context, order *domain.Order) error {
	_, err := retry(ctx, s, "put", func() (struct{}, error) {
		return struct{}{}, s.next.Put(ctx, order)
	})
	return err
}

func (s *Store) Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error) {
	o, err := shared(ctx, s, "get|"+restaurantID+"|"+orderID, "get", func(ctx context.Context) (*domain.Order, error) {
		return s.next.Get(ctx, restaurantID, orderID)
	})
	if err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (s *Store) Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error) {
	orders, err := shared(ctx, s, "query|"+restaurantID+"|"+q.Key(), "query", func(ctx context.Context) ([]*domain.Order, error) {
		return s.next.Query(ctx, restaurantID, q)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(orders), nil
}

// shared runs call once for all concurrent callers of key. The call is
// detached from any single caller's cancellation, each caller stops waiting
// when its own ctx is done.
func shared[T any](ctx context.Context, s *Store, key, op string, call func(ctx context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return retry(detached, s, op, func() (T, error) {
			return call(detached)
		})
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Update is retried too. A retry after a lost reply comes back as
// ErrStatusConflict, which the caller resolves by re-reading.
func (s *Store) Update(ctx context.Context, restaurantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	return retry(ctx, s, "update", func() (*domain.Order, error) {
		return s.next.Update(ctx, restaurantID, orderID, patch)
	})
}

// NextOrderNumber is never shared between callers, every call must consume
// its own sequence value.
func (s *Store) NextOrderNumber(ctx context.Context, restaurantID string) (string, error) {
	return retry(ctx, s, "next_order_number", func() (string, error) {
		return s.next.NextOrderNumber(ctx, restaurantID)
	})
}

func (s *Store) Watch(ctx context.Context, restaurantID string, q domain.OrderQuery, push interfaces.PushFunc) (func(), error) {
	return retry(ctx, s, "watch", func() (func(), error) {
		return s.next.Watch(ctx, restaurantID, q, push)
	})
}

func retry[T any](ctx context.Context, s *Store, op string, call func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	delay := s.policy.BaseDelay

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		result, err = call()
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return result, err
		}
		if attempt == s.policy.MaxAttempts {
			break
		}

		s.logger.Warn("store_retry", fmt.Sprintf("Transient store failure, retrying in %v", delay), "", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return result, fmt.Errorf("%w: %s interrupted: %v", domain.ErrUnavailable, op, err)
		}
		delay *= 2
		if s.policy.MaxDelay > 0 && delay > s.policy.MaxDelay {
			delay = s.policy.MaxDelay
		}
	}

	s.logger.Error("store_unavailable", "Store still failing after retries", "", map[string]interface{}{
		"operation": op,
		"attempts":  s.policy.MaxAttempts,
	}, err)
	return result, fmt.Errorf("%w: %s: %w", domain.ErrUnavailable, op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
