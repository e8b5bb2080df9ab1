package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/adapter/memory"
	"github.com/YelzhanWeb/tableorders/internal/domain"
)

// flakyStore fails the first `failures` calls of Get and Query.
type flakyStore struct {
	*memory.OrderStore
	failures int32
	err      error
	calls    atomic.Int32
	release  chan struct{}
}

func (f *flakyStore) Get(ctx context.Context, restaurantID, orderID string) (*domain.Order, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= f.failures {
		return nil, f.err
	}
	return f.OrderStore.Get(ctx, restaurantID, orderID)
}

func (f *flakyStore) Query(ctx context.Context, restaurantID string, q domain.OrderQuery) ([]*domain.Order, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return f.OrderStore.Query(ctx, restaurantID, q)
}

func setup(t *testing.T, failures int32, err error) (*Store, *flakyStore, *[]time.Duration) {
	t.Helper()
	mem := memory.NewOrderStore()
	o := domain.NewOrder("o1", "r1", "ORD_1", "t1", "s1", "", nil, domain.Totals{}, "", time.Now())
	if putErr := mem.Put(context.Background(), o); putErr != nil {
		t.Fatal(putErr)
	}
	flaky := &flakyStore{OrderStore: mem, failures: failures, err: err}

	var delays []time.Duration
	s := NewStore(flaky, Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}, logger.Discard())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return s, flaky, &delays
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped sentinel", fmt.Errorf("pg: %w", domain.ErrTransient), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"grpc text", errors.New("rpc error: code = Unavailable desc = backend down"), true},
		{"quota text", errors.New("Quota exceeded for project"), true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"not found", domain.ErrOrderNotFound, false},
		{"conflict", domain.ErrStatusConflict, false},
		{"validation", errors.New("invalid input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetriesTransientWithBackoff(t *testing.T) {
	s, flaky, delays := setup(t, 3, domain.ErrTransient)

	o, err := s.Get(context.Background(), "r1", "o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.ID != "o1" {
		t.Errorf("id = %s", o.ID)
	}
	if got := flaky.calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v", *delays)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestExhaustedRetriesBecomeUnavailable(t *testing.T) {
	s, flaky, _ := setup(t, 100, errors.New("service unavailable"))

	_, err := s.Query(context.Background(), "r1", domain.ActiveQuery())
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if got := flaky.calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
	if msg := domain.UserMessage(err); msg != "Service is temporarily unavailable, please try again" {
		t.Errorf("user message = %q", msg)
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	s, flaky, delays := setup(t, 0, nil)

	_, err := s.Get(context.Background(), "r1", "missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v", err)
	}
	if flaky.calls.Load() != 1 || len(*delays) != 0 {
		t.Errorf("calls = %d delays = %v", flaky.calls.Load(), *delays)
	}
}

func TestConcurrentIdenticalReadsShareOneCall(t *testing.T) {
	s, flaky, _ := setup(t, 0, nil)
	flaky.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*domain.Order, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := s.Get(context.Background(), "r1", "o1")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = o
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(flaky.release)
	wg.Wait()

	if got := flaky.calls.Load(); got != 1 {
		t.Errorf("underlying calls = %d, want 1", got)
	}
	if results[0] == results[1] {
		t.Error("callers share one *Order")
	}
}

func TestCancelledCallerDoesNotFailSharedRead(t *testing.T) {
	s, flaky, _ := setup(t, 0, nil)
	flaky.release = make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.Get(ctxA, "r1", "o1")
		errA <- err
	}()
	for flaky.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		order *domain.Order
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		o, err := s.Get(context.Background(), "r1", "o1")
		resB <- result{o, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v", err)
	}
	close(flaky.release)

	b := <-resB
	if b.err != nil || b.order.ID != "o1" {
		t.Fatalf("joined caller = %+v, %v", b.order, b.err)
	}
	if got := flaky.calls.Load(); got != 1 {
		t.Errorf("underlying calls = %d, want 1", got)
	}
}

func TestOrderNumbersAreNotShared(t *testing.T) {
	s := NewStore(memory.NewOrderStore(), DefaultPolicy(), logger.Discard())
	a, _ := s.NextOrderNumber(context.Background(), "r1")
	b, _ := s.NextOrderNumber(context.Background(), "r1")
	if a == b {
		t.Errorf("two calls returned %s", a)
	}
}
