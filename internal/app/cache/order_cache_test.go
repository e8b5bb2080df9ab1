package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/adapter/memory"
	"github.com/YelzhanWeb/tableorders/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCache(ttl time.Duration) (*OrderCache, *clock, *memory.KV) {
	clk := &clock{t: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	kv := memory.NewKV()
	return New(kv, ttl, logger.Discard()).WithClock(clk.now), clk, kv
}

func order(id string, created time.Time) *domain.Order {
	lines := []domain.OrderLine{{ID: "l-" + id, MenuItemID: "burger", Name: "Burger", UnitPrice: 10, Quantity: 1, LineTotal: 10}}
	return domain.NewOrder(id, "r1", "ORD_"+id, "t1", "staff", "", lines, domain.Totals{Subtotal: 10, Total: 10}, "", created)
}

func TestTTLBoundary(t *testing.T) {
	ctx := context.Background()
	const ttl = 30 * time.Minute
	const eps = time.Millisecond

	c, clk, _ := newCache(ttl)
	start := clk.t
	c.Set(ctx, "r1", []*domain.Order{order("o1", start)})

	clk.t = start.Add(ttl - eps)
	if got := c.Get(ctx, "r1"); len(got) != 1 {
		t.Errorf("at TTL-ε got %d orders, want hit", len(got))
	}
	if !c.IsFresh(ctx, "r1") {
		t.Error("IsFresh false before expiry")
	}

	clk.t = start.Add(ttl + eps)
	if got := c.Get(ctx, "r1"); len(got) != 0 {
		t.Errorf("at TTL+ε got %d orders, want miss", len(got))
	}
	if c.IsFresh(ctx, "r1") {
		t.Error("IsFresh true after expiry")
	}
}

func TestTTLBoundaryBetweenMilliseconds(t *testing.T) {
	ctx := context.Background()
	const ttl = time.Minute

	c, clk, _ := newCache(ttl)
	start := clk.t.Add(900 * time.Microsecond)
	clk.t = start
	c.Set(ctx, "r1", []*domain.Order{order("o1", start)})

	clk.t = start.Add(ttl - 500*time.Microsecond)
	if !c.IsFresh(ctx, "r1") {
		t.Error("IsFresh false half a millisecond before expiry")
	}
	clk.t = start.Add(ttl)
	if c.IsFresh(ctx, "r1") {
		t.Error("IsFresh true at expiry")
	}
}

func TestGetMissReturnsEmptySlice(t *testing.T) {
	c, _, _ := newCache(time.Minute)
	got := c.Get(context.Background(), "unknown")
	if got == nil || len(got) != 0 {
		t.Errorf("Get = %v, want empty slice", got)
	}
}

func TestAddPrependsAndRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	c, clk, _ := newCache(10 * time.Minute)
	start := clk.t
	c.Set(ctx, "r1", []*domain.Order{order("old", start)})

	clk.t = start.Add(9 * time.Minute)
	if !c.Add(ctx, "r1", order("new", clk.t)) {
		t.Fatal("Add on live entry returned false")
	}

	clk.t = start.Add(15 * time.Minute)
	got := c.Get(ctx, "r1")
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("Get = %v", ids(got))
	}
}

func TestAddWithoutEntryKeepsMiss(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCache(time.Minute)
	if c.Add(ctx, "r1", order("o1", time.Now())) {
		t.Error("Add created a partial entry")
	}
	if _, hit := c.Lookup(ctx, "r1"); hit {
		t.Error("expected miss")
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	c, clk, _ := newCache(time.Minute)
	c.Set(ctx, "r1", []*domain.Order{order("o1", clk.t), order("o2", clk.t)})

	changed := order("o2", clk.t)
	changed.Status = domain.StatusReady
	if !c.Update(ctx, "r1", changed) {
		t.Fatal("Update returned false for cached order")
	}
	got := c.Get(ctx, "r1")
	if got[1].Status != domain.StatusReady || got[0].Status != domain.StatusPlaced {
		t.Errorf("statuses = %s, %s", got[0].Status, got[1].Status)
	}

	if c.Update(ctx, "r1", order("absent", clk.t)) {
		t.Error("Update of absent order returned true")
	}
}

func TestInvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	c, clk, kv := newCache(time.Minute)
	c.Set(ctx, "r1", []*domain.Order{order("o1", clk.t)})
	c.Set(ctx, "r2", []*domain.Order{order("o2", clk.t)})

	c.Invalidate(ctx, "r1")
	if _, hit := c.Lookup(ctx, "r1"); hit {
		t.Error("r1 still cached after Invalidate")
	}
	if _, found, _ := kv.Get(ctx, "orders:r1:expiry"); found {
		t.Error("expiry key left behind")
	}
	if _, hit := c.Lookup(ctx, "r2"); !hit {
		t.Error("r2 lost by invalidating r1")
	}

	c.Clear(ctx)
	if _, hit := c.Lookup(ctx, "r2"); hit {
		t.Error("r2 cached after Clear")
	}
}

func TestRoundTripKeepsDatesAndOptionalFields(t *testing.T) {
	ctx := context.Background()
	c, clk, kv := newCache(time.Minute)
	o := order("o1", clk.t.Add(-time.Hour))
	o.Items[0].Customizations = []string{"no onion"}
	c.Set(ctx, "r1", []*domain.Order{o})

	raw, _, _ := kv.Get(ctx, "orders:r1")
	if want := `"createdAt":"2026-05-01T17:00:00Z"`; !strings.Contains(string(raw), want) {
		t.Errorf("stored %s, want ISO date %s", raw, want)
	}

	got := c.Get(ctx, "r1")[0]
	if !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, o.CreatedAt)
	}
	if len(got.Items[0].Customizations) != 1 || got.Items[0].Variants != nil {
		t.Errorf("item = %+v", got.Items[0])
	}
}

func ids(orders []*domain.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
