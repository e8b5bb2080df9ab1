package order

import (
	"context"
	"errors"
	"testing"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

func TestTransferScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a1 := f.place(t, "A")
	a2 := f.place(t, "A")
	done := f.place(t, "A")
	f.advance(t, a2.ID, domain.StatusPreparing)
	f.advance(t, done.ID, domain.StatusCompleted)
	f.svc.GetOrders(ctx, "r1")

	res := f.svc.TransferOrders(ctx, "r1", "A", "B", "manager")
	if !res.Success || res.Data != 2 {
		t.Fatalf("res = %+v", res)
	}

	for _, id := range []string{a1.ID, a2.ID} {
		o, _ := f.store.Get(ctx, "r1", id)
		if o.TableID != "B" {
			t.Errorf("%s on table %s, want B", id, o.TableID)
		}
	}
	if o, _ := f.store.Get(ctx, "r1", done.ID); o.TableID != "A" {
		t.Errorf("completed order moved to %s", o.TableID)
	}
	if _, hit := f.cache.Lookup(ctx, "r1"); hit {
		t.Error("cache not invalidated after transfer")
	}

	last := f.events.events[len(f.events.events)-1]
	if last.Type != interfaces.EventOrdersTransferred || last.TableID != "B" {
		t.Errorf("event = %+v", last)
	}
}

func TestTransferRejects(t *testing.T) {
	f := newFixture(t, nil)
	if res := f.svc.TransferOrders(context.Background(), "r1", "A", "A", "m"); !errors.Is(res.Err, domain.ErrSameTable) {
		t.Errorf("same table err = %v", res.Err)
	}
	if res := f.svc.TransferOrders(context.Background(), "r1", "", "B", "m"); !errors.Is(res.Err, domain.ErrNoTables) {
		t.Errorf("empty table err = %v", res.Err)
	}
	if res := f.svc.TransferOrders(context.Background(), "r1", "A", "B", "m"); !res.Success || res.Data != 0 {
		t.Errorf("empty source = %+v", res)
	}
}

func TestMergeOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.place(t, "t1")
	second := f.place(t, "t2")
	f.place(t, "t3")
	closed := f.place(t, "t1")
	f.advance(t, closed.ID, domain.StatusCancelled)

	res := f.svc.MergeOrders(ctx, "r1", []string{"t1", "t2"})
	if !res.Success || len(res.Data) != 2 {
		t.Fatalf("res = %+v", res)
	}
	if res.Data[0].ID != first.ID || res.Data[1].ID != second.ID {
		t.Errorf("order = %s, %s", res.Data[0].ID, res.Data[1].ID)
	}

	before, _ := f.store.Get(ctx, "r1", first.ID)
	if before.TableID != "t1" {
		t.Error("merge mutated an order")
	}

	if res := f.svc.MergeOrders(ctx, "r1", nil); !errors.Is(res.Err, domain.ErrNoTables) {
		t.Errorf("no tables err = %v", res.Err)
	}
}

func TestAnnotateForMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.place(t, "t1")

	res := f.svc.AnnotateForMerge(ctx, "r1", o.ID, []string{"Table 1", "Table 2"})
	if !res.Success || res.Data.Notes != "Merged tables: Table 1, Table 2" {
		t.Fatalf("res = %+v", res)
	}
	if res.Data.Total != o.Total || len(res.Data.Items) != len(o.Items) {
		t.Error("annotation changed totals or items")
	}

	res = f.svc.AnnotateForMerge(ctx, "r1", o.ID, []string{"Table 3"})
	if want := "Merged tables: Table 1, Table 2\nMerged tables: Table 3"; res.Data.Notes != want {
		t.Errorf("notes = %q, want %q", res.Data.Notes, want)
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.place(t, "t1")
	f.svc.GetOrders(ctx, "r1")

	if err := f.svc.ClearCache(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, hit := f.cache.Lookup(ctx, "r1"); hit {
		t.Error("cache still live")
	}
}
