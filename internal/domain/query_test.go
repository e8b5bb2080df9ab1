package domain

import (
	"testing"
	"time"
)

func TestQueryKeyIsOrderInsensitive(t *testing.T) {
	a := OrderQuery{TableIDs: []string{"t2", "t1"}, Statuses: []Status{StatusReady, StatusPlaced}}
	b := OrderQuery{TableIDs: []string{"t1", "t2"}, Statuses: []Status{StatusPlaced, StatusReady}}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == ActiveQuery().Key() {
		t.Errorf("different queries share a key")
	}
}

func TestQueryMatches(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := OrderQuery{TableIDs: []string{"t1"}, Statuses: ActiveStatuses, CreatedFrom: &from}

	tests := []struct {
		name  string
		order Order
		want  bool
	}{
		{"match", Order{TableID: "t1", Status: StatusReady, CreatedAt: from.Add(time.Hour)}, true},
		{"other table", Order{TableID: "t2", Status: StatusReady, CreatedAt: from.Add(time.Hour)}, false},
		{"terminal", Order{TableID: "t1", Status: StatusCompleted, CreatedAt: from.Add(time.Hour)}, false},
		{"too old", Order{TableID: "t1", Status: StatusPlaced, CreatedAt: from.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.Matches(&tt.order); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Now()
	orders := []*Order{
		{ID: "a", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "b", CreatedAt: base.Add(time.Minute)},
	}
	SortNewestFirst(orders)
	if orders[0].ID != "c" || orders[1].ID != "b" || orders[2].ID != "a" {
		t.Errorf("unexpected order: %s %s %s", orders[0].ID, orders[1].ID, orders[2].ID)
	}
	SortOldestFirst(orders)
	if orders[0].ID != "a" || orders[2].ID != "c" {
		t.Errorf("unexpected chronological order: %s %s %s", orders[0].ID, orders[1].ID, orders[2].ID)
	}
}
