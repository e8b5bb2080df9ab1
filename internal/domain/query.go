package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// OrderQuery is the filter set every order store supports: equality or
// in-set on table and status, a createdAt range, an optional limit and
// optional server-side ordering.
type OrderQuery struct {
	TableIDs    []string
	Statuses    []Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	// Newest asks the store to order by createdAt descending.
	Newest bool
}

// ActiveQuery matches every non-terminal order, optionally on given tables.
func ActiveQuery(tableIDs ...string) OrderQuery {
	return OrderQuery{TableIDs: tableIDs, Statuses: ActiveStatuses}
}

// Matches applies the filter in memory.
func (q OrderQuery) Matches(o *Order) bool {
	if len(q.TableIDs) > 0 && !slices.Contains(q.TableIDs, o.TableID) {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, o.Status) {
		return false
	}
	if q.CreatedFrom != nil && o.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && !o.CreatedAt.Before(*q.CreatedTo) {
		return false
	}
	return true
}

// Key is a stable identity for the query, used to share live streams.
func (q OrderQuery) Key() string {
	tables := slices.Clone(q.TableIDs)
	sort.Strings(tables)
	statuses := make([]string, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	var b strings.Builder
	fmt.Fprintf(&b, "t=%s;s=%s", strings.Join(tables, ","), strings.Join(statuses, ","))
	if q.CreatedFrom != nil {
		fmt.Fprintf(&b, ";from=%d", q.CreatedFrom.UnixMilli())
	}
	if q.CreatedTo != nil {
		fmt.Fprintf(&b, ";to=%d", q.CreatedTo.UnixMilli())
	}
	fmt.Fprintf(&b, ";l=%d;n=%t", q.Limit, q.Newest)
	return b.String()
}

// OrderPatch is the only way an existing order is changed. ExpectedStatus
// turns the update into a compare-and-set on the current status.
type OrderPatch struct {
	Status         *Status
	PaymentStatus  *PaymentStatus
	TableID        *string
	Notes          *string
	ExpectedStatus *Status
	UpdatedAt      time.Time

	// ChangedBy is recorded in the status history, it is not an order field.
	ChangedBy string

	// WriteID is stored on the order so a caller can recognise its own write
	// after a lost reply.
	WriteID string
}

// SortNewestFirst orders by createdAt descending, id as tie-breaker.
func SortNewestFirst(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

// SortOldestFirst orders chronologically.
func SortOldestFirst(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
