package domain

import "time"

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeout  OrderType = "takeout"
	OrderTypeDelivery OrderType = "delivery"
)

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// ActiveStatuses are the non-terminal statuses, in lifecycle order.
var ActiveStatuses = []Status{StatusPlaced, StatusConfirmed, StatusPreparing, StatusReady}

// rank orders the forward path; cancelled sits outside it.
var rank = map[Status]int{
	StatusPlaced:    1,
	StatusConfirmed: 2,
	StatusPreparing: 3,
	StatusReady:     4,
	StatusCompleted: 5,
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok || s == StatusCancelled
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) IsActive() bool {
	return s.Valid() && !s.IsTerminal()
}

func (t OrderType) Valid() bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeout || t == OrderTypeDelivery
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	OrderID   string
	Status    Status
	ChangedBy string
	ChangedAt time.Time
}
