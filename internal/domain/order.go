package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a committed purchase. Items are fixed at creation;
// status, payment, table and notes may change afterwards.
type Order struct {
	ID            string
	RestaurantID  string
	Number        string
	TableID       string
	Type          OrderType
	Status        Status
	Items         []OrderLine
	Subtotal      float64
	Tax           float64
	Discount      float64
	Total         float64
	PaymentStatus PaymentStatus
	Notes         string
	StaffID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// WriteID identifies the last patch that changed the order.
	WriteID string
}

// OrderLine is the immutable projection of a cart line.
type OrderLine struct {
	ID             string
	MenuItemID     string
	Name           string
	UnitPrice      float64
	Quantity       int
	LineTotal      float64
	Customizations []string
	Variants       []SelectedVariant
	Notes          string
}

// Totals holds the money fields of an order.
type Totals struct {
	Subtotal float64
	Tax      float64
	Discount float64
	Total    float64
}

// StockLine is what the inventory collaborator needs per order line.
type StockLine struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// ComputeTotals applies subtotal = Σ lineTotal, tax = subtotal × rate/100,
// total = subtotal + tax − discount.
func ComputeTotals(items []OrderLine, taxRate, discount float64) (Totals, error) {
	if taxRate < 0 || discount < 0 {
		return Totals{}, fmt.Errorf("%w: negative tax rate or discount", ErrInvalidTotals)
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.LineTotal))
	}
	tax := subtotal.Mul(decimal.NewFromFloat(taxRate)).Div(decimal.NewFromInt(100))
	disc := decimal.NewFromFloat(discount)
	if disc.GreaterThan(subtotal.Add(tax)) {
		return Totals{}, fmt.Errorf("%w: discount exceeds order amount", ErrInvalidTotals)
	}
	total := subtotal.Add(tax).Sub(disc)

	return Totals{
		Subtotal: subtotal.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Discount: disc.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}, nil
}

// NewOrder creates a placed, unpaid order with totals applied.
func NewOrder(id, restaurantID, number, tableID, staffID string, orderType OrderType, items []OrderLine, totals Totals, notes string, now time.Time) *Order {
	if orderType == "" {
		orderType = OrderTypeTakeout
		if tableID != "" {
			orderType = OrderTypeDineIn
		}
	}
	return &Order{
		ID:            id,
		RestaurantID:  restaurantID,
		Number:        number,
		TableID:       tableID,
		Type:          orderType,
		Status:        StatusPlaced,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Discount:      totals.Discount,
		Total:         totals.Total,
		PaymentStatus: PaymentPending,
		Notes:         notes,
		StaffID:       staffID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanTransitionTo allows forward moves along the lifecycle and cancellation
// from any non-terminal status. Terminal statuses never change.
func (o *Order) CanTransitionTo(next Status) bool {
	if !next.Valid() || o.Status.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return rank[next] > rank[o.Status]
}

// TransitionPatch builds the store patch for moving to next. Completing an
// order also marks it paid.
func (o *Order) TransitionPatch(next Status, now time.Time) (OrderPatch, error) {
	if !next.Valid() {
		return OrderPatch{}, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if !o.CanTransitionTo(next) {
		return OrderPatch{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	expected := o.Status
	patch := OrderPatch{
		Status:         &next,
		ExpectedStatus: &expected,
		UpdatedAt:      now,
	}
	if next == StatusCompleted {
		paid := PaymentPaid
		patch.PaymentStatus = &paid
	}
	return patch, nil
}

// Apply returns a copy of the order with the patch applied. Items are shared,
// they are never written through a patch.
func (o *Order) Apply(p OrderPatch) *Order {
	cp := *o
	if p.Status != nil {
		cp.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		cp.PaymentStatus = *p.PaymentStatus
	}
	if p.TableID != nil {
		cp.TableID = *p.TableID
	}
	if p.Notes != nil {
		cp.Notes = *p.Notes
	}
	if !p.UpdatedAt.IsZero() {
		cp.UpdatedAt = p.UpdatedAt
	}
	if p.WriteID != "" {
		cp.WriteID = p.WriteID
	}
	return &cp
}

// StockLines lists the menu item quantities to deduct for this order.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}
	return lines
}

// GenerateOrderNumber formats a restaurant-scoped daily sequence.
func GenerateOrderNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("ORD_%s_%03d", date.Format("20060102"), sequence)
}
