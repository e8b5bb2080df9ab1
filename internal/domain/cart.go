package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SelectedVariant is one option picked from a menu item's variant group.
type SelectedVariant struct {
	GroupID    string  `json:"groupId"`
	GroupName  string  `json:"groupName,omitempty"`
	OptionID   string  `json:"optionId"`
	OptionName string  `json:"optionName,omitempty"`
	PriceDelta float64 `json:"priceDelta,omitempty"`
}

// CartLine is a pending selection for a table, before it is committed as an order.
type CartLine struct {
	MenuItemID     string            `json:"menuItemId"`
	Name           string            `json:"name"`
	UnitPrice      float64           `json:"unitPrice"`
	Quantity       int               `json:"quantity"`
	Customizations []string          `json:"customizations,omitempty"`
	Variants       []SelectedVariant `json:"variants,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	LineTotal      float64           `json:"lineTotal"`
}

// CartTotal is the running sum of a cart.
type CartTotal struct {
	Subtotal  float64 `json:"subtotal"`
	ItemCount int     `json:"itemCount"`
}

// SameIdentity reports whether two lines should be merged: same menu item,
// same customizations and same variants, in the same order.
func (l CartLine) SameIdentity(other CartLine) bool {
	if l.MenuItemID != other.MenuItemID {
		return false
	}
	if len(l.Customizations) != len(other.Customizations) || len(l.Variants) != len(other.Variants) {
		return false
	}
	for i := range l.Customizations {
		if l.Customizations[i] != other.Customizations[i] {
			return false
		}
	}
	for i := range l.Variants {
		if l.Variants[i] != other.Variants[i] {
			return false
		}
	}
	return true
}

// WithQuantity returns a copy with quantity set and the line total recomputed.
func (l CartLine) WithQuantity(qty int) CartLine {
	l.Quantity = qty
	l.LineTotal = LineTotal(l.UnitPrice, qty)
	return l
}

// LineTotal is quantity × unit price without float drift.
func LineTotal(unitPrice float64, qty int) float64 {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(qty))).InexactFloat64()
}

// SumCart returns subtotal and item count of the given lines.
func SumCart(lines []CartLine) CartTotal {
	subtotal := decimal.Zero
	count := 0
	for _, l := range lines {
		subtotal = subtotal.Add(decimal.NewFromFloat(l.LineTotal))
		count += l.Quantity
	}
	return CartTotal{Subtotal: subtotal.InexactFloat64(), ItemCount: count}
}

// ToOrderLines projects cart lines 1:1 to order lines. Empty optional fields
// stay nil so they are omitted when the order is persisted.
func ToOrderLines(lines []CartLine) []OrderLine {
	out := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		ol := OrderLine{
			ID:         uuid.NewString(),
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.Quantity,
			LineTotal:  LineTotal(l.UnitPrice, l.Quantity),
			Notes:      l.Notes,
		}
		if len(l.Customizations) > 0 {
			ol.Customizations = append([]string(nil), l.Customizations...)
		}
		if len(l.Variants) > 0 {
			ol.Variants = append([]SelectedVariant(nil), l.Variants...)
		}
		out = append(out, ol)
	}
	return out
}
