package domain

import "errors"

var (
	// validation
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTotals     = errors.New("invalid order totals")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidOrderType  = errors.New("invalid order type")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSameTable         = errors.New("source and target table are the same")
	ErrNoTables          = errors.New("no tables given")
	ErrInvalidRange      = errors.New("invalid date range")

	// not found
	ErrOrderNotFound = errors.New("order not found")

	// store
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrTransient      = errors.New("transient store failure")
	ErrUnavailable    = errors.New("store unavailable")
)

// UserMessage maps an error to the text shown to staff. Technical details are
// never returned for store failures.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCart):
		return "Cart is empty, add items before placing an order"
	case errors.Is(err, ErrInvalidTotals):
		return "Order totals are invalid"
	case errors.Is(err, ErrInvalidOrderType):
		return "Order type must be dine_in, takeout or delivery"
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidTransition):
		return "This status change is not allowed"
	case errors.Is(err, ErrSameTable):
		return "Choose a different target table"
	case errors.Is(err, ErrNoTables):
		return "Select at least one table"
	case errors.Is(err, ErrInvalidRange):
		return "Start of the range must be before its end"
	case errors.Is(err, ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, ErrStatusConflict):
		return "Order was updated by someone else, refresh and try again"
	default:
		return "Service is temporarily unavailable, please try again"
	}
}
