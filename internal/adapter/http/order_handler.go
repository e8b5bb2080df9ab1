package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const staffHeader = "X-Staff-ID"

type OrderHandler struct {
	service        interfaces.OrderService
	history        interfaces.StatusHistoryReader
	defaultTaxRate float64
	logger         logger.Logger
}

// NewOrderHandler builds the order endpoints. history may be nil when the
// store keeps no status trail.
func NewOrderHandler(service interfaces.OrderService, history interfaces.StatusHistoryReader, defaultTaxRate float64, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service:        service,
		history:        history,
		defaultTaxRate: defaultTaxRate,
		logger:         logger,
	}
}

type CreateOrderRequest struct {
	TableID  string            `json:"tableId"`
	Type     string            `json:"type"`
	Lines    []domain.CartLine `json:"lines,omitempty"`
	TaxRate  *float64          `json:"taxRate,omitempty"`
	Discount float64           `json:"discount"`
	Notes    string            `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type TransferRequest struct {
	SourceTable string `json:"sourceTable"`
	TargetTable string `json:"targetTable"`
}

type MergeNoteRequest struct {
	Tables []string `json:"tables"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type statusEntry struct {
	Status    domain.Status `json:"status"`
	ChangedBy string        `json:"changedBy"`
	Timestamp string        `json:"timestamp"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := validateCreateOrderRequest(req); len(errs) > 0 {
		h.logger.Warn("validation_failed", "Order request rejected", logger.RequestID(r.Context()), map[string]interface{}{
			"errors": errs,
		})
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "errors": errs})
		return
	}

	taxRate := h.defaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	cmd := interfaces.CreateOrderCommand{
		RestaurantID: mux.Vars(r)["restaurantID"],
		TableID:      strings.TrimSpace(req.TableID),
		StaffID:      r.Header.Get(staffHeader),
		Type:         domain.OrderType(req.Type),
		Lines:        req.Lines,
		TaxRate:      taxRate,
		Discount:     req.Discount,
		Notes:        strings.TrimSpace(req.Notes),
	}

	writeResult(w, http.StatusCreated, h.service.CreateOrder(r.Context(), cmd), orderJSON)
}

func validateCreateOrderRequest(req CreateOrderRequest) []ValidationError {
	var errs []ValidationError

	if req.Type != "" && !domain.OrderType(req.Type).Valid() {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "order type must be one of: dine_in, takeout, delivery",
		})
	}
	if domain.OrderType(req.Type) == domain.OrderTypeDineIn && strings.TrimSpace(req.TableID) == "" {
		errs = append(errs, ValidationError{
			Field:   "tableId",
			Message: "table is required for dine-in orders",
		})
	}
	if req.TaxRate != nil && *req.TaxRate < 0 {
		errs = append(errs, ValidationError{Field: "taxRate", Message: "tax rate must not be negative"})
	}
	if req.Discount < 0 {
		errs = append(errs, ValidationError{Field: "discount", Message: "discount must not be negative"})
	}

	for i, line := range req.Lines {
		prefix := fmt.Sprintf("lines[%d]", i)
		if strings.TrimSpace(line.MenuItemID) == "" {
			errs = append(errs, ValidationError{Field: prefix + ".menuItemId", Message: "menu item is required"})
		}
		if line.Quantity < 1 {
			errs = append(errs, ValidationError{Field: prefix + ".quantity", Message: "quantity must be at least 1"})
		}
		if line.UnitPrice < 0 {
			errs = append(errs, ValidationError{Field: prefix + ".unitPrice", Message: "unit price must not be negative"})
		}
	}
	return errs
}

// ListOrders serves ?ids=a,b, ?table=x, ?active=true and ?from=&to= (RFC 3339),
// and the full list otherwise.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	restaurantID := mux.Vars(r)["restaurantID"]
	q := r.URL.Query()

	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, errs := parseRange(q.Get("from"), q.Get("to"))
		if len(errs) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "errors": errs})
			return
		}
		writeResult(w, http.StatusOK, h.service.GetByDateRange(r.Context(), restaurantID, from, to), ordersJSON)
		return
	}

	switch {
	case q.Get("ids") != "":
		writeResult(w, http.StatusOK, h.service.GetByIDs(r.Context(), restaurantID, splitList(q.Get("ids"))), ordersJSON)
	case q.Get("table") != "":
		writeResult(w, http.StatusOK, h.service.GetByTable(r.Context(), restaurantID, q.Get("table")), ordersJSON)
	case q.Get("active") == "true":
		writeResult(w, http.StatusOK, h.service.GetActive(r.Context(), restaurantID), ordersJSON)
	default:
		writeResult(w, http.StatusOK, h.service.GetOrders(r.Context(), restaurantID), ordersJSON)
	}
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	writeResult(w, http.StatusOK, h.service.GetByID(r.Context(), vars["restaurantID"], vars["orderID"]), orderJSON)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	vars := mux.Vars(r)
	res := h.service.UpdateOrderStatus(r.Context(), vars["restaurantID"], vars["orderID"], domain.Status(req.Status), r.Header.Get(staffHeader))
	writeResult(w, http.StatusOK, res, orderJSON)
}

func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "Status history is not kept by this store")
		return
	}

	vars := mux.Vars(r)
	history, err := h.history.StatusHistory(r.Context(), vars["restaurantID"], vars["orderID"])
	if err != nil {
		h.logger.Error("history_failed", "Failed to load status history", logger.RequestID(r.Context()), map[string]interface{}{
			"order_id": vars["orderID"],
		}, err)
		writeError(w, statusFor(err), domain.UserMessage(err))
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, domain.UserMessage(domain.ErrOrderNotFound))
		return
	}

	resp := make([]statusEntry, len(history))
	for i, entry := range history {
		resp[i] = statusEntry{
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			Timestamp: entry.ChangedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
}

func (h *OrderHandler) TransferOrders(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.service.TransferOrders(r.Context(), mux.Vars(r)["restaurantID"], req.SourceTable, req.TargetTable, r.Header.Get(staffHeader))
	writeResult(w, http.StatusOK, res, func(moved int) any { return map[string]int{"moved": moved} })
}

// MergeOrders lists the bill for ?table=a&table=b.
func (h *OrderHandler) MergeOrders(w http.ResponseWriter, r *http.Request) {
	tables := r.URL.Query()["table"]
	writeResult(w, http.StatusOK, h.service.MergeOrders(r.Context(), mux.Vars(r)["restaurantID"], tables), ordersJSON)
}

func (h *OrderHandler) AnnotateForMerge(w http.ResponseWriter, r *http.Request) {
	var req MergeNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	vars := mux.Vars(r)
	writeResult(w, http.StatusOK, h.service.AnnotateForMerge(r.Context(), vars["restaurantID"], vars["orderID"], req.Tables), orderJSON)
}

// ClearCache drops one restaurant's cached orders, or all of them when the
// route has no restaurant.
func (h *OrderHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	restaurantID := mux.Vars(r)["restaurantID"]
	if err := h.service.ClearCache(r.Context(), restaurantID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRange(fromParam, toParam string) (from, to time.Time, errs []ValidationError) {
	parse := func(field, value string) time.Time {
		if value == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"})
		}
		return t
	}
	from = parse("from", fromParam)
	to = parse("to", toParam)
	return from, to, errs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
