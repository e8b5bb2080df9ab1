package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// counterTable addresses the cart that belongs to no table.
const counterTable = "general"

type CartHandler struct {
	carts interfaces.CartService
}

func NewCartHandler(carts interfaces.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type cartResponse struct {
	Lines []domain.CartLine `json:"lines"`
	Total domain.CartTotal  `json:"total"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func cartScope(r *http.Request) (string, string) {
	vars := mux.Vars(r)
	table := vars["tableID"]
	if table == counterTable {
		table = ""
	}
	return vars["restaurantID"], table
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, lines []domain.CartLine) {
	restaurantID, tableID := cartScope(r)
	if lines == nil {
		lines = []domain.CartLine{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    cartResponse{Lines: lines, Total: h.carts.Total(r.Context(), restaurantID, tableID)},
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	restaurantID, tableID := cartScope(r)
	h.respond(w, r, h.carts.Lines(r.Context(), restaurantID, tableID))
}

func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	var line domain.CartLine
	if err := json.NewDecoder(r.Body).Decode(&line); err != nil || line.MenuItemID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	restaurantID, tableID := cartScope(r)
	h.respond(w, r, h.carts.AddLine(r.Context(), restaurantID, tableID, line))
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	restaurantID, tableID := cartScope(r)
	h.respond(w, r, h.carts.SetQuantity(r.Context(), restaurantID, tableID, mux.Vars(r)["menuItemID"], req.Quantity))
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	restaurantID, tableID := cartScope(r)
	h.respond(w, r, h.carts.RemoveLine(r.Context(), restaurantID, tableID, mux.Vars(r)["menuItemID"]))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	restaurantID, tableID := cartScope(r)
	h.carts.Clear(r.Context(), restaurantID, tableID)
	w.WriteHeader(http.StatusNoContent)
}
