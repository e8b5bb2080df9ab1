package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: message})
}

// writeResult renders a service Result, data is converted with toJSON on
// success.
func writeResult[T any](w http.ResponseWriter, okStatus int, res interfaces.Result[T], toJSON func(T) any) {
	if !res.Success {
		writeError(w, statusFor(res.Err), res.Message)
		return
	}
	writeJSON(w, okStatus, envelope{Success: true, Message: res.Message, Data: toJSON(res.Data)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidTotals),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidOrderType),
		errors.Is(err, domain.ErrSameTable),
		errors.Is(err, domain.ErrNoTables),
		errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func orderJSON(o *domain.Order) any {
	return domain.ToDocument(o)
}

func ordersJSON(orders []*domain.Order) any {
	docs := make([]domain.OrderDocument, 0, len(orders))
	for _, o := range orders {
		docs = append(docs, domain.ToDocument(o))
	}
	return docs
}
