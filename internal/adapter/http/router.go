package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
)

func NewRouter(orders *OrderHandler, carts *CartHandler, live *LiveHandler, lgr logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(lgr), RecoveryMiddleware(lgr))

	r.HandleFunc("/cache", orders.ClearCache).Methods(http.MethodDelete)

	rs := r.PathPrefix("/restaurants/{restaurantID}").Subrouter()

	rs.HandleFunc("/tables/{tableID}/cart", carts.GetCart).Methods(http.MethodGet)
	rs.HandleFunc("/tables/{tableID}/cart", carts.ClearCart).Methods(http.MethodDelete)
	rs.HandleFunc("/tables/{tableID}/cart/lines", carts.AddLine).Methods(http.MethodPost)
	rs.HandleFunc("/tables/{tableID}/cart/lines/{menuItemID}", carts.SetQuantity).Methods(http.MethodPut)
	rs.HandleFunc("/tables/{tableID}/cart/lines/{menuItemID}", carts.RemoveLine).Methods(http.MethodDelete)

	rs.HandleFunc("/tables/transfer", orders.TransferOrders).Methods(http.MethodPost)
	rs.HandleFunc("/tables/merge", orders.MergeOrders).Methods(http.MethodGet)

	rs.HandleFunc("/orders", orders.CreateOrder).Methods(http.MethodPost)
	rs.HandleFunc("/orders", orders.ListOrders).Methods(http.MethodGet)
	rs.HandleFunc("/orders/live", live.Serve).Methods(http.MethodGet)
	rs.HandleFunc("/orders/{orderID}", orders.GetOrder).Methods(http.MethodGet)
	rs.HandleFunc("/orders/{orderID}/status", orders.UpdateStatus).Methods(http.MethodPatch)
	rs.HandleFunc("/orders/{orderID}/history", orders.GetHistory).Methods(http.MethodGet)
	rs.HandleFunc("/orders/{orderID}/merge-note", orders.AnnotateForMerge).Methods(http.MethodPost)

	rs.HandleFunc("/cache", orders.ClearCache).Methods(http.MethodDelete)

	return r
}
