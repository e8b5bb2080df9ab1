package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveHandler streams order lists over a websocket. Every frame carries the
// full current result.
type LiveHandler struct {
	service  interfaces.OrderService
	upgrader websocket.Upgrader
	logger   logger.Logger
}

type liveFrame struct {
	Orders []domain.OrderDocument `json:"orders"`
	Error  string                 `json:"error,omitempty"`
}

func NewLiveHandler(service interfaces.OrderService, logger logger.Logger) *LiveHandler {
	return &LiveHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// Serve subscribes to all orders, or to active ones with ?active=true.
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	restaurantID := mux.Vars(r)["restaurantID"]
	requestID := logger.RequestID(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live_upgrade_failed", "Websocket upgrade failed", requestID, nil)
		return
	}
	defer conn.Close()

	// holds only the newest frame, a slow client skips intermediate lists
	frames := make(chan liveFrame, 1)
	listener := func(orders []*domain.Order, err error) {
		frame := liveFrame{Orders: []domain.OrderDocument{}}
		if err != nil {
			frame = liveFrame{Error: domain.UserMessage(err)}
		} else {
			for _, o := range orders {
				frame.Orders = append(frame.Orders, domain.ToDocument(o))
			}
		}
		for {
			select {
			case frames <- frame:
				return
			default:
			}
			select {
			case <-frames:
			default:
			}
		}
	}

	subscribe := h.service.Subscribe
	if r.URL.Query().Get("active") == "true" {
		subscribe = h.service.SubscribeActive
	}
	unsubscribe, err := subscribe(restaurantID, listener)
	if err != nil {
		conn.WriteJSON(liveFrame{Error: domain.UserMessage(err)})
		return
	}
	defer unsubscribe()

	h.logger.Debug("live_connected", "Live order feed opened", requestID, map[string]interface{}{
		"restaurant_id": restaurantID,
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("live_closed", "Live order feed closed", requestID, nil)
			return
		case frame := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
