package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// NotificationHandler prints one line per order event, the feed a front of
// house screen or printer bridge tails.
type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewNotificationHandler(logger logger.Logger, out io.Writer) *NotificationHandler {
	return &NotificationHandler{
		logger: logger,
		out:    out,
	}
}

func (h *NotificationHandler) HandleOrderEvent(ctx context.Context, body []byte) error {
	var msg interfaces.OrderEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse order event", "", nil, err)
		return err
	}

	h.logger.Debug("notification_received", fmt.Sprintf("Received %s for restaurant %s", msg.Type, msg.RestaurantID),
		msg.OrderID, map[string]interface{}{
			"type":          msg.Type,
			"restaurant_id": msg.RestaurantID,
			"order_number":  msg.OrderNumber,
		})

	_, err := fmt.Fprintln(h.out, Describe(msg))
	return err
}

// Describe renders an event as a single notification line.
func Describe(msg interfaces.OrderEventMessage) string {
	switch msg.Type {
	case interfaces.EventOrderCreated:
		return fmt.Sprintf("[%s] New order %s for table %s, total %.2f", msg.RestaurantID, msg.OrderNumber, tableLabel(msg.TableID), msg.Total)
	case interfaces.EventOrderStatusChanged:
		return fmt.Sprintf("[%s] Order %s: status changed from '%s' to '%s' by %s", msg.RestaurantID, msg.OrderNumber, msg.OldStatus, msg.NewStatus, msg.ChangedBy)
	case interfaces.EventOrdersTransferred:
		return fmt.Sprintf("[%s] Orders moved to table %s by %s", msg.RestaurantID, tableLabel(msg.TableID), msg.ChangedBy)
	default:
		return fmt.Sprintf("[%s] %s", msg.RestaurantID, msg.Type)
	}
}

func tableLabel(tableID string) string {
	if tableID == "" {
		return "takeaway"
	}
	return tableID
}
