package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		msg  interfaces.OrderEventMessage
		want string
	}{
		{
			name: "created",
			msg:  interfaces.OrderEventMessage{Type: interfaces.EventOrderCreated, RestaurantID: "r1", OrderNumber: "ORD_20260601_001", TableID: "t4", Total: 22},
			want: "[r1] New order ORD_20260601_001 for table t4, total 22.00",
		},
		{
			name: "takeaway",
			msg:  interfaces.OrderEventMessage{Type: interfaces.EventOrderCreated, RestaurantID: "r1", OrderNumber: "ORD_20260601_002", Total: 5.5},
			want: "[r1] New order ORD_20260601_002 for table takeaway, total 5.50",
		},
		{
			name: "status",
			msg: interfaces.OrderEventMessage{
				Type: interfaces.EventOrderStatusChanged, RestaurantID: "r1", OrderNumber: "ORD_20260601_001",
				OldStatus: domain.StatusReady, NewStatus: domain.StatusCompleted, ChangedBy: "s1",
			},
			want: "[r1] Order ORD_20260601_001: status changed from 'ready' to 'completed' by s1",
		},
		{
			name: "transfer",
			msg:  interfaces.OrderEventMessage{Type: interfaces.EventOrdersTransferred, RestaurantID: "r1", TableID: "B", ChangedBy: "m"},
			want: "[r1] Orders moved to table B by m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.msg); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleOrderEvent(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.Discard(), &out)

	body, _ := json.Marshal(interfaces.OrderEventMessage{
		Type:         interfaces.EventOrdersTransferred,
		RestaurantID: "r1",
		TableID:      "B",
		ChangedBy:    "m",
		Timestamp:    time.Now(),
	})
	if err := h.HandleOrderEvent(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "[r1] Orders moved to table B by m\n" {
		t.Errorf("out = %q", got)
	}

	if err := h.HandleOrderEvent(context.Background(), []byte("{")); err == nil {
		t.Error("malformed body accepted")
	}
}
