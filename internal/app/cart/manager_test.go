package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/adapter/memory"
	"github.com/YelzhanWeb/tableorders/internal/domain"
)

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk unavailable")
}
func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk unavailable") }
func (brokenKV) Delete(context.Context, ...string) error   { return errors.New("disk unavailable") }

func burger(qty int, custom ...string) domain.CartLine {
	return domain.CartLine{MenuItemID: "burger", Name: "Burger", UnitPrice: 10, Quantity: qty, Customizations: custom}
}

func TestKey(t *testing.T) {
	if got := Key("r1", "t4"); got != "cart:r1:t4" {
		t.Errorf("Key = %q", got)
	}
	if got := Key("r1", ""); got != "cart:r1:general" {
		t.Errorf("Key = %q", got)
	}
}

func TestAddLineMergesSameIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewKV(), logger.Discard())

	m.AddLine(ctx, "r1", "t1", burger(2))
	lines := m.AddLine(ctx, "r1", "t1", burger(3))

	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Quantity != 5 || lines[0].LineTotal != 50 {
		t.Errorf("merged line = %+v", lines[0])
	}
}

func TestAddLineKeepsDifferentIdentities(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewKV(), logger.Discard())

	m.AddLine(ctx, "r1", "t1", burger(1))
	m.AddLine(ctx, "r1", "t1", burger(1, "no onion"))
	lines := m.AddLine(ctx, "r1", "t1", domain.CartLine{
		MenuItemID: "burger", UnitPrice: 12, Quantity: 1,
		Variants: []domain.SelectedVariant{{GroupID: "size", OptionID: "xl"}},
	})

	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
}

func TestAddLineNormalizesQuantity(t *testing.T) {
	m := NewManager(memory.NewKV(), logger.Discard())
	lines := m.AddLine(context.Background(), "r1", "", burger(0))
	if lines[0].Quantity != 1 || lines[0].LineTotal != 10 {
		t.Errorf("line = %+v", lines[0])
	}
}

func TestSetQuantity(t *testing.T) {
	tests := []struct {
		name      string
		qty       int
		wantLines int
		wantTotal domain.CartTotal
	}{
		{"increase", 4, 2, domain.CartTotal{Subtotal: 43, ItemCount: 5}},
		{"zero removes", 0, 1, domain.CartTotal{Subtotal: 3, ItemCount: 1}},
		{"negative removes", -2, 1, domain.CartTotal{Subtotal: 3, ItemCount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(memory.NewKV(), logger.Discard())
			m.AddLine(ctx, "r1", "t1", burger(1))
			m.AddLine(ctx, "r1", "t1", domain.CartLine{MenuItemID: "cola", UnitPrice: 3, Quantity: 1})

			lines := m.SetQuantity(ctx, "r1", "t1", "burger", tt.qty)
			if len(lines) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(lines), tt.wantLines)
			}
			if got := m.Total(ctx, "r1", "t1"); got != tt.wantTotal {
				t.Errorf("Total = %+v, want %+v", got, tt.wantTotal)
			}
		})
	}
}

func TestRemoveLineAndClear(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewKV(), logger.Discard())
	m.AddLine(ctx, "r1", "t1", burger(2))
	m.AddLine(ctx, "r1", "t2", burger(1))

	if lines := m.RemoveLine(ctx, "r1", "t1", "burger"); len(lines) != 0 {
		t.Errorf("after remove = %v", lines)
	}

	m.Clear(ctx, "r1", "t2")
	if lines := m.Lines(ctx, "r1", "t2"); len(lines) != 0 {
		t.Errorf("after clear = %v", lines)
	}
}

func TestScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewKV(), logger.Discard())
	m.AddLine(ctx, "r1", "t1", burger(1))

	if lines := m.Lines(ctx, "r1", "t2"); len(lines) != 0 {
		t.Errorf("other table sees %v", lines)
	}
	if lines := m.Lines(ctx, "r2", "t1"); len(lines) != 0 {
		t.Errorf("other restaurant sees %v", lines)
	}
}

func TestStorageFailureDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewManager(brokenKV{}, logger.Discard())

	if lines := m.Lines(ctx, "r1", "t1"); lines == nil || len(lines) != 0 {
		t.Errorf("Lines = %v, want empty non-nil", lines)
	}
	lines := m.AddLine(ctx, "r1", "t1", burger(2))
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Errorf("AddLine = %v", lines)
	}
	m.Clear(ctx, "r1", "t1")
}
