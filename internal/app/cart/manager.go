package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

const generalScope = "general"

// Manager keeps the in-progress selection of every table in local storage.
// Storage failures never surface: reads degrade to an empty cart and writes
// are logged.
type Manager struct {
	kv     interfaces.KVStore
	logger logger.Logger
	mu     sync.Mutex
}

func NewManager(kv interfaces.KVStore, lgr logger.Logger) *Manager {
	return &Manager{kv: kv, logger: lgr}
}

// Key returns the storage key of a cart. An empty table is the counter cart.
func Key(restaurantID, tableID string) string {
	if tableID == "" {
		tableID = generalScope
	}
	return fmt.Sprintf("cart:%s:%s", restaurantID, tableID)
}

func (m *Manager) Lines(ctx context.Context, restaurantID, tableID string) []domain.CartLine {
	return m.load(ctx, Key(restaurantID, tableID))
}

// AddLine merges into a line with the same identity or appends.
func (m *Manager) AddLine(ctx context.Context, restaurantID, tableID string, line domain.CartLine) []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(restaurantID, tableID)
	lines := m.load(ctx, key)

	if line.Quantity <= 0 {
		line.Quantity = 1
	}

	merged := false
	for i := range lines {
		if lines[i].SameIdentity(line) {
			lines[i] = lines[i].WithQuantity(lines[i].Quantity + line.Quantity)
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, line.WithQuantity(line.Quantity))
	}

	m.save(ctx, key, lines)
	return lines
}

// SetQuantity updates the first line of the menu item. Zero or less removes it.
func (m *Manager) SetQuantity(ctx context.Context, restaurantID, tableID, menuItemID string, qty int) []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(restaurantID, tableID)
	lines := m.load(ctx, key)

	for i := range lines {
		if lines[i].MenuItemID != menuItemID {
			continue
		}
		if qty <= 0 {
			lines = append(lines[:i], lines[i+1:]...)
		} else {
			lines[i] = lines[i].WithQuantity(qty)
		}
		break
	}

	m.save(ctx, key, lines)
	return lines
}

func (m *Manager) RemoveLine(ctx context.Context, restaurantID, tableID, menuItemID string) []domain.CartLine {
	return m.SetQuantity(ctx, restaurantID, tableID, menuItemID, 0)
}

func (m *Manager) Clear(ctx context.Context, restaurantID, tableID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(restaurantID, tableID)
	if err := m.kv.Delete(ctx, key); err != nil {
		m.logger.Error("cart_clear_failed", "Failed to clear cart", "", map[string]interface{}{
			"key": key,
		}, err)
	}
}

func (m *Manager) Total(ctx context.Context, restaurantID, tableID string) domain.CartTotal {
	return domain.SumCart(m.Lines(ctx, restaurantID, tableID))
}

func (m *Manager) load(ctx context.Context, key string) []domain.CartLine {
	data, found, err := m.kv.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cart_read_failed", "Cart storage unavailable, using empty cart", "", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return []domain.CartLine{}
	}
	if !found {
		return []domain.CartLine{}
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		m.logger.Warn("cart_decode_failed", "Stored cart is unreadable, using empty cart", "", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return []domain.CartLine{}
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines
}

func (m *Manager) save(ctx context.Context, key string, lines []domain.CartLine) {
	data, err := json.Marshal(lines)
	if err == nil {
		err = m.kv.Set(ctx, key, data)
	}
	if err != nil {
		m.logger.Error("cart_write_failed", "Failed to persist cart", "", map[string]interface{}{
			"key":   key,
			"lines": len(lines),
		}, err)
	}
}
