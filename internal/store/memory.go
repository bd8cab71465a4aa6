package store

import (
	"context"
	"sync"

	"github.com/parcelpoint/fulfillment/internal/order"
)

// Memory is an in-memory Store for tests and local development. It
// honours the same conditional save contract as the postgres backend and
// hands out deep copies so callers never share aggregate state.
type Memory struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{orders: make(map[string]*order.Order)}
}

func (m *Memory) FindOrder(ctx context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return o.Clone(), nil
}

func (m *Memory) SaveOrder(ctx context.Context, o *order.Order, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.orders[o.ID]
	switch {
	case !exists && expectedVersion != 0:
		return &NotFoundError{ID: o.ID}
	case exists && current.Version != expectedVersion:
		return ErrVersionConflict
	}

	o.Version = expectedVersion + 1
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *Memory) FindOrderByShippingField(ctx context.Context, field ShippingField, value string) (*order.Order, error) {
	if value == "" {
		return nil, &NotFoundError{ID: string(field) + "=<empty>"}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		var match bool
		switch field {
		case FieldRemoteOrderID:
			match = o.Shipping.RemoteOrderID == value
		case FieldShipmentID:
			match = o.Shipping.ShipmentID == value
		case FieldAWB:
			match = o.Shipping.AWB == value
		}
		if match {
			return o.Clone(), nil
		}
	}
	return nil, &NotFoundError{ID: string(field) + "=" + value}
}

func (m *Memory) FindActiveShipments(ctx context.Context) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []*order.Order
	for _, o := range m.orders {
		if o.Shipping.AWB == "" {
			continue
		}
		switch o.Status {
		case order.StatusReadyToShip, order.StatusInTransit, order.StatusOutForDelivery:
			active = append(active, o.Clone())
		}
	}
	return active, nil
}

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)
