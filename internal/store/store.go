// Package store persists order aggregates with conditional save
// semantics so concurrent mutations cannot silently overwrite each other.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelpoint/fulfillment/internal/order"
)

// ErrVersionConflict is returned by SaveOrder when the stored version no
// longer matches the caller's expected version. The caller should reload
// and reconcile against current state.
var ErrVersionConflict = errors.New("order version conflict")

// NotFoundError is returned when no order matches a lookup.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order not found: %s", e.ID)
}

// IsNotFound reports whether err is an order lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ShippingField names a shipping reference usable for reverse lookup.
type ShippingField string

const (
	FieldRemoteOrderID ShippingField = "remote_order_id"
	FieldShipmentID    ShippingField = "shipment_id"
	FieldAWB           ShippingField = "awb"
)

// Store is the persistence boundary for order aggregates.
type Store interface {
	// FindOrder returns the order with the given id, or *NotFoundError.
	FindOrder(ctx context.Context, id string) (*order.Order, error)

	// SaveOrder persists the order if and only if the stored version
	// still equals expectedVersion (0 inserts a new order). On success
	// the order's version is bumped; on mismatch ErrVersionConflict is
	// returned and nothing is written.
	SaveOrder(ctx context.Context, o *order.Order, expectedVersion int64) error

	// FindOrderByShippingField resolves an order by one of its shipping
	// references, tolerating legacy field locations where the backend
	// has them.
	FindOrderByShippingField(ctx context.Context, field ShippingField, value string) (*order.Order, error)

	// FindActiveShipments returns orders with a live shipment, i.e. an
	// assigned AWB in a non-terminal shipping status.
	FindActiveShipments(ctx context.Context) ([]*order.Order, error)
}
