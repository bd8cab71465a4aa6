package fulfillment

import (
	"context"
)

// Notification is a customer-facing message about an order. Overrides
// replace the contact details on the order when set.
type Notification struct {
	OrderID       string `json:"orderId"`
	Message       string `json:"message"`
	EmailOverride string `json:"emailOverride,omitempty"`
	PhoneOverride string `json:"phoneOverride,omitempty"`
}

// Notifier delivers order notifications. It is called fire-and-forget:
// a delivery failure is logged and never rolls back a state transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// RestockItem is one line-item quantity to return to inventory.
type RestockItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Restocker returns cancelled line-item quantities to the inventory
// collaborator.
type Restocker interface {
	Restock(ctx context.Context, orderID string, items []RestockItem) error
}

// Refunder asks the payment collaborator to refund an order. The refund
// record on the order tracks progress; completion is reported back by
// the collaborator out of band.
type Refunder interface {
	RefundPayment(ctx context.Context, orderID string, amount float64) error
}
