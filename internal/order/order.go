// Package order defines the order aggregate and the status state machine
// that is the single writer of order status and history.
package order

import (
	"time"
)

// PaymentStatus is the payment state of an order. It is written by the
// payment collaborator, except for the refund-completion transition.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentCOD      PaymentStatus = "cod"
	PaymentRefunded PaymentStatus = "refunded"
)

// RefundStatus tracks the refund sub-record lifecycle.
type RefundStatus string

const (
	RefundNotInitiated RefundStatus = "not_initiated"
	RefundProcessing   RefundStatus = "processing"
	RefundCompleted    RefundStatus = "completed"
)

// Variant is an optional product variant; its SKU and price take
// precedence over the base product's when building shipment payloads.
type Variant struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

// Product is a line-item snapshot taken at order placement.
type Product struct {
	Name     string   `json:"name"`
	SKU      string   `json:"sku"`
	Quantity int      `json:"quantity"`
	Price    float64  `json:"price"`
	Variant  *Variant `json:"variant,omitempty"`
}

// EffectiveSKU returns the variant SKU when a variant is present.
func (p Product) EffectiveSKU() string {
	if p.Variant != nil && p.Variant.SKU != "" {
		return p.Variant.SKU
	}
	return p.SKU
}

// EffectivePrice returns the variant price when a variant is present.
func (p Product) EffectivePrice() float64 {
	if p.Variant != nil && p.Variant.Price > 0 {
		return p.Variant.Price
	}
	return p.Price
}

// Address is the recipient shipping address captured on the order.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
}

// AmountBreakdown itemizes the order total. Immutable once placed.
type AmountBreakdown struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Shipping is the mutable sub-record owned by the shipment orchestrator.
// ShipmentID is the idempotency key: once set it is never overwritten and
// shipment creation must not be repeated.
type Shipping struct {
	ShipmentID      string     `json:"shipmentId,omitempty"`
	RemoteOrderID   string     `json:"remoteOrderId,omitempty"`
	AWB             string     `json:"awb,omitempty"`
	TrackingURL     string     `json:"trackingUrl,omitempty"`
	LabelURL        string     `json:"labelUrl,omitempty"`
	PickupScheduled bool       `json:"pickupScheduled,omitempty"`
	PickupDate      string     `json:"pickupDate,omitempty"`
	CourierName     string     `json:"courierName,omitempty"`
	DeliveredOn     *time.Time `json:"deliveredOn,omitempty"`
}

// Refund records a refund request raised against a cancelled paid order.
type Refund struct {
	Status      RefundStatus `json:"status"`
	Amount      float64      `json:"amount,omitempty"`
	InitiatedOn *time.Time   `json:"initiatedOn,omitempty"`
	CompletedOn *time.Time   `json:"completedOn,omitempty"`
}

// HistoryEntry is one line of the append-only order audit log.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy string    `json:"updatedBy"`
	Date      time.Time `json:"date"`
}

// Order is the aggregate root for a fulfillment order. Status and History
// are mutated only through TransitionTo; Shipping only by the orchestrator
// and the webhook reconciler merge.
type Order struct {
	ID              string          `json:"id"`
	Status          Status          `json:"status"`
	Products        []Product       `json:"products"`
	Amount          float64         `json:"amount"`
	Breakdown       AmountBreakdown `json:"amountBreakdown"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	ShippingAddress Address         `json:"shippingAddress"`
	Shipping        Shipping        `json:"shipping"`
	History         []HistoryEntry  `json:"orderHistory"`
	Refund          Refund          `json:"refund"`

	PlacedOn    time.Time  `json:"placedOn"`
	ConfirmedOn *time.Time `json:"confirmedOn,omitempty"`
	ShippedOn   *time.Time `json:"shippedOn,omitempty"`
	DeliveredOn *time.Time `json:"deliveredOn,omitempty"`
	CancelledOn *time.Time `json:"cancelledOn,omitempty"`

	// Version supports conditional saves against the store.
	Version int64 `json:"version"`
}

// New creates a freshly placed order in pending status with a seeded
// history entry.
func New(id string, products []Product, breakdown AmountBreakdown, payment PaymentStatus, addr Address, now time.Time) *Order {
	o := &Order{
		ID:              id,
		Status:          StatusPending,
		Products:        products,
		Amount:          breakdown.Total,
		Breakdown:       breakdown,
		PaymentStatus:   payment,
		ShippingAddress: addr,
		Refund:          Refund{Status: RefundNotInitiated},
		PlacedOn:        now,
	}
	o.appendHistory(StatusPending, "order placed", "system", now)
	return o
}

// TransitionTo moves the order along an edge of the state machine.
//
// A self-transition appends the note to history and reports changed=false;
// it fires no status side effects. A move without an edge returns
// *InvalidTransitionError and mutates nothing. On a real move the status
// is set, exactly one history entry is appended, and the status timestamp
// is stamped the first time that status is reached.
func (o *Order) TransitionTo(newStatus Status, note, updatedBy string, now time.Time) (changed bool, err error) {
	if !newStatus.Valid() {
		return false, &UnknownStatusError{Status: newStatus}
	}

	if newStatus == o.Status {
		o.appendHistory(newStatus, note, updatedBy, now)
		return false, nil
	}

	if !o.Status.CanTransitionTo(newStatus) {
		return false, &InvalidTransitionError{From: o.Status, To: newStatus}
	}

	o.Status = newStatus
	o.appendHistory(newStatus, note, updatedBy, now)
	o.stamp(newStatus, now)
	return true, nil
}

// stamp records the first time a status is reached. Re-entry through the
// self-transition path never reaches here, so each timestamp is set once.
func (o *Order) stamp(s Status, now time.Time) {
	switch s {
	case StatusConfirmed:
		if o.ConfirmedOn == nil {
			t := now
			o.ConfirmedOn = &t
		}
	case StatusInTransit:
		if o.ShippedOn == nil {
			t := now
			o.ShippedOn = &t
		}
	case StatusDelivered:
		if o.DeliveredOn == nil {
			t := now
			o.DeliveredOn = &t
			o.Shipping.DeliveredOn = &t
		}
	case StatusCancelled:
		if o.CancelledOn == nil {
			t := now
			o.CancelledOn = &t
		}
	}
}

func (o *Order) appendHistory(s Status, note, updatedBy string, now time.Time) {
	if updatedBy == "" {
		updatedBy = "system"
	}
	o.History = append(o.History, HistoryEntry{
		Status:    s,
		Note:      note,
		UpdatedBy: updatedBy,
		Date:      now,
	})
}

// InitiateRefund marks the refund record as processing for the order
// total. It is idempotent: a refund already processing or completed is
// left untouched and false is returned.
func (o *Order) InitiateRefund(now time.Time) bool {
	if o.Refund.Status == RefundProcessing || o.Refund.Status == RefundCompleted {
		return false
	}
	t := now
	o.Refund = Refund{
		Status:      RefundProcessing,
		Amount:      o.Amount,
		InitiatedOn: &t,
	}
	return true
}

// CompleteRefund marks the refund as completed and flips the payment
// status to refunded. No-op unless a refund is processing.
func (o *Order) CompleteRefund(now time.Time) bool {
	if o.Refund.Status != RefundProcessing {
		return false
	}
	t := now
	o.Refund.Status = RefundCompleted
	o.Refund.CompletedOn = &t
	o.PaymentStatus = PaymentRefunded
	return true
}

// MergeTracking folds provider-supplied shipment references into the
// shipping sub-record. Fields present in the input overwrite; absent
// fields are left untouched. ShipmentID is never overwritten once set.
func (o *Order) MergeTracking(shipmentID, awb, trackingURL string) {
	if shipmentID != "" && o.Shipping.ShipmentID == "" {
		o.Shipping.ShipmentID = shipmentID
	}
	if awb != "" {
		o.Shipping.AWB = awb
	}
	if trackingURL != "" {
		o.Shipping.TrackingURL = trackingURL
	}
}

// Clone returns a deep copy of the order. Stores hand out clones so
// callers cannot mutate shared state behind the aggregate's back.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Products = make([]Product, len(o.Products))
	for i, p := range o.Products {
		cp.Products[i] = p
		if p.Variant != nil {
			v := *p.Variant
			cp.Products[i].Variant = &v
		}
	}
	cp.History = append([]HistoryEntry(nil), o.History...)
	cp.ConfirmedOn = copyTime(o.ConfirmedOn)
	cp.ShippedOn = copyTime(o.ShippedOn)
	cp.DeliveredOn = copyTime(o.DeliveredOn)
	cp.CancelledOn = copyTime(o.CancelledOn)
	cp.Shipping.DeliveredOn = copyTime(o.Shipping.DeliveredOn)
	cp.Refund.InitiatedOn = copyTime(o.Refund.InitiatedOn)
	cp.Refund.CompletedOn = copyTime(o.Refund.CompletedOn)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
