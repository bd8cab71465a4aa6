package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
	"go.uber.org/zap"
)

// Action is a high-level shipment operation on an order.
type Action string

const (
	ActionCreateShipment Action = "create_shipment"
	ActionGenerateLabel  Action = "generate_label"
	ActionSchedulePickup Action = "schedule_pickup"
	ActionCancelShipment Action = "cancel_shipment"
	ActionTrack          Action = "track"
	ActionRefund         Action = "refund"
)

// actionNames is the single remap table from caller-supplied action
// names to the enum. Short forms are kept for callers of the old API.
var actionNames = map[string]Action{
	"create_shipment": ActionCreateShipment,
	"create":          ActionCreateShipment,
	"generate_label":  ActionGenerateLabel,
	"label":           ActionGenerateLabel,
	"schedule_pickup": ActionSchedulePickup,
	"pickup":          ActionSchedulePickup,
	"cancel_shipment": ActionCancelShipment,
	"cancel":          ActionCancelShipment,
	"track":           ActionTrack,
	"refund":          ActionRefund,
}

// ParseAction resolves a caller-supplied action name.
func ParseAction(name string) (Action, error) {
	if a, ok := actionNames[name]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown action: %q", name)
}

// PreconditionError reports a local invariant violated before any remote
// call was made. It is always safe to retry with corrected input.
type PreconditionError struct {
	Action Action
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %s", e.Action, e.Reason)
}

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ExtraOptions carry optional request metadata for an action.
type ExtraOptions struct {
	Note      string
	UpdatedBy string
}

// ExecuteResult is the outcome of an action. Tracking is set only for
// ActionTrack.
type ExecuteResult struct {
	Order    *order.Order                 `json:"order"`
	Tracking *shiprocket.TrackingResponse `json:"tracking,omitempty"`
}

// Execute runs a shipment action against an order.
//
// Creating a shipment is idempotent: an order that already has one is
// returned unchanged without a remote call, and concurrent creations for
// the same order collapse into a single provider booking. All other
// precondition misses fail fast with *PreconditionError before any
// network traffic. A provider rejection aborts the action with local
// state untouched.
func (s *Service) Execute(ctx context.Context, orderID string, action Action, extra ExtraOptions) (*ExecuteResult, error) {
	switch action {
	case ActionCreateShipment:
		return s.createShipment(ctx, orderID, extra)
	case ActionGenerateLabel:
		return s.generateLabel(ctx, orderID)
	case ActionSchedulePickup:
		return s.schedulePickup(ctx, orderID)
	case ActionCancelShipment:
		return s.cancelShipment(ctx, orderID, extra)
	case ActionTrack:
		return s.track(ctx, orderID)
	case ActionRefund:
		return s.refund(ctx, orderID, extra)
	default:
		return nil, fmt.Errorf("unknown action: %q", action)
	}
}

func (s *Service) createShipment(ctx context.Context, orderID string, extra ExtraOptions) (*ExecuteResult, error) {
	v, err, _ := s.createFlights.Do(orderID, func() (interface{}, error) {
		return s.createShipmentOnce(ctx, orderID, extra)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExecuteResult), nil
}

func (s *Service) createShipmentOnce(ctx context.Context, orderID string, extra ExtraOptions) (*ExecuteResult, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Idempotent no-op: a shipment already exists for this order.
	if o.Shipping.ShipmentID != "" {
		return &ExecuteResult{Order: o}, nil
	}

	// The booking will move the order to ready_to_ship; reject orders
	// that cannot make that move before touching the provider.
	if !o.Status.CanTransitionTo(order.StatusReadyToShip) {
		return nil, &PreconditionError{
			Action: ActionCreateShipment,
			Reason: fmt.Sprintf("order in status %s cannot be shipped", o.Status),
		}
	}

	shipment, err := s.provider.CreateShipment(ctx, shipmentInput(o))
	if err != nil {
		return nil, err
	}

	saved, err := s.updateOrder(ctx, func(o *order.Order) error {
		if o.Shipping.ShipmentID != "" {
			// Another writer booked first; keep its shipment.
			return nil
		}
		o.Shipping.ShipmentID = shipment.ShipmentID
		o.Shipping.RemoteOrderID = shipment.RemoteOrderID
		o.Shipping.AWB = shipment.AWB
		o.Shipping.TrackingURL = shipment.TrackingURL
		o.Shipping.CourierName = shipment.CourierName
		note := extra.Note
		if note == "" {
			note = fmt.Sprintf("shipment %s created with %s", shipment.ShipmentID, shipment.CourierName)
		}
		_, err := o.TransitionTo(order.StatusReadyToShip, note, extra.UpdatedBy, s.now())
		return err
	}, orderID)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: saved}, nil
}

func (s *Service) generateLabel(ctx context.Context, orderID string) (*ExecuteResult, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Shipping.ShipmentID == "" {
		return nil, &PreconditionError{Action: ActionGenerateLabel, Reason: "order has no shipment"}
	}

	labelURL, err := s.provider.GenerateLabel(ctx, []string{o.Shipping.ShipmentID})
	if err != nil {
		return nil, err
	}

	saved, err := s.updateOrder(ctx, func(o *order.Order) error {
		o.Shipping.LabelURL = labelURL
		return nil
	}, orderID)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: saved}, nil
}

func (s *Service) schedulePickup(ctx context.Context, orderID string) (*ExecuteResult, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Shipping.ShipmentID == "" {
		return nil, &PreconditionError{Action: ActionSchedulePickup, Reason: "order has no shipment"}
	}

	pickup, err := s.provider.SchedulePickup(ctx, []string{o.Shipping.ShipmentID})
	if err != nil {
		return nil, err
	}

	saved, err := s.updateOrder(ctx, func(o *order.Order) error {
		o.Shipping.PickupScheduled = pickup.Scheduled
		o.Shipping.PickupDate = pickup.Date
		return nil
	}, orderID)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: saved}, nil
}

func (s *Service) cancelShipment(ctx context.Context, orderID string, extra ExtraOptions) (*ExecuteResult, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Shipping.RemoteOrderID == "" {
		return nil, &PreconditionError{Action: ActionCancelShipment, Reason: "order has no provider order to cancel"}
	}

	if err := s.provider.CancelShipment(ctx, []string{o.Shipping.RemoteOrderID}); err != nil {
		return nil, err
	}

	note := extra.Note
	if note == "" {
		note = "shipment cancelled at provider"
	}
	cancelled, err := s.Transition(ctx, orderID, order.StatusCancelled, TransitionOptions{
		Note:          note,
		UpdatedBy:     extra.UpdatedBy,
		RequestRefund: true,
	})
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: cancelled}, nil
}

func (s *Service) track(ctx context.Context, orderID string) (*ExecuteResult, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Shipping.AWB == "" {
		return nil, &PreconditionError{Action: ActionTrack, Reason: "order has no AWB"}
	}

	tracking, err := s.provider.TrackByAWB(ctx, o.Shipping.AWB)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: o, Tracking: tracking}, nil
}

func (s *Service) refund(ctx context.Context, orderID string, extra ExtraOptions) (*ExecuteResult, error) {
	note := extra.Note
	if note == "" {
		note = "cancelled with refund requested"
	}
	cancelled, err := s.Transition(ctx, orderID, order.StatusCancelled, TransitionOptions{
		Note:          note,
		UpdatedBy:     extra.UpdatedBy,
		RequestRefund: true,
	})
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Order: cancelled}, nil
}

// updateOrder applies mutate to a fresh copy of the order and saves it
// conditionally, reapplying on version conflicts a bounded number of
// times.
func (s *Service) updateOrder(ctx context.Context, mutate func(*order.Order) error, orderID string) (*order.Order, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.SaveRetries; attempt++ {
		o, err := s.store.FindOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := mutate(o); err != nil {
			return nil, err
		}
		if err := s.store.SaveOrder(ctx, o, o.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return o, nil
	}
	s.logger.Error("Order update did not settle", zap.String("order_id", orderID), zap.Error(lastErr))
	return nil, fmt.Errorf("update of order %s did not settle: %w", orderID, lastErr)
}

// shipmentInput maps the order snapshot into the provider's booking
// input, flattening line items with variant SKU and price taking
// precedence.
func shipmentInput(o *order.Order) *shiprocket.ShipmentInput {
	items := make([]shiprocket.ItemInput, 0, len(o.Products))
	for _, p := range o.Products {
		items = append(items, shiprocket.ItemInput{
			Name:         p.Name,
			SKU:          p.EffectiveSKU(),
			Units:        p.Quantity,
			SellingPrice: p.EffectivePrice(),
		})
	}
	return &shiprocket.ShipmentInput{
		OrderID:   o.ID,
		OrderDate: o.PlacedOn,
		Recipient: shiprocket.RecipientInput{
			Name:       o.ShippingAddress.Name,
			Line1:      o.ShippingAddress.Line1,
			Line2:      o.ShippingAddress.Line2,
			City:       o.ShippingAddress.City,
			State:      o.ShippingAddress.State,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
			Phone:      o.ShippingAddress.Phone,
			Email:      o.ShippingAddress.Email,
		},
		Items:    items,
		COD:      o.PaymentStatus == order.PaymentCOD,
		Subtotal: o.Breakdown.Subtotal,
	}
}
