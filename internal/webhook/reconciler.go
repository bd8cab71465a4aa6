package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
)

var (
	// ErrInvalidSignature means the shared-secret header did not match.
	ErrInvalidSignature = errors.New("webhook: invalid signature")

	// ErrMalformedPayload means the body was not a JSON object or
	// carried no usable shipment reference.
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)

const updatedBy = "courier-webhook"

// Event is a courier status notification after alias normalization.
// Courier panels disagree on field names, so the decoder accepts the
// common spellings for each field.
type Event struct {
	RemoteOrderID string
	ShipmentID    string
	AWB           string
	Status        string
	TrackingURL   string
}

// Result reports what an ingested event did. A webhook for a shipment
// we never booked is acknowledged without effect, so Matched can be
// false on a nil error.
type Result struct {
	Matched bool         `json:"matched"`
	OrderID string       `json:"orderId,omitempty"`
	Status  order.Status `json:"status,omitempty"`
}

// Reconciler folds courier webhook events back into local order state.
type Reconciler struct {
	store  store.Store
	svc    *fulfillment.Service
	secret string
	logger *otelzap.Logger
}

func NewReconciler(st store.Store, svc *fulfillment.Service, secret string, logger *otelzap.Logger) *Reconciler {
	return &Reconciler{store: st, svc: svc, secret: secret, logger: logger}
}

// Ingest verifies, decodes and applies one webhook delivery.
//
// Events are idempotent: a redelivery lands on the self-transition
// path, which records a history note and fires no side effects. Stale
// or unrecognized statuses are acknowledged the same way instead of
// being rejected, courier panels retry aggressively on non-2xx.
func (r *Reconciler) Ingest(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if r.secret != "" && subtle.ConstantTimeCompare([]byte(signature), []byte(r.secret)) != 1 {
		return nil, ErrInvalidSignature
	}

	ev, err := decode(payload)
	if err != nil {
		return nil, err
	}

	orderID, found, err := r.locate(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !found {
		r.logger.Warn("Webhook for unknown shipment",
			zap.String("remote_order_id", ev.RemoteOrderID),
			zap.String("shipment_id", ev.ShipmentID),
			zap.String("awb", ev.AWB))
		return &Result{Matched: false}, nil
	}

	if err := r.mergeTracking(ctx, orderID, ev); err != nil {
		return nil, err
	}

	status := ev.Status
	if status == "" {
		o, err := r.store.FindOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &Result{Matched: true, OrderID: orderID, Status: o.Status}, nil
	}

	applied, err := r.applyStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Webhook applied",
		zap.String("order_id", orderID),
		zap.String("courier_status", status),
		zap.String("status", string(applied)))
	return &Result{Matched: true, OrderID: orderID, Status: applied}, nil
}

func decode(payload []byte) (*Event, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ev := &Event{
		RemoteOrderID: pick(raw, "order_id", "orderId", "channel_order_id"),
		ShipmentID:    pick(raw, "shipment_id", "shipmentId"),
		AWB:           pick(raw, "awb", "awb_code", "tracking_no", "tracking_number"),
		Status:        pick(raw, "status", "current_status", "courier_status", "event"),
		TrackingURL:   pick(raw, "tracking_url", "track_url"),
	}
	if ev.RemoteOrderID == "" && ev.ShipmentID == "" && ev.AWB == "" {
		return nil, fmt.Errorf("%w: no shipment reference", ErrMalformedPayload)
	}
	return ev, nil
}

// pick returns the first present key, coercing JSON numbers to their
// literal text so numeric ids compare against the stored strings.
func pick(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		msg, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(msg, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (r *Reconciler) locate(ctx context.Context, ev *Event) (string, bool, error) {
	refs := []struct {
		field store.ShippingField
		value string
	}{
		{store.FieldRemoteOrderID, ev.RemoteOrderID},
		{store.FieldShipmentID, ev.ShipmentID},
		{store.FieldAWB, ev.AWB},
	}
	for _, ref := range refs {
		if ref.value == "" {
			continue
		}
		o, err := r.store.FindOrderByShippingField(ctx, ref.field, ref.value)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return "", false, err
		}
		return o.ID, true, nil
	}
	return "", false, nil
}

// mergeTracking copies any new shipment references from the event onto
// the order. Lost conditional saves are retried against fresh state.
func (r *Reconciler) mergeTracking(ctx context.Context, orderID string, ev *Event) error {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := r.store.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		before := o.Shipping
		o.MergeTracking(ev.ShipmentID, ev.AWB, ev.TrackingURL)
		if o.Shipping == before {
			return nil
		}
		err = r.store.SaveOrder(ctx, o, o.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("webhook: tracking merge for order %s did not settle", orderID)
}

// applyStatus maps the courier phrase and routes it through the state
// machine. Edges the machine rejects degrade to a history note on the
// current status, a courier feed replaying old events must still get a
// 2xx. The decision is recomputed when a concurrent writer moves the
// order between our read and the transition.
func (r *Reconciler) applyStatus(ctx context.Context, orderID, raw string) (order.Status, error) {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := r.store.FindOrder(ctx, orderID)
		if err != nil {
			return "", err
		}

		target, mapped := MapCourierStatus(raw)
		var newStatus order.Status
		var note string
		switch {
		case !mapped:
			newStatus = o.Status
			note = fmt.Sprintf("unrecognized courier status %q", raw)
		case o.Status.CanTransitionTo(target):
			newStatus = target
			note = fmt.Sprintf("courier update: %s", raw)
		default:
			newStatus = o.Status
			note = fmt.Sprintf("courier reported %q while order is %s", raw, o.Status)
		}

		out, err := r.svc.Transition(ctx, orderID, newStatus, fulfillment.TransitionOptions{
			Note:          note,
			UpdatedBy:     updatedBy,
			RequestRefund: newStatus == order.StatusCancelled,
		})
		if err != nil {
			var ite *order.InvalidTransitionError
			if errors.As(err, &ite) {
				continue
			}
			return "", err
		}
		return out.Status, nil
	}
	return "", fmt.Errorf("webhook: status apply for order %s did not settle", orderID)
}
