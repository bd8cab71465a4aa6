// Package fulfillment orchestrates the order lifecycle: it is the single
// writer of order status and history, and composes the provider client,
// the store and the external collaborators behind each high-level action.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultSaveRetries = 3

// Config tunes orchestrator behavior.
type Config struct {
	// RefundRequiresPaid guards refund initiation on cancellation: when
	// true (the default wiring) a refund request against an order whose
	// payment status is not "paid" is skipped.
	RefundRequiresPaid bool

	// SaveRetries bounds how often a conflicting conditional save is
	// reapplied against fresh state before giving up.
	SaveRetries int
}

// Service is the shipment orchestrator and transition service.
type Service struct {
	store     store.Store
	provider  *shiprocket.Client
	notifier  Notifier
	restocker Restocker
	refunder  Refunder
	logger    *otelzap.Logger
	cfg       Config

	now func() time.Time

	// createFlights collapses concurrent shipment creations per order id
	// so at most one remote booking is in flight for an order.
	createFlights singleflight.Group
}

// New creates the orchestrator.
func New(st store.Store, provider *shiprocket.Client, notifier Notifier, restocker Restocker, refunder Refunder, cfg Config, logger *otelzap.Logger) *Service {
	if cfg.SaveRetries <= 0 {
		cfg.SaveRetries = defaultSaveRetries
	}
	return &Service{
		store:     st,
		provider:  provider,
		notifier:  notifier,
		restocker: restocker,
		refunder:  refunder,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// TransitionOptions parameterize a status transition.
type TransitionOptions struct {
	Note      string
	UpdatedBy string

	// Notify controls customer notification; nil means true.
	Notify *bool

	// RequestRefund asks for a refund when the transition cancels the
	// order. Subject to the RefundRequiresPaid guard.
	RequestRefund bool
}

func (o TransitionOptions) notifyWanted() bool {
	return o.Notify == nil || *o.Notify
}

// Transition moves an order to newStatus through the state machine,
// firing status side effects and persisting with a conditional save.
// Conflicting saves are reapplied against fresh state a bounded number
// of times; duplicated applications of the same status degrade to the
// self-transition path, so side effects fire at most once.
func (s *Service) Transition(ctx context.Context, orderID string, newStatus order.Status, opts TransitionOptions) (*order.Order, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.SaveRetries; attempt++ {
		o, err := s.store.FindOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}

		changed, err := o.TransitionTo(newStatus, opts.Note, opts.UpdatedBy, s.now())
		if err != nil {
			return nil, err
		}

		var restock, refund bool
		if changed && newStatus == order.StatusCancelled {
			restock = true
			if opts.RequestRefund {
				if s.refundAllowed(o) {
					refund = o.InitiateRefund(s.now())
				} else {
					s.logger.Warn("Refund request skipped by payment guard",
						zap.String("order_id", o.ID),
						zap.String("payment_status", string(o.PaymentStatus)),
					)
				}
			}
		}

		if err := s.store.SaveOrder(ctx, o, o.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		if restock {
			s.restockOrder(ctx, o)
		}
		if refund {
			if err := s.refunder.RefundPayment(ctx, o.ID, o.Refund.Amount); err != nil {
				// The refund record is already durable as "processing",
				// so the request is operator-visible and never dropped.
				s.logger.Error("Refund request to payment collaborator failed",
					zap.String("order_id", o.ID), zap.Error(err))
			}
		}
		if changed && opts.notifyWanted() {
			s.dispatchNotification(o.ID, statusMessage(o.ID, newStatus))
		}
		return o, nil
	}
	return nil, fmt.Errorf("transition of order %s did not settle after %d attempts: %w", orderID, s.cfg.SaveRetries+1, lastErr)
}

func (s *Service) refundAllowed(o *order.Order) bool {
	if !s.cfg.RefundRequiresPaid {
		return true
	}
	return o.PaymentStatus == order.PaymentPaid
}

func (s *Service) restockOrder(ctx context.Context, o *order.Order) {
	items := make([]RestockItem, 0, len(o.Products))
	for _, p := range o.Products {
		items = append(items, RestockItem{SKU: p.EffectiveSKU(), Quantity: p.Quantity})
	}
	if err := s.restocker.Restock(ctx, o.ID, items); err != nil {
		s.logger.Error("Restock request failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// dispatchNotification delivers the message off the critical path. The
// transition is already durable; a delivery failure is only logged.
func (s *Service) dispatchNotification(orderID, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, Notification{OrderID: orderID, Message: message}); err != nil {
			s.logger.Warn("Order notification failed",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}()
}

func statusMessage(orderID string, s order.Status) string {
	switch s {
	case order.StatusConfirmed:
		return fmt.Sprintf("Your order %s has been confirmed.", orderID)
	case order.StatusReadyToShip:
		return fmt.Sprintf("Your order %s has been packed and is ready to ship.", orderID)
	case order.StatusInTransit:
		return fmt.Sprintf("Your order %s has been shipped.", orderID)
	case order.StatusOutForDelivery:
		return fmt.Sprintf("Your order %s is out for delivery.", orderID)
	case order.StatusDelivered:
		return fmt.Sprintf("Your order %s has been delivered.", orderID)
	case order.StatusCancelled:
		return fmt.Sprintf("Your order %s has been cancelled.", orderID)
	case order.StatusReturned:
		return fmt.Sprintf("Your order %s is being returned.", orderID)
	default:
		return fmt.Sprintf("Your order %s status is now %s.", orderID, s)
	}
}
