// Package jobs holds the background schedules that keep local order
// state converging with the courier when webhooks are delayed or lost.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/internal/webhook"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

// TrackingPollJob periodically asks the courier for the status of every
// active shipment and applies updates through the same keyword mapping
// the webhook path uses. It is the safety net for missed webhooks.
type TrackingPollJob struct {
	store    store.Store
	provider *shiprocket.Client
	svc      *fulfillment.Service
	schedule string
	cron     *cron.Cron
	logger   *otelzap.Logger
}

func NewTrackingPollJob(st store.Store, provider *shiprocket.Client, svc *fulfillment.Service, schedule string, logger *otelzap.Logger) *TrackingPollJob {
	if schedule == "" {
		schedule = "@every 10m"
	}
	return &TrackingPollJob{
		store:    st,
		provider: provider,
		svc:      svc,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the poll on its cron schedule and begins running it.
func (j *TrackingPollJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		j.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("Tracking poll started", zap.String("schedule", j.schedule))
	return nil
}

// Stop stops the schedule. A poll already in flight finishes.
func (j *TrackingPollJob) Stop() {
	j.cron.Stop()
	j.logger.Info("Tracking poll stopped")
}

// RunOnce polls every active shipment once. Per-order failures are
// logged and skipped so one bad AWB cannot stall the sweep.
func (j *TrackingPollJob) RunOnce(ctx context.Context) {
	orders, err := j.store.FindActiveShipments(ctx)
	if err != nil {
		j.logger.Error("Tracking poll could not list active shipments", zap.Error(err))
		return
	}

	for _, o := range orders {
		if o.Shipping.AWB == "" {
			continue
		}
		tracking, err := j.provider.TrackByAWB(ctx, o.Shipping.AWB)
		if err != nil {
			j.logger.Warn("Tracking poll lookup failed",
				zap.String("order_id", o.ID),
				zap.String("awb", o.Shipping.AWB),
				zap.Error(err))
			continue
		}
		j.apply(ctx, o.ID, o.Shipping.AWB, tracking.CurrentStatus())
	}
}

func (j *TrackingPollJob) apply(ctx context.Context, orderID, awb, courierStatus string) {
	target, ok := webhook.MapCourierStatus(courierStatus)
	if !ok {
		return
	}

	o, err := j.store.FindOrder(ctx, orderID)
	if err != nil {
		j.logger.Warn("Tracking poll reload failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if o.Status == target || !o.Status.CanTransitionTo(target) {
		return
	}

	if _, err := j.svc.Transition(ctx, orderID, target, fulfillment.TransitionOptions{
		Note:          "tracking poll: " + courierStatus,
		UpdatedBy:     "tracking-poll",
		RequestRefund: target == order.StatusCancelled,
	}); err != nil {
		j.logger.Warn("Tracking poll transition failed",
			zap.String("order_id", orderID),
			zap.String("status", string(target)),
			zap.Error(err))
		return
	}
	j.logger.Info("Tracking poll advanced order",
		zap.String("order_id", orderID),
		zap.String("awb", awb),
		zap.String("status", string(target)))
}
