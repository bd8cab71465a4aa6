package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/jobs"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, fulfillment.Notification) error { return nil }

type nopRestocker struct{}

func (nopRestocker) Restock(context.Context, string, []fulfillment.RestockItem) error { return nil }

type nopRefunder struct{}

func (nopRefunder) RefundPayment(context.Context, string, float64) error { return nil }

type fixture struct {
	job     *jobs.TrackingPollJob
	store   *store.Memory
	mockAPI *shiprocket.MockAPIClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	mockAPI := shiprocket.NewMockAPIClient()
	logger := otelzap.New(zap.NewNop())
	provider := shiprocket.NewWithAPIClient(shiprocket.Config{}, mockAPI, logger)
	svc := fulfillment.New(st, provider, nopNotifier{}, nopRestocker{}, nopRefunder{},
		fulfillment.Config{RefundRequiresPaid: true}, logger)
	return &fixture{
		job:     jobs.NewTrackingPollJob(st, provider, svc, "@every 10m", logger),
		store:   st,
		mockAPI: mockAPI,
	}
}

func (f *fixture) seed(t *testing.T, id string, status order.Status, awb string) {
	t.Helper()
	o := order.New(id,
		[]order.Product{{Name: "Mug", SKU: "MUG-01", Quantity: 1, Price: 12.0}},
		order.AmountBreakdown{Subtotal: 12.0, Total: 12.0},
		order.PaymentPaid,
		order.Address{Name: "Asha Rao", Line1: "12 Hill Rd", City: "Pune", State: "MH",
			PostalCode: "411001", Country: "India", Phone: "9800000000"},
		time.Now().UTC(),
	)
	full := []order.Status{order.StatusConfirmed, order.StatusReadyToShip,
		order.StatusInTransit, order.StatusOutForDelivery}
	for _, s := range full {
		_, err := o.TransitionTo(s, "", "seed", time.Now().UTC())
		require.NoError(t, err)
		if s == status {
			break
		}
	}
	o.Shipping.AWB = awb
	require.NoError(t, f.store.SaveOrder(context.Background(), o, 0))
}

func trackWith(status string) func(ctx context.Context, awb string) (*shiprocket.TrackingResponse, error) {
	return func(ctx context.Context, awb string) (*shiprocket.TrackingResponse, error) {
		resp := &shiprocket.TrackingResponse{}
		resp.TrackingData.TrackStatus = 1
		resp.TrackingData.ShipmentTrack = []shiprocket.ShipmentTrack{
			{AWBCode: awb, CurrentStatus: status},
		}
		return resp, nil
	}
}

func TestRunOnce_AdvancesShipment(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusOutForDelivery, "AWB1")
	f.mockAPI.OnTrackAWB = trackWith("Delivered")

	f.job.RunOnce(context.Background())

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, saved.Status)
	assert.NotNil(t, saved.DeliveredOn)
	last := saved.History[len(saved.History)-1]
	assert.Equal(t, "tracking-poll", last.UpdatedBy)
}

func TestRunOnce_SameStatusIsSilent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-2", order.StatusInTransit, "AWB2")
	f.mockAPI.OnTrackAWB = trackWith("In Transit")

	before, err := f.store.FindOrder(context.Background(), "ord-2")
	require.NoError(t, err)
	f.job.RunOnce(context.Background())

	after, err := f.store.FindOrder(context.Background(), "ord-2")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "matching status must not write")
}

func TestRunOnce_UnmappedStatusIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-3", order.StatusInTransit, "AWB3")
	f.mockAPI.OnTrackAWB = trackWith("Held at customs")

	f.job.RunOnce(context.Background())

	saved, err := f.store.FindOrder(context.Background(), "ord-3")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInTransit, saved.Status)
}

func TestRunOnce_LookupFailureSkipsOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-4", order.StatusInTransit, "AWB4")
	f.seed(t, "ord-5", order.StatusOutForDelivery, "AWB5")
	f.mockAPI.OnTrackAWB = func(ctx context.Context, awb string) (*shiprocket.TrackingResponse, error) {
		if awb == "AWB4" {
			return nil, &shiprocket.APIError{StatusCode: 404, Message: "awb not found"}
		}
		return trackWith("Delivered")(ctx, awb)
	}

	f.job.RunOnce(context.Background())

	untouched, err := f.store.FindOrder(context.Background(), "ord-4")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInTransit, untouched.Status)

	advanced, err := f.store.FindOrder(context.Background(), "ord-5")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, advanced.Status)
}
