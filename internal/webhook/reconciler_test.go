package webhook_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/internal/webhook"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

const secret = "whsec-test"

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, fulfillment.Notification) error { return nil }

type nopRestocker struct{}

func (nopRestocker) Restock(context.Context, string, []fulfillment.RestockItem) error { return nil }

type nopRefunder struct{}

func (nopRefunder) RefundPayment(context.Context, string, float64) error { return nil }

type fixture struct {
	rec   *webhook.Reconciler
	store *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	logger := otelzap.New(zap.NewNop())
	provider := shiprocket.NewWithAPIClient(shiprocket.Config{}, shiprocket.NewMockAPIClient(), logger)
	svc := fulfillment.New(st, provider, nopNotifier{}, nopRestocker{}, nopRefunder{},
		fulfillment.Config{RefundRequiresPaid: true}, logger)
	return &fixture{rec: webhook.NewReconciler(st, svc, secret, logger), store: st}
}

func (f *fixture) seed(t *testing.T, id string, status order.Status, shipping order.Shipping) *order.Order {
	t.Helper()
	o := order.New(id,
		[]order.Product{{Name: "Mug", SKU: "MUG-01", Quantity: 1, Price: 12.0}},
		order.AmountBreakdown{Subtotal: 12.0, Total: 12.0},
		order.PaymentPaid,
		order.Address{Name: "Asha Rao", Line1: "12 Hill Rd", City: "Pune", State: "MH",
			PostalCode: "411001", Country: "India", Phone: "9800000000"},
		time.Now().UTC(),
	)
	for _, s := range pathTo(status) {
		_, err := o.TransitionTo(s, "", "seed", time.Now().UTC())
		require.NoError(t, err)
	}
	o.Shipping = shipping
	require.NoError(t, f.store.SaveOrder(context.Background(), o, 0))
	return o
}

func pathTo(status order.Status) []order.Status {
	full := []order.Status{order.StatusConfirmed, order.StatusReadyToShip,
		order.StatusInTransit, order.StatusOutForDelivery, order.StatusDelivered}
	for i, s := range full {
		if s == status {
			return full[:i+1]
		}
	}
	return nil
}

func TestIngest_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Delivered"}`), "wrong")

	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestIngest_RejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Ingest(ctx, []byte(`not json`), secret)
	assert.ErrorIs(t, err, webhook.ErrMalformedPayload)

	_, err = f.rec.Ingest(ctx, []byte(`{"status":"Delivered"}`), secret)
	assert.ErrorIs(t, err, webhook.ErrMalformedPayload, "an event with no shipment reference is unusable")
}

func TestIngest_UnknownShipmentAcknowledged(t *testing.T) {
	f := newFixture(t)

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB-GHOST","status":"Delivered"}`), secret)

	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestIngest_DeliveryByAWB(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusOutForDelivery, order.Shipping{ShipmentID: "5001", AWB: "AWB1"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Delivered"}`), secret)

	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, order.StatusDelivered, res.Status)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, saved.Status)
	assert.NotNil(t, saved.DeliveredOn)
}

func TestIngest_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusOutForDelivery, order.Shipping{AWB: "AWB1"})
	ctx := context.Background()
	body := []byte(`{"awb":"AWB1","status":"Delivered"}`)

	_, err := f.rec.Ingest(ctx, body, secret)
	require.NoError(t, err)
	first, err := f.store.FindOrder(ctx, "ord-1")
	require.NoError(t, err)

	res, err := f.rec.Ingest(ctx, body, secret)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, res.Status)

	second, err := f.store.FindOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, second.Status)
	assert.Equal(t, first.DeliveredOn, second.DeliveredOn, "delivery timestamp must not move")
	assert.Len(t, second.History, len(first.History)+1, "a redelivery records one note and nothing else")
}

func TestIngest_OutForDeliverySubstringPrecedence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusInTransit, order.Shipping{AWB: "AWB1"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Out For Delivery"}`), secret)

	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, res.Status)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Nil(t, saved.DeliveredOn, `"out for delivery" must not count as delivered`)
}

func TestIngest_NumericRemoteOrderID(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusReadyToShip, order.Shipping{RemoteOrderID: "4001", ShipmentID: "5001"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"order_id":4001,"status":"Shipped"}`), secret)

	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, order.StatusInTransit, res.Status)
}

func TestIngest_MergesTrackingReferences(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusReadyToShip, order.Shipping{ShipmentID: "5001"})

	body := []byte(`{"shipment_id":"5001","awb_code":"AWB77","tracking_url":"https://t.example/AWB77","status":"Picked Up"}`)
	_, err := f.rec.Ingest(context.Background(), body, secret)
	require.NoError(t, err)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "5001", saved.Shipping.ShipmentID)
	assert.Equal(t, "AWB77", saved.Shipping.AWB)
	assert.Equal(t, "https://t.example/AWB77", saved.Shipping.TrackingURL)
	assert.Equal(t, order.StatusInTransit, saved.Status)
	assert.NotNil(t, saved.ShippedOn)
}

func TestIngest_UnmappedStatusRecordsNote(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t, "ord-1", order.StatusInTransit, order.Shipping{AWB: "AWB1"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Misrouted at hub"}`), secret)

	require.NoError(t, err)
	assert.Equal(t, order.StatusInTransit, res.Status)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, saved.History, len(seeded.History)+1)
	last := saved.History[len(saved.History)-1]
	assert.Contains(t, last.Note, "Misrouted at hub")
	assert.Equal(t, "courier-webhook", last.UpdatedBy)
}

func TestIngest_StaleEventAcknowledgedWithNote(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusDelivered, order.Shipping{AWB: "AWB1"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Picked Up"}`), secret)

	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, res.Status, "a replayed pickup event cannot move a delivered order")

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	last := saved.History[len(saved.History)-1]
	assert.Contains(t, last.Note, "Picked Up")
}

func TestIngest_CourierCancellation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusReadyToShip, order.Shipping{ShipmentID: "5001", AWB: "AWB1"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"awb":"AWB1","status":"Cancelled"}`), secret)

	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Status)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.NotNil(t, saved.CancelledOn)
	assert.Equal(t, order.RefundProcessing, saved.Refund.Status)
}

func TestIngest_StatuslessEventOnlyMergesTracking(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ord-1", order.StatusReadyToShip, order.Shipping{ShipmentID: "5001"})

	res, err := f.rec.Ingest(context.Background(), []byte(`{"shipment_id":"5001","awb":"AWB88"}`), secret)

	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyToShip, res.Status)

	saved, err := f.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "AWB88", saved.Shipping.AWB)
	assert.Equal(t, order.StatusReadyToShip, saved.Status)
}
