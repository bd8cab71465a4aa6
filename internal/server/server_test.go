package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/order"
	"github.com/parcelpoint/fulfillment/internal/server"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/internal/webhook"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

const webhookSecret = "whsec-test"

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, fulfillment.Notification) error { return nil }

type nopRestocker struct{}

func (nopRestocker) Restock(context.Context, string, []fulfillment.RestockItem) error { return nil }

type nopRefunder struct{}

func (nopRefunder) RefundPayment(context.Context, string, float64) error { return nil }

type env struct {
	handler http.Handler
	store   *store.Memory
	mockAPI *shiprocket.MockAPIClient
}

func newTestServer(t *testing.T) *env {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	st := store.NewMemory()
	mockAPI := shiprocket.NewMockAPIClient()
	provider := shiprocket.NewWithAPIClient(shiprocket.Config{
		TrackingURLBase: "https://shiprocket.co/tracking/",
	}, mockAPI, logger)
	svc := fulfillment.New(st, provider, nopNotifier{}, nopRestocker{}, nopRefunder{},
		fulfillment.Config{RefundRequiresPaid: true}, logger)
	rec := webhook.NewReconciler(st, svc, webhookSecret, logger)

	srv := server.New(server.Config{Port: 8080}, st, svc, rec, logger)
	return &env{handler: srv.Handler(), store: st, mockAPI: mockAPI}
}

func (e *env) seed(t *testing.T, id string, status order.Status) *order.Order {
	t.Helper()
	o := order.New(id,
		[]order.Product{{Name: "Mug", SKU: "MUG-01", Quantity: 1, Price: 12.0}},
		order.AmountBreakdown{Subtotal: 12.0, Total: 12.0},
		order.PaymentPaid,
		order.Address{Name: "Asha Rao", Line1: "12 Hill Rd", City: "Pune", State: "MH",
			PostalCode: "411001", Country: "India", Phone: "9800000000"},
		time.Now().UTC(),
	)
	if status != order.StatusPending {
		_, err := o.TransitionTo(order.StatusConfirmed, "", "seed", time.Now().UTC())
		require.NoError(t, err)
	}
	require.NoError(t, e.store.SaveOrder(context.Background(), o, 0))
	return o
}

func (e *env) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t)

	rec := e.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_GetOrder(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusConfirmed)

	rec := e.do(http.MethodGet, "/orders/ord-1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "ord-1", got.ID)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestServer_GetOrder_NotFound(t *testing.T) {
	e := newTestServer(t)

	rec := e.do(http.MethodGet, "/orders/ghost", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Action_CreateShipment(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusConfirmed)

	rec := e.do(http.MethodPost, "/orders/ord-1/actions", `{"action":"create","updatedBy":"admin"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var res fulfillment.ExecuteResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, order.StatusReadyToShip, res.Order.Status)
	assert.NotEmpty(t, res.Order.Shipping.ShipmentID)
}

func TestServer_Action_Unknown(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusConfirmed)

	rec := e.do(http.MethodPost, "/orders/ord-1/actions", `{"action":"teleport"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Action_PreconditionConflict(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusConfirmed)

	rec := e.do(http.MethodPost, "/orders/ord-1/actions", `{"action":"pickup"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Action_ProviderFailure(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusConfirmed)
	e.mockAPI.SimulateErrors = true

	rec := e.do(http.MethodPost, "/orders/ord-1/actions", `{"action":"create"}`, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_Status_Transition(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusPending)

	rec := e.do(http.MethodPost, "/orders/ord-1/status", `{"status":"confirmed","updatedBy":"admin"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestServer_Status_InvalidEdgeConflict(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusPending)

	rec := e.do(http.MethodPost, "/orders/ord-1/status", `{"status":"delivered"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Status_UnknownStatus(t *testing.T) {
	e := newTestServer(t)
	e.seed(t, "ord-1", order.StatusPending)

	rec := e.do(http.MethodPost, "/orders/ord-1/status", `{"status":"vaporized"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Webhook_BadSignature(t *testing.T) {
	e := newTestServer(t)

	rec := e.do(http.MethodPost, "/webhooks/courier", `{"awb":"AWB1","status":"Delivered"}`,
		map[string]string{server.SignatureHeader: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Webhook_UnknownShipmentStill200(t *testing.T) {
	e := newTestServer(t)

	rec := e.do(http.MethodPost, "/webhooks/courier", `{"awb":"AWB-GHOST","status":"Delivered"}`,
		map[string]string{server.SignatureHeader: webhookSecret})

	assert.Equal(t, http.StatusOK, rec.Code)
	var res webhook.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.False(t, res.Matched)
}

func TestServer_Webhook_AppliesStatus(t *testing.T) {
	e := newTestServer(t)
	o := e.seed(t, "ord-1", order.StatusConfirmed)
	_, err := o.TransitionTo(order.StatusReadyToShip, "", "seed", time.Now().UTC())
	require.NoError(t, err)
	o.Shipping.AWB = "AWB1"
	require.NoError(t, e.store.SaveOrder(context.Background(), o, o.Version))

	rec := e.do(http.MethodPost, "/webhooks/courier", `{"awb":"AWB1","status":"Shipped"}`,
		map[string]string{server.SignatureHeader: webhookSecret})

	assert.Equal(t, http.StatusOK, rec.Code)
	saved, err := e.store.FindOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInTransit, saved.Status)
}

func TestServer_Webhook_MalformedPayloadStill200(t *testing.T) {
	e := newTestServer(t)

	rec := e.do(http.MethodPost, "/webhooks/courier", `not json`,
		map[string]string{server.SignatureHeader: webhookSecret})

	assert.Equal(t, http.StatusOK, rec.Code, "data-shape issues must not look like delivery failures")
	var res webhook.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.False(t, res.Matched)
}
