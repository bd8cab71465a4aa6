// Package shiprocket provides integration with the Shiprocket external API:
// a typed client for shipment booking, labels, pickups, cancellation and
// tracking, plus the bearer-token credential cache behind it.
package shiprocket

import (
	"context"
	"strconv"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// BillingConfig is the static sender/billing block stamped onto every
// create-order payload.
type BillingConfig struct {
	CustomerName string
	LastName     string
	Address      string
	Address2     string
	City         string
	Pincode      string
	State        string
	Country      string
	Email        string
	Phone        string
}

// ParcelDefaults are the dimensions and weight used for adhoc orders.
type ParcelDefaults struct {
	LengthCM  float64
	BreadthCM float64
	HeightCM  float64
	WeightKG  float64
}

// Config holds Shiprocket client configuration.
type Config struct {
	Email    string
	Password string
	BaseURL  string

	PickupLocation  string
	Billing         BillingConfig
	Parcel          ParcelDefaults
	TrackingURLBase string // prefix joined with the AWB for customer links

	Timeout time.Duration
	UseMock bool
}

// Client is the typed Shiprocket provider client. It delegates raw calls
// to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
}

// New creates a new Shiprocket client. If cfg.UseMock is true, it uses a
// mock API client instead of the real HTTP API.
func New(cfg Config, logger *otelzap.Logger) *Client {
	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			Email:    cfg.Email,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		})
	}
	return &Client{config: cfg, apiClient: apiClient, logger: logger}
}

// NewWithAPIClient creates a client with a custom API client. This is
// useful for injecting mocks in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger) *Client {
	return &Client{config: cfg, apiClient: apiClient, logger: logger}
}

// Shipment is the normalized result of a successful booking.
type Shipment struct {
	ShipmentID    string
	RemoteOrderID string
	AWB           string
	CourierName   string
	TrackingURL   string
	Status        string
}

// Pickup is the normalized result of a scheduled pickup.
type Pickup struct {
	Scheduled bool
	Date      string
}

// CreateShipment books a shipment for the given order snapshot.
func (c *Client) CreateShipment(ctx context.Context, in *ShipmentInput) (*Shipment, error) {
	c.logger.Info("Creating Shiprocket shipment",
		zap.String("order_id", in.OrderID),
		zap.Int("item_count", len(in.Items)),
	)

	req := c.buildCreateOrder(in)
	resp, err := c.apiClient.CreateOrder(ctx, req)
	if err != nil {
		c.logger.Error("Shiprocket create order failed", zap.String("order_id", in.OrderID), zap.Error(err))
		return nil, err
	}

	shipment := &Shipment{
		ShipmentID:    strconv.FormatInt(resp.ShipmentID, 10),
		RemoteOrderID: strconv.FormatInt(resp.OrderID, 10),
		AWB:           resp.AWBCode,
		CourierName:   resp.CourierName,
		Status:        resp.Status,
	}
	if resp.AWBCode != "" && c.config.TrackingURLBase != "" {
		shipment.TrackingURL = c.config.TrackingURLBase + resp.AWBCode
	}
	return shipment, nil
}

// GenerateLabel renders labels for the given shipment ids and returns the
// hosted document URL.
func (c *Client) GenerateLabel(ctx context.Context, shipmentIDs []string) (string, error) {
	c.logger.Info("Generating Shiprocket label", zap.Strings("shipment_ids", shipmentIDs))

	resp, err := c.apiClient.GenerateLabel(ctx, &LabelRequest{ShipmentID: shipmentIDs})
	if err != nil {
		c.logger.Error("Shiprocket label generation failed", zap.Error(err))
		return "", err
	}
	if resp.LabelCreated == 0 || resp.LabelURL == "" {
		return "", &APIError{Message: "label was not created", RawBody: resp.Response}
	}
	return resp.LabelURL, nil
}

// SchedulePickup requests courier pickup for the given shipment ids.
func (c *Client) SchedulePickup(ctx context.Context, shipmentIDs []string) (*Pickup, error) {
	c.logger.Info("Scheduling Shiprocket pickup", zap.Strings("shipment_ids", shipmentIDs))

	resp, err := c.apiClient.GeneratePickup(ctx, &PickupRequest{ShipmentID: shipmentIDs})
	if err != nil {
		c.logger.Error("Shiprocket pickup scheduling failed", zap.Error(err))
		return nil, err
	}
	return &Pickup{
		Scheduled: resp.PickupStatus == 1,
		Date:      resp.Response.PickupScheduledDate,
	}, nil
}

// CancelShipment cancels the provider-side orders.
func (c *Client) CancelShipment(ctx context.Context, remoteOrderIDs []string) error {
	c.logger.Info("Cancelling Shiprocket orders", zap.Strings("remote_order_ids", remoteOrderIDs))

	if _, err := c.apiClient.CancelOrders(ctx, &CancelRequest{IDs: remoteOrderIDs}); err != nil {
		c.logger.Error("Shiprocket cancellation failed", zap.Error(err))
		return err
	}
	return nil
}

// TrackByAWB fetches tracking data for an air waybill number.
func (c *Client) TrackByAWB(ctx context.Context, awb string) (*TrackingResponse, error) {
	resp, err := c.apiClient.TrackAWB(ctx, awb)
	if err != nil {
		c.logger.Error("Shiprocket tracking failed", zap.String("awb", awb), zap.Error(err))
		return nil, err
	}
	return resp, nil
}
