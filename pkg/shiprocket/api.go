package shiprocket

import (
	"context"
)

// APIClient defines the raw Shiprocket external API operations. The HTTP
// implementation talks to the real service; the mock implementation
// backs tests.
type APIClient interface {
	// Login exchanges account credentials for a bearer token.
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)

	// CreateOrder books an adhoc order and assigns a shipment.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)

	// GenerateLabel renders shipping labels for shipments.
	GenerateLabel(ctx context.Context, req *LabelRequest) (*LabelResponse, error)

	// GeneratePickup schedules courier pickup for shipments.
	GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error)

	// CancelOrders cancels provider-side orders.
	CancelOrders(ctx context.Context, req *CancelRequest) (*CancelResponse, error)

	// TrackAWB fetches tracking data for an air waybill number.
	TrackAWB(ctx context.Context, awb string) (*TrackingResponse, error)
}

// ============================================================================
// API Request/Response Types (match Shiprocket external API v1 structure)
// ============================================================================

// LoginRequest is the body for POST /v1/external/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token. Tokens are valid for ten days.
type LoginResponse struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Token     string `json:"token"`
}

// OrderItem is one flattened line item in a create-order request.
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

// CreateOrderRequest is the body for POST /v1/external/orders/create/adhoc.
// Billing fields come from static configuration; shipping fields from the
// order's recipient address.
type CreateOrderRequest struct {
	OrderID        string `json:"order_id"`
	OrderDate      string `json:"order_date"` // yyyy-mm-dd hh:mm
	PickupLocation string `json:"pickup_location"`
	Comment        string `json:"comment,omitempty"`

	BillingCustomerName string `json:"billing_customer_name"`
	BillingLastName     string `json:"billing_last_name,omitempty"`
	BillingAddress      string `json:"billing_address"`
	BillingAddress2     string `json:"billing_address_2,omitempty"`
	BillingCity         string `json:"billing_city"`
	BillingPincode      string `json:"billing_pincode"`
	BillingState        string `json:"billing_state"`
	BillingCountry      string `json:"billing_country"`
	BillingEmail        string `json:"billing_email,omitempty"`
	BillingPhone        string `json:"billing_phone"`

	ShippingIsBilling    bool   `json:"shipping_is_billing"`
	ShippingCustomerName string `json:"shipping_customer_name,omitempty"`
	ShippingAddress      string `json:"shipping_address,omitempty"`
	ShippingAddress2     string `json:"shipping_address_2,omitempty"`
	ShippingCity         string `json:"shipping_city,omitempty"`
	ShippingPincode      string `json:"shipping_pincode,omitempty"`
	ShippingState        string `json:"shipping_state,omitempty"`
	ShippingCountry      string `json:"shipping_country,omitempty"`
	ShippingEmail        string `json:"shipping_email,omitempty"`
	ShippingPhone        string `json:"shipping_phone,omitempty"`

	OrderItems    []OrderItem `json:"order_items"`
	PaymentMethod string      `json:"payment_method"` // "Prepaid" or "COD"
	SubTotal      float64     `json:"sub_total"`

	Length  float64 `json:"length"`  // cm
	Breadth float64 `json:"breadth"` // cm
	Height  float64 `json:"height"`  // cm
	Weight  float64 `json:"weight"`  // kg
}

// CreateOrderResponse is the provider's booking confirmation.
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	ShipmentID  int64  `json:"shipment_id"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code"`
	AWBCode     string `json:"awb_code"`
	CourierID   int64  `json:"courier_company_id"`
	CourierName string `json:"courier_name"`
}

// LabelRequest is the body for POST /v1/external/courier/generate/label.
type LabelRequest struct {
	ShipmentID []string `json:"shipment_id"`
}

// LabelResponse carries the hosted label document URL.
type LabelResponse struct {
	LabelCreated int    `json:"label_created"`
	LabelURL     string `json:"label_url"`
	Response     string `json:"response,omitempty"`
}

// PickupRequest is the body for POST /v1/external/courier/generate/pickup.
type PickupRequest struct {
	ShipmentID []string `json:"shipment_id"`
}

// PickupResponse confirms a scheduled pickup slot.
type PickupResponse struct {
	PickupStatus int `json:"pickup_status"`
	Response     struct {
		PickupScheduledDate string `json:"pickup_scheduled_date"`
		PickupTokenNumber   string `json:"pickup_token_number,omitempty"`
	} `json:"response"`
}

// CancelRequest is the body for POST /v1/external/orders/cancel. IDs are
// provider-side order ids, not local ones.
type CancelRequest struct {
	IDs []string `json:"ids"`
}

// CancelResponse acknowledges a cancellation.
type CancelResponse struct {
	Message string `json:"message,omitempty"`
}

// ShipmentTrack is the summary row of a tracking response.
type ShipmentTrack struct {
	AWBCode       string `json:"awb_code"`
	CourierName   string `json:"courier_name,omitempty"`
	CurrentStatus string `json:"current_status"`
	Origin        string `json:"origin,omitempty"`
	Destination   string `json:"destination,omitempty"`
	DeliveredDate string `json:"delivered_date,omitempty"`
	EDD           string `json:"edd,omitempty"`
}

// TrackActivity is one scan event in the tracking history.
type TrackActivity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location,omitempty"`
}

// TrackingResponse is the body of GET /v1/external/courier/track/awb/{awb}.
type TrackingResponse struct {
	TrackingData struct {
		TrackStatus             int             `json:"track_status"`
		ShipmentTrack           []ShipmentTrack `json:"shipment_track"`
		ShipmentTrackActivities []TrackActivity `json:"shipment_track_activities"`
		TrackURL                string          `json:"track_url,omitempty"`
		Error                   string          `json:"error,omitempty"`
	} `json:"tracking_data"`
}

// CurrentStatus returns the courier's current free-text status line, or
// empty when the provider returned no shipment rows.
func (t *TrackingResponse) CurrentStatus() string {
	if len(t.TrackingData.ShipmentTrack) == 0 {
		return ""
	}
	return t.TrackingData.ShipmentTrack[0].CurrentStatus
}
