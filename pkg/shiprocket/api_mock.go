package shiprocket

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors bool

	// Per-operation call counters, safe for concurrent use.
	CreateOrderCalls int64
	CancelCalls      int64
	LoginCalls       int64

	OnLogin          func(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	OnCreateOrder    func(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	OnGenerateLabel  func(ctx context.Context, req *LabelRequest) (*LabelResponse, error)
	OnGeneratePickup func(ctx context.Context, req *PickupRequest) (*PickupResponse, error)
	OnCancelOrders   func(ctx context.Context, req *CancelRequest) (*CancelResponse, error)
	OnTrackAWB       func(ctx context.Context, awb string) (*TrackingResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	atomic.AddInt64(&m.LoginCalls, 1)
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 400, Message: "simulated login failure"}
	}
	if m.OnLogin != nil {
		return m.OnLogin(ctx, req)
	}
	return &LoginResponse{Token: "mock-token-" + uuid.New().String()[:8]}, nil
}

func (m *MockAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	atomic.AddInt64(&m.CreateOrderCalls, 1)
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 422, Message: "simulated create failure"}
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}
	return &CreateOrderResponse{
		OrderID:     time.Now().UnixNano() % 1_000_000,
		ShipmentID:  time.Now().UnixNano()%1_000_000 + 7,
		Status:      "NEW",
		AWBCode:     fmt.Sprintf("AWB%09d", time.Now().UnixNano()%1_000_000_000),
		CourierName: "Mock Express",
	}, nil
}

func (m *MockAPIClient) GenerateLabel(ctx context.Context, req *LabelRequest) (*LabelResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 422, Message: "simulated label failure"}
	}
	if m.OnGenerateLabel != nil {
		return m.OnGenerateLabel(ctx, req)
	}
	return &LabelResponse{
		LabelCreated: 1,
		LabelURL:     "https://labels.example.test/" + uuid.New().String() + ".pdf",
	}, nil
}

func (m *MockAPIClient) GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 422, Message: "simulated pickup failure"}
	}
	if m.OnGeneratePickup != nil {
		return m.OnGeneratePickup(ctx, req)
	}
	resp := &PickupResponse{PickupStatus: 1}
	resp.Response.PickupScheduledDate = time.Now().AddDate(0, 0, 1).Format("2006-01-02 15:04:05")
	return resp, nil
}

func (m *MockAPIClient) CancelOrders(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	atomic.AddInt64(&m.CancelCalls, 1)
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 422, Message: "simulated cancel failure"}
	}
	if m.OnCancelOrders != nil {
		return m.OnCancelOrders(ctx, req)
	}
	return &CancelResponse{Message: "orders cancelled"}, nil
}

func (m *MockAPIClient) TrackAWB(ctx context.Context, awb string) (*TrackingResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 404, Message: "simulated tracking failure"}
	}
	if m.OnTrackAWB != nil {
		return m.OnTrackAWB(ctx, awb)
	}
	resp := &TrackingResponse{}
	resp.TrackingData.TrackStatus = 1
	resp.TrackingData.ShipmentTrack = []ShipmentTrack{
		{AWBCode: awb, CourierName: "Mock Express", CurrentStatus: "In Transit"},
	}
	resp.TrackingData.TrackURL = "https://track.example.test/" + awb
	return resp, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
