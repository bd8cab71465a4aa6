package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPAPIClient is the production implementation of APIClient.
type HTTPAPIClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
	TokenTTL time.Duration

	// Now overrides the clock used for token expiry. Tests only.
	Now func() time.Time
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	c.tokens = newTokenSource(func(ctx context.Context) (*LoginResponse, error) {
		return c.Login(ctx, &LoginRequest{Email: cfg.Email, Password: cfg.Password})
	}, cfg.TokenTTL, cfg.Now)
	return c
}

// Login exchanges credentials for a bearer token. It bypasses the token
// cache; tokenSource is its only intended caller besides tests.
func (c *HTTPAPIClient) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/auth/login", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateOrder books an adhoc order via POST /v1/external/orders/create/adhoc.
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateLabel renders labels via POST /v1/external/courier/generate/label.
func (c *HTTPAPIClient) GenerateLabel(ctx context.Context, req *LabelRequest) (*LabelResponse, error) {
	var resp LabelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/courier/generate/label", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GeneratePickup schedules pickup via POST /v1/external/courier/generate/pickup.
func (c *HTTPAPIClient) GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	var resp PickupResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/courier/generate/pickup", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelOrders cancels provider orders via POST /v1/external/orders/cancel.
func (c *HTTPAPIClient) CancelOrders(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/orders/cancel", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrackAWB fetches tracking via GET /v1/external/courier/track/awb/{awb}.
func (c *HTTPAPIClient) TrackAWB(ctx context.Context, awb string) (*TrackingResponse, error) {
	path := "/v1/external/courier/track/awb/" + url.PathEscape(awb)
	var resp TrackingResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one outbound HTTP exchange. Transport failures come back as
// wrapped errors; non-2xx responses as *APIError carrying the raw body.
// No operation is retried here; retry policy belongs to the caller.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if authenticated {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shiprocket request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return parseError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			// Keep the unparseable body rather than dropping the response.
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    "response body is not valid JSON",
				RawBody:    string(raw),
			}
		}
	}
	return nil
}

// parseError extracts a message from an error response, falling back to
// the raw text when the body is not structured.
func parseError(statusCode int, raw []byte) error {
	var structured struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &structured); err == nil {
		msg = structured.Message
		if msg == "" {
			msg = structured.Error
		}
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    msg,
		RawBody:    string(raw),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
