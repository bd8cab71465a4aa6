package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage. An empty DSN selects the in-memory store.
	DatabaseDSN string `envconfig:"DATABASE_DSN"`

	// Message bus. An empty URL logs events instead of publishing.
	AMQPURL string `envconfig:"AMQP_URL"`

	// Shiprocket
	ShiprocketEmail    string `envconfig:"SHIPROCKET_EMAIL"`
	ShiprocketPassword string `envconfig:"SHIPROCKET_PASSWORD"`
	ShiprocketBaseURL  string `envconfig:"SHIPROCKET_BASE_URL" default:"https://apiv2.shiprocket.in/v1/external"`
	ShiprocketUseMock  bool   `envconfig:"SHIPROCKET_USE_MOCK" default:"false"`
	PickupLocation     string `envconfig:"SHIPROCKET_PICKUP_LOCATION" default:"Primary"`
	TrackingURLBase    string `envconfig:"TRACKING_URL_BASE" default:"https://shiprocket.co/tracking/"`

	// Billing identity stamped on provider orders.
	BillingName    string `envconfig:"BILLING_NAME"`
	BillingAddress string `envconfig:"BILLING_ADDRESS"`
	BillingCity    string `envconfig:"BILLING_CITY"`
	BillingState   string `envconfig:"BILLING_STATE"`
	BillingPincode string `envconfig:"BILLING_PINCODE"`
	BillingCountry string `envconfig:"BILLING_COUNTRY" default:"India"`
	BillingEmail   string `envconfig:"BILLING_EMAIL"`
	BillingPhone   string `envconfig:"BILLING_PHONE"`

	// Default parcel dimensions in cm and weight in kg.
	ParcelLength  float64 `envconfig:"PARCEL_LENGTH" default:"10"`
	ParcelBreadth float64 `envconfig:"PARCEL_BREADTH" default:"10"`
	ParcelHeight  float64 `envconfig:"PARCEL_HEIGHT" default:"10"`
	ParcelWeight  float64 `envconfig:"PARCEL_WEIGHT" default:"0.5"`

	// Webhooks
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Fulfillment policy
	RefundRequiresPaid bool   `envconfig:"REFUND_REQUIRES_PAID" default:"true"`
	TrackingPollSpec   string `envconfig:"TRACKING_POLL_SPEC" default:"@every 10m"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"parcelpoint-fulfillment"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("shiprocket.mock", c.ShiprocketUseMock),
		attribute.Bool("store.postgres", c.DatabaseDSN != ""),
	}
}
