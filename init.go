package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"

	"github.com/parcelpoint/fulfillment/internal/bus"
	"github.com/parcelpoint/fulfillment/internal/config"
	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/store"
	"github.com/parcelpoint/fulfillment/internal/telemetry"
	"github.com/parcelpoint/fulfillment/pkg/shiprocket"
)

func loadConfig() (*config.Config, error) {
	// A missing .env is fine, the environment wins either way.
	_ = godotenv.Load()
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTELEndpoint)
}

func initStore(cfg *config.Config, logger *otelzap.Logger) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		logger.Info("No database configured, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(cfg.DatabaseDSN)
}

func initProvider(cfg *config.Config, logger *otelzap.Logger) *shiprocket.Client {
	return shiprocket.New(shiprocket.Config{
		Email:          cfg.ShiprocketEmail,
		Password:       cfg.ShiprocketPassword,
		BaseURL:        cfg.ShiprocketBaseURL,
		PickupLocation: cfg.PickupLocation,
		Billing: shiprocket.BillingConfig{
			CustomerName: cfg.BillingName,
			Address:      cfg.BillingAddress,
			City:         cfg.BillingCity,
			State:        cfg.BillingState,
			Pincode:      cfg.BillingPincode,
			Country:      cfg.BillingCountry,
			Email:        cfg.BillingEmail,
			Phone:        cfg.BillingPhone,
		},
		Parcel: shiprocket.ParcelDefaults{
			LengthCM:  cfg.ParcelLength,
			BreadthCM: cfg.ParcelBreadth,
			HeightCM:  cfg.ParcelHeight,
			WeightKG:  cfg.ParcelWeight,
		},
		TrackingURLBase: cfg.TrackingURLBase,
		UseMock:         cfg.ShiprocketUseMock,
	}, logger)
}

// initBus wires the side-effect sinks. With no broker configured the
// log sink stands in so the service still runs end to end.
func initBus(cfg *config.Config, logger *otelzap.Logger) (fulfillment.Notifier, fulfillment.Restocker, fulfillment.Refunder, func(), error) {
	if cfg.AMQPURL == "" {
		sink := bus.LogSink{Logger: logger}
		return sink, sink, sink, func() {}, nil
	}

	conn, ch, err := bus.Connect(cfg.AMQPURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pub := bus.NewPublisher(ch)
	return pub, pub, pub, func() { conn.Close() }, nil
}
