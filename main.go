package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelpoint/fulfillment/internal/fulfillment"
	"github.com/parcelpoint/fulfillment/internal/jobs"
	"github.com/parcelpoint/fulfillment/internal/server"
	"github.com/parcelpoint/fulfillment/internal/webhook"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fulfillment",
	Short:   "ParcelPoint Fulfillment - order lifecycle and courier orchestration service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fulfillment API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	st, err := initStore(cfg, logger)
	if err != nil {
		return err
	}

	notifier, restocker, refunder, busClose, err := initBus(cfg, logger)
	if err != nil {
		return err
	}
	defer busClose()

	provider := initProvider(cfg, logger)
	svc := fulfillment.New(st, provider, notifier, restocker, refunder, fulfillment.Config{
		RefundRequiresPaid: cfg.RefundRequiresPaid,
	}, logger)
	reconciler := webhook.NewReconciler(st, svc, cfg.WebhookSecret, logger)

	poll := jobs.NewTrackingPollJob(st, provider, svc, cfg.TrackingPollSpec, logger)
	if err := poll.Start(); err != nil {
		return fmt.Errorf("tracking poll: %w", err)
	}
	defer poll.Stop()

	logger.Info("Starting ParcelPoint Fulfillment",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
	)

	srv := server.New(server.Config{Port: cfg.Port}, st, svc, reconciler, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
