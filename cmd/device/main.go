// Command device simulates one fleet vehicle: it generates telemetry
// samples, publishes them over MQTT, and falls back to a durable local
// outbox when the broker is unreachable (spec.md C1-C4).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/device"
	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load[config.Device](nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		os.Exit(2)
	}

	logger := logging.New(logging.Config{
		Level: cfg.Level, Format: cfg.Format,
		Service: "fleet-ingest", Component: "device",
	})
	logger.Info().
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Str("device_id", cfg.DeviceID).
		Msg("starting device")

	if err := os.MkdirAll(cfg.QueueDir, 0o755); err != nil {
		return fmt.Errorf("creating queue dir: %w", err)
	}

	client, err := device.New(*cfg, logger)
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client.Connect()

	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("device run loop: %w", err)
	}

	logger.Info().Msg("device shut down cleanly")
	return nil
}
