// Command harness runs the fleet disconnect/reconnect test battery
// against a live device fleet and collector, and reports latency and
// flush-time compliance against the target SLOs (spec.md C10).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/harness"
	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load[config.Harness](nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level: cfg.Level, Format: cfg.Format,
		Service: "fleet-ingest", Component: "harness",
	})

	scenarios, err := harness.LoadScenarios(cfg.ScenariosFile)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deviceCfg := config.Device{
		Transport:         cfg.Transport,
		Logging:           cfg.Logging,
		PublishIntervalS:  1.0,
		OutboxMaxCapacity: 10000,
		QueueDir:          cfg.ResultsDir + "/queues",
	}

	logger.Info().Int("device_count", cfg.DeviceCount).Msg("launching fleet")
	fleet, err := harness.Launch(ctx, deviceCfg, cfg.DeviceCount, logger)
	if err != nil {
		return fmt.Errorf("launching fleet: %w", err)
	}
	time.Sleep(10 * time.Second)

	storeClient := store.New(cfg.Store)
	defer storeClient.Close()

	var results []harness.ScenarioResult
	for _, sc := range scenarios {
		logger.Info().Int("disconnect_percent", sc.DisconnectPercent).Int("duration_minutes", sc.DurationMinutes).Msg("running scenario")
		result, err := harness.RunScenario(ctx, fleet, sc, deviceCfg.OutboxMaxCapacity, logger)
		if err != nil {
			return fmt.Errorf("running scenario: %w", err)
		}
		results = append(results, result)
	}

	latency, err := harness.MeasureLatency(ctx, storeClient, 10*time.Minute)
	if err != nil {
		logger.Error().Err(err).Msg("measuring latency")
	}

	fleetHealth, err := harness.MeasureFleetHealth(ctx, storeClient)
	if err != nil {
		logger.Error().Err(err).Msg("measuring fleet health")
	}

	report := map[string]interface{}{
		"scenarios":    results,
		"latency":      latency,
		"fleet_health": fleetHealth,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	reportPath := cfg.ResultsDir + "/report.json"
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	cancel()
	if err := fleet.Wait(); err != nil {
		logger.Warn().Err(err).Msg("fleet shutdown reported an error")
	}

	logger.Info().Str("path", reportPath).Msg("harness run complete")
	return nil
}
