// Command collector runs the ingestion pipeline: it subscribes to device
// telemetry over MQTT, shapes and batches points, and writes them to the
// time-series store (spec.md C6-C9).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/ingest"
	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/metrics"
	"github.com/Mahaashree/realtime-datastreaming/internal/resourceguard"
	"github.com/Mahaashree/realtime-datastreaming/internal/store"
	"github.com/Mahaashree/realtime-datastreaming/internal/writer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load[config.Collector](nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		os.Exit(2)
	}

	logger := logging.New(logging.Config{
		Level: cfg.Level, Format: cfg.Format,
		Service: "fleet-ingest", Component: "collector",
	})
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting collector")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storeClient := store.New(cfg.Store)
	defer storeClient.Close()

	w := writer.New(storeClient, *cfg, logger)
	ring := ingest.NewRing(cfg.RingCapacity)
	pool := ingest.NewWorkerPool(ring, w, cfg.WorkerThreads, cfg.CollectorLabel, logger)

	guard := resourceguard.New(cfg.MaxIngestRatePerSec, cfg.CPUPauseThreshold, logger)
	go guard.Monitor(ctx, 5*time.Second)

	sub, err := ingest.NewSubscriber(*cfg, ring, guard, logger)
	if err != nil {
		return fmt.Errorf("creating subscriber: %w", err)
	}
	if err := sub.Connect(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer sub.Close()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go sampleMetrics(ctx, ring, pool, w)
	go w.Run(ctx)
	pool.Run(ctx)

	logger.Info().Msg("collector shut down cleanly")
	return nil
}

// sampleMetrics periodically copies the pipeline's internal counters
// into the exported Prometheus gauges/counters until ctx is canceled.
func sampleMetrics(ctx context.Context, ring *ingest.Ring, pool *ingest.WorkerPool, w *writer.Writer) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastDropped, lastDecoded, lastDecodeErrors, lastWritten, lastRetries, lastFailures int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.Queued.Set(float64(ring.Size()))

			if d := ring.Dropped(); d > lastDropped {
				metrics.DroppedOnRingFull.Add(float64(d - lastDropped))
				lastDropped = d
			}
			if d := pool.Stats.Decoded(); d > lastDecoded {
				metrics.Decoded.Add(float64(d - lastDecoded))
				lastDecoded = d
			}
			if d := pool.Stats.DecodeErrors(); d > lastDecodeErrors {
				metrics.DecodeErrors.Add(float64(d - lastDecodeErrors))
				lastDecodeErrors = d
			}
			if d := w.Stats.PointsWritten(); d > lastWritten {
				metrics.PointsWritten.Add(float64(d - lastWritten))
				lastWritten = d
			}
			if d := w.Stats.WriteRetries(); d > lastRetries {
				metrics.WriteRetries.Add(float64(d - lastRetries))
				lastRetries = d
			}
			if d := w.Stats.WriteFailures(); d > lastFailures {
				metrics.WriteFailures.Add(float64(d - lastFailures))
				lastFailures = d
			}
		}
	}
}
