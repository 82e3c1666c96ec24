// Package metrics exposes the collector's Prometheus counters and an
// HTTP endpoint to scrape them, adapted from the teacher's connection
// metrics to the ingestion pipeline's counters (spec.md §7).
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Received = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_received_total",
		Help: "Total messages received from the broker",
	})

	Queued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collector_ring_depth",
		Help: "Current estimated ring depth",
	})

	DroppedOnRingFull = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_dropped_on_ring_full_total",
		Help: "Messages dropped because the ingestion ring was full",
	})

	Decoded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_decoded_total",
		Help: "Payloads successfully shaped into points",
	})

	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_decode_errors_total",
		Help: "Payloads discarded for decode failure or missing identity",
	})

	PointsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_points_written_total",
		Help: "Points successfully written to the store",
	})

	WriteRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_write_retries_total",
		Help: "Batch write attempts that were retried after a transient error",
	})

	WriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_write_failures_total",
		Help: "Batches abandoned after max retries or aborted on schema conflict",
	})

	DroppedOnShutdown = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_dropped_on_shutdown_total",
		Help: "Ring items still present when the shutdown grace period elapsed",
	})

	CPUPauseActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collector_cpu_pause_active",
		Help: "1 while ingestion is paused by the CPU emergency brake, else 0",
	})
)

func init() {
	prometheus.MustRegister(
		Received, Queued, DroppedOnRingFull, Decoded, DecodeErrors,
		PointsWritten, WriteRetries, WriteFailures, DroppedOnShutdown, CPUPauseActive,
	)
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// canceled, then shuts the server down.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
