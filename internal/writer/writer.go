// Package writer implements the batching writer (spec.md C9): it
// accumulates shaped points and flushes them to the time-series store on
// a size or time trigger, with bounded retry/backoff.
package writer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/shaper"
	"github.com/Mahaashree/realtime-datastreaming/internal/store"
)

// BatchWriter is the subset of the store client the writer depends on;
// tests substitute a fake to exercise retry/backoff without a live store.
type BatchWriter interface {
	WriteBatch(ctx context.Context, points []shaper.Point) error
}

// Writer batches points from one or more workers and flushes them on a
// size/time trigger, retrying transient store failures with backoff.
type Writer struct {
	store  BatchWriter
	cfg    config.Collector
	logger zerolog.Logger

	mu      sync.Mutex
	pending []shaper.Point

	flushTrigger chan struct{}
	Stats        Stats
}

// Stats are the writer's observable counters (spec.md §7).
type Stats struct {
	pointsWritten int64
	writeRetries  int64
	writeFailures int64
}

func (s *Stats) incWritten(n int64) { atomic.AddInt64(&s.pointsWritten, n) }
func (s *Stats) incRetries()        { atomic.AddInt64(&s.writeRetries, 1) }
func (s *Stats) incFailures()       { atomic.AddInt64(&s.writeFailures, 1) }

// PointsWritten returns the running count of points successfully written.
func (s *Stats) PointsWritten() int64 { return atomic.LoadInt64(&s.pointsWritten) }

// WriteRetries returns the running count of retried batch submissions.
func (s *Stats) WriteRetries() int64 { return atomic.LoadInt64(&s.writeRetries) }

// WriteFailures returns the running count of abandoned or aborted batches.
func (s *Stats) WriteFailures() int64 { return atomic.LoadInt64(&s.writeFailures) }

// New creates a batching writer bound to a store client.
func New(storeClient BatchWriter, cfg config.Collector, logger zerolog.Logger) *Writer {
	return &Writer{
		store:        storeClient,
		cfg:          cfg,
		logger:       logger,
		flushTrigger: make(chan struct{}, 1),
	}
}

// Write accepts one point, triggering an immediate flush if the batch
// reaches batch_size (spec.md §4.5's size-or-time contract).
func (w *Writer) Write(p shaper.Point) {
	w.mu.Lock()
	w.pending = append(w.pending, p)
	full := len(w.pending) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.flushTrigger <- struct{}{}:
		default:
		}
	}
}

// Run drives the flush loop until ctx is canceled, then forces a final
// flush (spec.md §4.5's shutdown contract).
func (w *Writer) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(w.logger, r, "writer run loop panic", nil)
		}
	}()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		case <-w.flushTrigger:
			w.flush(ctx)
		}
	}
}

// flush drains the pending batch and submits it, retrying per spec.md
// §4.5: up to max_retries with exponential backoff from retry_interval,
// capped at max_retry_delay, plus jitter. Non-retriable errors abort
// the batch immediately without consuming a retry.
func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	delay := w.cfg.RetryInterval
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		err := w.store.WriteBatch(ctx, batch)
		if err == nil {
			w.Stats.incWritten(int64(len(batch)))
			return
		}

		if _, ok := err.(*store.StoreSchemaConflict); ok {
			w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("schema conflict, batch aborted")
			w.Stats.incFailures()
			return
		}

		if attempt == w.cfg.MaxRetries {
			w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("batch abandoned after max retries")
			w.Stats.incFailures()
			return
		}

		w.Stats.incRetries()
		jitter := time.Duration(rand.Int63n(int64(delay) / 4))
		w.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("write failed, retrying")
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return
		}

		delay *= 2
		if delay > w.cfg.MaxRetryDelay {
			delay = w.cfg.MaxRetryDelay
		}
	}
}
