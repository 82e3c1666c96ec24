package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/metrics"
	"github.com/Mahaashree/realtime-datastreaming/internal/shaper"
)

const takeTimeout = 1 * time.Second

// PointWriter is the subset of the batching writer a worker depends on.
type PointWriter interface {
	Write(p shaper.Point)
}

// WorkerPool runs N workers, each taking from the ring, shaping, and
// handing the result to the writer (spec.md §4.3's worker pool).
type WorkerPool struct {
	ring           *Ring
	writer         PointWriter
	workerCount    int
	collectorLabel string
	logger         zerolog.Logger

	Stats Stats
}

// Stats are the worker pool's observable counters (spec.md §7).
type Stats struct {
	decoded      int64
	decodeErrors int64
}

func (s *Stats) incDecoded()      { atomic.AddInt64(&s.decoded, 1) }
func (s *Stats) incDecodeErrors() { atomic.AddInt64(&s.decodeErrors, 1) }

// Decoded returns the running count of successfully shaped payloads.
func (s *Stats) Decoded() int64 { return atomic.LoadInt64(&s.decoded) }

// DecodeErrors returns the running count of discarded malformed payloads.
func (s *Stats) DecodeErrors() int64 { return atomic.LoadInt64(&s.decodeErrors) }

// NewWorkerPool creates a pool of workerCount workers consuming from ring.
func NewWorkerPool(ring *Ring, w PointWriter, workerCount int, collectorLabel string, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		ring:           ring,
		writer:         w,
		workerCount:    workerCount,
		collectorLabel: collectorLabel,
		logger:         logger,
	}
}

// Run starts the workers and blocks until ctx is canceled and every
// worker has drained the ring or hit its grace timeout.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()

	if remaining := p.ring.Size(); remaining > 0 {
		metrics.DroppedOnShutdown.Add(float64(remaining))
		p.logger.Warn().Int("remaining", remaining).Msg("shutdown grace period elapsed with items still queued")
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(p.logger, r, "worker goroutine panic", map[string]any{"worker_id": id})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		default:
		}

		item, ok := p.ring.Take(takeTimeout)
		if !ok {
			continue
		}
		p.handle(item)
	}
}

// drain processes whatever remains in the ring after shutdown, within a
// short grace period, per spec.md §5's shutdown contract.
func (p *WorkerPool) drain() {
	const grace = 2 * time.Second
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		item, ok := p.ring.Take(50 * time.Millisecond)
		if !ok {
			if p.ring.Size() == 0 {
				return
			}
			continue
		}
		p.handle(item)
	}
}

func (p *WorkerPool) handle(item Item) {
	point, err := shaper.Shape(item.Payload, item.ReceiveTime, p.collectorLabel)
	if err != nil {
		p.Stats.incDecodeErrors()
		p.logger.Debug().Err(err).Str("topic", item.Topic).Msg("discarding malformed payload")
		return
	}
	p.Stats.incDecoded()
	p.writer.Write(point)
}
