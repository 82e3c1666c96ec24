// Package resourceguard adapts the teacher's static resource guard to
// the ingestion pipeline: a token-bucket rate limiter on ring enqueue
// plus a CPU emergency brake that pauses ingestion under sustained load.
// This sits in front of the ring as an additional safety valve beyond
// the ring's own bounded-drop behavior (spec.md §5).
package resourceguard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/metrics"
	"github.com/Mahaashree/realtime-datastreaming/internal/platform"
)

// Guard enforces a configured ingest rate limit and exposes a CPU
// emergency brake the subscriber callback can consult before offering
// to the ring.
type Guard struct {
	limiter *rate.Limiter
	monitor *platform.CPUMonitor
	logger  zerolog.Logger

	pauseThreshold float64
	currentCPU     atomic.Value // float64
}

// New creates a Guard limiting ingest to maxPerSec (bursting to 2x) and
// tripping its CPU brake above pauseThresholdPercent. The brake measures
// load through platform.CPUMonitor, which prefers the cgroup's own quota
// over raw host CPU so the threshold means the same thing in a container
// as it does on bare metal.
func New(maxPerSec int, pauseThresholdPercent float64, logger zerolog.Logger) *Guard {
	g := &Guard{
		limiter:        rate.NewLimiter(rate.Limit(maxPerSec), maxPerSec*2),
		monitor:        platform.NewCPUMonitor(logger),
		logger:         logger,
		pauseThreshold: pauseThresholdPercent,
	}
	g.currentCPU.Store(0.0)
	return g
}

// Allow reports whether one more item may be accepted right now: the
// token bucket has capacity and the CPU brake is not tripped.
func (g *Guard) Allow() bool {
	if g.ShouldPause() {
		return false
	}
	return g.limiter.Allow()
}

// ShouldPause reports whether sustained CPU usage exceeds the
// emergency-brake threshold.
func (g *Guard) ShouldPause() bool {
	return g.currentCPU.Load().(float64) > g.pauseThreshold
}

// Monitor periodically samples CPU usage until ctx is canceled, updating
// the brake's view of current load.
func (g *Guard) Monitor(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(g.logger, r, "resource guard monitor panic", nil)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percent, err := g.monitor.GetPercent()
			if err != nil {
				continue
			}
			g.currentCPU.Store(percent)
			if percent > g.pauseThreshold {
				metrics.CPUPauseActive.Set(1)
				g.logger.Warn().Float64("cpu_percent", percent).Str("mode", g.monitor.Mode()).Msg("ingestion paused by CPU emergency brake")
			} else {
				metrics.CPUPauseActive.Set(0)
			}
		}
	}
}

// CurrentCPU returns the most recently sampled CPU percentage.
func (g *Guard) CurrentCPU() float64 {
	return g.currentCPU.Load().(float64)
}
