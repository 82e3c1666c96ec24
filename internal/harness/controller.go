package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ScenarioResult is one scenario's recorded outcome (spec.md §4.7 steps
// 3-5).
type ScenarioResult struct {
	Scenario          Scenario
	VictimCount       int
	InitialQueueSize  int
	FinalQueueSizeAtReconnect int
	MaxPerDeviceQueue int
	TotalQueued       int
	GrowthRatePerSec  float64
	FlushTime         time.Duration
	AllFlushed        bool
	FinalQueueSize    int
	FlushRatePerSec   float64
	FlushTimeTargetMet bool
	DevicesAtQueueLimit int
}

const (
	sampleInterval = 1 * time.Second
	logInterval    = 10 * time.Second
	drainInterval  = 500 * time.Millisecond
	drainTimeout   = 300 * time.Second
	flushTarget    = 30 * time.Second
)

// RunScenario executes one disconnect/reconnect scenario against an
// already-launched fleet, per spec.md §4.7's algorithm.
func RunScenario(ctx context.Context, fleet *Fleet, sc Scenario, maxCapacity int, logger zerolog.Logger) (ScenarioResult, error) {
	victims := fleet.Victims(sc.DisconnectPercent)
	result := ScenarioResult{Scenario: sc, VictimCount: len(victims)}

	initial, err := sumOutboxSizes(victims)
	if err != nil {
		return result, fmt.Errorf("sampling initial queue sizes: %w", err)
	}
	result.InitialQueueSize = initial

	for _, v := range victims {
		v.Sever()
	}

	if err := observeOutage(ctx, victims, sc.Duration(), maxCapacity, &result, logger); err != nil {
		return result, err
	}

	for _, v := range victims {
		v.Reconnect()
	}

	if err := observeDrain(ctx, victims, &result); err != nil {
		return result, err
	}

	result.FlushTimeTargetMet = result.FlushTime < flushTarget
	return result, nil
}

// observeOutage samples victim outbox sizes every second for the
// scenario's duration, logging every 10 s (spec.md §4.7 step 3).
func observeOutage(ctx context.Context, victims []*DeviceHandle, duration time.Duration, maxCapacity int, result *ScenarioResult, logger zerolog.Logger) error {
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	var lastLog time.Time
	start := time.Now()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		total, max, atLimit, err := sampleQueues(victims, maxCapacity)
		if err != nil {
			return fmt.Errorf("sampling victim queues: %w", err)
		}
		result.TotalQueued = total
		if max > result.MaxPerDeviceQueue {
			result.MaxPerDeviceQueue = max
		}
		result.DevicesAtQueueLimit = atLimit

		if time.Since(lastLog) >= logInterval {
			logger.Info().Int("total_queued", total).Int("max_per_device", max).Msg("outage in progress")
			lastLog = time.Now()
		}
	}

	result.FinalQueueSizeAtReconnect = result.TotalQueued
	elapsed := time.Since(start).Seconds()
	if elapsed > 0 {
		result.GrowthRatePerSec = float64(result.TotalQueued-result.InitialQueueSize) / elapsed
	}
	return nil
}

// observeDrain sums victim outbox sizes every 0.5 s until zero or a
// 300 s timeout (spec.md §4.7 step 4).
func observeDrain(ctx context.Context, victims []*DeviceHandle, result *ScenarioResult) error {
	start := time.Now()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		total, _, _, err := sampleQueues(victims, 0)
		if err != nil {
			return fmt.Errorf("sampling drain queues: %w", err)
		}

		if total == 0 {
			result.FlushTime = time.Since(start)
			result.AllFlushed = true
			result.FinalQueueSize = 0
			if result.FlushTime.Seconds() > 0 {
				result.FlushRatePerSec = float64(result.FinalQueueSizeAtReconnect) / result.FlushTime.Seconds()
			}
			return nil
		}

		if time.Since(start) > drainTimeout {
			result.FlushTime = time.Since(start)
			result.AllFlushed = false
			result.FinalQueueSize = total
			return nil
		}
	}
}

func sumOutboxSizes(devices []*DeviceHandle) (int, error) {
	total := 0
	for _, d := range devices {
		size, err := d.OutboxSize()
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// sampleQueues returns the total queued count, the largest single-device
// queue, and the number of devices at max_capacity (spec.md's
// devices_at_queue_limit).
func sampleQueues(devices []*DeviceHandle, maxCapacity int) (total, max, atLimit int, err error) {
	for _, d := range devices {
		size, sizeErr := d.OutboxSize()
		if sizeErr != nil {
			return 0, 0, 0, sizeErr
		}
		total += size
		if size > max {
			max = size
		}
		if maxCapacity > 0 && size >= maxCapacity {
			atLimit++
		}
	}
	return total, max, atLimit, nil
}
