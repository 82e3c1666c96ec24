package harness

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Mahaashree/realtime-datastreaming/internal/store"
)

// LatencyReport summarizes end-to-end latency from sample to store write
// (spec.md §4.7's latency measurement).
type LatencyReport struct {
	SampleCount int
	MinMS       float64
	MeanMS      float64
	MedianMS    float64
	P95MS       float64
	P99MS       float64
	MaxMS       float64
	P95TargetMet bool
}

// MeasureLatency queries the store for publish_timestamp samples written
// in the last window, computes latency_ms = (write_time - publish_timestamp) * 1000,
// discards out-of-range values, and reports percentiles.
func MeasureLatency(ctx context.Context, storeClient *store.Client, window time.Duration) (LatencyReport, error) {
	samples, err := storeClient.QueryLatencySamples(ctx, window)
	if err != nil {
		return LatencyReport{}, fmt.Errorf("querying latency samples: %w", err)
	}

	var latencies []float64
	for _, s := range samples {
		latencyMS := (float64(s.WriteTime.UnixNano())/1e9 - s.PublishTimestamp) * 1000
		if latencyMS > 0 && latencyMS < 60000 {
			latencies = append(latencies, latencyMS)
		}
	}

	if len(latencies) == 0 {
		return LatencyReport{}, nil
	}

	sort.Float64s(latencies)
	report := LatencyReport{
		SampleCount: len(latencies),
		MinMS:       latencies[0],
		MaxMS:       latencies[len(latencies)-1],
		MedianMS:    percentile(latencies, 0.50),
		P95MS:       percentile(latencies, 0.95),
		P99MS:       percentile(latencies, 0.99),
	}

	var sum float64
	for _, v := range latencies {
		sum += v
	}
	report.MeanMS = sum / float64(len(latencies))
	report.P95TargetMet = report.P95MS < 2000

	return report, nil
}

// FleetHealthReport summarizes per-device last-seen status alongside the
// latency percentiles, for the harness's fleet health report.
type FleetHealthReport struct {
	DeviceCount int
	OnlineCount int
	Devices     []store.DeviceStatus
}

// MeasureFleetHealth queries the store's device status view and
// classifies each device online/offline relative to its last write.
func MeasureFleetHealth(ctx context.Context, storeClient *store.Client) (FleetHealthReport, error) {
	statuses, err := storeClient.QueryDeviceStatus(ctx)
	if err != nil {
		return FleetHealthReport{}, fmt.Errorf("querying device status: %w", err)
	}

	report := FleetHealthReport{DeviceCount: len(statuses), Devices: statuses}
	for _, s := range statuses {
		if s.Online {
			report.OnlineCount++
		}
	}
	return report, nil
}

// percentile computes the p-th percentile of a pre-sorted slice using
// linear interpolation between the two closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
