// Package sample implements C1 (sample source) and C2 (serializer): it
// produces one realistic telemetry Sample per device tick and encodes it
// as the flat JSON wire shape the collector expects.
package sample

import (
	"encoding/json"
	"math/rand"
	"time"
)

// Sample is one device telemetry reading (spec.md §3).
type Sample struct {
	DeviceID            string  `json:"device_id"`
	Timestamp           float64 `json:"timestamp"`
	Datetime            string  `json:"datetime"`
	Speed               float64 `json:"speed"`
	CPUUsage            float64 `json:"cpu_usage"`
	RAMUsage            float64 `json:"ram_usage"`
	MemoryTotal         uint64  `json:"memory_total"`
	MemoryUsed          uint64  `json:"memory_used"`
	MemoryAvailable     uint64  `json:"memory_available"`
	MemoryPercent       float64 `json:"memory_percent"`
	DiskTotal           uint64  `json:"disk_total"`
	DiskUsed            uint64  `json:"disk_used"`
	DiskFree            uint64  `json:"disk_free"`
	DiskPercent         float64 `json:"disk_percent"`
	NetworkBytesSent    uint64  `json:"network_bytes_sent"`
	NetworkBytesRecv    uint64  `json:"network_bytes_recv"`
	DetectionLabel      string  `json:"detection_label"`
	DetectionConfidence float64 `json:"detection_confidence"`
	DetectionTimestamp  float64 `json:"detection_timestamp"`
}

// Source produces one Sample per call to Next, combining the speed walk,
// the detection walk, and a host telemetry snapshot.
type Source struct {
	deviceID  string
	speed     *SpeedWalk
	detection *DetectionWalk
}

// NewSource creates a sample source for one device.
func NewSource(deviceID string, rng *rand.Rand) *Source {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Source{
		deviceID:  deviceID,
		speed:     NewSpeedWalk(0, 120, rng),
		detection: NewDetectionWalk(rng),
	}
}

// Next produces the next Sample. publish_time is set just before the
// caller hands the sample to the serializer, per spec.md §3's invariant
// that publish_time is the producer's send timestamp — so Next stamps
// Timestamp here rather than deferring it to Serialize.
func (s *Source) Next() (Sample, error) {
	host, err := Collect()
	if err != nil {
		return Sample{}, err
	}
	detection := s.detection.Next()
	now := time.Now()

	return Sample{
		DeviceID:            s.deviceID,
		Timestamp:           float64(now.UnixNano()) / 1e9,
		Datetime:            now.Format(time.RFC3339Nano),
		Speed:               s.speed.Next(),
		CPUUsage:            host.CPUPercent,
		RAMUsage:            host.RAMPercent,
		MemoryTotal:         host.MemoryTotal,
		MemoryUsed:          host.MemoryUsed,
		MemoryAvailable:     host.MemoryAvailable,
		MemoryPercent:       host.MemoryPercent,
		DiskTotal:           host.DiskTotal,
		DiskUsed:            host.DiskUsed,
		DiskFree:            host.DiskFree,
		DiskPercent:         host.DiskPercent,
		NetworkBytesSent:    host.NetworkBytesSent,
		NetworkBytesRecv:    host.NetworkBytesRecv,
		DetectionLabel:      detection.Label,
		DetectionConfidence: detection.Confidence,
		DetectionTimestamp:  float64(detection.Time.UnixNano()) / 1e9,
	}, nil
}

// Serialize encodes a Sample as the flat JSON wire payload (spec.md §4.6).
func Serialize(s Sample) ([]byte, error) {
	return json.Marshal(s)
}
