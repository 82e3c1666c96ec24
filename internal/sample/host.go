package sample

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// HostTelemetry is a point-in-time snapshot of the device's own resource
// usage, flattened into the fields the serializer emits (spec.md §4.6).
// This is the Go analogue of original_source's psutil-based
// DeviceTelemetry.
type HostTelemetry struct {
	CPUPercent        float64
	RAMPercent        float64
	MemoryTotal       uint64
	MemoryUsed        uint64
	MemoryAvailable   uint64
	MemoryPercent     float64
	DiskTotal         uint64
	DiskUsed          uint64
	DiskFree          uint64
	DiskPercent       float64
	NetworkBytesSent  uint64
	NetworkBytesRecv  uint64
}

// Collect takes a fresh host telemetry snapshot. cpu.Percent with a zero
// interval returns the usage since the previous call, avoiding a blocking
// 1-second sample per tick (mirrors original_source's
// `psutil.cpu_percent(interval=None)`).
func Collect() (HostTelemetry, error) {
	var t HostTelemetry

	cpuPercents, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercents) > 0 {
		t.CPUPercent = cpuPercents[0]
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return t, err
	}
	t.RAMPercent = vmem.UsedPercent
	t.MemoryTotal = vmem.Total
	t.MemoryUsed = vmem.Used
	t.MemoryAvailable = vmem.Available
	t.MemoryPercent = vmem.UsedPercent

	diskUsage, err := disk.Usage("/")
	if err != nil {
		return t, err
	}
	t.DiskTotal = diskUsage.Total
	t.DiskUsed = diskUsage.Used
	t.DiskFree = diskUsage.Free
	t.DiskPercent = diskUsage.UsedPercent

	counters, err := net.IOCounters(false)
	if err == nil && len(counters) > 0 {
		t.NetworkBytesSent = counters[0].BytesSent
		t.NetworkBytesRecv = counters[0].BytesRecv
	}

	return t, nil
}
