// Package platform provides container-aware resource measurement,
// adapted from the teacher's cgroup reader so the CPU emergency brake
// (spec.md §5) trips against the collector's actual allocation rather
// than raw host CPU.
package platform

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ContainerCPU reports CPU usage relative to the cgroup's quota rather
// than the host's total core count.
type ContainerCPU struct {
	mu             sync.RWMutex
	lastCPUUsec    uint64
	lastSampleTime time.Time
	cgroupVersion  int // 1 or 2
	cgroupPath     string
	cpuQuota       int64
	cpuPeriod      int64
	numCPUsAlloc   float64
}

// NewContainerCPU detects the process's cgroup and its CPU quota/period.
func NewContainerCPU() (*ContainerCPU, error) {
	cc := &ContainerCPU{lastSampleTime: time.Now()}

	cgroupPath, version, err := detectCgroupPath()
	if err != nil {
		return nil, fmt.Errorf("detecting cgroup: %w", err)
	}
	cc.cgroupPath = cgroupPath
	cc.cgroupVersion = version

	quota, period, err := readCPUQuota(cgroupPath, version)
	if err != nil {
		return nil, fmt.Errorf("reading cpu quota: %w", err)
	}
	cc.cpuQuota = quota
	cc.cpuPeriod = period

	if quota > 0 && period > 0 {
		cc.numCPUsAlloc = float64(quota) / float64(period)
	} else {
		cc.numCPUsAlloc = float64(runtime.NumCPU())
	}

	usage, err := readCPUUsage(cgroupPath, version)
	if err != nil {
		return nil, fmt.Errorf("reading initial cpu usage: %w", err)
	}
	cc.lastCPUUsec = usage

	return cc, nil
}

// GetPercent returns CPU usage as a percentage of the cgroup's allocation
// (so 100% means fully using the quota, not a full host core).
func (cc *ContainerCPU) GetPercent() (float64, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := time.Now()
	timeDeltaUsec := now.Sub(cc.lastSampleTime).Microseconds()
	if timeDeltaUsec == 0 {
		return 0, fmt.Errorf("time delta too small")
	}

	currentUsec, err := readCPUUsage(cc.cgroupPath, cc.cgroupVersion)
	if err != nil {
		return 0, err
	}

	usageDelta := currentUsec - cc.lastCPUUsec
	rawPercent := (float64(usageDelta) / float64(timeDeltaUsec)) * 100.0
	percent := rawPercent / cc.numCPUsAlloc

	cc.lastCPUUsec = currentUsec
	cc.lastSampleTime = now
	return percent, nil
}

// GetAllocation returns the number of CPUs the cgroup is allowed to use.
func (cc *ContainerCPU) GetAllocation() float64 {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.numCPUsAlloc
}

func detectCgroupPath() (path string, version int, err error) {
	file, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ":")
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" && parts[1] == "" {
			return "/sys/fs/cgroup" + parts[2], 2, nil
		}
		if strings.Contains(parts[1], "cpu") {
			return "/sys/fs/cgroup/cpu" + parts[2], 1, nil
		}
	}
	return "", 0, fmt.Errorf("could not detect cgroup path")
}

func readCPUQuota(cgroupPath string, version int) (quota, period int64, err error) {
	if version == 2 {
		data, err := os.ReadFile(cgroupPath + "/cpu.max")
		if err != nil {
			return 0, 0, err
		}
		fields := strings.Fields(string(data))
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("unexpected cpu.max format: %s", string(data))
		}
		if fields[0] == "max" {
			return -1, 0, nil
		}
		quota, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		period, err = strconv.ParseInt(fields[1], 10, 64)
		return quota, period, err
	}

	quotaData, err := os.ReadFile(cgroupPath + "/cpu.cfs_quota_us")
	if err != nil {
		return 0, 0, err
	}
	periodData, err := os.ReadFile(cgroupPath + "/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, err
	}
	quota, err = strconv.ParseInt(strings.TrimSpace(string(quotaData)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	period, err = strconv.ParseInt(strings.TrimSpace(string(periodData)), 10, 64)
	return quota, period, err
}

func readCPUUsage(cgroupPath string, version int) (uint64, error) {
	if version == 2 {
		file, err := os.Open(cgroupPath + "/cpu.stat")
		if err != nil {
			return 0, err
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "usage_usec ") {
				fields := strings.Fields(line)
				if len(fields) == 2 {
					return strconv.ParseUint(fields[1], 10, 64)
				}
			}
		}
		return 0, fmt.Errorf("usage_usec not found in cpu.stat")
	}

	data, err := os.ReadFile(cgroupPath + "/cpuacct.usage")
	if err != nil {
		return 0, err
	}
	nsec, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return nsec / 1000, nil
}

// CPUMonitor measures CPU load for the emergency brake, preferring the
// cgroup-relative reading and falling back to host-wide gopsutil
// sampling when cgroup detection fails (bare-metal dev runs).
type CPUMonitor struct {
	mode         string // "container" or "host"
	containerCPU *ContainerCPU
	logger       zerolog.Logger
}

// NewCPUMonitor builds a CPUMonitor, logging which mode it resolved to.
func NewCPUMonitor(logger zerolog.Logger) *CPUMonitor {
	containerCPU, err := NewContainerCPU()
	if err == nil {
		logger.Info().
			Int("cgroup_version", containerCPU.cgroupVersion).
			Float64("cpus_allocated", containerCPU.GetAllocation()).
			Msg("using container-aware CPU measurement")
		return &CPUMonitor{mode: "container", containerCPU: containerCPU, logger: logger}
	}

	logger.Warn().Err(err).Msg("cgroup detection failed, falling back to host CPU measurement")
	return &CPUMonitor{mode: "host", logger: logger}
}

// GetPercent returns CPU load as a percentage of the monitor's
// allocation: relative to the cgroup quota in container mode, relative
// to total host capacity in host mode.
func (cm *CPUMonitor) GetPercent() (float64, error) {
	if cm.mode == "container" {
		return cm.containerCPU.GetPercent()
	}
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu sample returned")
	}
	return percents[0], nil
}

// Mode reports which measurement strategy this monitor resolved to.
func (cm *CPUMonitor) Mode() string { return cm.mode }
