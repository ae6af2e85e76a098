package metrics

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// HostStats holds one host-level probe reading.
type HostStats struct {
	CPUUtilization float64
	MemoryUsage    float64
	CPUCount       int
	Timestamp      time.Time
}

// HostProbe reads CPU and memory usage from /proc. Readings are best-effort;
// on platforms without /proc only the CPU count is populated.
type HostProbe struct {
	cpuCount int
}

// NewHostProbe creates a host probe.
func NewHostProbe() *HostProbe {
	return &HostProbe{cpuCount: runtime.NumCPU()}
}

// CPUCount returns the number of logical CPUs available to the process.
func (hp *HostProbe) CPUCount() int {
	return hp.cpuCount
}

// Read collects current host statistics.
func (hp *HostProbe) Read() HostStats {
	return HostStats{
		CPUUtilization: readCPUUtilization(),
		MemoryUsage:    readMemoryUsage(),
		CPUCount:       hp.cpuCount,
		Timestamp:      time.Now(),
	}
}

// readCPUUtilization parses the aggregate cpu line of /proc/stat. Cumulative
// since boot, which is good enough for a coarse gauge.
func readCPUUtilization() float64 {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 5 && fields[0] == "cpu" {
			user, _ := strconv.ParseInt(fields[1], 10, 64)
			nice, _ := strconv.ParseInt(fields[2], 10, 64)
			system, _ := strconv.ParseInt(fields[3], 10, 64)
			idle, _ := strconv.ParseInt(fields[4], 10, 64)

			total := user + nice + system + idle
			used := user + nice + system
			if total > 0 {
				return float64(used) / float64(total) * 100
			}
		}
	}
	return 0
}

// readMemoryUsage derives used/total from /proc/meminfo.
func readMemoryUsage() float64 {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var total, available int64
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			if fields := strings.Fields(line); len(fields) >= 2 {
				total, _ = strconv.ParseInt(fields[1], 10, 64)
			}
		} else if strings.HasPrefix(line, "MemAvailable:") {
			if fields := strings.Fields(line); len(fields) >= 2 {
				available, _ = strconv.ParseInt(fields[1], 10, 64)
			}
		}
	}
	if total > 0 {
		return float64(total-available) / float64(total) * 100
	}
	return 0
}
