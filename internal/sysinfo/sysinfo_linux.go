//go:build linux

package sysinfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// sample reads /proc/stat, /proc/meminfo and statfs for the disk path
func (s *Sampler) sample() Snapshot {
	var snap Snapshot

	if busy, idle, ok := readCPUCounters(); ok {
		deltaBusy := busy - s.prevBusy
		deltaIdle := idle - s.prevIdle
		if s.prevBusy > 0 && deltaBusy+deltaIdle > 0 {
			snap.CPUPercent = float64(deltaBusy) / float64(deltaBusy+deltaIdle) * 100
		}
		s.prevBusy = busy
		s.prevIdle = idle
	}

	if total, available, ok := readMemInfo(); ok {
		snap.MemoryTotal = total
		if available <= total {
			snap.MemoryUsed = total - available
		}
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(s.diskPath, &fs); err == nil {
		blockSize := uint64(fs.Bsize)
		snap.DiskTotal = fs.Blocks * blockSize
		snap.DiskUsed = (fs.Blocks - fs.Bfree) * blockSize
	}

	return snap
}

// readCPUCounters parses the aggregate cpu line of /proc/stat into busy
// (user+nice+system) and idle jiffies
func readCPUCounters() (busy, idle uint64, ok bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		user, _ := strconv.ParseUint(fields[1], 10, 64)
		nice, _ := strconv.ParseUint(fields[2], 10, 64)
		system, _ := strconv.ParseUint(fields[3], 10, 64)
		idleJiffies, _ := strconv.ParseUint(fields[4], 10, 64)
		return user + nice + system, idleJiffies, true
	}
	return 0, 0, false
}

// readMemInfo returns MemTotal and MemAvailable in bytes
func readMemInfo() (total, available uint64, ok bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb * 1024
		case "MemAvailable:":
			available = kb * 1024
		}
		if total > 0 && available > 0 {
			return total, available, true
		}
	}
	return total, available, total > 0
}
