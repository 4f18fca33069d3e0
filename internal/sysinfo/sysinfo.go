// Package sysinfo reads best-effort host resource counters for the
// autonomy controller's SENSE phase.
package sysinfo

import "sync"

// Snapshot is one reading of the host counters
type Snapshot struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryUsed  uint64  `json:"memory_used"`  // bytes
	MemoryTotal uint64  `json:"memory_total"` // bytes
	DiskUsed    uint64  `json:"disk_used"`    // bytes
	DiskTotal   uint64  `json:"disk_total"`   // bytes
}

// MemoryPercent returns used memory as a percentage of total
func (s Snapshot) MemoryPercent() float64 {
	if s.MemoryTotal == 0 {
		return 0
	}
	return float64(s.MemoryUsed) / float64(s.MemoryTotal) * 100
}

// Sampler reads host counters. CPU readings are time-sliced between
// consecutive Sample calls.
type Sampler struct {
	mu       sync.Mutex
	prevBusy uint64
	prevIdle uint64
	diskPath string
}

// NewSampler creates a sampler measuring disk usage at path
func NewSampler(diskPath string) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{diskPath: diskPath}
}

// Sample reads the current host counters. The first call reports CPU as
// zero; subsequent calls report usage over the interval since the
// previous call.
func (s *Sampler) Sample() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample()
}
