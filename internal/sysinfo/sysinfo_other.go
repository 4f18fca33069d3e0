//go:build !linux && !windows

package sysinfo

import "runtime"

// sample reports process-level memory as a best-effort stand-in on
// platforms without a dedicated reader. CPU and disk read as zero.
func (s *Sampler) sample() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Snapshot{
		MemoryUsed:  ms.Sys,
		MemoryTotal: ms.Sys,
	}
}
