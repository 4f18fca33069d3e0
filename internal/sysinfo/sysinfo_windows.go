//go:build windows

package sysinfo

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32           = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemTimes = kernel32.NewProc("GetSystemTimes")
)

type memoryStatusEx struct {
	Length               uint32
	MemoryLoad           uint32
	TotalPhys            uint64
	AvailPhys            uint64
	TotalPageFile        uint64
	AvailPageFile        uint64
	TotalVirtual         uint64
	AvailVirtual         uint64
	AvailExtendedVirtual uint64
}

var procGlobalMemoryStatusEx = kernel32.NewProc("GlobalMemoryStatusEx")

// sample reads system times, global memory status and free disk space
func (s *Sampler) sample() Snapshot {
	var snap Snapshot

	var idleFT, kernelFT, userFT windows.Filetime
	r, _, _ := procGetSystemTimes.Call(
		uintptr(unsafe.Pointer(&idleFT)),
		uintptr(unsafe.Pointer(&kernelFT)),
		uintptr(unsafe.Pointer(&userFT)),
	)
	if r != 0 {
		idle := filetimeTo100ns(idleFT)
		// Kernel time includes idle time
		busy := filetimeTo100ns(kernelFT) + filetimeTo100ns(userFT) - idle
		deltaBusy := busy - s.prevBusy
		deltaIdle := idle - s.prevIdle
		if s.prevBusy > 0 && deltaBusy+deltaIdle > 0 {
			snap.CPUPercent = float64(deltaBusy) / float64(deltaBusy+deltaIdle) * 100
		}
		s.prevBusy = busy
		s.prevIdle = idle
	}

	var mem memoryStatusEx
	mem.Length = uint32(unsafe.Sizeof(mem))
	r, _, _ = procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&mem)))
	if r != 0 {
		snap.MemoryTotal = mem.TotalPhys
		snap.MemoryUsed = mem.TotalPhys - mem.AvailPhys
	}

	var freeBytes, totalBytes, totalFree uint64
	path, err := windows.UTF16PtrFromString(s.diskPath)
	if err == nil {
		if err := windows.GetDiskFreeSpaceEx(path, &freeBytes, &totalBytes, &totalFree); err == nil {
			snap.DiskTotal = totalBytes
			snap.DiskUsed = totalBytes - totalFree
		}
	}

	return snap
}

func filetimeTo100ns(ft windows.Filetime) uint64 {
	return uint64(ft.HighDateTime)<<32 | uint64(ft.LowDateTime)
}
