package metrics

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStatus is a point-in-time snapshot of the engine process and host.
type SystemStatus struct {
	CPUPercent       float64 `json:"cpu_usage_percent"`
	ProcessMemoryMB  float64 `json:"process_memory_mb"`
	HostMemoryUsedMB float64 `json:"host_memory_used_mb"`
	HostMemoryPct    float64 `json:"host_memory_percent"`
	GoroutineCount   int     `json:"goroutine_count"`
}

// CollectSystemStatus samples process and host resource usage. Individual
// probe failures leave the corresponding fields at zero rather than failing
// the whole snapshot.
func CollectSystemStatus() *SystemStatus {
	status := &SystemStatus{
		GoroutineCount: runtime.NumGoroutine(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status.HostMemoryUsedMB = float64(vm.Used) / 1024 / 1024
		status.HostMemoryPct = vm.UsedPercent
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			status.ProcessMemoryMB = float64(info.RSS) / 1024 / 1024
		}
	}

	return status
}
