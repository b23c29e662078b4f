// Package procstat samples resource usage of supervised OS processes.
package procstat

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrInvalidPID is returned for non-positive pids.
var ErrInvalidPID = errors.New("invalid pid")

// Usage is one resource sample of a process.
type Usage struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// Sample reads the current usage of pid.
func Sample(ctx context.Context, pid int) (Usage, error) {
	if pid <= 0 {
		return Usage{}, ErrInvalidPID
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("process %d: %w", pid, err)
	}

	usage := Usage{PID: pid}
	if usage.CPUPercent, err = p.CPUPercentWithContext(ctx); err != nil {
		return Usage{}, fmt.Errorf("cpu of %d: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("memory of %d: %w", pid, err)
	}
	usage.RSSBytes = mem.RSS
	if usage.Threads, err = p.NumThreadsWithContext(ctx); err != nil {
		return Usage{}, fmt.Errorf("threads of %d: %w", pid, err)
	}
	return usage, nil
}
