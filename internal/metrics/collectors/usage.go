// Package collectors samples supervised processes into the metrics package.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/procmgr/internal/metrics"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/smazurov/procmgr/internal/procstat"
)

// SnapshotSource lists the current records. *process.Supervisor satisfies it.
type SnapshotSource interface {
	Snapshot() []process.Info
}

// SampleFunc reads the usage of one pid.
type SampleFunc func(ctx context.Context, pid int) (procstat.Usage, error)

// UsageCollector periodically samples every running process.
type UsageCollector struct {
	source   SnapshotSource
	sample   SampleFunc
	interval time.Duration
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewUsageCollector creates a collector sampling source every interval.
func NewUsageCollector(source SnapshotSource, interval time.Duration, logger *slog.Logger) *UsageCollector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &UsageCollector{
		source:   source,
		sample:   procstat.Sample,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sampling loop.
func (c *UsageCollector) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
}

// Stop stops the loop and waits for it to finish.
func (c *UsageCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *UsageCollector) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect(c.ctx)
		}
	}
}

func (c *UsageCollector) collect(ctx context.Context) {
	for _, info := range c.source.Snapshot() {
		if info.State != process.StateRunning || info.PID <= 0 {
			metrics.DeleteUsage(info.Label)
			continue
		}
		usage, err := c.sample(ctx, info.PID)
		if err != nil {
			// The process may have exited between snapshot and sample.
			c.logger.Debug("Failed to sample process", "label", info.Label, "pid", info.PID, "error", err)
			metrics.DeleteUsage(info.Label)
			continue
		}
		metrics.SetUsage(info.Label, usage)
	}
}
