package collectors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/procmgr/internal/metrics"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/smazurov/procmgr/internal/procstat"
)

type staticSource struct {
	mu    sync.Mutex
	infos []process.Info
}

func (s *staticSource) Snapshot() []process.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]process.Info(nil), s.infos...)
}

func newTestCollector(source SnapshotSource) *UsageCollector {
	return NewUsageCollector(source, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCollectSamplesRunningOnly(t *testing.T) {
	metrics.DeleteUsage("collect-run")
	metrics.DeleteUsage("collect-stop")
	metrics.SetUsage("collect-stop", procstat.Usage{PID: 9})

	source := &staticSource{infos: []process.Info{
		{Label: "collect-run", State: process.StateRunning, PID: 100},
		{Label: "collect-stop", State: process.StateStopped},
	}}
	c := newTestCollector(source)

	var sampled []int
	c.sample = func(_ context.Context, pid int) (procstat.Usage, error) {
		sampled = append(sampled, pid)
		return procstat.Usage{PID: pid, RSSBytes: 4096, Threads: 2}, nil
	}

	c.collect(context.Background())

	if len(sampled) != 1 || sampled[0] != 100 {
		t.Errorf("sampled pids = %v, want [100]", sampled)
	}
	if u, ok := metrics.GetUsage("collect-run"); !ok || u.RSSBytes != 4096 {
		t.Errorf("usage for running process = %+v, %v", u, ok)
	}
	if _, ok := metrics.GetUsage("collect-stop"); ok {
		t.Error("usage for stopped process should be removed")
	}

	metrics.DeleteUsage("collect-run")
}

func TestCollectSampleErrorClearsUsage(t *testing.T) {
	metrics.SetUsage("collect-gone", procstat.Usage{PID: 7})

	source := &staticSource{infos: []process.Info{
		{Label: "collect-gone", State: process.StateRunning, PID: 7},
	}}
	c := newTestCollector(source)
	c.sample = func(context.Context, int) (procstat.Usage, error) {
		return procstat.Usage{}, errors.New("no such process")
	}

	c.collect(context.Background())

	if _, ok := metrics.GetUsage("collect-gone"); ok {
		t.Error("usage should be removed after a failed sample")
	}
}

func TestUsageCollectorLoop(t *testing.T) {
	metrics.DeleteUsage("collect-loop")
	source := &staticSource{infos: []process.Info{
		{Label: "collect-loop", State: process.StateRunning, PID: 55},
	}}
	c := newTestCollector(source)

	sampled := make(chan struct{}, 10)
	c.sample = func(_ context.Context, pid int) (procstat.Usage, error) {
		select {
		case sampled <- struct{}{}:
		default:
		}
		return procstat.Usage{PID: pid}, nil
	}

	c.Start(context.Background())
	select {
	case <-sampled:
	case <-time.After(time.Second):
		t.Fatal("collector did not sample")
	}
	c.Stop()

	metrics.DeleteUsage("collect-loop")
}
