package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/smazurov/procmgr/internal/procstat"
)

func TestRecorderCounters(t *testing.T) {
	label := "recorder-test"
	r := Recorder{}

	r.SpawnAttempt(label)
	r.SpawnAttempt(label)
	r.SpawnFailure(label)
	r.Restart(label)
	r.LogWriteError(label)

	if got := testutil.ToFloat64(spawnAttempts.WithLabelValues(label)); got != 2 {
		t.Errorf("spawn attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(spawnFailures.WithLabelValues(label)); got != 1 {
		t.Errorf("spawn failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(restarts.WithLabelValues(label)); got != 1 {
		t.Errorf("restarts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(logWriteErrors.WithLabelValues(label)); got != 1 {
		t.Errorf("log write errors = %v, want 1", got)
	}

	r.Exhausted(label, true)
	if got := testutil.ToFloat64(restartExhausted.WithLabelValues(label)); got != 1 {
		t.Errorf("exhausted = %v, want 1", got)
	}
	r.Exhausted(label, false)
	if got := testutil.ToFloat64(restartExhausted.WithLabelValues(label)); got != 0 {
		t.Errorf("exhausted = %v, want 0", got)
	}
}

func TestObserveStatus(t *testing.T) {
	label := "status-test"

	ObserveStatus(label, process.StateRunning)
	if got := testutil.ToFloat64(processState.WithLabelValues(label)); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}

	SetUsage(label, procstat.Usage{PID: 10, CPUPercent: 1.5, RSSBytes: 2048, Threads: 3})
	ObserveStatus(label, process.StateStopped)
	ObserveStatus(label, process.StateExhausted)

	if got := testutil.ToFloat64(processState.WithLabelValues(label)); got != 0 {
		t.Errorf("state after exhausted = %v, want 0", got)
	}
	if _, ok := GetUsage(label); ok {
		t.Error("usage should be cleared when the process leaves Running")
	}
}

func TestUsageCache(t *testing.T) {
	DeleteUsage("usage-a")
	DeleteUsage("usage-b")

	if _, ok := GetUsage("usage-a"); ok {
		t.Error("expected no usage for unknown label")
	}

	SetUsage("usage-a", procstat.Usage{PID: 1, RSSBytes: 100})
	SetUsage("usage-b", procstat.Usage{PID: 2, RSSBytes: 200})

	all := GetAllUsage()
	if all["usage-a"].RSSBytes != 100 || all["usage-b"].RSSBytes != 200 {
		t.Errorf("GetAllUsage = %+v", all)
	}
	if got := testutil.ToFloat64(processRSS.WithLabelValues("usage-b")); got != 200 {
		t.Errorf("rss gauge = %v, want 200", got)
	}

	all["usage-a"] = procstat.Usage{}
	if u, _ := GetUsage("usage-a"); u.RSSBytes != 100 {
		t.Error("cache was modified through the returned map")
	}

	DeleteUsage("usage-a")
	DeleteUsage("usage-b")
	if _, ok := GetAllUsage()["usage-a"]; ok {
		t.Error("expected usage-a to be deleted")
	}
}
