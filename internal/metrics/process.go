// Package metrics provides Prometheus metrics for supervised processes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/smazurov/procmgr/internal/procstat"
)

var (
	processState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmgr",
		Subsystem: "process",
		Name:      "state",
		Help:      "Current lifecycle state (0 stopped, 1 starting, 2 running, 3 stopping, 4 errored)",
	}, []string{"label"})

	restartExhausted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmgr",
		Name:      "restart_exhausted",
		Help:      "1 when the restart policy has given up on the process",
	}, []string{"label"})

	spawnAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmgr",
		Name:      "spawn_attempts_total",
		Help:      "Spawn attempts, including restarts",
	}, []string{"label"})

	spawnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmgr",
		Name:      "spawn_failures_total",
		Help:      "Spawn attempts that failed before the process ran",
	}, []string{"label"})

	restarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmgr",
		Name:      "restarts_total",
		Help:      "Restarts scheduled by the restart policy",
	}, []string{"label"})

	logWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmgr",
		Name:      "log_write_errors_total",
		Help:      "Output lines that could not be appended to the process log",
	}, []string{"label"})

	processCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmgr",
		Subsystem: "process",
		Name:      "cpu_percent",
		Help:      "CPU usage of the running process",
	}, []string{"label"})

	processRSS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmgr",
		Subsystem: "process",
		Name:      "rss_bytes",
		Help:      "Resident memory of the running process",
	}, []string{"label"})

	processThreads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmgr",
		Subsystem: "process",
		Name:      "threads",
		Help:      "Thread count of the running process",
	}, []string{"label"})

	// Local cache for SSE exporter access.
	usageCache   = make(map[string]procstat.Usage)
	usageCacheMu sync.RWMutex
)

// Recorder implements process.Recorder on the package counters.
type Recorder struct{}

var _ process.Recorder = Recorder{}

// SpawnAttempt counts a spawn attempt.
func (Recorder) SpawnAttempt(label string) { spawnAttempts.WithLabelValues(label).Inc() }

// SpawnFailure counts a failed spawn.
func (Recorder) SpawnFailure(label string) { spawnFailures.WithLabelValues(label).Inc() }

// Restart counts a scheduled restart.
func (Recorder) Restart(label string) { restarts.WithLabelValues(label).Inc() }

// LogWriteError counts a dropped output line.
func (Recorder) LogWriteError(label string) { logWriteErrors.WithLabelValues(label).Inc() }

// Exhausted sets the exhaustion flag for label.
func (Recorder) Exhausted(label string, exhausted bool) {
	v := 0.0
	if exhausted {
		v = 1
	}
	restartExhausted.WithLabelValues(label).Set(v)
}

// ObserveStatus matches process.StatusFunc. Exhaustion is reported through
// Recorder.Exhausted, so it does not move the state gauge.
func ObserveStatus(label string, state process.State) {
	if state == process.StateExhausted {
		return
	}
	processState.WithLabelValues(label).Set(float64(state))
	if state != process.StateRunning {
		DeleteUsage(label)
	}
}

// SetUsage records a resource sample for label.
func SetUsage(label string, usage procstat.Usage) {
	processCPU.WithLabelValues(label).Set(usage.CPUPercent)
	processRSS.WithLabelValues(label).Set(float64(usage.RSSBytes))
	processThreads.WithLabelValues(label).Set(float64(usage.Threads))

	usageCacheMu.Lock()
	usageCache[label] = usage
	usageCacheMu.Unlock()
}

// DeleteUsage removes the resource metrics of label.
func DeleteUsage(label string) {
	processCPU.DeleteLabelValues(label)
	processRSS.DeleteLabelValues(label)
	processThreads.DeleteLabelValues(label)

	usageCacheMu.Lock()
	delete(usageCache, label)
	usageCacheMu.Unlock()
}

// GetUsage returns the last sample for label.
func GetUsage(label string) (procstat.Usage, bool) {
	usageCacheMu.RLock()
	defer usageCacheMu.RUnlock()
	u, ok := usageCache[label]
	return u, ok
}

// GetAllUsage returns the last sample of every running process.
func GetAllUsage() map[string]procstat.Usage {
	usageCacheMu.RLock()
	defer usageCacheMu.RUnlock()
	result := make(map[string]procstat.Usage, len(usageCache))
	for label, u := range usageCache {
		result[label] = u
	}
	return result
}
