package process

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/procmgr/internal/logging"
)

// Defaults applied by NewSupervisor to zero-valued options.
const (
	DefaultStaggerDelay = 50 * time.Millisecond
	DefaultStopSignal   = syscall.SIGTERM
	DefaultErrorMarker  = "[ERROR] "
)

var signalNames = map[string]syscall.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGINT":  syscall.SIGINT,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGKILL": syscall.SIGKILL,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
}

// ParseSignal accepts names like "SIGTERM", "term" or "TERM".
func ParseSignal(name string) (syscall.Signal, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return DefaultStopSignal, nil
	}
	if !strings.HasPrefix(key, "SIG") {
		key = "SIG" + key
	}
	sig, ok := signalNames[key]
	if !ok {
		return 0, fmt.Errorf("unsupported stop signal %q", name)
	}
	return sig, nil
}

// LineAppender persists one captured output line. *logfile.Writer
// satisfies it.
type LineAppender interface {
	AppendLine(path, text string) error
}

// StatusFunc is invoked synchronously for every state transition.
type StatusFunc func(label string, state State)

// Recorder receives supervisor counters. Implemented by the metrics package.
type Recorder interface {
	SpawnAttempt(label string)
	SpawnFailure(label string)
	Restart(label string)
	Exhausted(label string, exhausted bool)
	LogWriteError(label string)
}

type noopRecorder struct{}

func (noopRecorder) SpawnAttempt(string)    {}
func (noopRecorder) SpawnFailure(string)    {}
func (noopRecorder) Restart(string)         {}
func (noopRecorder) Exhausted(string, bool) {}
func (noopRecorder) LogWriteError(string)   {}

// Options configures a Supervisor.
type Options struct {
	// Registry holds the records to supervise (required).
	Registry *Registry

	// LogWriter receives captured output (required).
	LogWriter LineAppender

	// Logger for supervisor diagnostics. If nil, uses slog.Default().
	Logger logging.Logger

	// StaggerDelay separates spawns issued by StartAll.
	StaggerDelay time.Duration

	// StopSignal is sent to the process group by Kill.
	StopSignal syscall.Signal

	// DrainTimeout bounds output reading after a child exits while a
	// descendant still holds its pipes. Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// ErrorMarker prefixes stderr lines in process logs.
	ErrorMarker string

	// OnStatusChange is the initial primary status subscriber (optional).
	OnStatusChange StatusFunc

	// Metrics receives counters (optional).
	Metrics Recorder
}
