package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/procmgr/internal/logging"
)

// Errors returned by Supervisor operations. None of them change a record.
var (
	ErrUnknownLabel = errors.New("unknown label")
	ErrActive       = errors.New("process is already active")
	ErrNotRunning   = errors.New("process is not running")
	ErrClosed       = errors.New("supervisor is shut down")
)

// forceKillWait bounds how long Shutdown waits after SIGKILL.
const forceKillWait = 2 * time.Second

type retryTimer struct {
	timer *time.Timer
	at    time.Time
}

type observer struct {
	id uint64
	fn StatusFunc
}

// Supervisor spawns, monitors and restarts the processes of a Registry.
// All record mutation happens under one mutex; status callbacks run
// outside it, on the goroutine that caused the transition.
type Supervisor struct {
	registry *Registry
	out      LineAppender
	logger   logging.Logger
	metrics  Recorder
	stagger  time.Duration
	stopSig  syscall.Signal
	drain    time.Duration
	marker   string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	obsMu     sync.RWMutex
	primary   StatusFunc
	observers []observer
	nextObsID uint64
}

// NewSupervisor creates a supervisor. It panics if Registry or LogWriter
// is missing.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Registry == nil || opts.LogWriter == nil {
		panic("process: Options with Registry and LogWriter is required")
	}

	s := &Supervisor{
		registry: opts.Registry,
		out:      opts.LogWriter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		stagger:  opts.StaggerDelay,
		stopSig:  opts.StopSignal,
		drain:    opts.DrainTimeout,
		marker:   opts.ErrorMarker,
		primary:  opts.OnStatusChange,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.stagger <= 0 {
		s.stagger = DefaultStaggerDelay
	}
	if s.stopSig == 0 {
		s.stopSig = DefaultStopSignal
	}
	if s.drain <= 0 {
		s.drain = DefaultDrainTimeout
	}
	if s.marker == "" {
		s.marker = DefaultErrorMarker
	}
	return s
}

// Registry returns the supervised registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

// OnStatusChange sets the primary status subscriber, replacing any
// previous one. nil removes it. Transitions before registration are not
// replayed.
func (s *Supervisor) OnStatusChange(fn StatusFunc) {
	s.obsMu.Lock()
	s.primary = fn
	s.obsMu.Unlock()
}

// Subscribe adds an observer alongside the primary subscriber and returns
// a function that removes it.
func (s *Supervisor) Subscribe(fn StatusFunc) func() {
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Supervisor) notify(label string, state State) {
	s.obsMu.RLock()
	primary := s.primary
	observers := make([]StatusFunc, len(s.observers))
	for i, o := range s.observers {
		observers[i] = o.fn
	}
	s.obsMu.RUnlock()

	if primary != nil {
		primary(label, state)
	}
	for _, fn := range observers {
		fn(label, state)
	}
}

// setState changes rec's state and reports whether it changed. Caller holds s.mu.
func setState(rec *Record, state State) bool {
	if rec.state == state {
		return false
	}
	rec.state = state
	return true
}

// Start launches label. It is valid only while the record is Stopped or
// Errored; an explicit start resets the restart counter and cancels any
// pending restart. A spawn failure is returned as *SpawnError after the
// record has moved to Errored.
func (s *Supervisor) Start(label string) error {
	s.mu.Lock()
	rec, ok := s.registry.Get(label)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownLabel
	}
	err := s.beginLocked(rec, true)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.launch(rec)
}

// beginLocked validates and reserves a start. Caller holds s.mu.
func (s *Supervisor) beginLocked(rec *Record, external bool) error {
	if s.closed {
		return ErrClosed
	}
	if !rec.state.Quiescent() {
		return ErrActive
	}
	s.cancelRetryLocked(rec)
	if external {
		rec.triesUsed = 0
		rec.exhausted = false
	}
	rec.killRequested = false
	rec.lastErr = nil
	rec.state = StateStarting
	s.wg.Add(1)
	return nil
}

// launch spawns a record reserved by beginLocked.
func (s *Supervisor) launch(rec *Record) error {
	label := rec.Label()
	s.notify(label, StateStarting)

	argv := Tokenize(rec.def.Script)
	s.mu.Lock()
	attempt := rec.triesUsed
	exhaustedReset := attempt == 0
	s.mu.Unlock()
	if exhaustedReset {
		s.metrics.Exhausted(label, false)
	}
	s.logger.Info("Starting process", "label", label, "script", rec.def.Script, "attempt", attempt)
	s.metrics.SpawnAttempt(label)

	proc, err := Spawn(label, argv, s.outputHandler(rec), s.logger, WithDrainTimeout(s.drain))
	if err != nil {
		s.metrics.SpawnFailure(label)
		s.logger.Error("Failed to start process", "label", label, "error", err)

		s.mu.Lock()
		rec.lastErr = err
		changed := setState(rec, StateErrored)
		s.mu.Unlock()
		s.wg.Done()

		if changed {
			s.notify(label, StateErrored)
		}
		s.applyRestartPolicy(rec)
		return err
	}

	s.mu.Lock()
	rec.handle = proc
	changed := setState(rec, StateRunning)
	stopNow := rec.killRequested
	s.mu.Unlock()

	s.logger.Info("Process started", "label", label, "pid", proc.Pid(), "run_id", proc.RunID())
	if changed {
		s.notify(label, StateRunning)
	}
	if stopNow {
		s.signal(label, proc, s.stopSig)
	}

	go s.monitor(rec, proc)
	proc.Stream()
	return nil
}

// monitor moves the record to Stopping when proc exits and to Stopped once
// its output is drained, then applies the restart policy.
func (s *Supervisor) monitor(rec *Record, proc *Process) {
	defer s.wg.Done()
	label := rec.Label()

	<-proc.Exited()
	exit := proc.Exit()

	s.mu.Lock()
	changed := setState(rec, StateStopping)
	s.mu.Unlock()
	if changed {
		s.notify(label, StateStopping)
	}

	<-proc.Done()

	s.mu.Lock()
	rec.handle = nil
	rec.lastExit = exit
	if exit.Err != nil {
		rec.lastErr = exit.Err
	}
	planned := rec.killRequested
	changed = setState(rec, StateStopped)
	s.mu.Unlock()

	s.logger.Info("Process exited",
		"label", label,
		"pid", proc.Pid(),
		"run_id", proc.RunID(),
		"exit_code", exit.Code,
		"signaled", exit.Signaled,
		"requested", planned,
		"uptime", exit.At.Sub(proc.StartedAt()).Round(time.Millisecond))
	if changed {
		s.notify(label, StateStopped)
	}
	s.applyRestartPolicy(rec)
}

// applyRestartPolicy schedules a restart for a record that went quiescent
// without being asked to, or reports exhaustion.
func (s *Supervisor) applyRestartPolicy(rec *Record) {
	label := rec.Label()
	maxTries := rec.def.MaxTries
	delay := rec.def.TriesSleep

	s.mu.Lock()
	if s.closed || rec.killRequested || !rec.state.Quiescent() || rec.retry != nil {
		s.mu.Unlock()
		return
	}
	if maxTries >= 0 && rec.triesUsed >= maxTries {
		rec.exhausted = true
		tries := rec.triesUsed
		s.mu.Unlock()

		s.logger.Warn("Restart attempts exhausted", "label", label, "tries_used", tries, "max_tries", maxTries)
		s.metrics.Exhausted(label, true)
		s.notify(label, StateExhausted)
		return
	}

	rec.triesUsed++
	tries := rec.triesUsed
	rt := &retryTimer{at: time.Now().Add(delay)}
	rt.timer = time.AfterFunc(delay, func() { s.fireRetry(rec, rt) })
	rec.retry = rt
	s.mu.Unlock()

	s.metrics.Restart(label)
	s.logger.Info("Scheduling restart", "label", label, "attempt", tries, "max_tries", maxTries, "delay", delay)
}

func (s *Supervisor) fireRetry(rec *Record, rt *retryTimer) {
	s.mu.Lock()
	if rec.retry != rt {
		s.mu.Unlock()
		return
	}
	rec.retry = nil
	err := s.beginLocked(rec, false)
	s.mu.Unlock()
	if err != nil {
		s.logger.Debug("Restart skipped", "label", rec.Label(), "reason", err)
		return
	}
	_ = s.launch(rec)
}

// cancelRetryLocked drops a pending restart. Caller holds s.mu.
func (s *Supervisor) cancelRetryLocked(rec *Record) bool {
	if rec.retry == nil {
		return false
	}
	rec.retry.timer.Stop()
	rec.retry = nil
	return true
}

func (s *Supervisor) outputHandler(rec *Record) OutputHandler {
	label, path := rec.Label(), rec.LogPath()
	return OutputHandlerFunc(func(source, line string) {
		if source == SourceStderr {
			line = s.marker + line
		}
		if err := s.out.AppendLine(path, line); err != nil {
			// Supervision continues; a logging fault must not stop the process.
			s.metrics.LogWriteError(label)
			s.logger.Error("Failed to write process log", "label", label, "path", path, "error", err)
		}
	})
}

// Kill asks label to terminate. Termination drives the record through
// Stopping to Stopped, and no restart follows. On a quiescent record Kill
// only cancels a pending restart and returns ErrNotRunning; the state and
// subscribers are left untouched.
func (s *Supervisor) Kill(label string) error {
	s.mu.Lock()
	rec, ok := s.registry.Get(label)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownLabel
	}
	cancelled := s.cancelRetryLocked(rec)

	switch rec.state {
	case StateStarting:
		// Signalled by launch once the spawn completes.
		rec.killRequested = true
		s.mu.Unlock()
		s.logger.Info("Stop requested while starting", "label", label)
		return nil
	case StateRunning:
		rec.killRequested = true
		proc := rec.handle
		s.mu.Unlock()
		s.logger.Info("Stopping process", "label", label, "pid", proc.Pid(), "signal", s.stopSig.String())
		return s.signal(label, proc, s.stopSig)
	case StateStopping:
		rec.killRequested = true
		s.mu.Unlock()
		return ErrNotRunning
	default:
		// Also covers an exit whose restart has not been scheduled yet.
		rec.killRequested = true
		s.mu.Unlock()
		if cancelled {
			s.logger.Info("Pending restart cancelled", "label", label)
		}
		return ErrNotRunning
	}
}

// Stop is Kill.
func (s *Supervisor) Stop(label string) error { return s.Kill(label) }

func (s *Supervisor) signal(label string, proc *Process, sig syscall.Signal) error {
	err := proc.Signal(sig)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to signal process", "label", label, "signal", sig.String(), "error", err)
		return err
	}
	return nil
}

// StartAll starts every Stopped record in declaration order, waiting the
// stagger delay before each spawn. It returns the number of starts issued
// and stops early when ctx is done.
func (s *Supervisor) StartAll(ctx context.Context) int {
	s.logger.Info("Starting all processes", "count", s.registry.Len(), "stagger", s.stagger)

	started := 0
	timer := time.NewTimer(s.stagger)
	defer timer.Stop()

	for _, label := range s.registry.Labels() {
		if !s.isState(label, StateStopped) {
			continue
		}

		timer.Reset(s.stagger)
		select {
		case <-ctx.Done():
			return started
		case <-timer.C:
		}

		err := s.Start(label)
		var spawnErr *SpawnError
		if err == nil || errors.As(err, &spawnErr) {
			started++
		}
	}
	return started
}

func (s *Supervisor) isState(label string, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(label)
	return ok && rec.state == state
}

// KillAll stops every active record and cancels pending restarts.
func (s *Supervisor) KillAll() {
	s.logger.Info("Stopping all processes")
	for _, label := range s.registry.Labels() {
		_ = s.Kill(label)
	}
}

// Shutdown refuses further starts, stops everything and waits for all
// monitors to finish. When ctx expires first, survivors get SIGKILL.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.KillAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All processes stopped")
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	var survivors []*Process
	var labels []string
	s.registry.ForEach(func(rec *Record) bool {
		if rec.handle != nil {
			survivors = append(survivors, rec.handle)
			labels = append(labels, rec.Label())
		}
		return true
	})
	s.mu.Unlock()

	s.logger.Warn("Shutdown timeout, forcing kill", "processes", labels)
	for i, proc := range survivors {
		s.signal(labels[i], proc, syscall.SIGKILL)
	}

	select {
	case <-done:
	case <-time.After(forceKillWait):
		s.logger.Error("Processes did not exit after SIGKILL", "processes", labels)
	}
	return ctx.Err()
}

// Info returns a view of label.
func (s *Supervisor) Info(label string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(label)
	if !ok {
		return Info{}, false
	}
	return infoLocked(rec), true
}

// Snapshot returns a view of every record in declaration order.
func (s *Supervisor) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]Info, 0, s.registry.Len())
	s.registry.ForEach(func(rec *Record) bool {
		infos = append(infos, infoLocked(rec))
		return true
	})
	return infos
}

func infoLocked(rec *Record) Info {
	info := Info{
		Label:      rec.Label(),
		Script:     rec.def.Script,
		LogPath:    rec.logPath,
		State:      rec.state,
		MaxTries:   rec.def.MaxTries,
		TriesSleep: rec.def.TriesSleep,
		TriesUsed:  rec.triesUsed,
		Exhausted:  rec.exhausted,
		ExitCode:   rec.lastExit.Code,
	}
	if rec.handle != nil {
		info.PID = rec.handle.Pid()
		info.RunID = rec.handle.RunID()
		info.StartedAt = rec.handle.StartedAt()
	}
	if rec.lastErr != nil {
		info.LastError = rec.lastErr.Error()
	}
	if rec.retry != nil {
		info.RetryAt = rec.retry.at
	}
	return info
}
