package process

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/procmgr/internal/logging"
)

// Output stream names passed to OutputHandler.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// maxLineSize bounds a single captured output line. Longer lines are
// delivered in pieces of this size.
const maxLineSize = 1024 * 1024

// DefaultDrainTimeout bounds how long output is still read after the child
// exits, for descendants that keep its stdout or stderr open.
const DefaultDrainTimeout = 5 * time.Second

// OutputHandler receives each line a child writes to stdout or stderr.
type OutputHandler interface {
	HandleLine(source, line string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(source, line string)

// HandleLine calls f.
func (f OutputHandlerFunc) HandleLine(source, line string) { f(source, line) }

// SpawnError reports a child that could not be launched.
type SpawnError struct {
	Label string
	Argv  []string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s %q: %v", e.Label, e.Argv, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

var errEmptyExecutable = errors.New("empty executable")

// Tokenize splits a script on single ASCII spaces. Quoting is not
// interpreted and consecutive spaces produce empty arguments.
func Tokenize(script string) []string {
	return strings.Split(script, " ")
}

// Exit describes how a child ended.
type Exit struct {
	Code     int
	Signaled bool
	Err      error
	At       time.Time
}

// Process is one spawned OS process. Exited is closed when the OS process
// has been reaped; Done is closed once its output is drained as well.
type Process struct {
	label  string
	argv   []string
	runID  string
	cmd    *exec.Cmd
	logger logging.Logger
	output OutputHandler

	stdout       *os.File
	stderr       *os.File
	drainTimeout time.Duration

	startedAt time.Time
	exited    chan struct{}
	done      chan struct{}
	exit      Exit
	once      sync.Once
}

// SpawnOption configures Spawn.
type SpawnOption func(*Process)

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) SpawnOption {
	return func(p *Process) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}

// Spawn launches argv in its own process group with stdout and stderr
// connected to pipes. Output is not read until Stream is called, so no line
// can be observed before the caller has recorded the spawn.
func Spawn(label string, argv []string, output OutputHandler, logger logging.Logger, opts ...SpawnOption) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &SpawnError{Label: label, Argv: argv, Err: errEmptyExecutable}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Pipes are created here instead of with StdoutPipe so that cmd.Wait
	// reaps the child without waiting for the readers.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Label: label, Argv: argv, Err: err}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, &SpawnError{Label: label, Argv: argv, Err: err}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	closeAll(outW, errW)
	if err != nil {
		closeAll(outR, errR)
		return nil, &SpawnError{Label: label, Argv: argv, Err: err}
	}

	p := &Process{
		label:        label,
		argv:         argv,
		runID:        uuid.NewString(),
		cmd:          cmd,
		logger:       logger,
		output:       output,
		stdout:       outR,
		stderr:       errR,
		drainTimeout: DefaultDrainTimeout,
		startedAt:    time.Now(),
		exited:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// Stream starts reading both output streams and reaping the child.
// Calling Stream again is a no-op.
func (p *Process) Stream() {
	p.once.Do(func() {
		go p.monitor()
	})
}

func (p *Process) monitor() {
	drained := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.streamOutput(p.stdout, SourceStdout)
	}()
	go func() {
		defer wg.Done()
		p.streamOutput(p.stderr, SourceStderr)
	}()
	go func() {
		wg.Wait()
		close(drained)
	}()

	err := p.cmd.Wait()
	p.exit = exitFromError(err)
	close(p.exited)

	timer := time.NewTimer(p.drainTimeout)
	select {
	case <-drained:
		timer.Stop()
	case <-timer.C:
		p.logger.Warn("Output still open after exit, closing pipes",
			"label", p.label, "pid", p.cmd.Process.Pid, "timeout", p.drainTimeout)
		// Closing the read ends unblocks the readers.
		closeAll(p.stdout, p.stderr)
		<-drained
	}
	closeAll(p.stdout, p.stderr)
	close(p.done)
}

// streamOutput hands every line of reader to the output handler. A line
// longer than maxLineSize is split into maxLineSize pieces; nothing read
// from the pipe is dropped.
func (p *Process) streamOutput(reader io.Reader, source string) {
	br := bufio.NewReaderSize(reader, 64*1024)
	var pending []byte

	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			pending = append(pending, chunk[:len(chunk)-1]...)
			p.emit(source, pending)
			pending = pending[:0]
		case errors.Is(err, bufio.ErrBufferFull):
			pending = append(pending, chunk...)
			for len(pending) >= maxLineSize {
				p.emit(source, pending[:maxLineSize])
				pending = append(pending[:0], pending[maxLineSize:]...)
			}
		default:
			pending = append(pending, chunk...)
			if len(pending) > 0 {
				p.emit(source, pending)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("Error reading output", "label", p.label, "source", source, "error", err)
			}
			return
		}
	}
}

func (p *Process) emit(source string, line []byte) {
	if p.output == nil {
		return
	}
	line = bytes.TrimSuffix(line, []byte("\r"))
	p.output.HandleLine(source, string(line))
}

// exitFromError converts the result of cmd.Wait.
func exitFromError(err error) Exit {
	exit := Exit{Err: err, At: time.Now()}
	if err == nil {
		return exit
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		exit.Code = -1
		return exit
	}
	exit.Code = exitErr.ExitCode()
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		exit.Signaled = true
		exit.Code = 128 + int(status.Signal())
	}
	return exit
}

// Signal sends sig to the child's process group. After the child has
// exited it still reaches descendants that keep the output open, and
// reports os.ErrProcessDone.
func (p *Process) Signal(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return os.ErrProcessDone
	}
	select {
	case <-p.done:
		return os.ErrProcessDone
	case <-p.exited:
		// The leader is gone but descendants still hold its output; the
		// group id stays valid while any of them is alive.
		if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
		return os.ErrProcessDone
	default:
	}
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// Group leader may have reset its group; fall back to the pid.
		err = p.cmd.Process.Signal(sig)
	}
	return err
}

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Done is closed after the child has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exit returns how the child ended. Valid only after Exited is closed.
func (p *Process) Exit() Exit { return p.exit }

// Pid returns the OS process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// RunID identifies this spawn attempt in logs and events.
func (p *Process) RunID() string { return p.runID }

// StartedAt returns the spawn time.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Argv returns the argument vector the child was started with.
func (p *Process) Argv() []string { return p.argv }
