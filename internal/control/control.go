// Package control is the command surface used by the HTTP API and the
// CLI: start and stop by label, bulk start and stop, a full description of
// the session and opening the log directory. Unknown labels are a no-op so
// a stale view can never raise an error here.
package control

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/smazurov/procmgr/internal/logging"
	"github.com/smazurov/procmgr/internal/process"
)

// ErrPathNotAllowed is returned by OpenLogDirectory for paths outside the
// log directory.
var ErrPathNotAllowed = errors.New("path is outside the log directory")

// Supervisor is the subset of *process.Supervisor the controller drives.
type Supervisor interface {
	Start(label string) error
	Kill(label string) error
	StartAll(ctx context.Context) int
	KillAll()
	Info(label string) (process.Info, bool)
	Snapshot() []process.Info
}

// Opener shows a filesystem path to the operator.
type Opener func(path string) error

// Result reports the outcome of a per-label command.
type Result struct {
	Label   string        `json:"label"`
	Known   bool          `json:"known"`
	Changed bool          `json:"changed"`
	State   process.State `json:"state"`
	Error   string        `json:"error,omitempty"`
}

// Description is the initial view of a session.
type Description struct {
	LogPath   string         `json:"logPath"`
	Processes []process.Info `json:"processes"`
}

// Controller forwards commands to a Supervisor.
type Controller struct {
	sup    Supervisor
	outDir string
	opener Opener
	logger logging.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithOpener replaces the platform file browser launcher.
func WithOpener(opener Opener) Option {
	return func(c *Controller) { c.opener = opener }
}

// WithLogger sets the controller logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New creates a controller for sup whose logs live in outDir.
func New(sup Supervisor, outDir string, opts ...Option) *Controller {
	c := &Controller{
		sup:    sup,
		outDir: outDir,
		opener: OpenWithFileBrowser,
		logger: logging.GetLogger("control"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start starts label.
func (c *Controller) Start(label string) Result {
	return c.apply(label, "start", c.sup.Start)
}

// Stop stops label.
func (c *Controller) Stop(label string) Result {
	return c.apply(label, "stop", c.sup.Kill)
}

func (c *Controller) apply(label, op string, fn func(string) error) Result {
	err := fn(label)

	res := Result{Label: label, Known: !errors.Is(err, process.ErrUnknownLabel)}
	if !res.Known {
		c.logger.Debug("Ignoring command for unknown label", "op", op, "label", label)
		return res
	}

	var spawnErr *process.SpawnError
	switch {
	case err == nil:
		res.Changed = true
	case errors.As(err, &spawnErr):
		// The attempt happened; the record is now Errored.
		res.Changed = true
		res.Error = err.Error()
	default:
		res.Error = err.Error()
	}
	if info, ok := c.sup.Info(label); ok {
		res.State = info.State
	}
	return res
}

// StartAll starts every stopped process and returns how many starts were issued.
func (c *Controller) StartAll(ctx context.Context) int {
	return c.sup.StartAll(ctx)
}

// StopAll stops every active process.
func (c *Controller) StopAll() {
	c.sup.KillAll()
}

// Describe returns the log directory and every record.
func (c *Controller) Describe() Description {
	return Description{
		LogPath:   c.outDir,
		Processes: c.sup.Snapshot(),
	}
}

// Process returns one record.
func (c *Controller) Process(label string) (process.Info, bool) {
	return c.sup.Info(label)
}

// OpenLogDirectory opens path in the operator's file browser. An empty
// path opens the log directory itself; anything outside it is refused.
func (c *Controller) OpenLogDirectory(path string) error {
	target, err := c.resolveLogPath(path)
	if err != nil {
		c.logger.Warn("Refusing to open path", "path", path, "error", err)
		return err
	}
	c.logger.Info("Opening log directory", "path", target)
	return c.opener(target)
}

func (c *Controller) resolveLogPath(path string) (string, error) {
	root, err := filepath.Abs(c.outDir)
	if err != nil {
		return "", err
	}
	if path == "" {
		return root, nil
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathNotAllowed
	}
	return target, nil
}

// OpenWithFileBrowser launches the platform's default file browser.
func OpenWithFileBrowser(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
