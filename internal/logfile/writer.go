// Package logfile writes the timestamped, append-only log files kept for
// the supervisor itself (main.log) and for every supervised process.
//
// Each line is rendered as
//
//	[2006-01-02 15:04:05] <line>
//
// in the writer's time zone. Files are opened with O_APPEND and every
// AppendLine call is a single write under a per-path lock, so concurrent
// writers to the same file never interleave partial lines.
package logfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout is the layout of the bracketed prefix on every line.
const TimestampLayout = "2006-01-02 15:04:05"

// WriteError reports a failed append to a log file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ErrClosed is returned by AppendLine after Close.
var ErrClosed = errors.New("log writer closed")

// Option configures a Writer.
type Option func(*Writer)

// WithLocation renders timestamps in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(w *Writer) {
		if loc != nil {
			w.loc = loc
		}
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

type logFile struct {
	mu sync.Mutex
	f  *os.File
}

// Writer appends timestamped lines to any number of log files.
type Writer struct {
	mu     sync.Mutex
	files  map[string]*logFile
	closed bool
	loc    *time.Location
	now    func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		files: make(map[string]*logFile),
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AppendLine splits text on line breaks and appends every line to path with
// a timestamp prefix. The whole batch is written with one write call.
func (w *Writer) AppendLine(path, text string) error {
	lf, err := w.file(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	payload := FormatLines(w.now().In(w.loc), text)

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return &WriteError{Path: path, Err: ErrClosed}
	}
	if _, err := lf.f.WriteString(payload); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// file returns the cached handle for path, opening it on first use.
func (w *Writer) file(path string) (*logFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if lf, ok := w.files[path]; ok {
		return lf, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	lf := &logFile{f: f}
	w.files[path] = lf
	return lf, nil
}

// Close closes every cached file handle. Later appends fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	var errs []error
	for path, lf := range w.files {
		lf.mu.Lock()
		if lf.f != nil {
			if err := lf.f.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", path, err))
			}
			lf.f = nil
		}
		lf.mu.Unlock()
	}
	w.files = make(map[string]*logFile)
	return errors.Join(errs...)
}

// FormatLines renders text as one timestamped line per input line.
// A trailing line break does not produce an extra empty line; CRLF input is
// normalized.
func FormatLines(t time.Time, text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	prefix := "[" + t.Format(TimestampLayout) + "] "

	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// EnsureFile creates an empty file at path if none exists. An existing file
// is never truncated. Missing parent directories are created.
func EnsureFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	return f.Close()
}
