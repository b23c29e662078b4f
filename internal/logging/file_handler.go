package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LineAppender appends one timestamped entry to the file at path.
// *logfile.Writer satisfies it.
type LineAppender interface {
	AppendLine(path, text string) error
}

// FileHandler appends every record to an application log file using the
// same "[YYYY-MM-DD HH:MM:SS] text" framing as supervised process logs.
type FileHandler struct {
	out    LineAppender
	path   string
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewFileHandler creates a handler writing to path through out.
func NewFileHandler(out LineAppender, path string, level slog.Leveler) *FileHandler {
	return &FileHandler{out: out, path: path, level: level}
}

// Enabled implements slog.Handler.
func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	line := FormatLogLine(recordToEntry(r, h.attrs, h.groups))
	if err := h.out.AppendLine(h.path, line); err != nil {
		// Handlers have nowhere else to report; stderr is the last resort.
		fmt.Fprintf(os.Stderr, "Failed to write application log: %v\n", err)
		return err
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FileHandler{
		out:    h.out,
		path:   h.path,
		level:  h.level,
		attrs:  appendAttrs(h.attrs, attrs),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *FileHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &FileHandler{
		out:    h.out,
		path:   h.path,
		level:  h.level,
		attrs:  h.attrs,
		groups: appendGroup(h.groups, name),
	}
}
