package process

import (
	"github.com/smazurov/procmgr/internal/config"
	"github.com/smazurov/procmgr/internal/logfile"
)

// Record is the runtime entry for one label. It exists for the whole
// session; the Supervisor mutates it under its own lock.
type Record struct {
	def     config.Definition
	logPath string

	state     State
	triesUsed int
	exhausted bool
	handle    *Process

	// killRequested marks the current run as stopped on purpose, which
	// suppresses the restart policy when it exits.
	killRequested bool
	retry         *retryTimer
	lastExit      Exit
	lastErr       error
}

// Definition returns the immutable definition behind the record.
func (r *Record) Definition() config.Definition { return r.def }

// Label returns the record's label.
func (r *Record) Label() string { return r.def.Label }

// LogPath returns the file receiving this process's output.
func (r *Record) LogPath() string { return r.logPath }

// Registry maps labels to records in declaration order. Records are
// created once and never removed.
type Registry struct {
	outDir  string
	order   []string
	records map[string]*Record
}

// NewRegistry creates one Stopped record per definition.
func NewRegistry(defs *config.Definitions) *Registry {
	r := &Registry{
		outDir:  defs.OutDir,
		order:   make([]string, 0, len(defs.Processes)),
		records: make(map[string]*Record, len(defs.Processes)),
	}
	for _, def := range defs.Processes {
		if _, dup := r.records[def.Label]; !dup {
			r.order = append(r.order, def.Label)
		}
		r.records[def.Label] = &Record{
			def:     def,
			logPath: defs.LogPath(def.Label),
			state:   StateStopped,
		}
	}
	return r
}

// OutDir returns the directory holding process logs.
func (r *Registry) OutDir() string { return r.outDir }

// Get returns the record for label.
func (r *Registry) Get(label string) (*Record, bool) {
	rec, ok := r.records[label]
	return rec, ok
}

// ForEach calls fn for every record in declaration order until fn returns false.
func (r *Registry) ForEach(fn func(*Record) bool) {
	for _, label := range r.order {
		if !fn(r.records[label]) {
			return
		}
	}
}

// Labels returns all labels in declaration order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of records.
func (r *Registry) Len() int { return len(r.order) }

// EnsureLogFile creates the log file for label if it does not exist.
// Existing files are never truncated. Unknown labels are ignored.
func (r *Registry) EnsureLogFile(label string) error {
	rec, ok := r.records[label]
	if !ok {
		return nil
	}
	return logfile.EnsureFile(rec.logPath)
}

// EnsureLogFiles runs EnsureLogFile for every record and returns the
// first error after trying them all.
func (r *Registry) EnsureLogFiles() error {
	var firstErr error
	for _, label := range r.order {
		if err := r.EnsureLogFile(label); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
