package process

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a process record. The numeric values are
// part of the status wire format.
type State int

// Record states.
const (
	StateStopped  State = 0 // no live OS process
	StateStarting State = 1 // spawn requested
	StateRunning  State = 2 // spawned, output is being captured
	StateStopping State = 3 // OS process exited, streams draining
	StateErrored  State = 4 // spawn failed

	// StateExhausted is never stored on a record. It is broadcast once when
	// the restart policy gives up, after the record has settled in
	// StateStopped or StateErrored.
	StateExhausted State = 5
)

var stateNames = map[State]string{
	StateStopped:   "stopped",
	StateStarting:  "starting",
	StateRunning:   "running",
	StateStopping:  "stopping",
	StateErrored:   "errored",
	StateExhausted: "exhausted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Quiescent reports whether no OS process can be alive in this state.
func (s State) Quiescent() bool {
	return s == StateStopped || s == StateErrored
}

// Info is a point-in-time view of one record.
type Info struct {
	Label      string        `json:"label"`
	Script     string        `json:"script"`
	LogPath    string        `json:"log_path"`
	State      State         `json:"state"`
	MaxTries   int           `json:"max_tries"`
	TriesSleep time.Duration `json:"tries_sleep"`
	TriesUsed  int           `json:"tries_used"`
	Exhausted  bool          `json:"exhausted"`
	PID        int           `json:"pid,omitempty"`
	RunID      string        `json:"run_id,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	ExitCode   int           `json:"exit_code"`
	LastError  string        `json:"last_error,omitempty"`
	RetryAt    time.Time     `json:"retry_at,omitzero"`
}
