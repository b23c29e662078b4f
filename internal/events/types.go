package events

// Event type constants for kelindar/event.
const (
	TypeProcessStatus uint32 = iota + 1
	TypeLogEntry
	TypeConfigChanged
	TypeProcessUsage
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStatusEvent is published on every supervisor state transition.
type ProcessStatusEvent struct {
	Label     string `json:"label" example:"api" doc:"Process label"`
	Status    int    `json:"status" example:"2" doc:"Numeric state: 0 stopped, 1 starting, 2 running, 3 stopping, 4 errored, 5 restart attempts exhausted"`
	State     string `json:"state" example:"running" doc:"State name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for ProcessStatusEvent.
func (e ProcessStatusEvent) Type() uint32 { return TypeProcessStatus }

// LogEntryEvent carries one application log record for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ConfigChangedEvent is published when config.json changes on disk.
// Definitions are fixed for the session, so this only asks for a relaunch.
type ConfigChangedEvent struct {
	Path      string `json:"path" example:"/opt/app/config.json" doc:"Changed definition file"`
	Processes int    `json:"processes" example:"3" doc:"Process count in the new document"`
	Valid     bool   `json:"valid" doc:"Whether the new document parses"`
	Error     string `json:"error,omitempty" doc:"Parse error, when invalid"`
	Message   string `json:"message" example:"Process definitions changed; relaunch to apply" doc:"Operator message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Detection timestamp"`
}

// Type returns the event type identifier for ConfigChangedEvent.
func (e ConfigChangedEvent) Type() uint32 { return TypeConfigChanged }

// ProcessUsageEvent carries the last resource sample of a running process.
type ProcessUsageEvent struct {
	Label      string `json:"label" example:"api" doc:"Process label"`
	PID        int    `json:"pid" example:"4242" doc:"OS process id"`
	CPUPercent string `json:"cpu_percent" example:"3.25" doc:"CPU usage percent"`
	RSSBytes   uint64 `json:"rss_bytes" example:"10485760" doc:"Resident memory in bytes"`
	Threads    int32  `json:"threads" example:"4" doc:"Thread count"`
}

// Type returns the event type identifier for ProcessUsageEvent.
func (e ProcessUsageEvent) Type() uint32 { return TypeProcessUsage }
