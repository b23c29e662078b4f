package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sync"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript writes a shell script and returns a space-separated command
// line that runs it.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return "sh " + path
}

type lineCollector struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newLineCollector() *lineCollector {
	return &lineCollector{lines: make(map[string][]string)}
}

func (c *lineCollector) HandleLine(source, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[source] = append(c.lines[source], line)
}

func (c *lineCollector) get(source string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines[source]...)
}

func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		script string
		want   []string
	}{
		{"node server.js", []string{"node", "server.js"}},
		{"true", []string{"true"}},
		{`sh -c "echo hi"`, []string{"sh", "-c", `"echo`, `hi"`}},
		{"a  b", []string{"a", "", "b"}},
		{"", []string{""}},
		{" lead", []string{"", "lead"}},
		{"tab\tsep", []string{"tab\tsep"}},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.script); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.script, got, tt.want)
		}
	}
}

func TestSpawnCapturesOutput(t *testing.T) {
	script := writeScript(t, "echo out1\necho err1 >&2\necho out2\n")
	out := newLineCollector()

	p, err := Spawn("test", Tokenize(script), out, testLogger())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if p.Pid() <= 0 {
		t.Errorf("expected positive pid, got %d", p.Pid())
	}
	if p.RunID() == "" {
		t.Error("expected run id")
	}
	p.Stream()
	waitDone(t, p, 2*time.Second)

	if got := out.get(SourceStdout); !reflect.DeepEqual(got, []string{"out1", "out2"}) {
		t.Errorf("stdout = %q", got)
	}
	if got := out.get(SourceStderr); !reflect.DeepEqual(got, []string{"err1"}) {
		t.Errorf("stderr = %q", got)
	}
	if exit := p.Exit(); exit.Code != 0 || exit.Err != nil {
		t.Errorf("expected clean exit, got %+v", exit)
	}
}

func TestSpawnExitCode(t *testing.T) {
	p, err := Spawn("test", Tokenize(writeScript(t, "exit 3\n")), nil, testLogger())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	p.Stream()
	waitDone(t, p, 2*time.Second)

	exit := p.Exit()
	if exit.Code != 3 || exit.Signaled {
		t.Errorf("expected code 3, got %+v", exit)
	}
	var exitErr *exec.ExitError
	if !errors.As(exit.Err, &exitErr) {
		t.Errorf("expected *exec.ExitError, got %v", exit.Err)
	}
}

func TestSpawnErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"missing binary", []string{"/nonexistent/binary-procmgr-test"}},
		{"empty executable", []string{"", "arg"}},
		{"no argv", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Spawn("bad", tt.argv, nil, testLogger())
			var spawnErr *SpawnError
			if !errors.As(err, &spawnErr) {
				t.Fatalf("expected *SpawnError, got %v", err)
			}
			if spawnErr.Label != "bad" {
				t.Errorf("Label = %q", spawnErr.Label)
			}
		})
	}
}

func TestSignalStopsProcessGroup(t *testing.T) {
	// The child shell spawns a grandchild; both must go when the group is signalled.
	script := writeScript(t, "sleep 30 &\nwait\n")
	p, err := Spawn("group", Tokenize(script), nil, testLogger())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	p.Stream()
	time.Sleep(100 * time.Millisecond)

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	waitDone(t, p, 2*time.Second)

	exit := p.Exit()
	if !exit.Signaled || exit.Code != 128+int(syscall.SIGTERM) {
		t.Errorf("expected SIGTERM exit, got %+v", exit)
	}
}

func TestSignalAfterExit(t *testing.T) {
	p, err := Spawn("done", []string{"true"}, nil, testLogger())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	p.Stream()
	waitDone(t, p, 2*time.Second)

	if err := p.Signal(syscall.SIGTERM); !errors.Is(err, os.ErrProcessDone) {
		t.Errorf("expected os.ErrProcessDone, got %v", err)
	}
}

func TestStreamIsIdempotent(t *testing.T) {
	out := newLineCollector()
	p, err := Spawn("once", []string{"echo", "hello"}, out, testLogger())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	p.Stream()
	p.Stream()
	waitDone(t, p, 2*time.Second)

	if got := out.get(SourceStdout); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("stdout = %q", got)
	}
}
