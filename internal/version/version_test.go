package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "1.2.3", GitCommit: "abc", BuildDate: "today", GoVersion: "go1", Platform: "linux/amd64"}.String()
	for _, want := range []string{"procmgr 1.2.3", "commit abc", "built today", "linux/amd64"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestApplyBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "deadbeef"},
			{Key: "vcs.time", Value: "2025-01-27T10:30:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	info := Info{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"}
	applyBuildInfo(&info, bi)
	if info.Version != "v0.4.0" || info.GitCommit != "deadbeef" || info.BuildDate != "2025-01-27T10:30:00Z" || !info.Modified {
		t.Errorf("unexpected info %+v", info)
	}
	if !strings.Contains(info.String(), "commit deadbeef-dirty") {
		t.Errorf("String() = %q, want dirty commit", info.String())
	}

	injected := Info{Version: "1.0.0", GitCommit: "abc", BuildDate: "today"}
	applyBuildInfo(&injected, bi)
	if injected.Version != "1.0.0" || injected.GitCommit != "abc" || injected.BuildDate != "today" {
		t.Errorf("ldflags values overwritten: %+v", injected)
	}
}
