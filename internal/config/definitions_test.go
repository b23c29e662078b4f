package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefinitionsDefaults(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`{"outDir":"logs/","processes":{"api":"node server.js"}}`))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}

	if defs.Tries != DefaultTries {
		t.Errorf("Tries = %d, want %d", defs.Tries, DefaultTries)
	}
	if defs.TriesSleep != DefaultTriesSleep {
		t.Errorf("TriesSleep = %v, want %v", defs.TriesSleep, DefaultTriesSleep)
	}
	if len(defs.Processes) != 1 {
		t.Fatalf("expected 1 process, got %d", len(defs.Processes))
	}

	want := Definition{Label: "api", Script: "node server.js", MaxTries: -1, TriesSleep: time.Second}
	if defs.Processes[0] != want {
		t.Errorf("process = %+v, want %+v", defs.Processes[0], want)
	}
	if got := defs.LogPath("api"); got != "logs/api.log" {
		t.Errorf("LogPath = %q, want logs/api.log", got)
	}
}

func TestParseDefinitionsOverrides(t *testing.T) {
	doc := `{
		"outDir": "logs/",
		"tries": 3,
		"triesSleep": 200,
		"processes": {
			"plain": "sleep 1",
			"custom": {"script": "sleep 2", "tries": 5, "triesSleep": 10},
			"partial": {"script": "sleep 3", "tries": 0}
		}
	}`
	defs, err := ParseDefinitions([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}

	tests := []struct {
		label string
		want  Definition
	}{
		{"plain", Definition{Label: "plain", Script: "sleep 1", MaxTries: 3, TriesSleep: 200 * time.Millisecond}},
		{"custom", Definition{Label: "custom", Script: "sleep 2", MaxTries: 5, TriesSleep: 10 * time.Millisecond}},
		{"partial", Definition{Label: "partial", Script: "sleep 3", MaxTries: 0, TriesSleep: 200 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := defs.Lookup(tt.label)
			if !ok {
				t.Fatalf("label %q not found", tt.label)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDefinitionsExplicitZeroIsHonoured(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`{"tries":0,"triesSleep":0,"processes":{"a":"true"}}`))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	if defs.Tries != 0 || defs.TriesSleep != 0 {
		t.Errorf("expected zero policy, got tries=%d sleep=%v", defs.Tries, defs.TriesSleep)
	}
	if p := defs.Processes[0]; p.MaxTries != 0 || p.TriesSleep != 0 {
		t.Errorf("expected zero policy on process, got %+v", p)
	}
}

func TestParseDefinitionsPreservesOrder(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`{"processes":{"zeta":"true","alpha":"true","mid":"true"}}`))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, label := range want {
		if defs.Processes[i].Label != label {
			t.Errorf("position %d = %q, want %q", i, defs.Processes[i].Label, label)
		}
	}
}

func TestParseDefinitionsDuplicateLabel(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`{"processes":{"a":"first","b":"true","a":"last"}}`))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	if len(defs.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(defs.Processes))
	}
	if defs.Processes[0].Label != "a" || defs.Processes[0].Script != "last" {
		t.Errorf("duplicate should keep first position and last value, got %+v", defs.Processes[0])
	}
}

func TestParseDefinitionsNoProcesses(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`{"outDir":"logs/"}`))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	if len(defs.Processes) != 0 {
		t.Errorf("expected no processes, got %d", len(defs.Processes))
	}
}

func TestParseDefinitionsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		op   string
	}{
		{"invalid json", `{"processes":`, "parse"},
		{"array root", `[]`, "parse"},
		{"tries not number", `{"tries":"many"}`, "validate"},
		{"negative sleep", `{"triesSleep":-5}`, "validate"},
		{"processes not object", `{"processes":["a"]}`, "validate"},
		{"entry wrong type", `{"processes":{"a":42}}`, "validate"},
		{"object without script", `{"processes":{"a":{"tries":1}}}`, "validate"},
		{"entry tries not number", `{"processes":{"a":{"script":"x","tries":"1"}}}`, "validate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(tt.doc))
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if ce.Op != tt.op {
				t.Errorf("Op = %q, want %q", ce.Op, tt.op)
			}
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	doc := `{"outDir":"out/","processes":{"a":"true"}}`
	if err := os.WriteFile(filepath.Join(dir, DefinitionsFile), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := LoadDefinitions(dir, newTestLogger())
	if err != nil {
		t.Fatalf("LoadDefinitions failed: %v", err)
	}
	if defs.OutDir != "out/" || len(defs.Processes) != 1 {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDefinitions(dir, newTestLogger())

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if ce.Op != "read" {
		t.Errorf("Op = %q, want read", ce.Op)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadDefinitionsInvalidFileCarriesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefinitionsFile)
	if err := os.WriteFile(path, []byte(`nope`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadDefinitions(dir, newTestLogger())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if ce.Path != path {
		t.Errorf("Path = %q, want %q", ce.Path, path)
	}
}

func TestLogPath(t *testing.T) {
	tests := []struct {
		outDir, label, want string
	}{
		{"logs/", "api", "logs/api.log"},
		{"logs", "api", "logs/api.log"},
		{"", "api", "api.log"},
		{"/var/log/procmgr/", "worker", "/var/log/procmgr/worker.log"},
	}
	for _, tt := range tests {
		if got := LogPath(tt.outDir, tt.label); got != tt.want {
			t.Errorf("LogPath(%q, %q) = %q, want %q", tt.outDir, tt.label, got, tt.want)
		}
	}
}
