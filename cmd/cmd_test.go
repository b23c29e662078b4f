package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/procmgr/internal/config"
	"github.com/spf13/cobra"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAddRemove(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, CreateConfigCmd(), "init", "--dir", dir, "--out-dir", "out/")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("init output = %q", out)
	}

	if _, err := run(t, CreateConfigCmd(), "init", "--dir", dir); err == nil {
		t.Error("second init should fail")
	}

	if out, err := run(t, CreateConfigCmd(), "add", "--dir", dir, "api", "node server.js"); err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}
	if out, err := run(t, CreateConfigCmd(), "add", "--dir", dir, "--tries", "0", "worker", "sh worker.sh"); err != nil {
		t.Fatalf("add with tries failed: %v\n%s", err, out)
	}

	defs, err := config.ReadDefinitions(filepath.Join(dir, config.DefinitionsFile))
	if err != nil {
		t.Fatalf("ReadDefinitions failed: %v", err)
	}
	if defs.OutDir != "out/" || len(defs.Processes) != 2 {
		t.Fatalf("definitions = %+v", defs)
	}
	worker, _ := defs.Lookup("worker")
	if worker.MaxTries != 0 || worker.TriesSleep != config.DefaultTriesSleep {
		t.Errorf("worker = %+v", worker)
	}
	api, _ := defs.Lookup("api")
	if api.MaxTries != config.DefaultTries {
		t.Errorf("api should inherit the global tries: %+v", api)
	}

	if out, err := run(t, CreateConfigCmd(), "remove", "--dir", dir, "api"); err != nil {
		t.Fatalf("remove failed: %v\n%s", err, out)
	}
	if _, err := run(t, CreateConfigCmd(), "remove", "--dir", dir, "api"); err == nil {
		t.Error("removing a missing label should fail")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	doc := `{"outDir":"logs/","tries":2,"processes":{"api":"node  server.js","once":{"script":"true","tries":-1}}}`
	if err := os.WriteFile(filepath.Join(dir, config.DefinitionsFile), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, CreateValidateCmd(), "--dir", dir)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	for _, want := range []string{"outDir: logs/", "processes: 2", "logs/api.log", `["node" "" "server.js"]`, "unlimited"} {
		if !strings.Contains(out, want) {
			t.Errorf("validate output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.DefinitionsFile), []byte(`{"processes":{"a":1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, CreateValidateCmd(), "--dir", dir); err == nil {
		t.Error("expected error for invalid document")
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, CreateVersionCmd(), "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if _, ok := info["version"]; !ok {
		t.Errorf("missing version field: %s", out)
	}
}
