package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	StringField string   `toml:"test.string_field" env:"STRING_FIELD"`
	BoolField   bool     `toml:"test.bool_field" env:"BOOL_FIELD"`
	IntField    int      `toml:"test.int_field" env:"INT_FIELD"`
	SliceField  []string `toml:"test.slice_field" env:"SLICE_FIELD"`

	NestedString string `toml:"nested.value" env:"NESTED_VALUE"`
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procmgr.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeSettings(t, `
[test]
string_field = "hello world"
bool_field = true
int_field = 42
slice_field = ["item1", "item2", "item3"]

[nested]
value = "nested value"
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StringField != "hello world" {
		t.Errorf("Expected StringField to be 'hello world', got '%s'", opts.StringField)
	}
	if !opts.BoolField {
		t.Errorf("Expected BoolField to be true, got %v", opts.BoolField)
	}
	if opts.IntField != 42 {
		t.Errorf("Expected IntField to be 42, got %d", opts.IntField)
	}
	if want := []string{"item1", "item2", "item3"}; !reflect.DeepEqual(opts.SliceField, want) {
		t.Errorf("Expected SliceField to be %v, got %v", want, opts.SliceField)
	}
	if opts.NestedString != "nested value" {
		t.Errorf("Expected NestedString to be 'nested value', got '%s'", opts.NestedString)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("PROCMGR_STRING_FIELD", "env string")
	t.Setenv("PROCMGR_BOOL_FIELD", "false")
	t.Setenv("PROCMGR_INT_FIELD", "123")
	t.Setenv("PROCMGR_SLICE_FIELD", "a, b,c")
	t.Setenv("PROCMGR_NESTED_VALUE", "env nested")

	opts := &testOptions{BoolField: true}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StringField != "env string" {
		t.Errorf("Expected StringField to be 'env string', got '%s'", opts.StringField)
	}
	if opts.BoolField {
		t.Errorf("Expected BoolField to be false, got %v", opts.BoolField)
	}
	if opts.IntField != 123 {
		t.Errorf("Expected IntField to be 123, got %d", opts.IntField)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(opts.SliceField, want) {
		t.Errorf("Expected SliceField to be %v, got %v", want, opts.SliceField)
	}
	if opts.NestedString != "env nested" {
		t.Errorf("Expected NestedString to be 'env nested', got '%s'", opts.NestedString)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeSettings(t, "[test]\nstring_field = \"from toml\"\nint_field = 1\n")
	t.Setenv("PROCMGR_STRING_FIELD", "from env")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.StringField != "from env" {
		t.Errorf("Expected env to override TOML, got '%s'", opts.StringField)
	}
	if opts.IntField != 1 {
		t.Errorf("Expected IntField from TOML, got %d", opts.IntField)
	}
}

func TestLoadConfigSkipsChangedFlags(t *testing.T) {
	path := writeSettings(t, "[test]\nstring_field = \"from toml\"\n")
	t.Setenv("PROCMGR_STRING_FIELD", "from env")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.StringField, "string-field", "", "")
	if err := cmd.Flags().Set("string-field", "from flag"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.StringField != "from flag" {
		t.Errorf("Expected CLI flag to win, got '%s'", opts.StringField)
	}
}

func TestLoadConfigMissingFileIsNotAnError(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), StringField: "default"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.StringField != "default" {
		t.Errorf("Expected default to survive, got '%s'", opts.StringField)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeSettings(t, "[test\nbroken")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Error("Expected parse error for invalid TOML")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("Expected error for non-pointer options")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"LoggingLevel": "logging-level",
		"Port":         "port",
		"BasePath":     "base-path",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
