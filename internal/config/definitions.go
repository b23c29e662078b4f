package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefinitionsFile is the name of the process definition document inside the base path.
const DefinitionsFile = "config.json"

// Defaults applied when the document omits the global retry policy.
const (
	DefaultTries      = -1
	DefaultTriesSleep = 1000 * time.Millisecond
)

// ConfigError reports a process definition document that could not be
// loaded. The supervisor cannot run without definitions, so callers treat
// it as fatal.
type ConfigError struct {
	Path string
	Op   string // read, parse, validate
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Definition is one immutable process definition.
type Definition struct {
	Label      string        `json:"label"`
	Script     string        `json:"script"`
	MaxTries   int           `json:"max_tries"`   // -1 = unlimited
	TriesSleep time.Duration `json:"tries_sleep"` // wait before a restart attempt
}

// Definitions is the normalized content of config.json.
type Definitions struct {
	OutDir     string
	Tries      int
	TriesSleep time.Duration
	// Processes in declaration order, one entry per label.
	Processes []Definition
}

// LogPath returns the log file for label inside OutDir.
func (d *Definitions) LogPath(label string) string {
	return LogPath(d.OutDir, label)
}

// Lookup returns the definition for label.
func (d *Definitions) Lookup(label string) (Definition, bool) {
	for _, def := range d.Processes {
		if def.Label == label {
			return def, true
		}
	}
	return Definition{}, false
}

// LogPath joins outDir and label the way the document expects: outDir is a
// directory prefix ("logs/" + "api" + ".log"). A missing trailing separator
// is tolerated.
func LogPath(outDir, label string) string {
	if outDir != "" && !strings.HasSuffix(outDir, "/") && !strings.HasSuffix(outDir, string(filepath.Separator)) {
		outDir += string(filepath.Separator)
	}
	return outDir + label + ".log"
}

// LoadDefinitions reads <basePath>/config.json. The attempt and its outcome
// are written to logger.
func LoadDefinitions(basePath string, logger *slog.Logger) (*Definitions, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(basePath, DefinitionsFile)
	logger.Info("Loading process definitions", "path", path)

	defs, err := ReadDefinitions(path)
	if err != nil {
		logger.Error("Failed to load process definitions", "path", path, "error", err)
		return nil, err
	}

	logger.Info("Process definitions loaded", "path", path, "out_dir", defs.OutDir, "processes", len(defs.Processes))
	return defs, nil
}

// ReadDefinitions reads and parses the definition document at path.
func ReadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Op: "read", Err: err}
	}

	defs, err := ParseDefinitions(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &ConfigError{Path: path, Op: "parse", Err: err}
	}
	return defs, nil
}

// ParseDefinitions parses a definition document. Process order follows the
// document; a duplicated label keeps its first position and its last value.
func ParseDefinitions(data []byte) (*Definitions, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ConfigError{Op: "parse", Err: errors.New("invalid JSON")}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &ConfigError{Op: "parse", Err: errors.New("top-level value must be an object")}
	}

	defs := &Definitions{
		OutDir:     root.Get("outDir").String(),
		Tries:      DefaultTries,
		TriesSleep: DefaultTriesSleep,
	}

	if v := root.Get("tries"); v.Exists() {
		if v.Type != gjson.Number {
			return nil, validationError("tries must be a number")
		}
		defs.Tries = int(v.Int())
	}
	if v := root.Get("triesSleep"); v.Exists() {
		if v.Type != gjson.Number || v.Int() < 0 {
			return nil, validationError("triesSleep must be a non-negative number")
		}
		defs.TriesSleep = time.Duration(v.Int()) * time.Millisecond
	}

	processes := root.Get("processes")
	if !processes.Exists() {
		return defs, nil
	}
	if !processes.IsObject() {
		return nil, validationError("processes must be an object")
	}

	index := make(map[string]int)
	var parseErr error
	processes.ForEach(func(key, value gjson.Result) bool {
		def, err := parseProcess(key.String(), value, defs)
		if err != nil {
			parseErr = err
			return false
		}
		if i, dup := index[def.Label]; dup {
			defs.Processes[i] = def
			return true
		}
		index[def.Label] = len(defs.Processes)
		defs.Processes = append(defs.Processes, def)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return defs, nil
}

// parseProcess accepts either a command line string or a
// {script, tries, triesSleep} object.
func parseProcess(label string, value gjson.Result, defs *Definitions) (Definition, error) {
	def := Definition{
		Label:      label,
		MaxTries:   defs.Tries,
		TriesSleep: defs.TriesSleep,
	}

	switch {
	case value.Type == gjson.String:
		def.Script = value.String()
	case value.IsObject():
		script := value.Get("script")
		if script.Type != gjson.String {
			return def, validationError(fmt.Sprintf("process %q: script must be a string", label))
		}
		def.Script = script.String()

		if v := value.Get("tries"); v.Exists() {
			if v.Type != gjson.Number {
				return def, validationError(fmt.Sprintf("process %q: tries must be a number", label))
			}
			def.MaxTries = int(v.Int())
		}
		if v := value.Get("triesSleep"); v.Exists() {
			if v.Type != gjson.Number || v.Int() < 0 {
				return def, validationError(fmt.Sprintf("process %q: triesSleep must be a non-negative number", label))
			}
			def.TriesSleep = time.Duration(v.Int()) * time.Millisecond
		}
	default:
		return def, validationError(fmt.Sprintf("process %q: expected command string or object", label))
	}

	return def, nil
}

func validationError(msg string) *ConfigError {
	return &ConfigError{Op: "validate", Err: errors.New(msg)}
}
