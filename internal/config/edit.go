package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ProcessEntry describes a process to add to a definition document.
// Nil retry fields are omitted so the global defaults apply.
type ProcessEntry struct {
	Label        string
	Script       string
	Tries        *int
	TriesSleepMs *int
}

// InitDefinitions writes a fresh definition document at
// <basePath>/config.json. Fails if one already exists.
func InitDefinitions(basePath, outDir string) (string, error) {
	path := filepath.Join(basePath, DefinitionsFile)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}

	doc := []byte(`{}`)
	var err error
	if doc, err = sjson.SetBytes(doc, "outDir", outDir); err != nil {
		return path, err
	}
	if doc, err = sjson.SetBytes(doc, "tries", DefaultTries); err != nil {
		return path, err
	}
	if doc, err = sjson.SetBytes(doc, "triesSleep", DefaultTriesSleep.Milliseconds()); err != nil {
		return path, err
	}
	if doc, err = sjson.SetRawBytes(doc, "processes", []byte(`{}`)); err != nil {
		return path, err
	}
	return path, writeDocument(path, doc)
}

// AddProcess inserts or replaces a process definition in the document at
// path. The document must already parse as a valid definition file.
func AddProcess(path string, entry ProcessEntry) error {
	if entry.Label == "" {
		return errors.New("label is required")
	}
	if strings.TrimSpace(entry.Script) == "" {
		return errors.New("script is required")
	}

	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(doc, "processes").Exists() {
		if doc, err = sjson.SetRawBytes(doc, "processes", []byte(`{}`)); err != nil {
			return err
		}
	}

	key := "processes." + escapePathKey(entry.Label)
	if entry.Tries == nil && entry.TriesSleepMs == nil {
		doc, err = sjson.SetBytes(doc, key, entry.Script)
	} else {
		obj := map[string]any{"script": entry.Script}
		if entry.Tries != nil {
			obj["tries"] = *entry.Tries
		}
		if entry.TriesSleepMs != nil {
			obj["triesSleep"] = *entry.TriesSleepMs
		}
		doc, err = sjson.SetBytes(doc, key, obj)
	}
	if err != nil {
		return fmt.Errorf("failed to set process %q: %w", entry.Label, err)
	}

	if _, err := ParseDefinitions(doc); err != nil {
		return err
	}
	return writeDocument(path, doc)
}

// RemoveProcess deletes label from the document at path. Reports whether
// the label was present.
func RemoveProcess(path, label string) (bool, error) {
	doc, err := readDocument(path)
	if err != nil {
		return false, err
	}

	key := "processes." + escapePathKey(label)
	if !gjson.GetBytes(doc, key).Exists() {
		return false, nil
	}
	if doc, err = sjson.DeleteBytes(doc, key); err != nil {
		return false, fmt.Errorf("failed to delete process %q: %w", label, err)
	}
	return true, writeDocument(path, doc)
}

func readDocument(path string) ([]byte, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Op: "read", Err: err}
	}
	if _, err := ParseDefinitions(doc); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return doc, nil
}

func writeDocument(path string, doc []byte) error {
	if err := os.WriteFile(path, pretty.Pretty(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// escapePathKey escapes gjson/sjson path metacharacters in a literal key.
func escapePathKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
