// Package manifest handles scour.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "scour.toml"

// Manifest represents a scour.toml project configuration.
type Manifest struct {
	Input    Input    `toml:"input"`
	Output   Output   `toml:"output"`
	Pipeline Pipeline `toml:"pipeline"`
	Log      Log      `toml:"log"`
	History  History  `toml:"history"`

	// Dir is the directory containing the scour.toml file (set at load time).
	Dir string `toml:"-"`
}

// Input configures where bundles are read from.
type Input struct {
	Paths []string `toml:"paths"`
}

// Output configures where transformed bundles are written.
type Output struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
}

// Pipeline selects the transformers to run.
type Pipeline struct {
	Transformers []string `toml:"transformers"`
	Obfuscator   string   `toml:"obfuscator"`
	Version      string   `toml:"version"`
	Workers      int      `toml:"workers"`
	MaxPasses    int      `toml:"max-passes"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// History configures the run ledger. An empty database disables it.
type History struct {
	Database string `toml:"database"`
}

// Default returns the configuration used when no manifest exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Input.Paths) == 0 {
		m.Input.Paths = []string{"classes"}
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "out"
	}
	if m.Output.Format == "" {
		m.Output.Format = "yaml"
	}
	if m.Pipeline.Workers == 0 {
		m.Pipeline.Workers = 4
	}
	if m.Pipeline.MaxPasses == 0 {
		m.Pipeline.MaxPasses = 10
	}
}

// Load parses and validates the scour.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse validates a manifest document against the schema and decodes it.
// Missing settings get their defaults.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a scour.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// InputPaths returns absolute paths for the configured inputs.
func (m *Manifest) InputPaths() []string {
	var paths []string
	for _, p := range m.Input.Paths {
		paths = append(paths, m.resolve(p))
	}
	return paths
}

// OutputDir returns the absolute output directory.
func (m *Manifest) OutputDir() string {
	return m.resolve(m.Output.Dir)
}

// HistoryPath returns the absolute ledger path, or "" when disabled.
func (m *Manifest) HistoryPath() string {
	if m.History.Database == "" {
		return ""
	}
	return m.resolve(m.History.Database)
}

// LogFile returns the absolute log file path, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
