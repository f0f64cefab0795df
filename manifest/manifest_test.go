package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a scour.toml
	dir := t.TempDir()
	tomlContent := `
[input]
paths = ["classes", "/abs/more"]

[output]
dir = "cleaned"
format = "cbor"

[pipeline]
transformers = ["nop", "useless-pop"]
obfuscator = "qprotect"
version = "1.0"
workers = 8
max-passes = 3

[log]
verbosity = 2
file = "scour.log"

[history]
database = "runs.db"
`
	if err := os.WriteFile(filepath.Join(dir, "scour.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Pipeline{
		Transformers: []string{"nop", "useless-pop"},
		Obfuscator:   "qprotect",
		Version:      "1.0",
		Workers:      8,
		MaxPasses:    3,
	}
	if diff := cmp.Diff(want, m.Pipeline); diff != "" {
		t.Errorf("pipeline mismatch (-want +got):\n%s", diff)
	}
	if m.Output.Format != "cbor" {
		t.Errorf("output format = %q, want cbor", m.Output.Format)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}

	paths := m.InputPaths()
	if len(paths) != 2 || paths[0] != filepath.Join(m.Dir, "classes") || paths[1] != "/abs/more" {
		t.Errorf("InputPaths() = %v", paths)
	}
	if got := m.OutputDir(); got != filepath.Join(m.Dir, "cleaned") {
		t.Errorf("OutputDir() = %q", got)
	}
	if got := m.HistoryPath(); got != filepath.Join(m.Dir, "runs.db") {
		t.Errorf("HistoryPath() = %q", got)
	}
	if got := m.LogFile(); got == nil || *got != filepath.Join(m.Dir, "scour.log") {
		t.Errorf("LogFile() = %v", got)
	}
}

func TestDefaults(t *testing.T) {
	m, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(Default(), m); diff != "" {
		t.Errorf("empty manifest differs from Default() (-want +got):\n%s", diff)
	}
	if m.HistoryPath() != "" || m.LogFile() != nil {
		t.Error("history and log file should be disabled by default")
	}
	if m.Pipeline.Workers != 4 || m.Pipeline.MaxPasses != 10 || m.Output.Format != "yaml" {
		t.Errorf("defaults = %+v", m)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown section", "[server]\nport = 1\n", "server"},
		{"unknown key", "[pipeline]\nworkerz = 2\n", "workerz"},
		{"bad format", "[output]\nformat = \"json\"\n", "format"},
		{"workers too low", "[pipeline]\nworkers = 0\n", "workers"},
		{"passes too high", "[pipeline]\nmax-passes = 1000\n", "max-passes"},
		{"wrong type", "[input]\npaths = \"classes\"\n", "paths"},
		{"verbosity", "[log]\nverbosity = 9\n", "verbosity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "invalid manifest") || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse([]byte("[pipeline\n")); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "scour.toml"), []byte("[output]\ndir = \"x\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil {
		t.Fatal("manifest not found")
	}
	if want, _ := filepath.Abs(root); m.Dir != want {
		t.Errorf("Dir = %q, want %q", m.Dir, want)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}
