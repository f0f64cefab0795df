package deob

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/scour/corpus"
	"github.com/chazu/scour/history"
	"github.com/chazu/scour/manifest"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
	"github.com/chazu/scour/transformers"
)

const obfuscated = `
  ICONST 3
  PUTSTATIC a/B.F I
  ICONST 4
  GETSTATIC a/B.F I
  IF_ICMPEQ l
l:
  ICONST 5
  NOP
  DUP
  POP
  POP
  ILOAD 0
  IRETURN
`

func testPool(t *testing.T) (*bytecode.ClassPool, *bytecode.Method) {
	t.Helper()
	m, err := bytecode.NewMethod("run", "(I)I", true, bytecode.MustAssemble(obfuscated))
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}
	pool, err := bytecode.NewClassPool(&bytecode.Class{Name: "a/Test", Methods: []*bytecode.Method{m}})
	if err != nil {
		t.Fatal(err)
	}
	return pool, m
}

func TestDeobfuscate(t *testing.T) {
	pool, m := testPool(t)
	report, err := Deobfuscate(pool, Options{Obfuscator: "qprotect", Version: "1.2", Workers: 2, MaxPasses: 5})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	if !report.Converged || report.Passes != 2 {
		t.Errorf("report = %+v, want convergence on pass 2", report)
	}
	if report.Changes == 0 || len(report.Stats) == 0 {
		t.Errorf("report = %+v, want changes and stats", report)
	}
	if got, want := bytecode.Disassemble(m.Instructions), "l:\n  ILOAD 0\n  IRETURN\n"; got != want {
		t.Errorf("body =\n%s\nwant\n%s", got, want)
	}
}

func TestDeobfuscatePassLimit(t *testing.T) {
	pool, _ := testPool(t)
	report, err := Deobfuscate(pool, Options{Transformers: []string{"nop"}, MaxPasses: 1})
	if err != nil {
		t.Fatalf("Deobfuscate: %v", err)
	}
	if report.Converged || report.Passes != 1 || report.Changes != 1 {
		t.Errorf("report = %+v, want one unconverged pass with one change", report)
	}
}

func TestDeobfuscateConfigErrors(t *testing.T) {
	pool, m := testPool(t)
	before := bytecode.Disassemble(m.Instructions)

	if _, err := Deobfuscate(pool, Options{Transformers: []string{"bogus"}}); !errors.Is(err, transformers.ErrUnknownTransformer) {
		t.Errorf("err = %v, want ErrUnknownTransformer", err)
	}
	_, err := Deobfuscate(pool, Options{Obfuscator: "qprotect", Version: "9.9"})
	if !errors.Is(err, transform.ErrUnknownVersion) {
		t.Errorf("err = %v, want ErrUnknownVersion", err)
	}
	if got := bytecode.Disassemble(m.Instructions); got != before {
		t.Errorf("failed configuration mutated the method:\n%s", got)
	}
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	pool, _ := testPool(t)
	if err := corpus.WriteFile(filepath.Join(dir, "in", "app.yaml"), pool.Classes()); err != nil {
		t.Fatal(err)
	}
	doc := `
[input]
paths = ["in"]

[output]
dir = "out"
format = "cbor"

[pipeline]
obfuscator = "qprotect"

[history]
database = "runs.db"
`
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("manifest.Load: %v", err)
	}
	ledger, err := history.Open(m.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer ledger.Close()

	report, err := Process(m, OptionsFrom(m), ledger)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := filepath.Join(dir, "out", "app.cbor")
	if len(report.Written) != 1 || report.Written[0] != want {
		t.Errorf("Written = %v, want [%s]", report.Written, want)
	}

	classes, err := corpus.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := bytecode.Disassemble(classes[0].Methods[0].Instructions); got != "l:\n  ILOAD 0\n  IRETURN\n" {
		t.Errorf("written body =\n%s", got)
	}

	runs, err := ledger.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Changes != report.Changes || runs[0].Classes != 1 {
		t.Errorf("recorded runs = %+v", runs)
	}
}
