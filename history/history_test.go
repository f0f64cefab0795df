package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/scour/transform"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "sub", "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndGet(t *testing.T) {
	l := openTemp(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Classes:  3,
		Passes:   2,
		Changes:  7,
		Stats: []transform.Stat{
			{Name: "nop", Runs: 2, Changes: 4, Duration: 3 * time.Millisecond},
			{Name: "useless-pop", Runs: 2, Changes: 3, Failures: 1, Duration: 250 * time.Microsecond},
		},
	}

	id, err := l.Record(run)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Errorf("Record id = %d, run.ID = %d", id, run.ID)
	}

	got, err := l.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissing(t *testing.T) {
	l := openTemp(t)
	if _, err := l.Get(42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get(42) err = %v, want ErrRunNotFound", err)
	}
}

func TestRecent(t *testing.T) {
	l := openTemp(t)
	now := time.Now().UTC()
	for i := range 5 {
		r := &Run{Started: now, Finished: now, Changes: i}
		if i == 4 {
			r.Err = "boom"
		}
		if _, err := l.Record(r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := l.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var changes []int
	for _, r := range runs {
		changes = append(changes, r.Changes)
	}
	if diff := cmp.Diff([]int{4, 3, 2}, changes); diff != "" {
		t.Errorf("Recent order mismatch (-want +got):\n%s", diff)
	}
	if runs[0].Err != "boom" {
		t.Errorf("newest run error = %q, want boom", runs[0].Err)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	id, err := l.Record(&Run{Started: now, Finished: now, Changes: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	if _, err := l.Get(id); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
