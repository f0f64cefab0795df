package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"

	"github.com/chazu/scour/deob"
	"github.com/chazu/scour/history"
	"github.com/chazu/scour/manifest"
)

var log = commonlog.GetLogger("scour.watch")

// settle is how long the inputs must stay quiet before a re-run.
const settle = 200 * time.Millisecond

// watch runs the pipeline once, then again each time an input bundle is
// written or created, until interrupted.
func watch(m *manifest.Manifest, ledger *history.Ledger, out io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range watchDirs(m.InputPaths()) {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		log.Infof("watching %s", dir)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	done := make(chan struct{})
	defer close(done)
	filtered := filterEvents(w.Events, m.OutputDir(), done)

	return watchLoop(filtered, w.Errors, stop, func() { runOnce(m, ledger, out) }, settle)
}

// filterEvents forwards the relevant events until events closes or done
// is closed.
func filterEvents(events <-chan fsnotify.Event, outDir string, done <-chan struct{}) <-chan fsnotify.Event {
	filtered := make(chan fsnotify.Event)
	go func() {
		defer close(filtered)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !relevant(ev, outDir) {
					continue
				}
				select {
				case filtered <- ev:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	return filtered
}

// watchLoop calls run once at start and again after each burst of events
// has been quiet for delay. It returns when stop fires or the event
// channels close.
func watchLoop(events <-chan fsnotify.Event, errs <-chan error, stop <-chan os.Signal, run func(), delay time.Duration) error {
	run()

	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			log.Debugf("%s: %s", ev.Op, ev.Name)
			timer.Reset(delay)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Errorf("watcher: %s", err)
		case <-timer.C:
			run()
		case <-stop:
			return nil
		}
	}
}

// relevant reports whether ev touches a bundle the pipeline would read.
// Anything under outDir is the pipeline's own output.
func relevant(ev fsnotify.Event, outDir string) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if rel, err := filepath.Rel(outDir, ev.Name); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	switch filepath.Ext(ev.Name) {
	case ".yaml", ".yml", ".cbor":
		return true
	}
	return false
}

// watchDirs returns the directories to watch for paths: directories as
// given, files through their parent. Duplicates are dropped.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func runOnce(m *manifest.Manifest, ledger *history.Ledger, out io.Writer) {
	report, err := deob.Process(m, deob.OptionsFrom(m), ledger)
	if report != nil {
		printReport(out, report, false)
	}
	if err != nil {
		log.Errorf("%s", err)
	}
}
