// Package deob drives a transformer pipeline over a corpus of classes until
// it stops changing anything.
package deob

import (
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/scour/corpus"
	"github.com/chazu/scour/history"
	"github.com/chazu/scour/manifest"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
	"github.com/chazu/scour/transformers"
)

var log = commonlog.GetLogger("scour.deob")

// Options selects the pipeline and bounds its execution.
type Options struct {
	Obfuscator   string
	Version      string
	Transformers []string
	Workers      int
	MaxPasses    int
}

// OptionsFrom takes the pipeline settings of a manifest.
func OptionsFrom(m *manifest.Manifest) Options {
	return Options{
		Obfuscator:   m.Pipeline.Obfuscator,
		Version:      m.Pipeline.Version,
		Transformers: m.Pipeline.Transformers,
		Workers:      m.Pipeline.Workers,
		MaxPasses:    m.Pipeline.MaxPasses,
	}
}

// Report summarizes one deobfuscation.
type Report struct {
	Classes   int
	Passes    int
	Changes   int
	Converged bool
	Stats     []transform.Stat
	Started   time.Time
	Finished  time.Time
	Written   []string
}

// Deobfuscate runs the configured pipeline over every class in pool, pass
// after pass, until a pass makes no change or MaxPasses is reached.
func Deobfuscate(pool *bytecode.ClassPool, opts Options) (*Report, error) {
	pipeline, err := transformers.Pipeline(opts.Obfuscator, opts.Version, opts.Transformers)
	if err != nil {
		return nil, err
	}

	ctx := transform.NewContext(pool, opts.Workers)
	scope := transform.ScopeOf(pool)
	report := &Report{Classes: pool.Len(), Started: time.Now()}
	defer func() {
		report.Finished = time.Now()
		report.Stats = ctx.Stats.Snapshot()
	}()

	maxPasses := max(opts.MaxPasses, 1)
	for report.Passes < maxPasses {
		report.Passes++
		n, err := transform.Run(pipeline, scope, ctx)
		report.Changes += n
		if err != nil {
			return report, fmt.Errorf("pass %d: %w", report.Passes, err)
		}
		log.Infof("pass %d: %d changes", report.Passes, n)
		if n == 0 {
			report.Converged = true
			break
		}
	}
	if !report.Converged {
		log.Warningf("no fixed point after %d passes", report.Passes)
	}

	hits, misses := ctx.Methods.Counters()
	log.Debugf("analysis cache: %d hits, %d misses", hits, misses)
	return report, nil
}

// Process loads the inputs named by m, deobfuscates them with opts, writes
// the result to the output directory and, when ledger is not nil, records
// the run. A failed pipeline is recorded before its error is returned.
func Process(m *manifest.Manifest, opts Options, ledger *history.Ledger) (*Report, error) {
	pool, src, err := corpus.LoadPool(m.InputPaths()...)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d classes", pool.Len())

	report, runErr := Deobfuscate(pool, opts)
	if report == nil {
		return nil, runErr
	}

	if runErr == nil {
		report.Written, runErr = corpus.WritePool(m.OutputDir(), corpus.Format(m.Output.Format), pool, src)
	}

	if ledger != nil {
		run := &history.Run{
			Started:  report.Started,
			Finished: report.Finished,
			Classes:  report.Classes,
			Passes:   report.Passes,
			Changes:  report.Changes,
			Stats:    report.Stats,
		}
		if runErr != nil {
			run.Err = runErr.Error()
		}
		if _, err := ledger.Record(run); err != nil {
			log.Errorf("recording run: %s", err)
		}
	}
	return report, runErr
}
