// Scour CLI - deobfuscates class bundles with a configurable transformer pipeline
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/scour/deob"
	"github.com/chazu/scour/history"
	"github.com/chazu/scour/manifest"
	"github.com/chazu/scour/transformers"
)

// options holds the command-line overrides. Unset flags leave the manifest
// value alone.
type options struct {
	configDir    string
	output       string
	format       string
	obfuscator   string
	version      string
	transformers string
	workers      int
	passes       int
	verbosity    int
	logFile      string
	history      string
	watch        bool
	list         bool
	recent       int
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configDir, "config", "", "Directory to search for "+manifest.FileName+" (default: current directory)")
	fs.StringVar(&o.output, "o", "", "Output directory")
	fs.StringVar(&o.format, "format", "", "Output format: cbor or yaml")
	fs.StringVar(&o.obfuscator, "obfuscator", "", "Obfuscator-specific passes to run first (e.g. 'qprotect')")
	fs.StringVar(&o.version, "version", "", "Obfuscator version")
	fs.StringVar(&o.transformers, "t", "", "Comma-separated transformers to run after the obfuscator passes")
	fs.IntVar(&o.workers, "workers", 0, "Maximum methods transformed concurrently")
	fs.IntVar(&o.passes, "passes", 0, "Maximum pipeline passes")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity (-4 to 2)")
	fs.StringVar(&o.logFile, "log", "", "Log file (default: stderr)")
	fs.StringVar(&o.history, "history", "", "Run ledger database")
	fs.BoolVar(&o.watch, "watch", false, "Re-run whenever an input changes")
	fs.BoolVar(&o.list, "list", false, "List transformers and obfuscators, then exit")
	fs.IntVar(&o.recent, "recent", 0, "Show the last N recorded runs, then exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// apply overlays the flags that were set on m. Positional arguments replace
// the configured input paths.
func (o *options) apply(fs *flag.FlagSet, m *manifest.Manifest) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			m.Output.Dir = o.output
		case "format":
			m.Output.Format = o.format
		case "obfuscator":
			m.Pipeline.Obfuscator = o.obfuscator
		case "version":
			m.Pipeline.Version = o.version
		case "t":
			m.Pipeline.Transformers = splitList(o.transformers)
		case "workers":
			m.Pipeline.Workers = o.workers
		case "passes":
			m.Pipeline.MaxPasses = o.passes
		case "v":
			m.Log.Verbosity = o.verbosity
		case "log":
			m.Log.File = o.logFile
		case "history":
			m.History.Database = o.history
		}
	})
	if args := fs.Args(); len(args) > 0 {
		m.Input.Paths = args
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadManifest finds scour.toml from dir upwards, falling back to defaults
// rooted at dir.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		m.Dir = dir
	}
	return m, nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: scour [options] [inputs...]\n\n")
		fmt.Fprintf(os.Stderr, "Deobfuscates class bundles (.yaml or .cbor) and writes the cleaned classes to the output directory.\n")
		fmt.Fprintf(os.Stderr, "Settings come from %s, overridden by flags.\n\n", manifest.FileName)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  scour                                  # Run the pipeline from ./%s\n", manifest.FileName)
		fmt.Fprintf(os.Stderr, "  scour ./classes -o ./clean             # Default cleanup of ./classes\n")
		fmt.Fprintf(os.Stderr, "  scour -obfuscator qprotect -version 1.0 app.yaml\n")
		fmt.Fprintf(os.Stderr, "  scour -t nop,useless-pop -format cbor  # Explicit transformer list\n")
		fmt.Fprintf(os.Stderr, "  scour -watch                           # Re-run on input changes\n")
		fmt.Fprintf(os.Stderr, "  scour -history runs.db -recent 5       # Show recorded runs\n")
	}
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if o.list {
		printList(os.Stdout)
		return
	}

	m, err := loadManifest(o.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	o.apply(flag.CommandLine, m)

	commonlog.Configure(m.Log.Verbosity, m.LogFile())

	var ledger *history.Ledger
	if path := m.HistoryPath(); path != "" {
		ledger, err = history.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ledger.Close()
	}

	if o.recent > 0 {
		if ledger == nil {
			fmt.Fprintf(os.Stderr, "Error: -recent needs a history database\n")
			os.Exit(1)
		}
		runs, err := ledger.Recent(o.recent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printRuns(os.Stdout, runs, isTerminal(os.Stdout))
		return
	}

	if o.watch {
		if err := watch(m, ledger, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	report, err := deob.Process(m, deob.OptionsFrom(m), ledger)
	if report != nil {
		printReport(os.Stdout, report, isTerminal(os.Stdout))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printList(w io.Writer) {
	fmt.Fprintln(w, "Transformers:")
	for _, name := range transformers.Names() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w, "Obfuscators:")
	for _, name := range transformers.Obfuscators() {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// printReport writes the per-transformer statistics of a run. Terminals get
// an aligned table, anything else tab-separated values.
func printReport(w io.Writer, r *deob.Report, pretty bool) {
	if !pretty {
		fmt.Fprintln(w, "transformer\truns\tchanges\tfailures\tduration")
		for _, s := range r.Stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", s.Name, s.Runs, s.Changes, s.Failures, s.Duration)
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSFORMER\tRUNS\tCHANGES\tFAILURES\tDURATION")
	for _, s := range r.Stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Name, s.Runs, s.Changes, s.Failures, s.Duration.Round(time.Microsecond))
	}
	tw.Flush()

	status := "converged"
	if !r.Converged {
		status = "stopped at pass limit"
	}
	fmt.Fprintf(w, "\n%d classes, %d changes in %d passes (%s), %s\n",
		r.Classes, r.Changes, r.Passes, status, r.Finished.Sub(r.Started).Round(time.Millisecond))
	for _, path := range r.Written {
		fmt.Fprintf(w, "wrote %s\n", path)
	}
}

func printRuns(w io.Writer, runs []*history.Run, pretty bool) {
	sep := "\t"
	var tw *tabwriter.Writer
	if pretty {
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		w = tw
	}
	fmt.Fprintln(w, strings.Join([]string{"id", "started", "classes", "passes", "changes", "error"}, sep))
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Started.Local().Format(time.DateTime), r.Classes, r.Passes, r.Changes, r.Err)
	}
	if tw != nil {
		tw.Flush()
	}
}
