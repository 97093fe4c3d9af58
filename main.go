// macroindex indexes the preprocessor macros of a C/C++ source tree and prints
// the result in TOON format.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/phobologic/macroindex/internal/config"
	"github.com/phobologic/macroindex/internal/discover"
	"github.com/phobologic/macroindex/internal/graph"
	"github.com/phobologic/macroindex/internal/indexer"
	"github.com/phobologic/macroindex/internal/lang"
	"github.com/phobologic/macroindex/internal/logging"
	"github.com/phobologic/macroindex/internal/metrics"
	"github.com/phobologic/macroindex/internal/model"
	"github.com/phobologic/macroindex/internal/ranking"
	"github.com/phobologic/macroindex/internal/store"
	"github.com/phobologic/macroindex/internal/toon"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("macroindex", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  string
		includes    stringList
		systemDirs  stringList
		recovery    stringList
		defines     stringList
		langs       string
		workers     int
		dbPath      string
		incremental bool
		maxHeaders  int
		occurrences bool
		macroFilter string
		fileFilter  string
		metricsFile string
		logLevel    string
		logFile     string
		maxFileSize int64
		showVersion bool
	)

	fs.StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+" if present)")
	fs.Var(&includes, "I", "add a quoted and angled include directory (repeatable)")
	fs.Var(&systemDirs, "isystem", "add a system include directory (repeatable)")
	fs.Var(&recovery, "recovery-dir", "directory searched for includes that fail to resolve (repeatable)")
	fs.Var(&defines, "D", "predefine NAME[=VALUE] (repeatable)")
	fs.StringVar(&langs, "l", "", "comma-separated languages to include")
	fs.StringVar(&langs, "langs", "", "comma-separated languages to include")
	fs.IntVar(&workers, "j", 0, "translation units indexed in parallel")
	fs.StringVar(&dbPath, "db", "", "SQLite database to store the index in")
	fs.BoolVar(&incremental, "incremental", false, "reuse stored units whose defines and files are unchanged")
	fs.IntVar(&maxHeaders, "n", 0, "maximum number of headers to include")
	fs.IntVar(&maxHeaders, "max-headers", 0, "maximum number of headers to include")
	fs.BoolVar(&occurrences, "occurrences", false, "print every macro occurrence")
	fs.StringVar(&macroFilter, "macro", "", "only report macros whose name contains this")
	fs.StringVar(&fileFilter, "file", "", "only report units and headers whose path contains this")
	fs.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&logFile, "log-file", "", "also write JSON logs to this rotated file")
	fs.Int64Var(&maxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "macroindex %s\n", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags override the config file.
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "I":
			cfg.Preprocessor.IncludeDirs = append(cfg.Preprocessor.IncludeDirs, includes...)
		case "isystem":
			cfg.Preprocessor.SystemDirs = append(cfg.Preprocessor.SystemDirs, systemDirs...)
		case "recovery-dir":
			cfg.Preprocessor.RecoveryDirs = append(cfg.Preprocessor.RecoveryDirs, recovery...)
		case "D":
			for _, d := range defines {
				name, value, err := config.ParseDefine(d)
				if err != nil {
					flagErr = errors.Join(flagErr, fmt.Errorf("-D %s: %w", d, err))
					continue
				}
				cfg.Preprocessor.Defines[name] = value
			}
		case "l", "langs":
			cfg.Scan.Languages = nil
			for _, name := range strings.Split(langs, ",") {
				name = strings.TrimSpace(name)
				if _, ok := lang.Languages[name]; !ok {
					flagErr = errors.Join(flagErr, fmt.Errorf("unsupported language %q", name))
					continue
				}
				cfg.Scan.Languages = append(cfg.Scan.Languages, name)
			}
		case "j":
			cfg.Scan.Workers = workers
		case "db":
			cfg.Store.Path = dbPath
		case "incremental":
			cfg.Store.Incremental = incremental
		case "n", "max-headers":
			cfg.Report.MaxHeaders = maxHeaders
		case "occurrences":
			cfg.Report.Occurrences = occurrences
		case "metrics-file":
			cfg.Report.MetricsFile = metricsFile
		case "log-level":
			cfg.Log.Level = logLevel
		case "log-file":
			cfg.Log.File = logFile
		case "max-file-size":
			cfg.Scan.MaxFileSize = maxFileSize
		}
	})
	if flagErr != nil {
		return flagErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(stderr, logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}

	target := "."
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	root, files, err := findUnits(target, cfg.Scan.Languages)
	if err != nil {
		return err
	}

	files, skipped := discover.BySize(files, cfg.Scan.MaxFileSize)
	for _, f := range skipped {
		log.Warn("%s: skipped (>%d bytes)", f.Path, cfg.Scan.MaxFileSize)
	}
	if len(files) == 0 {
		return fmt.Errorf("no translation units found")
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	m := metrics.New()
	sources := make([]indexer.Source, len(files))
	for i, f := range files {
		sources[i] = indexer.Source{Path: filepath.Join(root, f.Path), Language: f.Language}
	}

	res, err := indexer.Run(ctx, sources, indexer.Options{
		Root:         root,
		Preprocessor: cfg.PreprocessorConfig(),
		Workers:      cfg.Scan.Workers,
		Store:        st,
		Incremental:  cfg.Store.Incremental,
		Metrics:      m,
		Log:          log,
	})
	if err != nil {
		return err
	}
	log.Info("run %s: %d units indexed, %d reused, %d failed", res.RunID, res.Indexed, res.Reused, res.Failed)

	if cfg.Report.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.Report.MetricsFile); err != nil {
			return err
		}
	}

	rep := buildReport(filepath.Base(root), res.Units)
	if macroFilter != "" {
		rep = ranking.FilterByMacro(rep, macroFilter)
	}
	if fileFilter != "" {
		rep = ranking.FilterByFile(rep, fileFilter)
	}
	rep = ranking.SelectHeaders(rep, cfg.Report.MaxHeaders)
	if !cfg.Report.Occurrences {
		// The filters work from occurrences; only the table is optional.
		rep.Occurrences = nil
	}

	_, _ = fmt.Fprintln(stdout, toon.Encode(rep))
	return nil
}

// findUnits resolves target to a root directory and the translation units to
// index. A single source file is indexed on its own.
func findUnits(target string, languages []string) (string, []discover.FileEntry, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", nil, fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		ext := filepath.Ext(abs)
		langName := lang.ForExtension(ext)
		switch {
		case lang.IsHeader(ext):
			return "", nil, fmt.Errorf("%s: headers are indexed through the units that include them", target)
		case langName == "":
			return "", nil, fmt.Errorf("%s: not a C or C++ source file", target)
		}
		return filepath.Dir(abs), []discover.FileEntry{{
			Path:     filepath.Base(abs),
			Language: langName,
			Size:     info.Size(),
		}}, nil
	}

	files, err := discover.Files(abs, languages)
	if err != nil {
		return "", nil, fmt.Errorf("discovering files: %w", err)
	}
	return abs, files, nil
}

func buildReport(root string, units []model.Unit) *model.Report {
	deps := graph.BuildGraph(units)
	macros, occs := indexer.Collate(units)
	return &model.Report{
		Root:         root,
		Units:        units,
		Headers:      graph.Rank(units, deps),
		Dependencies: deps,
		Macros:       macros,
		Occurrences:  occs,
	}
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-config": true, "--config": true,
	"-I": true, "--I": true,
	"-isystem": true, "--isystem": true,
	"-recovery-dir": true, "--recovery-dir": true,
	"-D": true, "--D": true,
	"-l": true, "--l": true,
	"-langs": true, "--langs": true,
	"-j": true, "--j": true,
	"-db": true, "--db": true,
	"-n": true, "--n": true,
	"-max-headers": true, "--max-headers": true,
	"-macro": true, "--macro": true,
	"-file": true, "--file": true,
	"-metrics-file": true, "--metrics-file": true,
	"-log-level": true, "--log-level": true,
	"-log-file": true, "--log-file": true,
	"-max-file-size": true, "--max-file-size": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg). Compiler
// style -Idir and -DNAME=VALUE are split into flag and value.
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) > 2 && (strings.HasPrefix(a, "-I") || strings.HasPrefix(a, "-D")) {
			flags = append(flags, a[:2], a[2:])
			continue
		}
		if len(a) > 0 && a[0] == '-' {
			flags = append(flags, a)
			if flagsWithValue[a] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, a)
		}
	}
	return append(flags, positional...)
}
