// Package indexer runs macro indexing passes over translation units.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/macroindex/internal/fingerprint"
	"github.com/phobologic/macroindex/internal/lang"
	"github.com/phobologic/macroindex/internal/logging"
	"github.com/phobologic/macroindex/internal/macros"
	"github.com/phobologic/macroindex/internal/metrics"
	"github.com/phobologic/macroindex/internal/model"
	"github.com/phobologic/macroindex/internal/pathcache"
	"github.com/phobologic/macroindex/internal/preproc"
	"github.com/phobologic/macroindex/internal/store"
	"github.com/phobologic/macroindex/internal/usr"
)

var _ preproc.Callbacks = (*macros.Collector)(nil)

// ErrAllFailed is returned by Run when no translation unit could be indexed.
var ErrAllFailed = errors.New("indexer: every translation unit failed")

// Source is a translation unit to index.
type Source struct {
	Path     string // absolute
	Language string
}

// Options configures Run.
type Options struct {
	// Root is the directory report paths are made relative to.
	Root         string
	Preprocessor preproc.Config
	Workers      int
	// Store persists indexed units when non-nil.
	Store *store.Store
	// Incremental reuses stored units whose defines and files are unchanged.
	Incremental bool
	Metrics     *metrics.Metrics
	Log         logging.Logger
}

// Result is the outcome of a Run.
type Result struct {
	RunID   string
	Units   []model.Unit // in input order
	Indexed int
	Reused  int
	Failed  int
}

// IndexUnit runs one preprocessing pass over the translation unit at path and
// returns its finalized index. The path cache may be shared between passes.
func IndexUnit(ctx context.Context, path string, l *lang.Language, cfg preproc.Config, paths *pathcache.Cache, log logging.Logger) (*model.Index, preproc.Stats, error) {
	pp, err := preproc.New(cfg, l, paths, log)
	if err != nil {
		return nil, preproc.Stats{}, err
	}
	c, err := macros.NewCollector(macros.Services{
		Locations:  pp,
		Files:      pp,
		USRs:       usr.Generator{},
		Macros:     pp,
		Directives: pp,
	}, log)
	if err != nil {
		return nil, preproc.Stats{}, err
	}
	if err := pp.Run(ctx, path, c); err != nil {
		return nil, pp.Stats(), err
	}
	ix, err := c.Take()
	return ix, pp.Stats(), err
}

// Run indexes sources concurrently. A unit that fails is logged and reported
// with status Failed; Run itself fails on cancellation, on store errors, or
// when every unit failed.
func Run(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("indexer: run id: %w", err)
	}
	res := &Result{RunID: id.String(), Units: make([]model.Unit, len(sources))}

	if opts.Store != nil {
		if err := opts.Store.BeginRun(ctx, res.RunID, time.Now()); err != nil {
			return nil, err
		}
	}

	r := &runner{opts: opts, log: log, runID: res.RunID, paths: pathcache.New()}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			u, err := r.unit(gctx, src)
			if err != nil {
				return err
			}
			res.Units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range res.Units {
		switch res.Units[i].Status {
		case model.Indexed:
			res.Indexed++
		case model.Reused:
			res.Reused++
		case model.Failed:
			res.Failed++
		}
	}

	if opts.Store != nil {
		if err := opts.Store.FinishRun(ctx, res.RunID, time.Now(), len(sources), res.Reused, res.Failed); err != nil {
			return nil, err
		}
	}
	if len(sources) > 0 && res.Failed == len(sources) {
		return res, fmt.Errorf("%w (%d units)", ErrAllFailed, res.Failed)
	}
	return res, nil
}

type runner struct {
	opts  Options
	log   logging.Logger
	runID string
	paths *pathcache.Cache
}

func (r *runner) unit(ctx context.Context, src Source) (model.Unit, error) {
	start := time.Now()

	if r.opts.Store != nil && r.opts.Incremental {
		u, ok, err := r.reuse(ctx, src)
		if err != nil {
			return model.Unit{}, err
		}
		if ok {
			r.log.Debug("%s: unchanged, reusing stored index", src.Path)
			r.opts.Metrics.ObserveUnit(metrics.UnitSample{
				Status:      string(model.Reused),
				Duration:    time.Since(start),
				Occurrences: len(u.Occurrences),
				UsedDefines: len(u.UsedDefines),
			})
			return u, nil
		}
	}

	failed := func(err error, stats preproc.Stats) (model.Unit, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Unit{}, ctxErr
		}
		r.log.Warn("%s: %v", src.Path, err)
		r.opts.Metrics.ObserveUnit(metrics.UnitSample{
			Status:          string(model.Failed),
			Duration:        time.Since(start),
			IncludeFailures: stats.IncludeFailures,
			FilesEntered:    stats.Files,
		})
		return model.Unit{
			Path:     r.rel(src.Path),
			Language: src.Language,
			Status:   model.Failed,
			Err:      err,
		}, nil
	}

	l, ok := lang.Languages[src.Language]
	if !ok {
		return failed(fmt.Errorf("unsupported language %q", src.Language), preproc.Stats{})
	}
	ix, stats, err := IndexUnit(ctx, src.Path, l, r.opts.Preprocessor, r.paths, r.log)
	if err != nil {
		return failed(err, stats)
	}

	u := r.fromIndex(src, ix)
	dropped := 0
	if r.opts.Store != nil {
		saved, err := r.save(ctx, src, ix, u.Fingerprint)
		if err != nil {
			return model.Unit{}, err
		}
		dropped = saved.Dropped
	}

	r.log.Debug("%s: %d macros, %d occurrences, %d used defines, %d files (%d unnamed occurrences)",
		src.Path, len(u.Macros), len(u.Occurrences), len(u.UsedDefines), stats.Files, dropped)
	r.opts.Metrics.ObserveUnit(metrics.UnitSample{
		Status:          string(model.Indexed),
		Duration:        time.Since(start),
		Symbols:         len(ix.Symbols),
		Occurrences:     len(ix.Locations),
		UsedDefines:     len(ix.UsedDefines),
		IncludeFailures: stats.IncludeFailures,
		FilesEntered:    stats.Files,
	})
	return u, nil
}

// reuse returns the stored unit when neither the values of its used defines
// nor any of its files changed since it was indexed.
func (r *runner) reuse(ctx context.Context, src Source) (model.Unit, bool, error) {
	stored, err := r.opts.Store.LoadUnit(ctx, src.Path)
	if errors.Is(err, store.ErrNotFound) {
		return model.Unit{}, false, nil
	}
	if err != nil {
		return model.Unit{}, false, err
	}
	if stored.Language != src.Language {
		return model.Unit{}, false, nil
	}
	defFP := fingerprint.Defines(stored.UsedDefines, r.opts.Preprocessor.Defines)
	if defFP != stored.DefinesFingerprint {
		return model.Unit{}, false, nil
	}
	filesFP, err := fingerprint.Files(append([]string{src.Path}, stored.Dependencies...))
	if err != nil || filesFP != stored.FilesFingerprint {
		return model.Unit{}, false, nil
	}

	u := model.Unit{
		Path:        r.rel(src.Path),
		Language:    src.Language,
		Status:      model.Reused,
		Fingerprint: defFP,
		UsedDefines: stored.UsedDefines,
		Macros:      stored.Macros,
	}
	for _, dep := range stored.Dependencies {
		u.Includes = append(u.Includes, r.rel(dep))
	}
	sort.Strings(u.Includes)
	sortMacros(u.Macros)
	for _, occ := range stored.Occurrences {
		occ.File = r.rel(occ.File)
		u.Occurrences = append(u.Occurrences, occ)
	}
	return u, true, nil
}

func (r *runner) save(ctx context.Context, src Source, ix *model.Index, defFP uint64) (store.SaveStats, error) {
	files := []string{src.Path}
	for _, id := range ix.SourceFiles {
		if p, ok := r.paths.Path(id); ok {
			files = append(files, p)
		}
	}
	filesFP, err := fingerprint.Files(files)
	if err != nil {
		return store.SaveStats{}, fmt.Errorf("indexer: %s: %w", src.Path, err)
	}
	return r.opts.Store.SaveUnit(ctx, store.Unit{
		Path:               src.Path,
		Language:           src.Language,
		DefinesFingerprint: defFP,
		FilesFingerprint:   filesFP,
		IndexedAt:          time.Now(),
		RunID:              r.runID,
	}, ix, r.paths)
}

// fromIndex converts an index to its report form. Occurrences of identities
// without a canonical id are left out, matching what the store keeps.
func (r *runner) fromIndex(src Source, ix *model.Index) model.Unit {
	u := model.Unit{
		Path:     r.rel(src.Path),
		Language: src.Language,
		Status:   model.Indexed,
		Index:    ix,
	}
	for _, id := range ix.SourceFiles {
		if p, ok := r.paths.Path(id); ok {
			u.Includes = append(u.Includes, r.rel(p))
		}
	}
	sort.Strings(u.Includes)

	for _, d := range ix.UsedDefines {
		u.UsedDefines = append(u.UsedDefines, d.Name)
	}
	u.Fingerprint = fingerprint.Defines(u.UsedDefines, r.opts.Preprocessor.Defines)

	for _, s := range ix.SortedSymbols() {
		if s.USR != "" {
			u.Macros = append(u.Macros, model.Macro{USR: s.USR, Name: s.Name})
		}
	}
	sortMacros(u.Macros)
	for _, loc := range ix.Locations {
		sym, ok := ix.Symbols[loc.Identity]
		if !ok {
			continue
		}
		p, ok := r.paths.Path(loc.File)
		if !ok {
			continue
		}
		u.Occurrences = append(u.Occurrences, model.Occurrence{
			File:   r.rel(p),
			Line:   loc.Line,
			Column: loc.Column,
			Kind:   loc.Kind,
			Name:   sym.Name,
		})
	}
	return u
}

func sortMacros(ms []model.Macro) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].USR < ms[j].USR })
}

// rel makes path relative to the root when it lies below it.
func (r *runner) rel(path string) string {
	if r.opts.Root == "" {
		return path
	}
	rel, err := filepath.Rel(r.opts.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// Collate returns the macros of all units, deduplicated by USR and sorted,
// and their distinct occurrences ordered by file, line and column. Headers
// shared by several units contribute their occurrences once.
func Collate(units []model.Unit) ([]model.Macro, []model.Occurrence) {
	seen := make(map[string]struct{})
	var ms []model.Macro
	var occs []model.Occurrence
	for i := range units {
		for _, m := range units[i].Macros {
			if _, dup := seen[m.USR]; dup {
				continue
			}
			seen[m.USR] = struct{}{}
			ms = append(ms, m)
		}
		occs = append(occs, units[i].Occurrences...)
	}
	sortMacros(ms)
	sort.Slice(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
	out := occs[:0]
	for i, o := range occs {
		if i > 0 && o == occs[i-1] {
			continue
		}
		out = append(out, o)
	}
	return ms, out
}
