package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/macroindex/internal/lang"
	"github.com/phobologic/macroindex/internal/metrics"
	"github.com/phobologic/macroindex/internal/model"
	"github.com/phobologic/macroindex/internal/pathcache"
	"github.com/phobologic/macroindex/internal/preproc"
	"github.com/phobologic/macroindex/internal/store"
)

const configH = `#ifndef CONFIG_H
#define CONFIG_H
#define BUFSIZE 64
#endif
`

const mainC = `#include "config.h"
#ifdef FEATURE
int feature = 1;
#endif
char buf[BUFSIZE];
`

const otherC = `#include "config.h"
int other[BUFSIZE];
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func sources(root string, names ...string) []Source {
	var out []Source
	for _, n := range names {
		out = append(out, Source{Path: filepath.Join(root, n), Language: "c"})
	}
	return out
}

func TestIndexUnit(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"config.h": configH, "main.c": mainC})
	paths := pathcache.New()

	ix, stats, err := IndexUnit(context.Background(), filepath.Join(root, "main.c"),
		lang.Languages["c"], preproc.Config{}, paths, nil)
	require.NoError(t, err)

	var names []string
	for _, d := range ix.UsedDefines {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"BUFSIZE", "FEATURE"}, names); diff != "" {
		t.Errorf("used defines mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, ix.SourceFiles, 1)
	p, ok := paths.Path(ix.SourceFiles[0])
	require.True(t, ok)
	assert.Equal(t, "config.h", filepath.Base(p))
	assert.Equal(t, 2, stats.Files)

	var symbols []string
	for _, s := range ix.SortedSymbols() {
		symbols = append(symbols, s.Name)
	}
	assert.Equal(t, []string{"CONFIG_H", "BUFSIZE"}, symbols)
}

func TestIndexUnitMissingMainFile(t *testing.T) {
	t.Parallel()
	_, _, err := IndexUnit(context.Background(), filepath.Join(t.TempDir(), "nope.c"),
		lang.Languages["c"], preproc.Config{}, pathcache.New(), nil)
	assert.Error(t, err)
}

func TestRunSharedHeader(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"config.h": configH, "main.c": mainC, "src/other.c": otherC})
	m := metrics.New()

	// src/other.c finds config.h through the include path.
	res, err := Run(context.Background(), sources(root, "main.c", "src/other.c"), Options{
		Root:         root,
		Preprocessor: preproc.Config{IncludeDirs: []string{root}},
		Workers:      2,
		Metrics:      m,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.NotEmpty(t, res.RunID)

	main, other := res.Units[0], res.Units[1]
	assert.Equal(t, "main.c", main.Path)
	assert.Equal(t, "src/other.c", other.Path)
	assert.Equal(t, []string{"config.h"}, main.Includes)
	assert.Equal(t, []string{"config.h"}, other.Includes)
	assert.Equal(t, []string{"BUFSIZE"}, other.UsedDefines)

	macros, occs := Collate(res.Units)
	if diff := cmp.Diff([]model.Macro{
		{USR: "c:config.h@25@macro@CONFIG_H", Name: "CONFIG_H"},
		{USR: "c:config.h@42@macro@BUFSIZE", Name: "BUFSIZE"},
	}, macros); diff != "" {
		t.Errorf("macros mismatch (-want +got):\n%s", diff)
	}

	// The header's definitions are shared; each unit adds one usage.
	var defs, uses int
	for _, o := range occs {
		switch o.Kind {
		case model.DefinitionOccurrence:
			defs++
		case model.UsageOccurrence:
			uses++
		}
	}
	assert.Equal(t, 2, defs)
	assert.Equal(t, 2, uses, "BUFSIZE once per unit")

	expected := `
# HELP macroindex_files_entered_total Files walked by the preprocessor.
# TYPE macroindex_files_entered_total counter
macroindex_files_entered_total 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"macroindex_files_entered_total"))
}

func TestRunFailedUnit(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"config.h": configH, "main.c": mainC})

	res, err := Run(context.Background(), sources(root, "main.c", "gone.c"), Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, model.Failed, res.Units[1].Status)
	assert.Error(t, res.Units[1].Err)
	assert.Equal(t, "gone.c", res.Units[1].Path)
}

func TestRunAllFailed(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	res, err := Run(context.Background(), sources(root, "a.c", "b.c"), Options{Root: root})
	require.ErrorIs(t, err, ErrAllFailed)
	assert.Equal(t, 2, res.Failed)
}

func TestRunUnsupportedLanguage(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"main.c": mainC})
	_, err := Run(context.Background(), []Source{{Path: filepath.Join(root, "main.c"), Language: "cobol"}}, Options{})
	assert.ErrorIs(t, err, ErrAllFailed)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"config.h": configH, "main.c": mainC})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, sources(root, "main.c"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIncremental(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := writeTree(t, map[string]string{"config.h": configH, "main.c": mainC})
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	run := func(defines map[string]string) *Result {
		t.Helper()
		res, err := Run(ctx, sources(root, "main.c"), Options{
			Root:         root,
			Preprocessor: preproc.Config{Defines: defines},
			Store:        st,
			Incremental:  true,
		})
		require.NoError(t, err)
		require.Len(t, res.Units, 1)
		return res
	}

	first := run(nil)
	assert.Equal(t, model.Indexed, first.Units[0].Status)

	second := run(nil)
	assert.Equal(t, 1, second.Reused)
	got, want := second.Units[0], first.Units[0]
	assert.Equal(t, model.Reused, got.Status)
	assert.Nil(t, got.Index)
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.Equal(t, want.Includes, got.Includes)
	assert.Equal(t, want.UsedDefines, got.UsedDefines)
	assert.Equal(t, want.Macros, got.Macros)
	assert.Equal(t, want.Occurrences, got.Occurrences)

	// A define the unit never tested does not invalidate it.
	assert.Equal(t, model.Reused, run(map[string]string{"UNRELATED": "1"}).Units[0].Status)

	// A used define does.
	third := run(map[string]string{"FEATURE": "1"})
	assert.Equal(t, model.Indexed, third.Units[0].Status)
	assert.Contains(t, third.Units[0].UsedDefines, "FEATURE")

	// So does an edit to an included header.
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.h"),
		[]byte(strings.Replace(configH, "64", "128", 1)), 0o644))
	assert.Equal(t, model.Indexed, run(map[string]string{"FEATURE": "1"}).Units[0].Status)

	units, _, _, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, units)
}

func TestCollate(t *testing.T) {
	t.Parallel()
	occ := func(file string, line int, name string) model.Occurrence {
		return model.Occurrence{File: file, Line: line, Column: 9, Kind: model.UsageOccurrence, Name: name}
	}
	units := []model.Unit{
		{
			Macros:      []model.Macro{{USR: "c:b.h@1@macro@B", Name: "B"}, {USR: "c:a.h@1@macro@A", Name: "A"}},
			Occurrences: []model.Occurrence{occ("b.h", 2, "B"), occ("a.h", 7, "A")},
		},
		{
			Macros:      []model.Macro{{USR: "c:a.h@1@macro@A", Name: "A"}},
			Occurrences: []model.Occurrence{occ("a.h", 7, "A"), occ("a.h", 3, "A")},
		},
	}

	macros, occs := Collate(units)
	if diff := cmp.Diff([]model.Macro{
		{USR: "c:a.h@1@macro@A", Name: "A"},
		{USR: "c:b.h@1@macro@B", Name: "B"},
	}, macros); diff != "" {
		t.Errorf("macros mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Occurrence{
		occ("a.h", 3, "A"), occ("a.h", 7, "A"), occ("b.h", 2, "B"),
	}, occs); diff != "" {
		t.Errorf("occurrences mismatch (-want +got):\n%s", diff)
	}
}
