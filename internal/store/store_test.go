package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/macroindex/internal/model"
)

type fakePaths map[model.FilePathID]string

func (p fakePaths) Path(id model.FilePathID) (string, bool) {
	s, ok := p[id]
	return s, ok
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleIndex() *model.Index {
	return &model.Index{
		Symbols: map[model.MacroIdentity]model.SymbolEntry{
			1: {Identity: 1, USR: "c:a.h@10@macro@A", Name: "A"},
			2: {Identity: 2, USR: "c:main.c@0@macro@B", Name: "B"},
		},
		Locations: []model.SourceLocationEntry{
			{Identity: 1, File: 2, LineColumn: model.LineColumn{Line: 1, Column: 9}, Kind: model.DefinitionOccurrence},
			{Identity: 1, File: 1, LineColumn: model.LineColumn{Line: 3, Column: 8}, Kind: model.UsageOccurrence},
			{Identity: 2, File: 1, LineColumn: model.LineColumn{Line: 1, Column: 9}, Kind: model.DefinitionOccurrence},
			{Identity: 3, File: 1, LineColumn: model.LineColumn{Line: 5, Column: 1}, Kind: model.UsageOccurrence},
		},
		UsedDefines: []model.UsedDefine{{Name: "A", File: 1}, {Name: "FEATURE", File: 1}},
		SourceFiles: []model.FilePathID{2},
	}
}

var samplePaths = fakePaths{1: "/src/main.c", 2: "/src/a.h"}

func TestSaveAndLoadUnit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)

	now := time.Unix(1700000000, 0)
	require.NoError(t, s.BeginRun(ctx, "run-1", now))
	st, err := s.SaveUnit(ctx, Unit{
		Path:               "/src/main.c",
		Language:           "c",
		DefinesFingerprint: 1<<63 + 5,
		FilesFingerprint:   42,
		IndexedAt:          now,
		RunID:              "run-1",
	}, sampleIndex(), samplePaths)
	require.NoError(t, err)
	assert.Equal(t, SaveStats{Symbols: 2, Locations: 3, Dropped: 1}, st)

	u, err := s.LoadUnit(ctx, "/src/main.c")
	require.NoError(t, err)
	assert.Equal(t, "c", u.Language)
	assert.Equal(t, uint64(1<<63+5), u.DefinesFingerprint)
	assert.Equal(t, uint64(42), u.FilesFingerprint)
	assert.True(t, u.IndexedAt.Equal(now))
	assert.Equal(t, "run-1", u.RunID)
	assert.Equal(t, []string{"/src/a.h"}, u.Dependencies)
	assert.Equal(t, []string{"A", "FEATURE"}, u.UsedDefines)
	assert.Equal(t, []model.Macro{
		{USR: "c:a.h@10@macro@A", Name: "A"},
		{USR: "c:main.c@0@macro@B", Name: "B"},
	}, u.Macros)
	require.Len(t, u.Occurrences, 3)
	assert.Equal(t, model.Occurrence{File: "/src/main.c", Line: 3, Column: 8, Kind: model.UsageOccurrence, Name: "A"}, u.Occurrences[1])
}

func TestSaveUnitReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)

	u := Unit{Path: "/src/main.c", Language: "c", IndexedAt: time.Now()}
	_, err := s.SaveUnit(ctx, u, sampleIndex(), samplePaths)
	require.NoError(t, err)

	smaller := &model.Index{
		Symbols:     map[model.MacroIdentity]model.SymbolEntry{},
		UsedDefines: []model.UsedDefine{{Name: "ONLY", File: 1}},
	}
	_, err = s.SaveUnit(ctx, u, smaller, samplePaths)
	require.NoError(t, err)

	got, err := s.LoadUnit(ctx, "/src/main.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"ONLY"}, got.UsedDefines)
	assert.Empty(t, got.Dependencies)
	assert.Empty(t, got.Occurrences)

	units, symbols, locations, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, units)
	assert.Equal(t, 2, symbols, "symbols are shared across units and kept")
	assert.Equal(t, 0, locations)
}

func TestSymbolsSharedAcrossUnits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)

	for _, path := range []string{"/src/main.c", "/src/other.c"} {
		paths := fakePaths{1: path, 2: "/src/a.h"}
		_, err := s.SaveUnit(ctx, Unit{Path: path, Language: "c", IndexedAt: time.Now()}, sampleIndex(), paths)
		require.NoError(t, err)
	}
	units, symbols, locations, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, units)
	assert.Equal(t, 2, symbols)
	assert.Equal(t, 6, locations)
}

func TestLoadUnitNotFound(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	_, err := s.LoadUnit(context.Background(), "/nope.c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUnitNilIndex(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	_, err := s.SaveUnit(context.Background(), Unit{Path: "/a.c"}, nil, samplePaths)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestFinishRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.BeginRun(ctx, "r", time.Now()))
	require.NoError(t, s.FinishRun(ctx, "r", time.Now(), 3, 1, 0))

	var units, reused int
	require.NoError(t, s.db.QueryRow("SELECT units, reused FROM runs WHERE id = 'r'").Scan(&units, &reused))
	assert.Equal(t, 3, units)
	assert.Equal(t, 1, reused)
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
