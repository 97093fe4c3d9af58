// Package store persists translation unit indexes in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/phobologic/macroindex/internal/model"
)

var (
	// ErrNotFound is returned when a unit has never been stored.
	ErrNotFound = errors.New("store: unit not found")
	// ErrNoIndex is returned by SaveUnit without an index.
	ErrNoIndex = errors.New("store: nil index")
)

// Paths maps file ids of an index back to paths.
type Paths interface {
	Path(id model.FilePathID) (string, bool)
}

// Unit is the stored state of one translation unit.
type Unit struct {
	Path               string
	Language           string
	DefinesFingerprint uint64
	FilesFingerprint   uint64
	IndexedAt          time.Time
	RunID              string

	// Filled by LoadUnit.
	Dependencies []string
	UsedDefines  []string
	Macros       []model.Macro
	Occurrences  []model.Occurrence
}

// SaveStats reports what SaveUnit wrote.
type SaveStats struct {
	Symbols   int
	Locations int
	// Dropped counts occurrences whose identity has no canonical id.
	Dropped int
}

// Store is a SQLite backed unit store. It is safe for concurrent use;
// writes are serialized on one connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of an indexing run.
func (s *Store) BeginRun(ctx context.Context, id string, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(id, started_at) VALUES(?, ?)", id, started.UnixNano())
	if err != nil {
		return fmt.Errorf("store: begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, units, reused, failed int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, units = ?, reused = ?, failed = ? WHERE id = ?",
		finished.UnixNano(), units, reused, failed, id)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	return nil
}

// SaveUnit replaces everything stored for unit u with ix in one transaction.
// Occurrences of identities without a symbol entry are not stored.
func (s *Store) SaveUnit(ctx context.Context, u Unit, ix *model.Index, paths Paths) (SaveStats, error) {
	var st SaveStats
	if ix == nil {
		return st, ErrNoIndex
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	sources := map[model.FilePathID]int64{}
	sourceID := func(id model.FilePathID) (int64, bool, error) {
		if v, ok := sources[id]; ok {
			return v, true, nil
		}
		p, ok := paths.Path(id)
		if !ok {
			return 0, false, nil
		}
		v, err := upsertSource(ctx, tx, p)
		if err != nil {
			return 0, false, err
		}
		sources[id] = v
		return v, true, nil
	}

	mainID, err := upsertSource(ctx, tx, u.Path)
	if err != nil {
		return st, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM units WHERE source_id = ?", mainID); err != nil {
		return st, fmt.Errorf("store: clear unit: %w", err)
	}
	var runID any
	if u.RunID != "" {
		runID = u.RunID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO units(source_id, language, defines_fingerprint, files_fingerprint, indexed_at, run_id)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		mainID, u.Language, int64(u.DefinesFingerprint), int64(u.FilesFingerprint), u.IndexedAt.UnixNano(), runID)
	if err != nil {
		return st, fmt.Errorf("store: insert unit: %w", err)
	}
	unitID, err := res.LastInsertId()
	if err != nil {
		return st, fmt.Errorf("store: unit id: %w", err)
	}

	symbols := make(map[model.MacroIdentity]int64, len(ix.Symbols))
	for _, sym := range ix.SortedSymbols() {
		id, err := upsertSymbol(ctx, tx, sym.USR, sym.Name)
		if err != nil {
			return st, err
		}
		symbols[sym.Identity] = id
		st.Symbols++
	}

	locStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO locations(unit_id, symbol_id, source_id, line, col, kind) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return st, fmt.Errorf("store: prepare locations: %w", err)
	}
	defer locStmt.Close()
	for _, loc := range ix.Locations {
		symID, ok := symbols[loc.Identity]
		if !ok {
			st.Dropped++
			continue
		}
		srcID, ok, err := sourceID(loc.File)
		if err != nil {
			return st, err
		}
		if !ok {
			st.Dropped++
			continue
		}
		if _, err := locStmt.ExecContext(ctx, unitID, symID, srcID, loc.Line, loc.Column, int(loc.Kind)); err != nil {
			return st, fmt.Errorf("store: insert location: %w", err)
		}
		st.Locations++
	}

	for _, ud := range ix.UsedDefines {
		var src any
		if v, ok, err := sourceID(ud.File); err != nil {
			return st, err
		} else if ok {
			src = v
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO used_macros(unit_id, name, source_id) VALUES(?, ?, ?)", unitID, ud.Name, src); err != nil {
			return st, fmt.Errorf("store: insert used macro: %w", err)
		}
	}

	for _, f := range ix.SourceFiles {
		srcID, ok, err := sourceID(f)
		if err != nil {
			return st, err
		}
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO source_dependencies(unit_id, source_id) VALUES(?, ?)", unitID, srcID); err != nil {
			return st, fmt.Errorf("store: insert dependency: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("store: commit: %w", err)
	}
	return st, nil
}

func upsertSource(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO sources(path) VALUES(?)", path); err != nil {
		return 0, fmt.Errorf("store: insert source: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM sources WHERE path = ?", path).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: source id: %w", err)
	}
	return id, nil
}

func upsertSymbol(ctx context.Context, tx *sql.Tx, usr, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO symbols(usr, name) VALUES(?, ?) ON CONFLICT(usr) DO UPDATE SET name = excluded.name",
		usr, name); err != nil {
		return 0, fmt.Errorf("store: upsert symbol: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM symbols WHERE usr = ?", usr).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: symbol id: %w", err)
	}
	return id, nil
}

// LoadUnit returns the stored state of the unit at path.
func (s *Store) LoadUnit(ctx context.Context, path string) (*Unit, error) {
	u := &Unit{Path: path}
	var (
		unitID         int64
		defFP, filesFP int64
		indexedAt      int64
		runID          sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.language, u.defines_fingerprint, u.files_fingerprint, u.indexed_at, u.run_id
		 FROM units u JOIN sources s ON s.id = u.source_id
		 WHERE s.path = ?`, path).
		Scan(&unitID, &u.Language, &defFP, &filesFP, &indexedAt, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load unit: %w", err)
	}
	u.DefinesFingerprint = uint64(defFP)
	u.FilesFingerprint = uint64(filesFP)
	u.IndexedAt = time.Unix(0, indexedAt)
	u.RunID = runID.String

	if u.Dependencies, err = s.queryStrings(ctx,
		`SELECT s.path FROM source_dependencies d JOIN sources s ON s.id = d.source_id
		 WHERE d.unit_id = ? ORDER BY s.path`, unitID); err != nil {
		return nil, err
	}
	if u.UsedDefines, err = s.queryStrings(ctx,
		"SELECT name FROM used_macros WHERE unit_id = ? ORDER BY name", unitID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sym.usr, sym.name, src.path, l.line, l.col, l.kind
		 FROM locations l
		 JOIN symbols sym ON sym.id = l.symbol_id
		 JOIN sources src ON src.id = l.source_id
		 WHERE l.unit_id = ? ORDER BY l.rowid`, unitID)
	if err != nil {
		return nil, fmt.Errorf("store: load locations: %w", err)
	}
	defer rows.Close()
	seen := map[string]bool{}
	for rows.Next() {
		var (
			m    model.Macro
			occ  model.Occurrence
			kind int
		)
		if err := rows.Scan(&m.USR, &m.Name, &occ.File, &occ.Line, &occ.Column, &kind); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		occ.Kind = model.OccurrenceKind(kind)
		occ.Name = m.Name
		u.Occurrences = append(u.Occurrences, occ)
		if !seen[m.USR] {
			seen[m.USR] = true
			u.Macros = append(u.Macros, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load locations: %w", err)
	}
	return u, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Counts returns the number of stored units, symbols and locations.
func (s *Store) Counts(ctx context.Context) (units, symbols, locations int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM units), (SELECT COUNT(*) FROM symbols), (SELECT COUNT(*) FROM locations)`).
		Scan(&units, &symbols, &locations)
	if err != nil {
		err = fmt.Errorf("store: counts: %w", err)
	}
	return units, symbols, locations, err
}
