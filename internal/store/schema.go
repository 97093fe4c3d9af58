package store

// Schema creates the tables for persisted translation units. Locations and
// used macros belong to the unit that produced them and are replaced with it.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id   INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS symbols (
    id   INTEGER PRIMARY KEY,
    usr  TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,
    units       INTEGER NOT NULL DEFAULT 0,
    reused      INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS units (
    id                  INTEGER PRIMARY KEY,
    source_id           INTEGER NOT NULL UNIQUE REFERENCES sources(id),
    language            TEXT NOT NULL,
    defines_fingerprint INTEGER NOT NULL,
    files_fingerprint   INTEGER NOT NULL,
    indexed_at          INTEGER NOT NULL,
    run_id              TEXT REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS locations (
    unit_id   INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
    symbol_id INTEGER NOT NULL REFERENCES symbols(id),
    source_id INTEGER NOT NULL REFERENCES sources(id),
    line      INTEGER NOT NULL,
    col       INTEGER NOT NULL,
    kind      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS used_macros (
    unit_id   INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    source_id INTEGER REFERENCES sources(id),
    PRIMARY KEY (unit_id, name)
);

CREATE TABLE IF NOT EXISTS source_dependencies (
    unit_id   INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
    source_id INTEGER NOT NULL REFERENCES sources(id),
    PRIMARY KEY (unit_id, source_id)
);

CREATE INDEX IF NOT EXISTS idx_locations_unit ON locations(unit_id);
CREATE INDEX IF NOT EXISTS idx_locations_symbol ON locations(symbol_id);
`
