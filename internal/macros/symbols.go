package macros

import "github.com/phobologic/macroindex/internal/model"

// SymbolTable holds one entry per macro identity plus the unordered log of
// every occurrence.
type SymbolTable struct {
	entries   map[model.MacroIdentity]model.SymbolEntry
	locations []model.SourceLocationEntry
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{entries: make(map[model.MacroIdentity]model.SymbolEntry)}
}

// Has reports whether an entry exists for id.
func (t *SymbolTable) Has(id model.MacroIdentity) bool {
	_, ok := t.entries[id]
	return ok
}

// Insert adds entry if its identity has no entry yet. The first writer wins.
func (t *SymbolTable) Insert(entry model.SymbolEntry) bool {
	if t.Has(entry.Identity) {
		return false
	}
	t.entries[entry.Identity] = entry
	return true
}

// Append logs an occurrence. Occurrences are never deduplicated.
func (t *SymbolTable) Append(loc model.SourceLocationEntry) {
	t.locations = append(t.locations, loc)
}

// Len returns the number of entries.
func (t *SymbolTable) Len() int { return len(t.entries) }

// Occurrences returns the number of logged occurrences.
func (t *SymbolTable) Occurrences() int { return len(t.locations) }
