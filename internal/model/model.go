// Package model defines core data structures for macroindex.
package model

import "sort"

// FilePathID identifies a file within one indexing run. Zero is invalid.
type FilePathID uint32

// IsValid reports whether id refers to a file.
func (id FilePathID) IsValid() bool { return id != 0 }

// LineColumn is a 1-based source line and byte column.
type LineColumn struct {
	Line   int
	Column int
}

// MacroIdentity is the stable key of one macro lineage within a translation
// unit. It is the ID of the MacroInfo of the macro's first definition, so
// redefinitions of the same macro share it. Zero is invalid.
type MacroIdentity uint32

// OccurrenceKind says what a recorded macro occurrence was: a #define, an
// #undef, or a usage (expansion or conditional test).
type OccurrenceKind uint8

const (
	DefinitionOccurrence OccurrenceKind = iota + 1
	UndefinitionOccurrence
	UsageOccurrence
)

// String returns the kind as printed in reports.
func (k OccurrenceKind) String() string {
	switch k {
	case DefinitionOccurrence:
		return "definition"
	case UndefinitionOccurrence:
		return "undefinition"
	case UsageOccurrence:
		return "usage"
	}
	return "unknown"
}

// SymbolEntry is the deduplicated row for one macro identity.
type SymbolEntry struct {
	Identity MacroIdentity
	USR      string
	Name     string
}

// SourceLocationEntry is one occurrence of a macro identity.
type SourceLocationEntry struct {
	Identity MacroIdentity
	File     FilePathID
	LineColumn
	Kind OccurrenceKind
}

// UsedDefine is a macro whose value may influence the compiled output.
// Entries are ordered and deduplicated by Name only.
type UsedDefine struct {
	Name string
	File FilePathID // file of the first observation
}

// Index is the result of one translation-unit pass.
type Index struct {
	Symbols     map[MacroIdentity]SymbolEntry
	Locations   []SourceLocationEntry
	UsedDefines []UsedDefine // sorted by name, unique
	SourceFiles []FilePathID // sorted, unique
}

// SortedSymbols returns the symbol entries ordered by identity.
func (ix *Index) SortedSymbols() []SymbolEntry {
	syms := make([]SymbolEntry, 0, len(ix.Symbols))
	for _, s := range ix.Symbols {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		return syms[i].Identity < syms[j].Identity
	})
	return syms
}

// UnitStatus records how a translation unit's index was obtained.
type UnitStatus string

const (
	// Indexed units were preprocessed in this run.
	Indexed UnitStatus = "indexed"
	// Reused units were loaded unchanged from the store.
	Reused UnitStatus = "reused"
	// Failed units have no index; Unit.Err says why.
	Failed UnitStatus = "failed"
)

// Unit is one translation unit in a report.
type Unit struct {
	Path        string
	Language    string
	Status      UnitStatus
	Fingerprint uint64
	Index       *Index // nil unless Status is Indexed
	Includes    []string
	UsedDefines []string
	Macros      []Macro
	Occurrences []Occurrence
	Err         error // set when Status is Failed
}

// Header is an included file ranked by how central it is to the units.
type Header struct {
	Path       string
	Rank       float64
	IncludedBy int
}

// Dependency is an include edge: Source (a unit) transitively includes Target.
type Dependency struct {
	Source string
	Target string
}

// Macro is a canonical macro symbol across units.
type Macro struct {
	USR  string
	Name string
}

// Occurrence is a resolved macro occurrence for reporting.
type Occurrence struct {
	File   string
	Line   int
	Column int
	Kind   OccurrenceKind
	Name   string
}

// Report is the complete analyzed tree, ready for serialization.
type Report struct {
	Root         string
	Units        []Unit
	Headers      []Header
	Dependencies []Dependency
	Macros       []Macro
	Occurrences  []Occurrence
}
