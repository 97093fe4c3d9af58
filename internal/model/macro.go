package model

import "strings"

// Position is a raw location in a preprocessed file as reported by the
// front-end. Virtual buffers such as "<command line>" have no file.
type Position struct {
	File   string
	Offset int
	Line   int
	Column int
	System bool // inside a system header
}

// IsFile reports whether p lies in a real file.
func (p Position) IsFile() bool {
	return p.File != "" && !strings.HasPrefix(p.File, "<")
}

// Token is a macro name token.
type Token struct {
	Name string
	Pos  Position
}

// MacroInfo describes one #define of a macro.
type MacroInfo struct {
	ID           MacroIdentity
	Name         string
	Pos          Position
	Value        string
	FunctionLike bool

	// UsedForHeaderGuard is set once the defining file turned out to be
	// guarded by this macro, which is only known after the whole file.
	UsedForHeaderGuard bool
}

// DirectiveID indexes a directive arena. NoDirective means none.
type DirectiveID uint32

// NoDirective is the zero DirectiveID, used for names never defined.
const NoDirective DirectiveID = 0

// DirectiveKind distinguishes #define and #undef directives.
type DirectiveKind uint8

const (
	// DefineDirective is a #define, including command-line defines.
	DefineDirective DirectiveKind = iota + 1
	// UndefineDirective is an #undef of a defined name.
	UndefineDirective
)

// Directive is one entry of a macro's history. Prev links to the directive it
// replaced, forming a backward chain per macro name.
type Directive struct {
	Kind DirectiveKind
	Name string
	Info *MacroInfo // nil for #undef
	Prev DirectiveID
}

// MacroDefinition is the state of a macro at the point it is referenced.
type MacroDefinition struct {
	Directive DirectiveID // latest directive, NoDirective if never seen
	Info      *MacroInfo  // nil when the macro is not defined here
}

// IsDefined reports whether the macro was defined at the reference.
func (d MacroDefinition) IsDefined() bool { return d.Info != nil }

// FileEntry is a resolved include target.
type FileEntry struct {
	Path   string // absolute, slash separated
	System bool
}
