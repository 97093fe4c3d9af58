// Package macros collects the macro index of one translation unit from the
// preprocessor's callback stream.
//
// A Collector records three things while the front-end runs: a symbol table
// of macro identities with every definition, undefinition and usage
// occurrence; the used defines, i.e. macros whose value was tested or
// expanded; and the files entered through #include. At the end of the main
// file the used defines are reconciled: tentative entries that turned out to
// be header guards are dropped, the two sets are merged, and export
// annotation macros are removed.
package macros

import (
	"errors"

	"github.com/phobologic/macroindex/internal/logging"
	"github.com/phobologic/macroindex/internal/model"
)

var (
	// ErrNotFinalized is returned by Take before the end of the main file.
	ErrNotFinalized = errors.New("macros: translation unit not finalized")
	// ErrTaken is returned by a second call to Take.
	ErrTaken = errors.New("macros: index already taken")
)

// SourceLocations resolves front-end positions to file identities.
type SourceLocations interface {
	Resolve(pos model.Position) (model.FilePathID, model.LineColumn, bool)
}

// FileIdentities maps an included file's path to its identity.
type FileIdentities interface {
	FilePathID(path string) model.FilePathID
}

// USRGenerator produces canonical ids for macros. It may fail.
type USRGenerator interface {
	Generate(name string, pos model.Position) (string, bool)
}

// MacroLookup answers questions about the front-end's final macro table.
type MacroLookup interface {
	IsHeaderGuard(name string) bool
	IsDefined(name string) bool
}

// Services are the collaborators a Collector depends on.
type Services struct {
	Locations  SourceLocations
	Files      FileIdentities
	USRs       USRGenerator
	Macros     MacroLookup
	Directives DirectiveTable
}

func (s Services) validate() error {
	switch {
	case s.Locations == nil:
		return errors.New("macros: missing source location service")
	case s.Files == nil:
		return errors.New("macros: missing file identity service")
	case s.USRs == nil:
		return errors.New("macros: missing USR generator")
	case s.Macros == nil:
		return errors.New("macros: missing macro lookup")
	case s.Directives == nil:
		return errors.New("macros: missing directive table")
	}
	return nil
}

// Collector implements the preprocessor callbacks for one pass. It is not
// safe for concurrent use; run one Collector per translation unit.
type Collector struct {
	svc Services
	log logging.Logger

	symbols          *SymbolTable
	usedDefines      UsedDefines
	maybeUsedDefines UsedDefines
	sourceFiles      FileSet

	skipInclude bool
	finalized   bool
	taken       bool
}

// NewCollector returns an empty collector. A nil logger discards output.
func NewCollector(svc Services, log logging.Logger) (*Collector, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Collector{
		svc:     svc,
		log:     log,
		symbols: NewSymbolTable(),
	}, nil
}

// InclusionDirective records a successfully resolved include unless it
// immediately follows a FileNotFound.
func (c *Collector) InclusionDirective(hash model.Position, spelled string, file *model.FileEntry) {
	if c.finalized {
		return
	}
	if !c.skipInclude && file != nil {
		c.sourceFiles.Insert(c.svc.Files.FilePathID(file.Path))
	} else if c.skipInclude {
		c.log.Debug("macros: skip inclusion %s after failed lookup", spelled)
	}
	c.skipInclude = false
}

// FileNotFound marks the next inclusion callback to be ignored. It always
// allows the front-end to attempt recovery.
func (c *Collector) FileNotFound(spelled string) bool {
	if c.finalized {
		return false
	}
	c.skipInclude = true
	return true
}

// Ifdef handles #ifdef and #elifdef.
func (c *Collector) Ifdef(pos model.Position, tok model.Token, def model.MacroDefinition) {
	c.addUsage(tok, def)
}

// Ifndef handles #ifndef and #elifndef.
func (c *Collector) Ifndef(pos model.Position, tok model.Token, def model.MacroDefinition) {
	c.addUsage(tok, def)
}

// Defined handles the defined operator in #if and #elif.
func (c *Collector) Defined(tok model.Token, def model.MacroDefinition) {
	c.addUsage(tok, def)
}

// MacroExpands handles an expansion of a defined macro.
func (c *Collector) MacroExpands(tok model.Token, def model.MacroDefinition) {
	c.addUsage(tok, def)
}

// MacroDefined handles #define; directive is the new directive.
func (c *Collector) MacroDefined(tok model.Token, directive model.DirectiveID) {
	if c.finalized {
		return
	}
	c.addMacroAsSymbol(tok, FirstMacroInfo(c.svc.Directives, directive), model.DefinitionOccurrence)
}

// MacroUndefined handles #undef. def is the definition being removed.
func (c *Collector) MacroUndefined(tok model.Token, def model.MacroDefinition, undef model.DirectiveID) {
	if c.finalized {
		return
	}
	c.addMacroAsSymbol(tok, FirstMacroInfo(c.svc.Directives, def.Directive), model.UndefinitionOccurrence)
}

// EndOfMainFile finalizes the used defines. Later callbacks are ignored.
func (c *Collector) EndOfMainFile() {
	if c.finalized {
		return
	}
	c.filterOutHeaderGuards()
	c.mergeUsedDefines()
	c.filterOutExports()
	c.finalized = true
}

// Take hands the finished index to the caller. The collector keeps no
// reference to it.
func (c *Collector) Take() (*model.Index, error) {
	if c.taken {
		return nil, ErrTaken
	}
	if !c.finalized {
		return nil, ErrNotFinalized
	}
	ix := &model.Index{
		Symbols:     c.symbols.entries,
		Locations:   c.symbols.locations,
		UsedDefines: c.usedDefines,
		SourceFiles: c.sourceFiles,
	}
	c.symbols = nil
	c.usedDefines = nil
	c.maybeUsedDefines = nil
	c.sourceFiles = nil
	c.taken = true
	return ix, nil
}

func (c *Collector) addUsage(tok model.Token, def model.MacroDefinition) {
	if c.finalized {
		return
	}
	c.addUsedDefine(tok, def)
	c.addMacroAsSymbol(tok, FirstMacroInfo(c.svc.Directives, def.Directive), model.UsageOccurrence)
}

func (c *Collector) addUsedDefine(tok model.Token, def model.MacroDefinition) {
	fileID, _, _ := c.svc.Locations.Resolve(tok.Pos)
	ud := model.UsedDefine{Name: tok.Name, File: fileID}
	if def.IsDefined() {
		c.usedDefines.Insert(ud)
	} else {
		c.maybeUsedDefines.Insert(ud)
	}
}

func (c *Collector) addMacroAsSymbol(tok model.Token, info *model.MacroInfo, kind model.OccurrenceKind) {
	if info == nil {
		c.log.Debug("macros: drop %s of %s without definition", kind, tok.Name)
		return
	}
	fileID, lc, ok := c.svc.Locations.Resolve(tok.Pos)
	if !ok || !fileID.IsValid() {
		return
	}
	id := info.ID
	if !c.symbols.Has(id) {
		if usr, ok := c.svc.USRs.Generate(tok.Name, tok.Pos); ok {
			c.symbols.Insert(model.SymbolEntry{Identity: id, USR: usr, Name: tok.Name})
		} else {
			c.log.Debug("macros: no USR for %s at %s:%d", tok.Name, tok.Pos.File, tok.Pos.Line)
		}
	}
	c.symbols.Append(model.SourceLocationEntry{
		Identity:   id,
		File:       fileID,
		LineColumn: lc,
		Kind:       kind,
	})
}

func (c *Collector) filterOutHeaderGuards() {
	c.maybeUsedDefines.Retain(func(ud model.UsedDefine) bool {
		return !c.svc.Macros.IsHeaderGuard(ud.Name)
	})
}

func (c *Collector) mergeUsedDefines() {
	c.usedDefines = MergeUsedDefines(c.usedDefines, c.maybeUsedDefines)
	c.maybeUsedDefines = nil
}

func (c *Collector) filterOutExports() {
	c.usedDefines.Retain(func(ud model.UsedDefine) bool {
		return !isExport(ud.Name)
	})
}
