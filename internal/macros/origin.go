package macros

import "github.com/phobologic/macroindex/internal/model"

// DirectiveTable gives read access to the front-end's directive arena.
type DirectiveTable interface {
	Directive(id model.DirectiveID) (model.Directive, bool)
}

// FirstMacroInfo walks the chain starting at id back to the earliest
// directive and returns the macro info attached to it. It returns nil for
// NoDirective, an unknown id, or a chain that starts with an #undef.
func FirstMacroInfo(table DirectiveTable, id model.DirectiveID) *model.MacroInfo {
	if id == model.NoDirective {
		return nil
	}
	d, ok := table.Directive(id)
	if !ok {
		return nil
	}
	for d.Prev != model.NoDirective {
		prev, ok := table.Directive(d.Prev)
		if !ok {
			break
		}
		d = prev
	}
	return d.Info
}
