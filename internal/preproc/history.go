package preproc

import "github.com/phobologic/macroindex/internal/model"

// History is the directive arena of one pass. Directive ids and macro info
// ids are arena indexes starting at 1.
type History struct {
	directives []model.Directive
	current    map[string]model.DirectiveID
	infos      model.MacroIdentity
}

// NewHistory returns an empty arena.
func NewHistory() *History {
	return &History{
		directives: make([]model.Directive, 1, 64),
		current:    make(map[string]model.DirectiveID),
	}
}

// Directive implements macros.DirectiveTable.
func (h *History) Directive(id model.DirectiveID) (model.Directive, bool) {
	if id == model.NoDirective || int(id) >= len(h.directives) {
		return model.Directive{}, false
	}
	return h.directives[id], true
}

// Define records a #define of name, chaining it to the previous directive for
// the same name.
func (h *History) Define(name string, pos model.Position, value string, functionLike bool) (model.DirectiveID, *model.MacroInfo) {
	h.infos++
	info := &model.MacroInfo{
		ID:           h.infos,
		Name:         name,
		Pos:          pos,
		Value:        value,
		FunctionLike: functionLike,
	}
	id := h.push(model.Directive{Kind: model.DefineDirective, Name: name, Info: info})
	return id, info
}

// Undefine records an #undef of name and returns the definition it removed.
// Undefining a name that is not defined records nothing.
func (h *History) Undefine(name string) (model.MacroDefinition, model.DirectiveID) {
	before := h.Lookup(name)
	if !before.IsDefined() {
		return before, model.NoDirective
	}
	return before, h.push(model.Directive{Kind: model.UndefineDirective, Name: name})
}

func (h *History) push(d model.Directive) model.DirectiveID {
	d.Prev = h.current[d.Name]
	h.directives = append(h.directives, d)
	id := model.DirectiveID(len(h.directives) - 1)
	h.current[d.Name] = id
	return id
}

// Lookup returns the current state of name.
func (h *History) Lookup(name string) model.MacroDefinition {
	id := h.current[name]
	d, ok := h.Directive(id)
	if !ok {
		return model.MacroDefinition{}
	}
	return model.MacroDefinition{Directive: id, Info: d.Info}
}

// IsDefined reports whether name is currently defined.
func (h *History) IsDefined(name string) bool {
	return h.Lookup(name).IsDefined()
}

// IsHeaderGuard reports whether the current definition of name guards a
// file. An undefined name is not a guard.
func (h *History) IsHeaderGuard(name string) bool {
	info := h.Lookup(name).Info
	return info != nil && info.UsedForHeaderGuard
}

// MarkHeaderGuard flags the current definition of name as a header guard.
func (h *History) MarkHeaderGuard(name string) bool {
	info := h.Lookup(name).Info
	if info == nil {
		return false
	}
	info.UsedForHeaderGuard = true
	return true
}

// Len returns the number of directives recorded.
func (h *History) Len() int { return len(h.directives) - 1 }
