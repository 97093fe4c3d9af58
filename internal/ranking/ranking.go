// Package ranking selects and filters the parts of a report worth printing.
package ranking

import (
	"strings"

	"github.com/phobologic/macroindex/internal/model"
)

// SelectHeaders returns a new Report with only the top-ranked headers.
// If maxHeaders is <= 0 or >= len(headers), the report is returned as is.
func SelectHeaders(r *model.Report, maxHeaders int) *model.Report {
	if maxHeaders <= 0 || maxHeaders >= len(r.Headers) {
		return r
	}

	selected := r.Headers[:maxHeaders]
	selectedPaths := make(map[string]struct{}, maxHeaders)
	for i := range selected {
		selectedPaths[selected[i].Path] = struct{}{}
	}

	var deps []model.Dependency
	for i := range r.Dependencies {
		d := &r.Dependencies[i]
		if _, ok := selectedPaths[d.Target]; ok {
			deps = append(deps, *d)
		}
	}

	out := *r
	out.Headers = selected
	out.Dependencies = deps
	return &out
}

// FilterByMacro returns a new Report restricted to macros whose name contains
// substr (case-insensitive): their canonical entries and occurrences, the
// units that used them, and the headers where they occur.
func FilterByMacro(r *model.Report, substr string) *model.Report {
	lower := strings.ToLower(substr)
	matches := func(name string) bool {
		return strings.Contains(strings.ToLower(name), lower)
	}

	var macros []model.Macro
	for _, m := range r.Macros {
		if matches(m.Name) {
			macros = append(macros, m)
		}
	}

	var occs []model.Occurrence
	occFiles := make(map[string]struct{})
	for _, o := range r.Occurrences {
		if matches(o.Name) {
			occs = append(occs, o)
			occFiles[o.File] = struct{}{}
		}
	}

	var units []model.Unit
	for i := range r.Units {
		u := r.Units[i]
		var used []string
		for _, name := range u.UsedDefines {
			if matches(name) {
				used = append(used, name)
			}
		}
		_, occurs := occFiles[u.Path]
		if len(used) == 0 && !occurs {
			continue
		}
		u.UsedDefines = used
		units = append(units, u)
	}

	var headers []model.Header
	for _, h := range r.Headers {
		if _, ok := occFiles[h.Path]; ok {
			headers = append(headers, h)
		}
	}

	return &model.Report{
		Root:         r.Root,
		Units:        units,
		Headers:      headers,
		Dependencies: filterDeps(r.Dependencies, unitPaths(units), headerPaths(headers), false),
		Macros:       macros,
		Occurrences:  occs,
	}
}

// FilterByFile returns a new Report restricted to units and headers whose
// path contains substr (case-insensitive), the headers those units include,
// and the macros occurring in any of the matched files.
func FilterByFile(r *model.Report, substr string) *model.Report {
	lower := strings.ToLower(substr)
	matches := func(path string) bool {
		return strings.Contains(strings.ToLower(path), lower)
	}

	var units []model.Unit
	for i := range r.Units {
		if matches(r.Units[i].Path) {
			units = append(units, r.Units[i])
		}
	}
	matchedUnits := unitPaths(units)

	included := make(map[string]struct{})
	for _, d := range r.Dependencies {
		if _, ok := matchedUnits[d.Source]; ok {
			included[d.Target] = struct{}{}
		}
	}
	var headers []model.Header
	for _, h := range r.Headers {
		_, inc := included[h.Path]
		if inc || matches(h.Path) {
			headers = append(headers, h)
		}
	}

	files := make(map[string]struct{})
	for p := range matchedUnits {
		files[p] = struct{}{}
	}
	for _, h := range headers {
		if matches(h.Path) {
			files[h.Path] = struct{}{}
		}
	}

	var occs []model.Occurrence
	names := make(map[string]struct{})
	for _, o := range r.Occurrences {
		if _, ok := files[o.File]; ok {
			occs = append(occs, o)
			names[o.Name] = struct{}{}
		}
	}
	var macros []model.Macro
	for _, m := range r.Macros {
		if _, ok := names[m.Name]; ok {
			macros = append(macros, m)
		}
	}

	return &model.Report{
		Root:         r.Root,
		Units:        units,
		Headers:      headers,
		Dependencies: filterDeps(r.Dependencies, matchedUnits, headerPaths(headers), true),
		Macros:       macros,
		Occurrences:  occs,
	}
}

// filterDeps keeps edges from a kept unit to a kept header. With fromUnit
// set, an edge from a kept unit is enough.
func filterDeps(deps []model.Dependency, units, headers map[string]struct{}, fromUnit bool) []model.Dependency {
	var out []model.Dependency
	for i := range deps {
		d := &deps[i]
		_, srcOK := units[d.Source]
		_, tgtOK := headers[d.Target]
		if srcOK && (tgtOK || fromUnit) {
			out = append(out, *d)
		}
	}
	return out
}

func unitPaths(units []model.Unit) map[string]struct{} {
	m := make(map[string]struct{}, len(units))
	for i := range units {
		m[units[i].Path] = struct{}{}
	}
	return m
}

func headerPaths(headers []model.Header) map[string]struct{} {
	m := make(map[string]struct{}, len(headers))
	for i := range headers {
		m[headers[i].Path] = struct{}{}
	}
	return m
}
