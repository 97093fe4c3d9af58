package macros

import (
	"sort"
	"strings"

	"github.com/phobologic/macroindex/internal/model"
)

// UsedDefines is a sequence of used defines kept sorted by name with no
// duplicate names.
type UsedDefines []model.UsedDefine

// Insert adds ud unless an entry with the same name exists.
func (s *UsedDefines) Insert(ud model.UsedDefine) bool {
	list := *s
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Name >= ud.Name
	})
	if i < len(list) && list[i].Name == ud.Name {
		return false
	}
	list = append(list, model.UsedDefine{})
	copy(list[i+1:], list[i:])
	list[i] = ud
	*s = list
	return true
}

// Contains reports whether name is present.
func (s UsedDefines) Contains(name string) bool {
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Name >= name
	})
	return i < len(s) && s[i].Name == name
}

// Names returns the define names in order.
func (s UsedDefines) Names() []string {
	names := make([]string, len(s))
	for i, ud := range s {
		names[i] = ud.Name
	}
	return names
}

// Retain keeps the entries for which keep returns true, preserving order.
func (s *UsedDefines) Retain(keep func(model.UsedDefine) bool) {
	list := *s
	n := 0
	for _, ud := range list {
		if keep(ud) {
			list[n] = ud
			n++
		}
	}
	clear(list[n:])
	*s = list[:n]
}

// MergeUsedDefines merges two sorted sets into a new sorted set. On equal
// names the entry from confirmed wins.
func MergeUsedDefines(confirmed, tentative UsedDefines) UsedDefines {
	merged := make(UsedDefines, 0, len(confirmed)+len(tentative))
	i, j := 0, 0
	for i < len(confirmed) && j < len(tentative) {
		switch c, t := confirmed[i], tentative[j]; {
		case t.Name < c.Name:
			merged = append(merged, t)
			j++
		case c.Name < t.Name:
			merged = append(merged, c)
			i++
		default:
			merged = append(merged, c)
			i++
			j++
		}
	}
	merged = append(merged, confirmed[i:]...)
	merged = append(merged, tentative[j:]...)
	return merged
}

// isExport reports whether name looks like a symbol visibility annotation.
func isExport(name string) bool {
	return strings.Contains(name, "EXPORT")
}
