package macros

import (
	"sort"

	"github.com/phobologic/macroindex/internal/model"
)

// FileSet is a sorted set of file ids.
type FileSet []model.FilePathID

// Insert adds id if it is valid and not present.
func (s *FileSet) Insert(id model.FilePathID) bool {
	if !id.IsValid() {
		return false
	}
	list := *s
	i := sort.Search(len(list), func(i int) bool { return list[i] >= id })
	if i < len(list) && list[i] == id {
		return false
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = id
	*s = list
	return true
}

// Contains reports whether id is present.
func (s FileSet) Contains(id model.FilePathID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}
