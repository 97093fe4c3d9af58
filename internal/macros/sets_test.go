package macros

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/macroindex/internal/model"
)

func TestUsedDefinesInsert(t *testing.T) {
	t.Parallel()
	var s UsedDefines
	for _, n := range []string{"M", "B", "Z", "B", "A", "M"} {
		s.Insert(model.UsedDefine{Name: n})
	}
	if diff := cmp.Diff([]string{"A", "B", "M", "Z"}, s.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if !s.Contains("M") || s.Contains("Q") {
		t.Errorf("Contains mismatch on %v", s.Names())
	}
}

func TestUsedDefinesInsertKeepsFirstLocation(t *testing.T) {
	t.Parallel()
	var s UsedDefines
	if !s.Insert(model.UsedDefine{Name: "X", File: 4}) {
		t.Fatal("first insert rejected")
	}
	if s.Insert(model.UsedDefine{Name: "X", File: 9}) {
		t.Fatal("duplicate insert accepted")
	}
	if s[0].File != 4 {
		t.Errorf("file = %d, want 4", s[0].File)
	}
}

func TestMergeUsedDefines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		confirmed UsedDefines
		tentative UsedDefines
		want      UsedDefines
	}{
		{name: "both empty", want: UsedDefines{}},
		{
			name:      "only tentative",
			tentative: UsedDefines{{Name: "A"}, {Name: "C"}},
			want:      UsedDefines{{Name: "A"}, {Name: "C"}},
		},
		{
			name:      "interleaved",
			confirmed: UsedDefines{{Name: "B"}, {Name: "D"}},
			tentative: UsedDefines{{Name: "A"}, {Name: "C"}, {Name: "E"}},
			want:      UsedDefines{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E"}},
		},
		{
			name:      "confirmed wins ties",
			confirmed: UsedDefines{{Name: "A", File: 1}, {Name: "B", File: 1}},
			tentative: UsedDefines{{Name: "B", File: 2}},
			want:      UsedDefines{{Name: "A", File: 1}, {Name: "B", File: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MergeUsedDefines(tt.confirmed, tt.tentative)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("merge (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUsedDefinesRetain(t *testing.T) {
	t.Parallel()
	s := UsedDefines{{Name: "A"}, {Name: "B_EXPORT"}, {Name: "C"}, {Name: "EXPORT"}}
	s.Retain(func(ud model.UsedDefine) bool { return !isExport(ud.Name) })
	if diff := cmp.Diff([]string{"A", "C"}, s.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

type directiveSlice []model.Directive

func (d directiveSlice) Directive(id model.DirectiveID) (model.Directive, bool) {
	if id == model.NoDirective || int(id) >= len(d) {
		return model.Directive{}, false
	}
	return d[id], true
}

func TestFirstMacroInfo(t *testing.T) {
	t.Parallel()
	first := &model.MacroInfo{ID: 7, Name: "M"}
	second := &model.MacroInfo{ID: 8, Name: "M"}
	table := directiveSlice{
		{},
		{Kind: model.DefineDirective, Name: "M", Info: first},
		{Kind: model.UndefineDirective, Name: "M", Prev: 1},
		{Kind: model.DefineDirective, Name: "M", Info: second, Prev: 2},
		{Kind: model.UndefineDirective, Name: "N"},
	}

	if got := FirstMacroInfo(table, 3); got != first {
		t.Errorf("FirstMacroInfo(3) = %+v, want first definition", got)
	}
	if got := FirstMacroInfo(table, 1); got != first {
		t.Errorf("FirstMacroInfo(1) = %+v, want first definition", got)
	}
	if got := FirstMacroInfo(table, model.NoDirective); got != nil {
		t.Errorf("FirstMacroInfo(none) = %+v, want nil", got)
	}
	if got := FirstMacroInfo(table, 4); got != nil {
		t.Errorf("FirstMacroInfo(undef only) = %+v, want nil", got)
	}
	if got := FirstMacroInfo(table, 99); got != nil {
		t.Errorf("FirstMacroInfo(unknown) = %+v, want nil", got)
	}
}

func TestFileSetInsert(t *testing.T) {
	t.Parallel()
	var s FileSet
	for _, id := range []model.FilePathID{5, 2, 0, 5, 9, 2} {
		s.Insert(id)
	}
	if diff := cmp.Diff(FileSet{2, 5, 9}, s); diff != "" {
		t.Errorf("set (-want +got):\n%s", diff)
	}
	if s.Contains(0) || !s.Contains(9) {
		t.Errorf("Contains mismatch on %v", s)
	}
}

func TestSymbolTableFirstWriterWins(t *testing.T) {
	t.Parallel()
	tbl := NewSymbolTable()
	if !tbl.Insert(model.SymbolEntry{Identity: 1, USR: "first"}) {
		t.Fatal("insert rejected")
	}
	if tbl.Insert(model.SymbolEntry{Identity: 1, USR: "second"}) {
		t.Fatal("duplicate insert accepted")
	}
	tbl.Append(model.SourceLocationEntry{Identity: 1})
	tbl.Append(model.SourceLocationEntry{Identity: 1})
	if tbl.Len() != 1 || tbl.Occurrences() != 2 {
		t.Errorf("len = %d occurrences = %d", tbl.Len(), tbl.Occurrences())
	}
	if tbl.entries[1].USR != "first" {
		t.Errorf("usr = %q, want first", tbl.entries[1].USR)
	}
}
