package usr

import (
	"testing"

	"github.com/phobologic/macroindex/internal/model"
)

func TestForMacro(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		macro  string
		pos    model.Position
		want   string
		wantOK bool
	}{
		{
			name:   "user header",
			macro:  "FOO",
			pos:    model.Position{File: "/src/include/foo.h", Offset: 42},
			want:   "c:foo.h@42@macro@FOO",
			wantOK: true,
		},
		{
			name:   "system header",
			macro:  "EOF",
			pos:    model.Position{File: "/usr/include/stdio.h", Offset: 900, System: true},
			want:   "c:@macro@EOF",
			wantOK: true,
		},
		{
			name:   "command line",
			macro:  "NDEBUG",
			pos:    model.Position{File: "<command line>", Offset: 3},
			want:   "c:@macro@NDEBUG",
			wantOK: true,
		},
		{name: "empty name", macro: "", pos: model.Position{File: "a.h"}},
		{name: "digit first", macro: "1X", pos: model.Position{File: "a.h"}},
		{name: "no buffer", macro: "X", pos: model.Position{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ForMacro(tt.macro, tt.pos)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ForMacro(%q) = %q, %v; want %q, %v", tt.macro, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestGeneratorMatchesForMacro(t *testing.T) {
	t.Parallel()
	pos := model.Position{File: "main.c", Offset: 7}
	got, ok := Generator{}.Generate("A", pos)
	if !ok || got != "c:main.c@7@macro@A" {
		t.Errorf("Generate = %q, %v", got, ok)
	}
}
