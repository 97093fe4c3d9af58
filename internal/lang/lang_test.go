package lang

import (
	"testing"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".c", "c"},
		{".C", "c"},
		{".cpp", "cpp"},
		{".cc", "cpp"},
		{".h", ""},
		{".go", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestIsHeader(t *testing.T) {
	t.Parallel()

	for ext, want := range map[string]bool{".h": true, ".hpp": true, ".c": false, ".txt": false} {
		if got := IsHeader(ext); got != want {
			t.Errorf("IsHeader(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"c", "cpp"} {
		l, ok := Languages[name]
		if !ok {
			t.Fatalf("%s language not registered", name)
		}
		if l.GetLanguage() == nil {
			t.Errorf("%s language is nil", name)
		}
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	p := Languages["c"].NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
}

func TestGetGuardQuery(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"c", "cpp"} {
		q, err := Languages[name].GetGuardQuery()
		if err != nil {
			t.Fatalf("%s GetGuardQuery: %v", name, err)
		}
		if q == nil {
			t.Fatalf("%s query is nil", name)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	if got := CollapseWhitespace("  (a  +\n\t b) "); got != "(a + b)" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}
