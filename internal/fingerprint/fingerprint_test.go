package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefines(t *testing.T) {
	t.Parallel()

	base := Defines([]string{"A", "B"}, map[string]string{"A": "1"})
	if got := Defines([]string{"A", "B"}, map[string]string{"A": "1", "UNUSED": "x"}); got != base {
		t.Error("unused define changed the fingerprint")
	}
	if got := Defines([]string{"A", "B"}, map[string]string{"A": "2"}); got == base {
		t.Error("changed value kept the fingerprint")
	}
	if got := Defines([]string{"A", "B"}, map[string]string{"A": "1", "B": ""}); got == base {
		t.Error("defining a used macro kept the fingerprint")
	}
	if got := Defines([]string{"AB"}, map[string]string{}); got == Defines([]string{"A", "B"}, map[string]string{}) {
		t.Error("name boundaries collide")
	}
}

func TestFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.c")
	b := filepath.Join(dir, "b.h")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("int x;\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	h1, err := Files([]string{a, b})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	h2, err := Files([]string{b, a})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if h1 != h2 {
		t.Error("fingerprint depends on input order")
	}

	if err := os.WriteFile(b, []byte("int y;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h3, err := Files([]string{a, b})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if h3 == h1 {
		t.Error("content change kept the fingerprint")
	}

	if _, err := Files([]string{filepath.Join(dir, "missing.h")}); err == nil {
		t.Error("expected error for missing file")
	}
}
