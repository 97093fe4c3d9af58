package graph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/macroindex/internal/model"
)

func TestBuildGraph(t *testing.T) {
	t.Parallel()

	units := []model.Unit{
		{Path: "src/b.c", Status: model.Indexed, Includes: []string{"include/common.h", "src/b.h"}},
		{Path: "src/a.c", Status: model.Reused, Includes: []string{"include/common.h"}},
		{Path: "src/broken.c", Status: model.Failed, Includes: []string{"include/common.h"}},
	}

	want := []model.Dependency{
		{Source: "src/a.c", Target: "include/common.h"},
		{Source: "src/b.c", Target: "include/common.h"},
		{Source: "src/b.c", Target: "src/b.h"},
	}
	if diff := cmp.Diff(want, BuildGraph(units)); diff != "" {
		t.Errorf("BuildGraph mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraphNoSelfEdge(t *testing.T) {
	t.Parallel()

	units := []model.Unit{
		{Path: "a.c", Status: model.Indexed, Includes: []string{"a.c", "a.c"}},
	}

	deps := BuildGraph(units)
	if len(deps) != 0 {
		t.Errorf("expected 0 deps (no self-edges), got %d", len(deps))
	}
}

func TestBuildGraphDeduplicates(t *testing.T) {
	t.Parallel()

	units := []model.Unit{
		{Path: "a.c", Status: model.Indexed, Includes: []string{"x.h", "x.h"}},
	}

	deps := BuildGraph(units)
	if len(deps) != 1 {
		t.Errorf("expected 1 dep, got %d", len(deps))
	}
}

func TestRankNoIncludes(t *testing.T) {
	t.Parallel()

	units := []model.Unit{{Path: "a.c"}, {Path: "b.c"}}
	if headers := Rank(units, nil); headers != nil {
		t.Errorf("expected no headers, got %+v", headers)
	}
}

func TestRankWithEdges(t *testing.T) {
	t.Parallel()

	units := []model.Unit{
		{Path: "a.c", Status: model.Indexed, Includes: []string{"common.h", "a.h"}},
		{Path: "b.c", Status: model.Indexed, Includes: []string{"common.h"}},
		{Path: "c.c", Status: model.Indexed, Includes: []string{"common.h", "c.h"}},
	}
	deps := BuildGraph(units)
	headers := Rank(units, deps)

	if len(headers) != 3 {
		t.Fatalf("expected 3 headers, got %d", len(headers))
	}
	if headers[0].Path != "common.h" || headers[0].IncludedBy != 3 {
		t.Errorf("top header: %+v", headers[0])
	}
	// a.h and c.h are symmetric; ties are broken by path.
	if headers[1].Path != "a.h" || headers[2].Path != "c.h" {
		t.Errorf("tie order: %q, %q", headers[1].Path, headers[2].Path)
	}
	if math.Abs(headers[1].Rank-headers[2].Rank) > 1e-9 {
		t.Errorf("symmetric headers ranked differently: %v vs %v", headers[1].Rank, headers[2].Rank)
	}
	for i := 1; i < len(headers); i++ {
		if headers[i].Rank > headers[i-1].Rank+1e-9 {
			t.Errorf("not sorted by rank at %d", i)
		}
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	if headers := Rank(nil, nil); headers != nil {
		t.Errorf("expected nil, got %+v", headers)
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	t.Parallel()

	nodes := map[string]struct{}{"a": {}, "b": {}, "x": {}}
	out := map[string][]string{"a": {"x"}, "b": {"x"}}
	deg := map[string]int{"a": 1, "b": 1}

	ranks := pageRank(nodes, out, deg, 0.85, 100, 1e-9)
	var sum float64
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("ranks sum to %v, want 1", sum)
	}
	if ranks["x"] <= ranks["a"] {
		t.Errorf("included node should outrank includers: %v", ranks)
	}
}
