// Package graph builds the include graph of translation units and ranks the
// included files with PageRank.
package graph

import (
	"math"
	"sort"

	"github.com/phobologic/macroindex/internal/model"
)

// BuildGraph creates one edge from every unit to every file it included.
// Failed units contribute nothing.
func BuildGraph(units []model.Unit) []model.Dependency {
	type edgeKey struct{ src, tgt string }
	seen := make(map[edgeKey]struct{})

	var deps []model.Dependency
	for i := range units {
		u := &units[i]
		if u.Status == model.Failed {
			continue
		}
		for _, inc := range u.Includes {
			if inc == u.Path {
				continue // no self-edges
			}
			key := edgeKey{u.Path, inc}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			deps = append(deps, model.Dependency{Source: u.Path, Target: inc})
		}
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

// Rank applies PageRank to the include graph and returns the included files
// ordered by rank descending, then by path. Units themselves are graph nodes
// but are not returned.
func Rank(units []model.Unit, deps []model.Dependency) []model.Header {
	nodes := make(map[string]struct{})
	outEdges := make(map[string][]string) // node → list of targets
	outDegree := make(map[string]int)     // total out-edges per node
	includedBy := make(map[string]int)

	for i := range units {
		nodes[units[i].Path] = struct{}{}
	}
	for _, d := range deps {
		nodes[d.Source] = struct{}{}
		nodes[d.Target] = struct{}{}
		outEdges[d.Source] = append(outEdges[d.Source], d.Target)
		outDegree[d.Source]++
		includedBy[d.Target]++
	}
	if len(includedBy) == 0 {
		return nil
	}

	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)

	headers := make([]model.Header, 0, len(includedBy))
	for _, path := range sortedKeys(includedBy) {
		headers = append(headers, model.Header{
			Path:       path,
			Rank:       ranks[path],
			IncludedBy: includedBy[path],
		})
	}

	// Ranks that differ only by summation order count as ties.
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].Rank-headers[j].Rank > rankEpsilon
	})

	return headers
}

const rankEpsilon = 1e-12

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		// Distribute rank through edges
		for src, targets := range outEdges {
			deg := float64(outDegree[src])
			contrib := alpha * rank[src] / deg
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		// Check convergence
		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
