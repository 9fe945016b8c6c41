package scene

import (
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/ordering"
)

// CycleWarning is a loop of group anchors found before any sync runs.
//
// The engine rejects such a configuration at sync time with a CYCLE error;
// finding it statically lets validate and plan fail early.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`
}

// groupGraph maps a group to the group its anchor references. Every group
// has at most one outgoing edge.
type groupGraph struct {
	nodes []string
	edges map[string][]string
}

// AnalyzeCycles finds circular group references.
//
// It builds the anchor graph (group -> group:anchor target) and runs
// Tarjan's algorithm over it. Each strongly connected component with more
// than one node, or a group anchored to itself, is one cycle. Nodes are
// visited in declaration order, so results are deterministic.
func AnalyzeCycles(groups []Group) []CycleWarning {
	graph := buildGroupGraph(groups)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(scc, graph)
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: ordering.NewCycleError(path).Error(),
				Level:   "error",
			})
		}
	}
	return warnings
}

func buildGroupGraph(groups []Group) groupGraph {
	g := groupGraph{edges: make(map[string][]string)}
	declared := make(map[string]bool, len(groups))
	for _, grp := range groups {
		declared[grp.Name] = true
	}
	for _, grp := range groups {
		g.nodes = append(g.nodes, grp.Name)
		if grp.Ordering.Anchor.Kind() != ir.AnchorGroup {
			continue
		}
		if target := grp.Ordering.Anchor.GroupName(); declared[target] {
			g.edges[grp.Name] = append(g.edges[grp.Name], target)
		}
	}
	return g
}

func hasSelfLoop(node string, graph groupGraph) bool {
	for _, neighbor := range graph.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(graph groupGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks the cycle starting at the member declared
// first, ending where it started.
func reconstructCyclePath(scc []string, graph groupGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	var start string
	for _, n := range graph.nodes {
		if members[n] {
			start = n
			break
		}
	}

	path := []string{start}
	current := start
	for range scc {
		next := ""
		for _, w := range graph.edges[current] {
			if members[w] {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
