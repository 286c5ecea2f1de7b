package ocean

import "slices"

// NodeKind classifies frame graph nodes.
type NodeKind int

const (
	NodeLaunch NodeKind = iota
	NodeRead
	NodeMarker
	NodeAcquire
	NodeRelease
)

// Node is one recorded command and the nodes it waits for.
type Node struct {
	ID    int
	Label string
	Kind  NodeKind
	Deps  []int
}

// FrameGraph is the dependency graph recorded while encoding one frame.
type FrameGraph struct {
	Nodes []Node
}

func (g *FrameGraph) reset() { g.Nodes = g.Nodes[:0] }

func (g *FrameGraph) add(label string, kind NodeKind, deps []int) int {
	id := len(g.Nodes)
	ds := make([]int, 0, len(deps))
	for _, d := range deps {
		if d >= 0 && !slices.Contains(ds, d) {
			ds = append(ds, d)
		}
	}
	g.Nodes = append(g.Nodes, Node{ID: id, Label: label, Kind: kind, Deps: ds})
	return id
}

// Clone returns a deep copy of g.
func (g *FrameGraph) Clone() *FrameGraph {
	out := &FrameGraph{Nodes: make([]Node, len(g.Nodes))}
	for i, n := range g.Nodes {
		n.Deps = slices.Clone(n.Deps)
		out.Nodes[i] = n
	}
	return out
}

// Acyclic runs Kahn's algorithm over the recorded edges.
func (g *FrameGraph) Acyclic() bool {
	indeg := make([]int, len(g.Nodes))
	dependents := g.dependents()
	for _, n := range g.Nodes {
		indeg[n.ID] = len(n.Deps)
	}
	queue := make([]int, 0, len(g.Nodes))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, next := range dependents[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return seen == len(g.Nodes)
}

func (g *FrameGraph) dependents() [][]int {
	out := make([][]int, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, d := range n.Deps {
			if d >= 0 && d < len(g.Nodes) {
				out[d] = append(out[d], n.ID)
			}
		}
	}
	return out
}

// Terminals lists the nodes nothing else waits for.
func (g *FrameGraph) Terminals() []int {
	dependents := g.dependents()
	var out []int
	for id, ds := range dependents {
		if len(ds) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// TerminalsFrom lists the terminal nodes reachable from start.
func (g *FrameGraph) TerminalsFrom(start int) []int {
	if start < 0 || start >= len(g.Nodes) {
		return nil
	}
	dependents := g.dependents()
	seen := make([]bool, len(g.Nodes))
	stack := []int{start}
	var out []int
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if len(dependents[id]) == 0 {
			out = append(out, id)
		}
		stack = append(stack, dependents[id]...)
	}
	slices.Sort(out)
	return out
}

// Find returns the first node of the given kind, or -1.
func (g *FrameGraph) Find(kind NodeKind) int {
	for _, n := range g.Nodes {
		if n.Kind == kind {
			return n.ID
		}
	}
	return -1
}

// Count returns how many nodes carry label.
func (g *FrameGraph) Count(label string) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Label == label {
			n++
		}
	}
	return n
}
