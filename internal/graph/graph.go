// Package graph implements the directed pod-graph used by the
// controller's ServiceWatcher. Keyed by UUID, with O(1) edge
// insert/remove and predecessor enumeration via a reverse-edge index —
// a hash-keyed adjacency map suffices here, per the Design Notes; a
// full adjacency matrix would be wasted memory for a handful of pods.
package graph

import (
	"sort"

	"github.com/google/uuid"
)

// DiGraph is a directed graph with unit (unlabeled) edges.
type DiGraph struct {
	out  map[uuid.UUID]map[uuid.UUID]struct{}
	in   map[uuid.UUID]map[uuid.UUID]struct{}
}

// New creates an empty DiGraph.
func New() *DiGraph {
	return &DiGraph{
		out: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		in:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// AddNode inserts a node with no edges if it doesn't already exist.
func (g *DiGraph) AddNode(id uuid.UUID) {
	if _, ok := g.out[id]; ok {
		return
	}
	g.out[id] = make(map[uuid.UUID]struct{})
	g.in[id] = make(map[uuid.UUID]struct{})
}

// ContainsNode reports whether id is a node of the graph.
func (g *DiGraph) ContainsNode(id uuid.UUID) bool {
	_, ok := g.out[id]
	return ok
}

// NodeCount returns the number of nodes.
func (g *DiGraph) NodeCount() int {
	return len(g.out)
}

// Nodes returns all node ids, sorted for deterministic iteration (tests,
// DOT export).
func (g *DiGraph) Nodes() []uuid.UUID {
	nodes := make([]uuid.UUID, 0, len(g.out))
	for id := range g.out {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })
	return nodes
}

// AddEdge adds a directed edge from -> to. Both endpoints must already be
// nodes; if either is missing this is a no-op.
func (g *DiGraph) AddEdge(from, to uuid.UUID) {
	if _, ok := g.out[from]; !ok {
		return
	}
	if _, ok := g.out[to]; !ok {
		return
	}
	g.out[from][to] = struct{}{}
	g.in[to][from] = struct{}{}
}

// ContainsEdge reports whether a directed edge from -> to exists.
func (g *DiGraph) ContainsEdge(from, to uuid.UUID) bool {
	neighbors, ok := g.out[from]
	if !ok {
		return false
	}
	_, ok = neighbors[to]
	return ok
}

// RemoveEdge removes the directed edge from -> to, if present.
func (g *DiGraph) RemoveEdge(from, to uuid.UUID) {
	if neighbors, ok := g.out[from]; ok {
		delete(neighbors, to)
	}
	if preds, ok := g.in[to]; ok {
		delete(preds, from)
	}
}

// RemoveNode removes id and every edge incident to it (incoming and
// outgoing). No-op if id is not a node.
func (g *DiGraph) RemoveNode(id uuid.UUID) {
	if _, ok := g.out[id]; !ok {
		return
	}
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// OutNeighbors returns id's outgoing neighbors, sorted.
func (g *DiGraph) OutNeighbors(id uuid.UUID) []uuid.UUID {
	return sortedKeys(g.out[id])
}

// Predecessors returns id's incoming neighbors (nodes with an edge
// pointing at id), sorted. This is the enumeration remove_pod needs
// before dropping a node.
func (g *DiGraph) Predecessors(id uuid.UUID) []uuid.UUID {
	return sortedKeys(g.in[id])
}

// EdgeCount returns the total number of directed edges.
func (g *DiGraph) EdgeCount() int {
	n := 0
	for _, neighbors := range g.out {
		n += len(neighbors)
	}
	return n
}

func sortedKeys(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
