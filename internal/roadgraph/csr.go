// Package roadgraph flattens the road network into a compressed sparse row
// graph and runs A* searches over it.
package roadgraph

import (
	"github.com/talgya/gridcity/internal/world"
)

// CSR is an immutable adjacency view of the road network. The outgoing
// edges of node i are Neighbors[Offsets[i]:Offsets[i+1]].
type CSR struct {
	Nodes     []world.Pos
	Types     []world.RoadType
	Offsets   []uint32
	Neighbors []uint32
	Weights   []uint32

	index map[world.Pos]uint32
}

// Build constructs the graph. Nodes are ordered by (y, x); each node's
// edges follow N, S, E, W order. One-way cells only emit edges along their
// heading and cannot be entered head-on against it.
func Build(n *world.RoadNetwork) *CSR {
	nodes := n.Positions()
	g := &CSR{
		Nodes:   nodes,
		Types:   make([]world.RoadType, len(nodes)),
		Offsets: make([]uint32, len(nodes)+1),
		index:   make(map[world.Pos]uint32, len(nodes)),
	}
	for i, p := range nodes {
		g.index[p] = uint32(i)
		g.Types[i], _ = n.RoadType(p.X, p.Y)
	}

	dirs := [4]world.Direction{world.North, world.South, world.East, world.West}
	for i, p := range nodes {
		fromDir, fromOneWay := n.OneWayDirection(p.X, p.Y)
		for _, d := range dirs {
			dx, dy := d.Delta()
			q := world.Pos{X: p.X + dx, Y: p.Y + dy}
			j, ok := g.index[q]
			if !ok {
				continue
			}
			if fromOneWay && d != fromDir {
				continue
			}
			if toDir, toOneWay := n.OneWayDirection(q.X, q.Y); toOneWay && d == toDir.Opposite() {
				continue
			}
			g.Neighbors = append(g.Neighbors, j)
			g.Weights = append(g.Weights, 1)
		}
		g.Offsets[i+1] = uint32(len(g.Neighbors))
	}
	return g
}

// NodeCount returns the number of nodes.
func (g *CSR) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of directed edges.
func (g *CSR) EdgeCount() int { return len(g.Neighbors) }

// FindNodeIndex maps a grid position to its node index.
func (g *CSR) FindNodeIndex(x, y int) (uint32, bool) {
	i, ok := g.index[world.Pos{X: x, Y: y}]
	return i, ok
}

// Edges returns the outgoing neighbour indices and weights of node i.
func (g *CSR) Edges(i uint32) ([]uint32, []uint32) {
	lo, hi := g.Offsets[i], g.Offsets[i+1]
	return g.Neighbors[lo:hi], g.Weights[lo:hi]
}

// HasEdge reports whether a directed edge a→b exists.
func (g *CSR) HasEdge(a, b uint32) bool {
	nbrs, _ := g.Edges(a)
	for _, n := range nbrs {
		if n == b {
			return true
		}
	}
	return false
}
