package roadgraph

import (
	"container/heap"
	"math"

	"github.com/talgya/gridcity/internal/world"
)

// BPR parameters.
const (
	BPRAlpha = 0.15
	BPRBeta  = 4.0
)

// minFreeFlow is the cheapest possible cost of a single unit step, used to
// keep the traffic-aware heuristic admissible.
var minFreeFlow = FreeFlowTime(1, world.Highway)

// TrafficView supplies the current traffic density at a cell.
type TrafficView interface {
	Density(x, y int) float64
}

// FreeFlowTime is the uncongested travel time over distance cells.
func FreeFlowTime(distance float64, rt world.RoadType) float64 {
	return distance / float64(rt.Speed()) * 100
}

// BPRTravelTime applies the Bureau of Public Roads volume-delay function.
func BPRTravelTime(freeFlow, volume, capacity float64) float64 {
	if capacity <= 0 {
		return freeFlow
	}
	return freeFlow * (1 + BPRAlpha*math.Pow(volume/capacity, BPRBeta))
}

type openNode struct {
	idx uint32
	g   float64
	f   float64
}

type openSet []openNode

func (h openSet) Len() int { return len(h) }
func (h openSet) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].g != h[j].g {
		return h[i].g < h[j].g
	}
	return h[i].idx < h[j].idx
}
func (h openSet) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *openSet) Push(x any)   { *h = append(*h, x.(openNode)) }
func (h *openSet) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// FindPath runs unit-weight A* with a Manhattan heuristic. It returns the
// node sequence from start to goal inclusive, or nil when either endpoint
// is missing from the graph or the goal is unreachable.
func (g *CSR) FindPath(start, goal world.Pos) []world.Pos {
	path, _ := g.search(start, goal, func(_ uint32, w uint32) float64 { return float64(w) }, 1)
	return path
}

// FindPathWithTraffic runs A* with BPR travel time as edge cost. The
// volume on an edge is the traffic density at its destination cell.
func (g *CSR) FindPathWithTraffic(start, goal world.Pos, traffic TrafficView) ([]world.Pos, float64) {
	cost := func(to uint32, _ uint32) float64 {
		rt := g.Types[to]
		p := g.Nodes[to]
		v := 0.0
		if traffic != nil {
			v = traffic.Density(p.X, p.Y)
		}
		return BPRTravelTime(FreeFlowTime(1, rt), v, float64(rt.Capacity()))
	}
	return g.search(start, goal, cost, minFreeFlow)
}

func (g *CSR) search(start, goal world.Pos, edgeCost func(to, w uint32) float64, hScale float64) ([]world.Pos, float64) {
	si, ok := g.index[start]
	if !ok {
		return nil, 0
	}
	gi, ok := g.index[goal]
	if !ok {
		return nil, 0
	}
	if si == gi {
		return []world.Pos{start}, 0
	}

	h := func(i uint32) float64 {
		p := g.Nodes[i]
		return float64(abs(p.X-goal.X)+abs(p.Y-goal.Y)) * hScale
	}

	n := len(g.Nodes)
	gScore := make([]float64, n)
	for i := range gScore {
		gScore[i] = math.Inf(1)
	}
	came := make([]int32, n)
	for i := range came {
		came[i] = -1
	}
	closed := make([]bool, n)

	open := &openSet{{idx: si, g: 0, f: h(si)}}
	gScore[si] = 0

	for open.Len() > 0 {
		cur := heap.Pop(open).(openNode)
		if closed[cur.idx] {
			continue
		}
		if cur.idx == gi {
			return g.reconstruct(came, gi), cur.g
		}
		closed[cur.idx] = true

		nbrs, weights := g.Edges(cur.idx)
		for k, nb := range nbrs {
			if closed[nb] {
				continue
			}
			tentative := cur.g + edgeCost(nb, weights[k])
			if tentative < gScore[nb] {
				gScore[nb] = tentative
				came[nb] = int32(cur.idx)
				heap.Push(open, openNode{idx: nb, g: tentative, f: tentative + h(nb)})
			}
		}
	}
	return nil, 0
}

func (g *CSR) reconstruct(came []int32, goal uint32) []world.Pos {
	var rev []world.Pos
	for i := int32(goal); i >= 0; i = came[i] {
		rev = append(rev, g.Nodes[i])
	}
	out := make([]world.Pos, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
