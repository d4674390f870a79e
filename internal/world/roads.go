package world

import "sort"

// RoadNetwork is the canonical set of road cells. The grid's Type and
// RoadType fields mirror it and are only written through this type.
type RoadNetwork struct {
	roads         map[Pos]RoadType
	oneWay        map[Pos]Direction
	intersections map[Pos]bool
	dirty         bool
}

// Segment is a maximal run of road cells between two nodes (intersections
// or dead ends), endpoints included.
type Segment struct {
	Cells []Pos `json:"cells"`
}

// NewRoadNetwork returns an empty network.
func NewRoadNetwork() *RoadNetwork {
	return &RoadNetwork{
		roads:         make(map[Pos]RoadType),
		oneWay:        make(map[Pos]Direction),
		intersections: make(map[Pos]bool),
	}
}

// PlaceRoad lays a road of type rt at (x, y). It fails without mutating
// anything when the cell is out of bounds, water, or occupied by a
// building. Re-placing the same type is a successful no-op. One-way roads
// placed this way point East; use PlaceOneWay to choose the direction.
func (n *RoadNetwork) PlaceRoad(g *Grid, x, y int, rt RoadType) bool {
	return n.place(g, x, y, rt, East)
}

// PlaceOneWay lays a one-way road heading in dir.
func (n *RoadNetwork) PlaceOneWay(g *Grid, x, y int, dir Direction) bool {
	return n.place(g, x, y, OneWay, dir)
}

func (n *RoadNetwork) place(g *Grid, x, y int, rt RoadType, dir Direction) bool {
	if !g.InBounds(x, y) || !rt.Valid() {
		return false
	}
	c := &g.Cells[y*g.Width+x]
	if c.Type == Water || c.HasBuilding() {
		return false
	}
	p := Pos{X: x, Y: y}
	if c.Type == Road && c.RoadType == rt {
		if rt != OneWay || n.oneWay[p] == dir {
			return true
		}
	}

	c.Type = Road
	c.RoadType = rt
	c.Zone = ZoneNone
	n.roads[p] = rt
	if rt == OneWay {
		n.oneWay[p] = dir
	} else {
		delete(n.oneWay, p)
	}
	n.refreshIntersections(g, x, y)
	n.dirty = true
	return true
}

// RemoveRoad turns the road at (x, y) back into grass.
func (n *RoadNetwork) RemoveRoad(g *Grid, x, y int) bool {
	p := Pos{X: x, Y: y}
	if _, ok := n.roads[p]; !ok || !g.InBounds(x, y) {
		return false
	}
	c := &g.Cells[y*g.Width+x]
	c.Type = Grass
	c.RoadType = Local
	delete(n.roads, p)
	delete(n.oneWay, p)
	n.refreshIntersections(g, x, y)
	n.dirty = true
	return true
}

func (n *RoadNetwork) refreshIntersections(g *Grid, x, y int) {
	n.updateIntersection(g, x, y)
	nbrs, cnt := g.Neighbors4(x, y)
	for _, q := range nbrs[:cnt] {
		n.updateIntersection(g, q.X, q.Y)
	}
}

func (n *RoadNetwork) updateIntersection(g *Grid, x, y int) {
	p := Pos{X: x, Y: y}
	if _, ok := n.roads[p]; ok && n.roadDegree(g, x, y) >= 3 {
		n.intersections[p] = true
		return
	}
	delete(n.intersections, p)
}

func (n *RoadNetwork) roadDegree(g *Grid, x, y int) int {
	nbrs, cnt := g.Neighbors4(x, y)
	d := 0
	for _, q := range nbrs[:cnt] {
		if _, ok := n.roads[q]; ok {
			d++
		}
	}
	return d
}

// IsRoad reports whether (x, y) holds a road.
func (n *RoadNetwork) IsRoad(x, y int) bool {
	_, ok := n.roads[Pos{X: x, Y: y}]
	return ok
}

// RoadType returns the type of the road at (x, y).
func (n *RoadNetwork) RoadType(x, y int) (RoadType, bool) {
	rt, ok := n.roads[Pos{X: x, Y: y}]
	return rt, ok
}

// OneWayDirection returns the heading of a one-way road cell.
func (n *RoadNetwork) OneWayDirection(x, y int) (Direction, bool) {
	d, ok := n.oneWay[Pos{X: x, Y: y}]
	return d, ok
}

// Len returns the number of road cells.
func (n *RoadNetwork) Len() int { return len(n.roads) }

// Dirty reports whether the network changed since the last ClearDirty.
func (n *RoadNetwork) Dirty() bool { return n.dirty }

// MarkDirty forces consumers to rebuild derived structures.
func (n *RoadNetwork) MarkDirty() { n.dirty = true }

func (n *RoadNetwork) ClearDirty() { n.dirty = false }

// Positions returns every road cell sorted by (y, x).
func (n *RoadNetwork) Positions() []Pos {
	out := make([]Pos, 0, len(n.roads))
	for p := range n.roads {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// Intersections returns intersection cells sorted by (y, x).
func (n *RoadNetwork) Intersections() []Pos {
	out := make([]Pos, 0, len(n.intersections))
	for p := range n.intersections {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// MaintenancePerMonth sums the monthly upkeep of every road cell.
func (n *RoadNetwork) MaintenancePerMonth() float64 {
	total := 0.0
	for _, p := range n.Positions() {
		total += n.roads[p].MaintenanceCost()
	}
	return total
}

// Segments splits the network into runs between nodes. A node is any road
// cell whose road degree is not exactly two. Closed loops without nodes
// come out as a single segment starting at their lowest (y, x) cell.
func (n *RoadNetwork) Segments(g *Grid) []Segment {
	type edge struct{ a, b Pos }
	seen := make(map[edge]bool)
	isNode := func(p Pos) bool { return n.roadDegree(g, p.X, p.Y) != 2 }
	roadNbrs := func(p Pos) []Pos {
		nbrs, cnt := g.Neighbors4(p.X, p.Y)
		var out []Pos
		for _, q := range nbrs[:cnt] {
			if _, ok := n.roads[q]; ok {
				out = append(out, q)
			}
		}
		return out
	}

	var segs []Segment
	walk := func(start, next Pos) {
		if seen[edge{start, next}] {
			return
		}
		cells := []Pos{start}
		prev, cur := start, next
		for {
			seen[edge{prev, cur}] = true
			seen[edge{cur, prev}] = true
			cells = append(cells, cur)
			if isNode(cur) || cur == start {
				break
			}
			var step Pos
			found := false
			for _, q := range roadNbrs(cur) {
				if q != prev {
					step, found = q, true
					break
				}
			}
			if !found {
				break
			}
			prev, cur = cur, step
		}
		segs = append(segs, Segment{Cells: cells})
	}

	positions := n.Positions()
	for _, p := range positions {
		if !isNode(p) {
			continue
		}
		nbrs := roadNbrs(p)
		if len(nbrs) == 0 {
			segs = append(segs, Segment{Cells: []Pos{p}})
			continue
		}
		for _, q := range nbrs {
			walk(p, q)
		}
	}
	for _, p := range positions {
		if isNode(p) {
			continue
		}
		for _, q := range roadNbrs(p) {
			walk(p, q)
			break
		}
	}
	return segs
}

// Rebuild reconstructs the network from the grid's road cells. Used after
// loading a grid whose network blob carried no one-way directions.
func (n *RoadNetwork) Rebuild(g *Grid) {
	n.roads = make(map[Pos]RoadType)
	n.intersections = make(map[Pos]bool)
	for i := range g.Cells {
		if g.Cells[i].Type == Road {
			x, y := g.Coords(i)
			n.roads[Pos{X: x, Y: y}] = g.Cells[i].RoadType
		}
	}
	for p := range n.oneWay {
		if n.roads[p] != OneWay {
			delete(n.oneWay, p)
		}
	}
	for p := range n.roads {
		n.updateIntersection(g, p.X, p.Y)
	}
	n.dirty = true
}

// SetOneWayDirection records a heading for an existing one-way cell
// without touching the grid. Used by the save decoder.
func (n *RoadNetwork) SetOneWayDirection(p Pos, d Direction) {
	n.oneWay[p] = d
}

func sortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].X < ps[j].X
	})
}
