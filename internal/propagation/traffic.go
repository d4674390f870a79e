package propagation

import (
	"math"

	"github.com/talgya/gridcity/internal/world"
)

// TrafficGrid counts vehicles per cell with exponential decay.
type TrafficGrid struct {
	Field[uint16]
}

// NewTrafficGrid allocates an empty traffic grid.
func NewTrafficGrid(width, height int) *TrafficGrid {
	return &TrafficGrid{Field: NewField[uint16](width, height)}
}

// UpdateTraffic decays density by a quarter, then adds one per vehicle
// standing on a road cell.
func UpdateTraffic(t *TrafficGrid, g *world.Grid, vehicles []world.Pos) {
	for i, v := range t.Data {
		t.Data[i] = v - v/4
	}
	for _, p := range vehicles {
		if !g.InBounds(p.X, p.Y) || g.Get(p.X, p.Y).Type != world.Road {
			continue
		}
		i := p.Y*t.Width + p.X
		if t.Data[i] < math.MaxUint16 {
			t.Data[i]++
		}
	}
}

// Density implements roadgraph.TrafficView.
func (t *TrafficGrid) Density(x, y int) float64 {
	return float64(t.Get(x, y))
}

// Congestion is density over road capacity for a road cell, 0 otherwise.
func (t *TrafficGrid) Congestion(g *world.Grid, x, y int) float32 {
	c := g.Get(x, y)
	if c.Type != world.Road {
		return 0
	}
	capacity := c.RoadType.Capacity()
	if capacity == 0 {
		return 0
	}
	return float32(t.Get(x, y)) / float32(capacity)
}
