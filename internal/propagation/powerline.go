package propagation

import (
	"github.com/talgya/gridcity/internal/world"
)

// Power line tuning.
const (
	PowerServiceRadius  = 6    // cells reached from a line cell
	LineLossPerTenCells = 0.02 // efficiency lost per 10 cells of line
)

// PowerLines is the auto-installed transmission network that follows roads.
type PowerLines struct {
	Efficiency       []float32 // per cell; 0 for non-line cells
	Line             []bool
	LineCellCount    int
	PoweredCellCount int
}

// NewPowerLines allocates state for n cells.
func NewPowerLines(n int) *PowerLines {
	return &PowerLines{Efficiency: make([]float32, n), Line: make([]bool, n)}
}

// LineEfficiency is the transmission efficiency at a given line distance.
func LineEfficiency(distance int) float32 {
	e := 1 - float32(distance)/10*LineLossPerTenCells
	if e < 0 {
		return 0
	}
	if e > 1 {
		return 1
	}
	return e
}

// UpdatePowerLines grows lines from each plant through road cells, then
// powers every non-water cell within PowerServiceRadius of a line. It only
// ever sets has_power; UpdateUtilities clears it earlier in the cycle.
func UpdatePowerLines(g *world.Grid, plants []world.Pos, pl *PowerLines) {
	n := len(g.Cells)
	if len(pl.Line) != n {
		*pl = *NewPowerLines(n)
	}
	clear(pl.Efficiency)
	clear(pl.Line)
	pl.LineCellCount = 0
	pl.PoweredCellCount = 0
	if len(plants) == 0 {
		return
	}

	dist := make([]int32, n)
	for i := range dist {
		dist[i] = -1
	}
	queue := make([]int, 0, 256)
	for _, p := range plants {
		if !g.InBounds(p.X, p.Y) {
			continue
		}
		i := g.Index(p.X, p.Y)
		if dist[i] < 0 {
			dist[i] = 0
			queue = append(queue, i)
		}
	}

	// Lines: multi-source BFS restricted to road cells.
	for head := 0; head < len(queue); head++ {
		idx := queue[head]
		d := dist[idx]
		if g.Cells[idx].Type == world.Road {
			pl.Line[idx] = true
			pl.Efficiency[idx] = LineEfficiency(int(d))
			pl.LineCellCount++
		}
		x, y := g.Coords(idx)
		nbrs, cnt := g.Neighbors4(x, y)
		for _, q := range nbrs[:cnt] {
			ni := q.Y*g.Width + q.X
			if dist[ni] >= 0 || g.Cells[ni].Type != world.Road {
				continue
			}
			dist[ni] = d + 1
			queue = append(queue, ni)
		}
	}

	// Service radius: multi-source BFS from every line cell through non-water.
	for i := range dist {
		dist[i] = -1
	}
	queue = queue[:0]
	for i, line := range pl.Line {
		if line {
			dist[i] = 0
			queue = append(queue, i)
		}
	}
	for head := 0; head < len(queue); head++ {
		idx := queue[head]
		d := dist[idx]
		g.Cells[idx].HasPower = true
		pl.PoweredCellCount++
		if d >= PowerServiceRadius {
			continue
		}
		x, y := g.Coords(idx)
		nbrs, cnt := g.Neighbors4(x, y)
		for _, q := range nbrs[:cnt] {
			ni := q.Y*g.Width + q.X
			if dist[ni] >= 0 || g.Cells[ni].Type == world.Water {
				continue
			}
			dist[ni] = d + 1
			queue = append(queue, ni)
		}
	}
}
