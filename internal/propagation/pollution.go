package propagation

import (
	"math"

	"github.com/talgya/gridcity/internal/world"
)

// Pollution tuning.
const (
	PollutionRadius      = 6
	PollutionFalloff     = 0.7 // multiplier per Manhattan step
	TreeAbsorption       = 0.3
	GreenClusterBonus    = 1.25
	GreenClusterMinTrees = 3

	HeavyTrafficCongestion = 0.5 // density/capacity where a road starts to pollute
	TrafficQuanta          = 4   // quanta at full capacity
	MaxTrafficCongestion   = 2
)

// PollutionSource emits quanta at a cell.
type PollutionSource struct {
	X, Y   int
	Quanta float32
}

// Wind is the advection vector in cells per update.
type Wind struct {
	DX float32 `json:"dx"`
	DY float32 `json:"dy"`
}

// PollutionGrid is the per-cell air pollution level.
type PollutionGrid struct {
	Field[uint8]
	scratch []float32
	shifted []float32
}

// NewPollutionGrid allocates a clean grid.
func NewPollutionGrid(width, height int) *PollutionGrid {
	return &PollutionGrid{Field: NewField[uint8](width, height)}
}

// TrafficSources lists road cells carrying heavy traffic, row-major. A
// cell emits in proportion to its congestion, capped at
// MaxTrafficCongestion.
func TrafficSources(t *TrafficGrid, g *world.Grid) []PollutionSource {
	var out []PollutionSource
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := t.Congestion(g, x, y)
			if c < HeavyTrafficCongestion {
				continue
			}
			out = append(out, PollutionSource{X: x, Y: y, Quanta: TrafficQuanta * min(c, MaxTrafficCongestion)})
		}
	}
	return out
}

// UpdatePollution recomputes the grid from its sources. Each source stamps
// a radial plume, the plume is pulled along the wind with bilinear sampling
// (values pulled from outside the map are lost), and tree cells absorb a
// share scaled by maturity.
func UpdatePollution(p *PollutionGrid, sources []PollutionSource, wind Wind, trees *TreeGrid) {
	w, h := p.Width, p.Height
	n := w * h
	if len(p.scratch) != n {
		p.scratch = make([]float32, n)
		p.shifted = make([]float32, n)
	}
	buf := p.scratch
	clear(buf)

	for _, s := range sources {
		if s.Quanta <= 0 {
			continue
		}
		for dy := -PollutionRadius; dy <= PollutionRadius; dy++ {
			for dx := -PollutionRadius; dx <= PollutionRadius; dx++ {
				d := abs(dx) + abs(dy)
				if d > PollutionRadius {
					continue
				}
				x, y := s.X+dx, s.Y+dy
				if x < 0 || y < 0 || x >= w || y >= h {
					continue
				}
				buf[y*w+x] += s.Quanta * float32(math.Pow(PollutionFalloff, float64(d)))
			}
		}
	}

	out := buf
	if wind.DX != 0 || wind.DY != 0 {
		out = p.shifted
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = bilinear(buf, w, h, float32(x)-wind.DX, float32(y)-wind.DY)
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			v := out[i]
			if v > 0 && trees != nil {
				if m := trees.Get(x, y); m > 0 {
					r := TreeAbsorption * m
					if trees.Neighbours(x, y) >= GreenClusterMinTrees {
						r *= GreenClusterBonus
					}
					v -= v * min(r, 1)
				}
			}
			p.Data[i] = clampU8(v)
		}
	}
}

func bilinear(buf []float32, w, h int, fx, fy float32) float32 {
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	at := func(x, y int) float32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return buf[y*w+x]
	}
	top := at(x0, y0)*(1-tx) + at(x0+1, y0)*tx
	bottom := at(x0, y0+1)*(1-tx) + at(x0+1, y0+1)*tx
	return top*(1-ty) + bottom*ty
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
