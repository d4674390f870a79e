package propagation

import "github.com/talgya/gridcity/internal/world"

// LandValueBase is the value of an unremarkable dry cell.
const LandValueBase = 50

// LandValueGrid is the per-cell land value 0..255.
type LandValueGrid struct {
	Field[uint8]
	target []float32
}

// NewLandValueGrid allocates a grid at zero.
func NewLandValueGrid(width, height int) *LandValueGrid {
	return &LandValueGrid{Field: NewField[uint8](width, height)}
}

// LandValueInputs are the derived fields land value reads.
type LandValueInputs struct {
	Coverage    *CoverageGrid
	Walkability *WalkabilityGrid
	Pollution   *PollutionGrid
	Noise       *NoiseGrid
	Soil        *SoilGrid
	Trees       *TreeGrid
}

// UpdateLandValue computes a per-cell target from amenities and nuisances,
// then blends each target half-and-half with its neighbours' mean.
func UpdateLandValue(lv *LandValueGrid, g *world.Grid, in LandValueInputs) {
	w, h := g.Width, g.Height
	if len(lv.target) != w*h {
		lv.target = make([]float32, w*h)
	}
	t := lv.target
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if g.Cells[i].Type == world.Water {
				t[i] = 0
				continue
			}
			v := float32(LandValueBase)
			if in.Coverage != nil {
				v += float32(in.Coverage.Count(x, y)) * 8
			}
			if in.Walkability != nil {
				v += float32(in.Walkability.Get(x, y)) * 0.3
			}
			if in.Trees != nil {
				v += in.Trees.Get(x, y) * 10
			}
			if in.Pollution != nil {
				v -= float32(in.Pollution.Get(x, y)) * 0.5
			}
			if in.Noise != nil {
				v -= float32(in.Noise.Get(x, y)) * 0.25
			}
			if in.Soil != nil {
				v -= in.Soil.Get(x, y) * 0.3
			}
			t[i] = v
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			nbrs, n := g.Neighbors4(x, y)
			sum := float32(0)
			for _, p := range nbrs[:n] {
				sum += t[p.Y*w+p.X]
			}
			avg := t[i]
			if n > 0 {
				avg = sum / float32(n)
			}
			lv.Data[i] = clampU8(0.5*t[i] + 0.5*avg)
		}
	}
}
