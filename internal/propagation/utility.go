package propagation

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/world"
)

// PaletteSize is the number of distinct colours used to tint source regions.
const PaletteSize = 8

// UtilitySourceRef pairs a utility component with its entity.
type UtilitySourceRef struct {
	Entity ecs.Entity
	Source component.UtilitySource
}

// SourceInfo describes one source in the network view.
type SourceInfo struct {
	Entity         ecs.Entity            `json:"entity"`
	X              int                   `json:"x"`
	Y              int                   `json:"y"`
	Type           component.UtilityType `json:"type"`
	EffectiveRange float32               `json:"effective_range"`
	CellsCovered   uint32                `json:"cells_covered"`
	ColorIndex     uint8                 `json:"color_index"`
}

// NetworkView records, for every cell, which source reached it first and
// at what BFS distance. Power and water are tracked independently. A
// source index of -1 means unreached.
type NetworkView struct {
	Width       int
	Height      int
	PowerSource []int32
	PowerDist   []uint16
	WaterSource []int32
	WaterDist   []uint16
	Sources     []SourceInfo
}

// NewNetworkView allocates a view for a width×height grid.
func NewNetworkView(width, height int) *NetworkView {
	n := width * height
	v := &NetworkView{
		Width:       width,
		Height:      height,
		PowerSource: make([]int32, n),
		PowerDist:   make([]uint16, n),
		WaterSource: make([]int32, n),
		WaterDist:   make([]uint16, n),
	}
	v.reset()
	return v
}

func (v *NetworkView) reset() {
	for i := range v.PowerSource {
		v.PowerSource[i] = -1
		v.WaterSource[i] = -1
	}
	clear(v.PowerDist)
	clear(v.WaterDist)
	v.Sources = v.Sources[:0]
}

// At returns the (source index, distance) pair for a cell.
func (v *NetworkView) At(x, y int, power bool) (int32, uint16) {
	i := y*v.Width + x
	if power {
		return v.PowerSource[i], v.PowerDist[i]
	}
	return v.WaterSource[i], v.WaterDist[i]
}

// UtilityParams scale source ranges.
type UtilityParams struct {
	WeatherMultiplier float32 // ≥ 1 shrinks every range
	WaterRangeScale   float32 // reservoir-driven scale on water sources, 1 = normal
}

// UpdateUtilities clears has_power and has_water on every cell, then
// runs one BFS per source in the given order. A cell belongs to the first
// source that reaches it. BFS expands through grass and road cells but
// never water.
func UpdateUtilities(g *world.Grid, sources []UtilitySourceRef, p UtilityParams, view *NetworkView) {
	for i := range g.Cells {
		g.Cells[i].HasPower = false
		g.Cells[i].HasWater = false
	}
	view.reset()

	mult := p.WeatherMultiplier
	if mult <= 0 {
		mult = 1
	}
	waterScale := p.WaterRangeScale
	if waterScale <= 0 {
		waterScale = 1
	}

	n := len(g.Cells)
	visited := make([]uint32, n) // stamp = source index + 1
	queue := make([]int, 0, 256)
	dist := make([]uint16, n)

	for si, ref := range sources {
		src := ref.Source
		power := src.UtilityType.IsPower()
		eff := float32(src.Range) / mult
		if !power {
			eff *= waterScale
		}
		info := SourceInfo{
			Entity:         ref.Entity,
			X:              src.GridX,
			Y:              src.GridY,
			Type:           src.UtilityType,
			EffectiveRange: eff,
			ColorIndex:     uint8(si % PaletteSize),
		}

		if !g.InBounds(src.GridX, src.GridY) || g.Cells[g.Index(src.GridX, src.GridY)].Type == world.Water {
			view.Sources = append(view.Sources, info)
			continue
		}

		owner, owned := view.WaterSource, view.WaterDist
		if power {
			owner, owned = view.PowerSource, view.PowerDist
		}

		stamp := uint32(si + 1)
		start := g.Index(src.GridX, src.GridY)
		queue = append(queue[:0], start)
		visited[start] = stamp
		dist[start] = 0

		for head := 0; head < len(queue); head++ {
			idx := queue[head]
			d := dist[idx]
			if owner[idx] < 0 {
				owner[idx] = int32(si)
				owned[idx] = d
				info.CellsCovered++
				if power {
					g.Cells[idx].HasPower = true
				} else {
					g.Cells[idx].HasWater = true
				}
			}
			if float32(d)+1 > eff {
				continue
			}
			x, y := g.Coords(idx)
			nbrs, cnt := g.Neighbors4(x, y)
			for _, q := range nbrs[:cnt] {
				ni := q.Y*g.Width + q.X
				if visited[ni] == stamp || g.Cells[ni].Type == world.Water {
					continue
				}
				visited[ni] = stamp
				dist[ni] = d + 1
				queue = append(queue, ni)
			}
		}
		view.Sources = append(view.Sources, info)
	}
}
