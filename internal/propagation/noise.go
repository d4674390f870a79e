package propagation

import "github.com/talgya/gridcity/internal/world"

// NoiseFalloff is the level lost per Manhattan step.
const NoiseFalloff = 8

// NoiseSource emits a level at a cell.
type NoiseSource struct {
	X, Y  int
	Level uint8
}

// NoiseGrid is the per-cell noise level.
type NoiseGrid struct {
	Field[uint8]
}

// NewNoiseGrid allocates a silent grid.
func NewNoiseGrid(width, height int) *NoiseGrid {
	return &NoiseGrid{Field: NewField[uint8](width, height)}
}

// RoadNoise is the level emitted by a road cell of the given type.
func RoadNoise(rt world.RoadType) uint8 {
	switch rt {
	case world.Highway:
		return 50
	case world.Boulevard:
		return 35
	case world.Avenue:
		return 25
	case world.OneWay:
		return 15
	case world.Local:
		return 12
	default:
		return 0
	}
}

// UpdateNoise recomputes noise from road cells plus the extra sources.
// Levels combine by maximum.
func UpdateNoise(ng *NoiseGrid, g *world.Grid, sources []NoiseSource) {
	ng.Clear()
	for i, c := range g.Cells {
		if c.Type != world.Road {
			continue
		}
		if lvl := RoadNoise(c.RoadType); lvl > 0 {
			x, y := g.Coords(i)
			ng.stamp(x, y, lvl)
		}
	}
	for _, s := range sources {
		ng.stamp(s.X, s.Y, s.Level)
	}
}

func (ng *NoiseGrid) stamp(cx, cy int, level uint8) {
	r := int(level) / NoiseFalloff
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d := abs(dx) + abs(dy)
			v := int(level) - d*NoiseFalloff
			if v <= 0 {
				continue
			}
			x, y := cx+dx, cy+dy
			if !ng.InBounds(x, y) {
				continue
			}
			i := y*ng.Width + x
			if uint8(v) > ng.Data[i] {
				ng.Data[i] = uint8(v)
			}
		}
	}
}
