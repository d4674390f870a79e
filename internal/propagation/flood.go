package propagation

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/world"
)

// Flood model constants. Depths are in feet.
const (
	SpreadIterations    = 5
	SpreadRate          = 0.25
	NaturalDrainRate    = 0.01
	StormDrainRate      = 0.05
	FloodDepthThreshold = 0.5
	OverflowTrigger     = 10     // overflowing cells needed to seed a flood
	RunoffToFeet        = 0.001  // runoff units → feet of standing water
	valuePerCapacity    = 1000.0 // property value per unit of capacity per level

	// Flood defences absorb this share of new water unless they fail.
	ProtectionReduction   = 0.8
	ProtectionFailureRate = 0.02
)

var (
	depthBreakpoints  = [5]float32{0, 1, 3, 6, 10}
	residentialDamage = [5]float32{0, 0.10, 0.35, 0.65, 0.90}
	commercialDamage  = [5]float32{0, 0.05, 0.20, 0.50, 0.80}
	industrialDamage  = [5]float32{0, 0.03, 0.15, 0.40, 0.70}
)

// InterpolateDamage linearly interpolates a depth-damage curve. Depths past
// the last breakpoint return the curve maximum.
func InterpolateDamage(depth float32, breakpoints, damages [5]float32) float32 {
	if depth <= breakpoints[0] {
		return damages[0]
	}
	for i := 1; i < len(breakpoints); i++ {
		if depth <= breakpoints[i] {
			t := (depth - breakpoints[i-1]) / (breakpoints[i] - breakpoints[i-1])
			return damages[i-1] + t*(damages[i]-damages[i-1])
		}
	}
	return damages[len(damages)-1]
}

// DepthDamageFraction picks the curve for a zone. Office and mixed use
// follow the commercial curve; unzoned land takes no damage.
func DepthDamageFraction(depth float32, z world.ZoneType) float32 {
	switch {
	case z == world.ZoneNone:
		return 0
	case z == world.Industrial:
		return InterpolateDamage(depth, depthBreakpoints, industrialDamage)
	case z.IsResidential() && z != world.MixedUse:
		return InterpolateDamage(depth, depthBreakpoints, residentialDamage)
	default:
		return InterpolateDamage(depth, depthBreakpoints, commercialDamage)
	}
}

// FloodState is the standing water and its aggregate statistics.
type FloodState struct {
	Depth         Field[float32] `json:"-"`
	IsFlooding    bool           `json:"is_flooding"`
	FloodedCells  uint32         `json:"total_flooded_cells"`
	TotalDamage   float64        `json:"total_damage"`
	MaxDepth      float32        `json:"max_depth"`
	OverflowCells uint32         `json:"overflow_cells"`
}

// NewFloodState returns a dry state for a width×height grid.
func NewFloodState(width, height int) *FloodState {
	return &FloodState{Depth: NewField[float32](width, height)}
}

// FloodInput is what the weather and drainage layers hand to UpdateFlood.
type FloodInput struct {
	Runoff        float32 // runoff units on a fully impervious cell this update
	DrainCapacity float32 // total storm drain capacity in feet
	DrainCount    int
	Protected     bool // flood defence policy active
	Seed          uint64
	Tick          uint64
}

// SpreadStep runs one snapshot-based spread pass and returns the new depths.
// Each wet cell moves SpreadRate of its depth to strictly lower neighbours
// in proportion to the surface difference. Total water is conserved.
func SpreadStep(depth, elevation []float32, width, height int) []float32 {
	out := make([]float32, len(depth))
	copy(out, depth)
	var lower [4]int
	var diffs [4]float32
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			d := depth[idx]
			if d <= 0 {
				continue
			}
			surface := elevation[idx] + d
			n := 0
			total := float32(0)
			visit := func(nx, ny int) {
				ni := ny*width + nx
				ns := elevation[ni] + depth[ni]
				if ns < surface {
					lower[n] = ni
					diffs[n] = surface - ns
					total += diffs[n]
					n++
				}
			}
			// N, S, E, W
			if y > 0 {
				visit(x, y-1)
			}
			if y < height-1 {
				visit(x, y+1)
			}
			if x < width-1 {
				visit(x+1, y)
			}
			if x > 0 {
				visit(x-1, y)
			}
			if n == 0 || total <= 0 {
				continue
			}
			transferable := d * SpreadRate
			out[idx] -= transferable
			for i := 0; i < n; i++ {
				out[lower[i]] += transferable * diffs[i] / total
			}
		}
	}
	return out
}

func runoffFactor(c world.Cell) float32 {
	switch {
	case c.Type == world.Water:
		return 0
	case c.Type == world.Road || c.HasBuilding():
		return 1
	default:
		return 0.3
	}
}

// UpdateFlood seeds standing water from excess runoff, spreads it, drains
// it, and totals building damage. Runs on the slow tick.
func UpdateFlood(fs *FloodState, g *world.Grid, in FloodInput, buildings []component.Building) {
	if len(fs.Depth.Data) != len(g.Cells) {
		fs.Depth = NewField[float32](g.Width, g.Height)
	}

	perCellDrain := float32(0)
	if in.DrainCapacity > 0 {
		perCellDrain = in.DrainCapacity / float32(len(g.Cells))
	}
	excess := make([]float32, len(g.Cells))
	var overflow uint32
	for i, c := range g.Cells {
		e := in.Runoff*runoffFactor(c)*RunoffToFeet - perCellDrain
		if e > 0 {
			excess[i] = e
			overflow++
		}
	}
	fs.OverflowCells = overflow
	triggered := overflow > OverflowTrigger

	if !triggered && !fs.hasFlooding() {
		if fs.IsFlooding {
			fs.reset()
		}
		return
	}

	if triggered {
		scale := float32(1)
		if in.Protected && !entropy.ShouldFail(ProtectionFailureRate, in.Seed, in.Tick) {
			scale = 1 - ProtectionReduction
		}
		for i, e := range excess {
			if e > 0 {
				fs.Depth.Data[i] += e * scale
			}
		}
	}

	elev := make([]float32, len(g.Cells))
	for i, c := range g.Cells {
		elev[i] = c.Elevation
	}
	for range SpreadIterations {
		fs.Depth.Data = SpreadStep(fs.Depth.Data, elev, g.Width, g.Height)
	}

	drains := in.DrainCount > 0
	for i, c := range g.Cells {
		d := fs.Depth.Data[i]
		if d <= 0 {
			continue
		}
		drain := float32(NaturalDrainRate)
		if drains && c.Type == world.Road {
			drain += StormDrainRate
		}
		fs.Depth.Data[i] = max(d-drain, 0)
	}

	damage := 0.0
	for _, b := range buildings {
		d := fs.Depth.Get(b.GridX, b.GridY)
		if d < FloodDepthThreshold {
			continue
		}
		value := float64(b.Capacity) * float64(b.Level) * valuePerCapacity
		damage += value * float64(DepthDamageFraction(d, b.Zone))
	}

	var flooded uint32
	var maxDepth float32
	for _, d := range fs.Depth.Data {
		if d >= FloodDepthThreshold {
			flooded++
		}
		maxDepth = max(maxDepth, d)
	}
	fs.IsFlooding = flooded > 0
	fs.FloodedCells = flooded
	fs.TotalDamage = damage
	fs.MaxDepth = maxDepth
	if !fs.IsFlooding {
		fs.Depth.Clear()
		fs.TotalDamage = 0
		fs.MaxDepth = 0
	}
}

func (fs *FloodState) hasFlooding() bool {
	for _, d := range fs.Depth.Data {
		if d >= FloodDepthThreshold {
			return true
		}
	}
	return false
}

func (fs *FloodState) reset() {
	fs.IsFlooding = false
	fs.FloodedCells = 0
	fs.TotalDamage = 0
	fs.MaxDepth = 0
	fs.Depth.Clear()
}
