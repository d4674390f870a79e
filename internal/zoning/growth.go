package zoning

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/world"
)

// Growth tuning.
const (
	GrowthChance       = 0.02 // per eligible cell per growth pass at demand 1
	MaxSpawnsPerPass   = 8
	ConstructionTicks  = 120
	MaxUpgradesPerPass = 4
	UpgradeOccupancy   = 0.9
)

// upgradeLandValue is the land value needed to leave each level.
var upgradeLandValue = [...]uint8{0, 80, 110, 140, 170}

// Buildings holds the component stores for zoned structures.
type Buildings struct {
	Building     *ecs.Store[component.Building]
	Construction *ecs.Store[component.UnderConstruction]
}

// NewBuildings registers the building stores with w.
func NewBuildings(w *ecs.World) *Buildings {
	return &Buildings{
		Building:     ecs.NewStore[component.Building](w),
		Construction: ecs.NewStore[component.UnderConstruction](w),
	}
}

// Completed returns finished buildings in entity order.
func (b *Buildings) Completed() []component.Building {
	out := make([]component.Building, 0, b.Building.Len())
	b.Building.Each(func(e ecs.Entity, bl *component.Building) {
		if !b.Construction.Has(e) {
			out = append(out, *bl)
		}
	})
	return out
}

// At returns the building entity covering (x, y), if any.
func (b *Buildings) At(g *world.Grid, x, y int) (ecs.Entity, bool) {
	if !g.InBounds(x, y) {
		return 0, false
	}
	id := ecs.Entity(g.Get(x, y).BuildingID)
	if id == 0 || !b.Building.Has(id) {
		return 0, false
	}
	return id, true
}

// GrowthInput bundles what a growth pass reads.
type GrowthInput struct {
	Grid      *world.Grid
	Demand    Demand
	Nimby     *Nimby
	LandValue *propagation.LandValueGrid
	Seed      uint64
	Tick      uint64
}

// Eligible reports whether a building may appear on (x, y): zoned grass
// next to a road with nothing on it.
func Eligible(g *world.Grid, x, y int) bool {
	c := g.Get(x, y)
	return c.Type == world.Grass && c.Zone != world.ZoneNone && !c.HasBuilding() && g.AdjacentToRoad(x, y)
}

// GrowBuildings spawns construction sites on eligible cells. Cells are
// visited in row-major order and each draws once from the tick's stream,
// so the same inputs always grow the same sites. Returns the new entities.
func GrowBuildings(w *ecs.World, b *Buildings, in GrowthInput) []ecs.Entity {
	g := in.Grid
	rng := entropy.NewSource(in.Seed).Stream("zoning", in.Tick)
	var spawned []ecs.Entity
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if !Eligible(g, x, y) {
				continue
			}
			z := g.Get(x, y).Zone
			chance := float64(in.Demand.For(z)) * GrowthChance
			if in.LandValue != nil {
				// Valuable land fills in faster.
				chance *= 0.5 + float64(in.LandValue.Get(x, y))/255
			}
			if rng.Float64() >= chance {
				continue
			}
			e := w.Spawn()
			b.Building.Set(e, component.Building{
				Zone:     z,
				Level:    1,
				GridX:    x,
				GridY:    y,
				Capacity: component.CapacityFor(z, 1),
				Width:    1,
				Height:   1,
			})
			ticks := uint32(ConstructionTicks)
			if in.Nimby != nil {
				ticks += ConstructionSlowdown(in.Nimby.Opposition(g, b, x, y, z))
			}
			b.Construction.Set(e, component.UnderConstruction{TicksRemaining: ticks, TotalTicks: ticks})
			g.Mut(x, y).BuildingID = uint64(e)
			spawned = append(spawned, e)
			if len(spawned) >= MaxSpawnsPerPass {
				return spawned
			}
		}
	}
	return spawned
}

// AdvanceConstruction counts every site down by one tick and returns the
// buildings that finished. Sites facing protest-level opposition only make
// progress on even ticks.
func AdvanceConstruction(b *Buildings, g *world.Grid, nimby *Nimby, tick uint64) []ecs.Entity {
	var done []ecs.Entity
	for _, e := range b.Construction.Entities() {
		uc := b.Construction.Mut(e)
		if nimby != nil && tick%2 == 1 {
			if bl, ok := b.Building.Get(e); ok && nimby.Opposition(g, b, bl.GridX, bl.GridY, bl.Zone) >= ProtestThreshold {
				continue
			}
		}
		if uc.TicksRemaining > 0 {
			uc.TicksRemaining--
		}
		if uc.TicksRemaining == 0 {
			b.Construction.Remove(e)
			done = append(done, e)
		}
	}
	return done
}

// UpgradeBuildings raises the level of nearly full buildings on valuable
// land, up to maxLevel. Returns the upgraded entities.
func UpgradeBuildings(b *Buildings, lv *propagation.LandValueGrid, maxLevel uint8) []ecs.Entity {
	if maxLevel > uint8(len(upgradeLandValue)) {
		maxLevel = uint8(len(upgradeLandValue))
	}
	var up []ecs.Entity
	for _, e := range b.Building.Entities() {
		if b.Construction.Has(e) {
			continue
		}
		bl := b.Building.Mut(e)
		if bl.Level == 0 || bl.Level >= maxLevel || bl.Capacity == 0 {
			continue
		}
		if float32(bl.Occupants) < float32(bl.Capacity)*UpgradeOccupancy {
			continue
		}
		if lv.Get(bl.GridX, bl.GridY) < upgradeLandValue[bl.Level] {
			continue
		}
		bl.Level++
		bl.Capacity = component.CapacityFor(bl.Zone, bl.Level)
		up = append(up, e)
		if len(up) >= MaxUpgradesPerPass {
			break
		}
	}
	return up
}

// Demolish removes a building entity and clears every cell it covered.
// The zone paint stays so the lot can regrow.
func Demolish(w *ecs.World, b *Buildings, g *world.Grid, e ecs.Entity) bool {
	bl, ok := b.Building.Get(e)
	if !ok {
		return false
	}
	for y := bl.GridY; y < bl.GridY+int(max(bl.Height, 1)); y++ {
		for x := bl.GridX; x < bl.GridX+int(max(bl.Width, 1)); x++ {
			if g.InBounds(x, y) && g.Get(x, y).BuildingID == uint64(e) {
				g.Mut(x, y).BuildingID = 0
			}
		}
	}
	w.Despawn(e)
	return true
}
