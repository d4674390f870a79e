package zoning

import (
	"math"

	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/world"
)

// NIMBY tuning.
const (
	ReactionRadius          = 8
	ProtestThreshold        = 50
	SlowdownPerOpposition   = 0.5
	MaxConstructionSlowdown = 50
)

// DensityScore rates how objectionable a zone is to low-density neighbours.
func DensityScore(z world.ZoneType) float32 {
	switch z {
	case world.ResidentialLow:
		return 0
	case world.ResidentialMedium, world.CommercialLow:
		return 0.3
	case world.ResidentialHigh, world.MixedUse, world.Office:
		return 0.6
	case world.CommercialHigh:
		return 0.7
	case world.Industrial:
		return 1
	}
	return 0
}

// ConstructionSlowdown converts opposition into extra construction ticks.
func ConstructionSlowdown(opposition float32) uint32 {
	if opposition <= 0 {
		return 0
	}
	return min(uint32(opposition*SlowdownPerOpposition), MaxConstructionSlowdown)
}

// Nimby scores resident opposition to new development. Occupied homes near
// a site object in proportion to how much denser the site is than the
// housing they live in, weighted by closeness.
type Nimby struct {
	// EminentDomain suppresses opposition entirely.
	EminentDomain bool
}

// Opposition returns the opposition score at (x, y) for a site of zone z.
func (n *Nimby) Opposition(g *world.Grid, b *Buildings, x, y int, z world.ZoneType) float32 {
	if n.EminentDomain {
		return 0
	}
	site := DensityScore(z)
	if site == 0 {
		return 0
	}
	var total float32
	for dy := -ReactionRadius; dy <= ReactionRadius; dy++ {
		for dx := -ReactionRadius; dx <= ReactionRadius; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || !g.InBounds(nx, ny) {
				continue
			}
			id := ecs.Entity(g.Get(nx, ny).BuildingID)
			if id == 0 {
				continue
			}
			bl, ok := b.Building.Get(id)
			if !ok || !bl.Zone.IsResidential() || bl.Occupants == 0 || b.Construction.Has(id) {
				continue
			}
			diff := site - DensityScore(bl.Zone)
			if diff <= 0 {
				continue
			}
			dist := float32(math.Hypot(float64(dx), float64(dy)))
			if dist > ReactionRadius {
				continue
			}
			weight := 1 - dist/(ReactionRadius+1)
			total += diff * weight * float32(bl.Occupants)
		}
	}
	return total
}
