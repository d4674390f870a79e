// Package component defines the plain-record components attached to
// buildings, services, utilities, and citizens.
package component

import "github.com/talgya/gridcity/internal/world"

// Building is a zoned structure occupying one or more cells.
type Building struct {
	Zone      world.ZoneType `json:"zone_type"`
	Level     uint8          `json:"level"`
	GridX     int            `json:"grid_x"`
	GridY     int            `json:"grid_y"`
	Capacity  uint32         `json:"capacity"`
	Occupants uint32         `json:"occupants"`
	Width     uint8          `json:"width"`
	Height    uint8          `json:"height"`
}

// Covers reports whether the building footprint includes (x, y).
func (b *Building) Covers(x, y int) bool {
	return x >= b.GridX && y >= b.GridY && x < b.GridX+int(b.Width) && y < b.GridY+int(b.Height)
}

// Free returns unused capacity.
func (b *Building) Free() uint32 {
	if b.Occupants >= b.Capacity {
		return 0
	}
	return b.Capacity - b.Occupants
}

// CapacityFor returns occupant (residential) or job capacity for a zone at
// the given level.
func CapacityFor(z world.ZoneType, level uint8) uint32 {
	var base uint32
	switch z {
	case world.ResidentialLow:
		base = 8
	case world.ResidentialMedium:
		base = 24
	case world.ResidentialHigh:
		base = 60
	case world.CommercialLow:
		base = 6
	case world.CommercialHigh:
		base = 20
	case world.Industrial:
		base = 16
	case world.Office:
		base = 30
	case world.MixedUse:
		base = 18
	default:
		return 0
	}
	if level == 0 {
		level = 1
	}
	return base * uint32(level)
}

// UnderConstruction marks a building that is not yet usable.
type UnderConstruction struct {
	TicksRemaining uint32 `json:"ticks_remaining"`
	TotalTicks     uint32 `json:"total_ticks"`
}
