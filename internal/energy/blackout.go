package energy

import (
	"encoding/json"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/world"
)

// ExtendedBlackoutDays is when a blackout starts to hurt more.
const ExtendedBlackoutDays = 3

// BlackoutState tracks the rolling blackout. Mask is recomputed on every
// dispatch tick and applied after each propagation pass.
type BlackoutState struct {
	Active             bool      `json:"active"`
	AffectedCells      uint32    `json:"affected_cell_count"`
	RotationOffset     uint32    `json:"rotation_offset"`
	DurationDays       uint32    `json:"duration_days"`
	StartDay           uint32    `json:"start_day"`
	LoadShedFraction   float32   `json:"load_shed_fraction"`
	ShedByTier         [4]uint32 `json:"shed_by_tier"`
	HospitalCasualties uint32    `json:"hospital_casualties"`
	Mask               []bool    `json:"-"`
}

func (b *BlackoutState) SaveKey() string { return "blackout_state" }

func (b *BlackoutState) SaveBytes() ([]byte, bool) {
	if !b.Active && b.DurationDays == 0 && b.HospitalCasualties == 0 {
		return nil, false
	}
	out, err := json.Marshal(b)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (b *BlackoutState) LoadBytes(data []byte) error {
	var v BlackoutState
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	v.Mask = b.Mask
	*b = v
	return nil
}

// Blacked reports whether a cell index is shed.
func (b *BlackoutState) Blacked(idx int) bool {
	return idx >= 0 && idx < len(b.Mask) && b.Mask[idx]
}

// ZonePriority is the load tier for a zoned cell.
func ZonePriority(z world.ZoneType) component.LoadPriority {
	switch z {
	case world.Industrial:
		return component.PriorityHigh
	case world.ResidentialLow, world.ResidentialMedium, world.ResidentialHigh, world.MixedUse:
		return component.PriorityNormal
	default:
		return component.PriorityLow
	}
}

// TierFunc returns the load tier of a cell index.
type TierFunc func(idx int) component.LoadPriority

// EvaluateBlackout picks the powered cells to shed. The count is
// floor(powered × load_shed_fraction). Tiers shed Low first and Critical
// last; inside a tier cells are taken in row-major order starting at the
// rotation offset, wrapping around.
func EvaluateBlackout(b *BlackoutState, g *world.Grid, d *DispatchState, day uint32, tier TierFunc) {
	n := len(g.Cells)
	if len(b.Mask) != n {
		b.Mask = make([]bool, n)
	}
	clear(b.Mask)
	b.ShedByTier = [4]uint32{}
	b.AffectedCells = 0

	if !d.Active || !d.HasDeficit || d.LoadShedFraction <= 0 {
		if b.Active {
			b.Active = false
			b.DurationDays = 0
			b.StartDay = 0
			b.LoadShedFraction = 0
		}
		d.BlackoutCells = 0
		return
	}

	if !b.Active {
		b.Active = true
		b.StartDay = day
	}
	if day > b.StartDay {
		b.DurationDays = day - b.StartDay
	}
	b.LoadShedFraction = d.LoadShedFraction
	b.RotationOffset = d.BlackoutRotation

	var tiers [4][]int
	for i := range g.Cells {
		if !g.Cells[i].HasPower {
			continue
		}
		t := tier(i)
		tiers[t] = append(tiers[t], i)
	}
	powered := len(tiers[0]) + len(tiers[1]) + len(tiers[2]) + len(tiers[3])
	remaining := int(float32(powered) * d.LoadShedFraction)

	for t := range tiers {
		cells := tiers[t]
		if remaining == 0 {
			break
		}
		if len(cells) == 0 {
			continue
		}
		count := min(len(cells), remaining)
		start := int(b.RotationOffset % uint32(len(cells)))
		for i := 0; i < count; i++ {
			b.Mask[cells[(start+i)%len(cells)]] = true
		}
		b.ShedByTier[t] = uint32(count)
		remaining -= count
		b.AffectedCells += uint32(count)
	}
	d.BlackoutCells = b.AffectedCells
}

// ApplyBlackoutMask clears has_power on every shed cell.
func ApplyBlackoutMask(b *BlackoutState, g *world.Grid) {
	if !b.Active {
		return
	}
	for i, off := range b.Mask {
		if off && i < len(g.Cells) {
			g.Cells[i].HasPower = false
		}
	}
}

// Extended reports whether the blackout has outlasted ExtendedBlackoutDays.
func (b *BlackoutState) Extended() bool {
	return b.Active && b.DurationDays > ExtendedBlackoutDays
}
