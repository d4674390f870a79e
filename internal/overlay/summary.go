package overlay

import (
	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/propagation"
)

// Network is the per-utility picture from the last propagation cycle.
type Network struct {
	PowerCells int                      `json:"power_cells"`
	WaterCells int                      `json:"water_cells"`
	MaxPower   uint16                   `json:"max_power_distance"`
	MaxWater   uint16                   `json:"max_water_distance"`
	Sources    []propagation.SourceInfo `json:"sources"`
	// Idle lists sources that reached no cell, by index into Sources.
	Idle []int `json:"idle,omitempty"`
}

// NetworkSummary condenses a network view. A nil view gives the zero
// summary.
func NetworkSummary(v *propagation.NetworkView) Network {
	var n Network
	if v == nil {
		return n
	}
	for i := range v.PowerSource {
		if v.PowerSource[i] >= 0 {
			n.PowerCells++
			n.MaxPower = max(n.MaxPower, v.PowerDist[i])
		}
		if v.WaterSource[i] >= 0 {
			n.WaterCells++
			n.MaxWater = max(n.MaxWater, v.WaterDist[i])
		}
	}
	n.Sources = append([]propagation.SourceInfo(nil), v.Sources...)
	for i, s := range n.Sources {
		if s.CellsCovered == 0 {
			n.Idle = append(n.Idle, i)
		}
	}
	return n
}

// Tiers is a population-tier table with shares in percent.
type Tiers struct {
	Total         uint32  `json:"total"`
	Low           uint32  `json:"low"`
	Middle        uint32  `json:"middle"`
	High          uint32  `json:"high"`
	LowPercent    float32 `json:"low_percent"`
	MiddlePercent float32 `json:"middle_percent"`
	HighPercent   float32 `json:"high_percent"`
}

// TierStats expands the tier counts with percentages.
func TierStats(t citizens.TierStats) Tiers {
	return Tiers{
		Total:         t.Total(),
		Low:           t.Low,
		Middle:        t.Middle,
		High:          t.High,
		LowPercent:    t.Percentage(component.TierLow),
		MiddlePercent: t.Percentage(component.TierMiddle),
		HighPercent:   t.Percentage(component.TierHigh),
	}
}
