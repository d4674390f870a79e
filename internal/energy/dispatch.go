// Package energy runs merit-order dispatch over the city's power plants,
// prices electricity, and sheds load through rolling blackouts when
// supply falls short.
package energy

import (
	"encoding/json"
	"sort"

	"github.com/talgya/gridcity/internal/component"
)

// Dispatch tuning.
const (
	DispatchInterval      = 4    // ticks between dispatch runs
	MinDemandThreshold    = 0.01 // MW; below this dispatch goes idle
	ScarcityThreshold     = 0.1  // reserve margin where scarcity pricing starts
	MaxScarcityMultiplier = 3.0
)

// DispatchState is the outcome of the latest dispatch run.
type DispatchState struct {
	ElectricityPrice float32 `json:"electricity_price"` // $/MWh
	HasDeficit       bool    `json:"has_deficit"`
	TotalCapacityMW  float32 `json:"total_capacity_mw"`
	TotalDemandMW    float32 `json:"total_demand_mw"`
	TotalSupplyMW    float32 `json:"total_supply_mw"`
	ReserveMargin    float32 `json:"reserve_margin"`
	BlackoutCells    uint32  `json:"blackout_cells"`
	BlackoutRotation uint32  `json:"blackout_rotation"`
	LoadShedFraction float32 `json:"load_shed_fraction"`
	DispatchedCount  uint32  `json:"dispatched_count"`
	Active           bool    `json:"active"`
}

func (s *DispatchState) SaveKey() string { return "energy_dispatch" }

func (s *DispatchState) SaveBytes() ([]byte, bool) {
	if *s == (DispatchState{}) {
		return nil, false
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *DispatchState) LoadBytes(b []byte) error {
	var v DispatchState
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = v
	return nil
}

// Dispatch allocates demand across plants in merit order: cheapest fuel
// first, larger capacity first on ties. Every plant's output is reset
// before allocation. Below MinDemandThreshold the state goes inactive and
// plant outputs are returned to their construction default of zero.
func Dispatch(s *DispatchState, demand float32, plants []*component.PowerPlant) {
	s.TotalDemandMW = demand
	if demand < MinDemandThreshold || len(plants) == 0 {
		*s = DispatchState{BlackoutRotation: s.BlackoutRotation, TotalDemandMW: demand}
		for _, p := range plants {
			p.CurrentOutputMW = 0
			s.TotalCapacityMW += p.CapacityMW
		}
		return
	}
	s.Active = true

	order := make([]int, len(plants))
	var capacity float32
	for i, p := range plants {
		order[i] = i
		capacity += p.CapacityMW
		p.CurrentOutputMW = 0
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := plants[order[a]], plants[order[b]]
		if pa.FuelCost != pb.FuelCost {
			return pa.FuelCost < pb.FuelCost
		}
		return pa.CapacityMW > pb.CapacityMW
	})

	remaining := demand
	var supplied, lastCost float32
	var count uint32
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		p := plants[i]
		out := min(p.CapacityMW, remaining)
		p.CurrentOutputMW = out
		remaining -= out
		supplied += out
		lastCost = p.FuelCost
		count++
	}

	s.TotalCapacityMW = capacity
	s.TotalSupplyMW = supplied
	s.DispatchedCount = count
	s.ReserveMargin = (capacity - demand) / demand
	s.HasDeficit = supplied < demand
	if s.HasDeficit {
		s.LoadShedFraction = min(max((demand-supplied)/demand, 0), 1)
		s.BlackoutRotation++
	} else {
		s.LoadShedFraction = 0
		s.BlackoutCells = 0
	}
	s.ElectricityPrice = lastCost * ScarcityMultiplier(s.ReserveMargin)
}

// ScarcityMultiplier rises linearly from 1 at ScarcityThreshold reserve to
// MaxScarcityMultiplier at zero reserve, and stays clamped below that.
func ScarcityMultiplier(reserveMargin float32) float32 {
	if reserveMargin >= ScarcityThreshold {
		return 1
	}
	t := (ScarcityThreshold - reserveMargin) / ScarcityThreshold
	return min(1+t*(MaxScarcityMultiplier-1), MaxScarcityMultiplier)
}
