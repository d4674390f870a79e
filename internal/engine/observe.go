package engine

import (
	"github.com/talgya/gridcity/internal/advisor"
	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/weather"
	"github.com/talgya/gridcity/internal/zoning"
)

// ObservedEvents is how many recent journal events an observation carries.
const ObservedEvents = 20

// Observation is a read-only snapshot of the city for agents and
// spectators.
type Observation struct {
	Tick    uint64 `json:"tick"`
	Day     uint32 `json:"day"`
	Hour    uint32 `json:"hour"`
	Time    string `json:"time"`
	Speed   uint8  `json:"speed"`
	Paused  bool   `json:"paused"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Faulted bool   `json:"faulted,omitempty"`

	Stats  Stats          `json:"stats"`
	Budget economy.Budget `json:"budget"`
	Loans  LoanSummary    `json:"loans"`
	Demand zoning.Demand  `json:"demand"`

	Policies      []string                    `json:"policies"`
	WastePolicies []string                    `json:"waste_policies"`
	Waste         economy.WasteEffects        `json:"waste"`
	Power         PowerSummary                `json:"power"`
	Water         WaterSummary                `json:"water"`
	Weather       WeatherSummary              `json:"weather"`
	Tiers         citizens.TierStats          `json:"tiers"`
	Affordability citizens.AffordabilityState `json:"affordability"`
	Flooding      bool                        `json:"flooding"`

	Advice []advisor.Message `json:"advice"`
	Events []Event           `json:"events"`
}

// LoanSummary is the debt side of the books.
type LoanSummary struct {
	Count           int     `json:"count"`
	MonthlyPayments float64 `json:"monthly_payments"`
	CreditRating    float64 `json:"credit_rating"`
	Bankrupt        bool    `json:"bankrupt"`
}

// PowerSummary is the last dispatch and blackout outcome.
type PowerSummary struct {
	DemandMW       float32 `json:"demand_mw"`
	SupplyMW       float32 `json:"supply_mw"`
	CapacityMW     float32 `json:"capacity_mw"`
	ReserveMargin  float32 `json:"reserve_margin"`
	PriceMWh       float32 `json:"price_mwh"`
	Deficit        bool    `json:"deficit"`
	BlackoutActive bool    `json:"blackout_active"`
	BlackoutCells  uint32  `json:"blackout_cells"`
}

// WaterSummary is the reservoir and drought picture.
type WaterSummary struct {
	ReservoirLevel float32 `json:"reservoir_level"`
	Critical       bool    `json:"critical"`
	DroughtIndex   float32 `json:"drought_index"`
	DroughtLevel   string  `json:"drought_level"`
}

// WeatherSummary is the current sky.
type WeatherSummary struct {
	Season      string  `json:"season"`
	Condition   string  `json:"condition"`
	Temperature float32 `json:"temperature"`
	Description string  `json:"description"`
}

// Observe snapshots the city.
func (s *Simulation) Observe() Observation {
	d := s.Dispatch()
	b := s.Blackout()
	w := s.Weather()
	r := s.Reservoir()
	dr := s.Drought()
	lb := s.Loans()

	obs := Observation{
		Tick:          s.Clock.Tick,
		Day:           s.Clock.Day(),
		Hour:          s.Clock.Hour(),
		Time:          s.Clock.SimTime(),
		Speed:         s.Clock.Speed,
		Paused:        s.Clock.Paused,
		Width:         s.Grid.Width,
		Height:        s.Grid.Height,
		Stats:         s.Stats,
		Budget:        s.Budget,
		Demand:        *s.Demand(),
		Waste:         *s.WasteEffects(),
		Tiers:         *s.Tiers(),
		Affordability: *s.Affordability(),
		Flooding:      s.Layers.Flood.IsFlooding,
		Loans: LoanSummary{
			Count:           len(lb.Loans),
			MonthlyPayments: lb.MonthlyPayments(),
			CreditRating:    lb.CreditRating,
			Bankrupt:        lb.Bankrupt,
		},
		Power: PowerSummary{
			DemandMW:       d.TotalDemandMW,
			SupplyMW:       d.TotalSupplyMW,
			CapacityMW:     d.TotalCapacityMW,
			ReserveMargin:  d.ReserveMargin,
			PriceMWh:       d.ElectricityPrice,
			Deficit:        d.Active && d.HasDeficit,
			BlackoutActive: b.Active,
			BlackoutCells:  b.AffectedCells,
		},
		Water: WaterSummary{
			ReservoirLevel: r.Level,
			Critical:       r.Critical(),
			DroughtIndex:   dr.Index,
			DroughtLevel:   dr.Level.String(),
		},
		Weather: weatherSummary(w),
		Advice:  append([]advisor.Message(nil), s.Advisors.Messages...),
		Events:  s.Journal.Recent(ObservedEvents),
	}
	for _, p := range s.Policies().Enabled() {
		obs.Policies = append(obs.Policies, p.String())
	}
	for p := economy.PlasticBagBan; p.Valid(); p++ {
		if s.Waste().IsActive(p) {
			obs.WastePolicies = append(obs.WastePolicies, p.String())
		}
	}
	return obs
}

func weatherSummary(w *weather.Weather) WeatherSummary {
	return WeatherSummary{
		Season:      w.Season.String(),
		Condition:   w.Condition.String(),
		Temperature: w.Temperature,
		Description: w.Modifiers().Description,
	}
}
