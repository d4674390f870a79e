package citizens

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/energy"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/world"
)

// Per-tick need drift by activity. Positive values refill the need.
type needDrift struct {
	hunger, energy, social, fun, comfort float32
}

var driftByState = [...]needDrift{
	component.AtHome:          {0.04, 0.06, -0.01, -0.01, 0.05},
	component.CommutingToWork: {-0.03, -0.03, 0, -0.02, -0.03},
	component.Working:         {-0.04, -0.04, 0.03, -0.02, 0},
	component.CommutingHome:   {-0.03, -0.03, 0, -0.02, -0.03},
	component.Leisure:         {-0.02, -0.02, 0.06, 0.15, 0.01},
}

// Comfort decays at home without utilities.
const (
	NoPowerComfortDrain = 0.08
	NoWaterComfortDrain = 0.08
)

// UpdateNeeds drifts every citizen's needs according to what they are
// doing and whether their home has power and water.
func UpdateNeeds(s *Stores, g *world.Grid) {
	for _, e := range s.Citizen.Entities() {
		n := s.Needs.Mut(e)
		if n == nil {
			continue
		}
		st, _ := s.State.Get(e)
		d := driftByState[st.State]
		comfort := d.comfort
		if st.State == component.AtHome {
			h, _ := s.Home.Get(e)
			if g.InBounds(h.GridX, h.GridY) {
				c := g.Get(h.GridX, h.GridY)
				if !c.HasPower {
					comfort -= NoPowerComfortDrain
				}
				if !c.HasWater {
					comfort -= NoWaterComfortDrain
				}
			}
		}
		n.Hunger = clampNeed(n.Hunger + d.hunger)
		n.Energy = clampNeed(n.Energy + d.energy)
		n.Social = clampNeed(n.Social + d.social)
		n.Fun = clampNeed(n.Fun + d.fun)
		n.Comfort = clampNeed(n.Comfort + comfort)
	}
}

// Happiness factors.
const (
	BaseHappiness        = 50
	EmployedBonus        = 15
	ShortCommuteBonus    = 10
	ShortCommuteCells    = 20
	PowerBonus           = 5
	NoPowerPenalty       = 25
	WaterBonus           = 5
	NoWaterPenalty       = 20
	HealthCoverageBonus  = 5
	EducationBonus       = 3
	PoliceBonus          = 5
	ParkBonus            = 8
	EntertainmentBonus   = 5
	TransportBonus       = 4
	HighTaxPenalty       = 8
	HighTaxThreshold     = 0.15
	CongestionPenalty    = 5
	MaxPollutionPenalty  = 10
	MaxNoisePenalty      = 5
	BlackoutPenalty      = 10
	ExtendedBlackoutMore = 10
	NeedsWeight          = 0.2
	HappinessSmoothing   = 0.1
)

// HappinessInput bundles the city-wide fields happiness reads.
type HappinessInput struct {
	Grid       *world.Grid
	Coverage   *propagation.CoverageGrid
	Pollution  *propagation.PollutionGrid
	Noise      *propagation.NoiseGrid
	Traffic    *propagation.TrafficGrid
	Blackout   *energy.BlackoutState
	TaxRate    float64
	Weather    float32 // additive modifier from current weather
	PolicyMood float32 // additive modifier from active policies
}

// TargetHappiness computes where a citizen's happiness is heading.
func TargetHappiness(in HappinessInput, home component.HomeLocation, work *component.WorkLocation, needs component.Needs) float32 {
	g := in.Grid
	hx, hy := home.GridX, home.GridY
	h := float32(BaseHappiness)
	if work != nil {
		h += EmployedBonus
		if Manhattan(world.Pos{X: hx, Y: hy}, world.Pos{X: work.GridX, Y: work.GridY}) <= ShortCommuteCells {
			h += ShortCommuteBonus
		}
	}
	if g.InBounds(hx, hy) {
		c := g.Get(hx, hy)
		if c.HasPower {
			h += PowerBonus
		} else {
			h -= NoPowerPenalty
		}
		if c.HasWater {
			h += WaterBonus
		} else {
			h -= NoWaterPenalty
		}
		if in.Blackout != nil && in.Blackout.Blacked(g.Index(hx, hy)) {
			h -= BlackoutPenalty
			if in.Blackout.Extended() {
				h -= ExtendedBlackoutMore
			}
		}
	}
	if cov := in.Coverage; cov != nil {
		bonus := []struct {
			bit component.CoverageBit
			v   float32
		}{
			{component.CoverHealth, HealthCoverageBonus},
			{component.CoverEducation, EducationBonus},
			{component.CoverPolice, PoliceBonus},
			{component.CoverPark, ParkBonus},
			{component.CoverEntertainment, EntertainmentBonus},
			{component.CoverTransport, TransportBonus},
		}
		for _, b := range bonus {
			if cov.Has(hx, hy, b.bit) {
				h += b.v
			}
		}
	}
	if in.TaxRate > HighTaxThreshold {
		h -= HighTaxPenalty * float32((in.TaxRate-HighTaxThreshold)/0.10)
	}
	if in.Traffic != nil && work != nil && in.Traffic.Congestion(g, work.GridX, work.GridY) > 0.5 {
		h -= CongestionPenalty
	}
	if in.Pollution != nil {
		h -= min(float32(in.Pollution.Get(hx, hy))/10, MaxPollutionPenalty)
	}
	if in.Noise != nil {
		h -= min(float32(in.Noise.Get(hx, hy))/20, MaxNoisePenalty)
	}
	h += (needs.Average() - 50) * NeedsWeight
	h += in.Weather + in.PolicyMood
	return clampNeed(h)
}

// UpdateHappiness moves each citizen's happiness a fixed fraction of the
// way toward its target.
func UpdateHappiness(s *Stores, in HappinessInput) {
	for _, e := range s.Citizen.Entities() {
		d := s.Details.Mut(e)
		if d == nil {
			continue
		}
		home, _ := s.Home.Get(e)
		var work *component.WorkLocation
		if wl, ok := s.Work.Get(e); ok {
			work = &wl
		}
		needs, ok := s.Needs.Get(e)
		if !ok {
			needs = component.DefaultNeeds()
		}
		target := TargetHappiness(in, home, work, needs)
		d.Happiness = clampNeed(d.Happiness + (target-d.Happiness)*HappinessSmoothing)
	}
}

// AverageHappiness is the mean over all citizens, 0 for an empty city.
func AverageHappiness(s *Stores) float32 {
	if s.Details.Len() == 0 {
		return 0
	}
	var sum float32
	s.Details.Each(func(_ ecs.Entity, d *component.CitizenDetails) { sum += d.Happiness })
	return sum / float32(s.Details.Len())
}

func clampNeed(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
