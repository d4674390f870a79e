package citizens

import (
	"encoding/json"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// Tier thresholds.
const (
	BasicHungerThreshold = 30
	MiddleHappiness      = 40
	HighHappiness        = 70
	HighEducation        = 3
	HighLandValue        = 150
)

// TierStats counts citizens per population tier.
type TierStats struct {
	Low    uint32 `json:"low"`
	Middle uint32 `json:"middle"`
	High   uint32 `json:"high"`
}

// Total is the number of citizens counted.
func (t TierStats) Total() uint32 { return t.Low + t.Middle + t.High }

// Percentage returns the share of citizens in tier, 0 when empty.
func (t TierStats) Percentage(tier component.PopulationTier) float32 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	var n uint32
	switch tier {
	case component.TierLow:
		n = t.Low
	case component.TierMiddle:
		n = t.Middle
	case component.TierHigh:
		n = t.High
	}
	return float32(n) / float32(total) * 100
}

// TierInput bundles the grids tier evaluation reads.
type TierInput struct {
	Grid      *world.Grid
	Coverage  *propagation.CoverageGrid
	LandValue *propagation.LandValueGrid
}

// QualifyingTier returns the highest tier a citizen meets. Middle needs
// fed, housed with power and water, reasonably happy and near a school
// and a clinic. High adds a degree, valuable land and high happiness.
func QualifyingTier(in TierInput, d component.CitizenDetails, n component.Needs, home component.HomeLocation) component.PopulationTier {
	g := in.Grid
	x, y := home.GridX, home.GridY
	if !g.InBounds(x, y) {
		return component.TierLow
	}
	c := g.Get(x, y)
	if n.Hunger < BasicHungerThreshold || !c.HasWater || !c.HasPower || d.Happiness < MiddleHappiness {
		return component.TierLow
	}
	if in.Coverage == nil || !in.Coverage.Has(x, y, component.CoverEducation) || !in.Coverage.Has(x, y, component.CoverHealth) {
		return component.TierLow
	}
	if d.Education >= HighEducation && d.Happiness >= HighHappiness && in.LandValue != nil && in.LandValue.Get(x, y) >= HighLandValue {
		return component.TierHigh
	}
	return component.TierMiddle
}

// EvaluateTiers reassigns every citizen's tier and returns the counts.
func EvaluateTiers(s *Stores, in TierInput) TierStats {
	var st TierStats
	for _, e := range s.Citizen.Entities() {
		d, _ := s.Details.Get(e)
		n, ok := s.Needs.Get(e)
		if !ok {
			n = component.DefaultNeeds()
		}
		h, _ := s.Home.Get(e)
		tier := QualifyingTier(in, d, n, h)
		s.Tier.Set(e, component.PopulationTierComp{Tier: tier})
		switch tier {
		case component.TierLow:
			st.Low++
		case component.TierMiddle:
			st.Middle++
		case component.TierHigh:
			st.High++
		}
	}
	return st
}

// Affordability tuning.
const (
	HealthyRatio             = 0.3
	StressedRatio            = 0.5
	CrisisTrigger            = 0.4
	CrisisRelief             = 0.35
	MaxCrisisDuration        = 50
	MaxAttractivenessPenalty = 25
	RentPerLandValue         = 8
)

// AffordabilityTier classifies a rent to income ratio.
type AffordabilityTier uint8

const (
	Healthy AffordabilityTier = iota
	Stressed
	Crisis
)

var affordabilityNames = []string{"Healthy", "Stressed", "Crisis"}

func (t AffordabilityTier) String() string {
	if int(t) < len(affordabilityNames) {
		return affordabilityNames[t]
	}
	return "Unknown"
}

func (t AffordabilityTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *AffordabilityTier) UnmarshalText(b []byte) error {
	for i, n := range affordabilityNames {
		if n == string(b) {
			*t = AffordabilityTier(i)
			return nil
		}
	}
	*t = Healthy
	return nil
}

// TierForRatio classifies ratio.
func TierForRatio(ratio float32) AffordabilityTier {
	switch {
	case ratio < HealthyRatio:
		return Healthy
	case ratio < StressedRatio:
		return Stressed
	}
	return Crisis
}

// AffordabilityState tracks city-wide housing affordability and the crisis
// state machine.
type AffordabilityState struct {
	Ratio            float32           `json:"ratio"`
	Tier             AffordabilityTier `json:"tier"`
	CrisisActive     bool              `json:"crisis_active"`
	CrisisDuration   uint32            `json:"crisis_duration"`
	Severity         float32           `json:"severity"`
	AverageRent      float32           `json:"average_rent"`
	AverageIncome    float32           `json:"average_income"`
	CitizensHealthy  uint32            `json:"citizens_healthy"`
	CitizensStressed uint32            `json:"citizens_stressed"`
	CitizensCrisis   uint32            `json:"citizens_crisis"`
}

func (a *AffordabilityState) SaveKey() string { return "housing_affordability" }

func (a *AffordabilityState) SaveBytes() ([]byte, bool) {
	if *a == (AffordabilityState{}) {
		return nil, false
	}
	b, err := json.Marshal(a)
	return b, err == nil
}

func (a *AffordabilityState) LoadBytes(data []byte) error {
	var v AffordabilityState
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = v
	return nil
}

// AttractivenessPenalty is how much the crisis deters newcomers.
func (a *AffordabilityState) AttractivenessPenalty() float32 {
	if !a.CrisisActive {
		return 0
	}
	return MaxAttractivenessPenalty * a.Severity
}

// Affordability estimates rent from land value under occupied homes,
// compares it with salaries, and steps the crisis state machine.
func Affordability(a *AffordabilityState, s *Stores, b *zoning.Buildings, lv *propagation.LandValueGrid) {
	var totalRent float32
	var renters uint32
	b.Building.Each(func(e ecs.Entity, bl *component.Building) {
		if !bl.Zone.IsResidential() || bl.Occupants == 0 || b.Construction.Has(e) {
			return
		}
		rent := float32(lv.Get(bl.GridX, bl.GridY)) * RentPerLandValue
		totalRent += rent * float32(bl.Occupants)
		renters += bl.Occupants
	})
	var avgRent float32
	if renters > 0 {
		avgRent = totalRent / float32(renters)
	}

	var totalIncome float32
	var earners, healthy, stressed, crisis uint32
	s.Details.Each(func(_ ecs.Entity, d *component.CitizenDetails) {
		if d.Salary <= 0 {
			return
		}
		totalIncome += d.Salary
		earners++
		switch TierForRatio(avgRent / d.Salary) {
		case Healthy:
			healthy++
		case Stressed:
			stressed++
		default:
			crisis++
		}
	})
	var avgIncome float32
	if earners > 0 {
		avgIncome = totalIncome / float32(earners)
	}

	var ratio float32
	switch {
	case avgIncome > 0:
		ratio = min(avgRent/avgIncome, 2)
	case avgRent > 0:
		ratio = 2
	}

	a.Ratio = ratio
	a.Tier = TierForRatio(ratio)
	a.AverageRent = avgRent
	a.AverageIncome = avgIncome
	a.CitizensHealthy, a.CitizensStressed, a.CitizensCrisis = healthy, stressed, crisis

	switch {
	case a.CrisisActive && ratio < CrisisRelief:
		a.CrisisActive = false
		a.CrisisDuration = 0
		a.Severity = 0
	case a.CrisisActive:
		a.CrisisDuration++
		a.Severity = min(float32(a.CrisisDuration)/MaxCrisisDuration, 1)
	case ratio > CrisisTrigger:
		a.CrisisActive = true
		a.CrisisDuration = 1
		a.Severity = 1.0 / MaxCrisisDuration
	}
}
