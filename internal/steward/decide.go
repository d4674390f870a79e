package steward

import (
	"fmt"
	"math"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// Decision kinds recorded in memory.
const (
	ActNone     = "none"
	ActPower    = "power"
	ActWater    = "water"
	ActLoan     = "loan"
	ActRaiseTax = "raise_tax"
	ActLowerTax = "lower_tax"
	ActZone     = "zone"
)

const (
	taxStep             = 0.01
	revenueTaxCeiling   = 0.15 // the steward never raises tax past this
	comfortableTreasury = 50_000
	zoneDemand          = 0.5
	cooldownCycles      = 2 // a kind of intervention waits this many cycles to repeat
)

// powerPlants are tried in order; the first affordable one is built.
var powerPlants = []component.UtilityType{component.GasPlant, component.CoalPlant, component.WindFarm}

// Decision is the steward's choice for one cycle. Act is nil for ActNone.
type Decision struct {
	Action    string            `json:"action"`
	Rationale string            `json:"rationale"`
	Act       action.GameAction `json:"-"`
}

func none(why string) *Decision { return &Decision{Action: ActNone, Rationale: why} }

// Decide picks zero or one intervention. Rules run in priority order:
// bankruptcy, power, water, runway, surplus, then growth. mem may be nil.
func Decide(snap *CitySnapshot, h *CityHealth, mem *CycleMemory) *Decision {
	c := &snap.City
	cooling := func(act string) bool { return mem != nil && mem.CoolingDown(act, cooldownCycles) }

	if c.Loans.Bankrupt {
		if !cooling(ActRaiseTax) && c.Budget.TaxRate < revenueTaxCeiling {
			return raiseTax(c, "city is bankrupt")
		}
		return none("city is bankrupt; waiting for revenue to recover")
	}

	if h.PowerShort && !cooling(ActPower) {
		if d := buildPower(snap); d != nil {
			return d
		}
	}

	if h.WaterCoverage < lowWaterCoverage && !cooling(ActWater) {
		cost := component.WaterTower.Cost()
		if lot, ok := pickLot(snap.Lots, false); ok && c.Budget.Treasury >= cost {
			return &Decision{
				Action:    ActWater,
				Rationale: fmt.Sprintf("only %.0f%% of powered cells have water", h.WaterCoverage*100),
				Act:       action.PlaceUtility{X: uint32(lot.X), Y: uint32(lot.Y), UtilityType: component.WaterTower},
			}
		}
	}

	if h.RunwayMonths < shortRunway {
		why := fmt.Sprintf("treasury covers %.1f months of deficit", h.RunwayMonths)
		if !cooling(ActRaiseTax) && c.Budget.TaxRate < revenueTaxCeiling {
			return raiseTax(c, why)
		}
		if !cooling(ActLoan) && c.Loans.Count < economy.MaxLoans {
			return &Decision{Action: ActLoan, Rationale: why, Act: action.TakeLoan{Tier: economy.LoanSmall}}
		}
	}

	if math.IsInf(h.RunwayMonths, 1) && c.Budget.Treasury > comfortableTreasury &&
		c.Budget.TaxRate > economy.DefaultTaxRate+taxStep/2 && !cooling(ActLowerTax) {
		return &Decision{
			Action:    ActLowerTax,
			Rationale: "budget in surplus with a comfortable treasury",
			Act:       action.SetTaxRate{Rate: float32(math.Max(c.Budget.TaxRate-taxStep, economy.DefaultTaxRate))},
		}
	}

	if !cooling(ActZone) {
		if d := zoneForDemand(snap); d != nil {
			return d
		}
	}

	return none(fmt.Sprintf("no rule fired at crisis level %s", h.CrisisLevel))
}

// buildPower places the first affordable plant, or borrows when none is
// affordable. It returns nil when neither is possible.
func buildPower(snap *CitySnapshot) *Decision {
	c := &snap.City
	why := fmt.Sprintf("power reserve %.0f%% (deficit=%t, blackout=%t)",
		c.Power.ReserveMargin*100, c.Power.Deficit, c.Power.BlackoutActive)
	lot, ok := pickLot(snap.Lots, false)
	if !ok {
		return nil
	}
	for _, u := range powerPlants {
		if c.Budget.Treasury >= u.Cost() {
			return &Decision{
				Action:    ActPower,
				Rationale: why,
				Act:       action.PlaceUtility{X: uint32(lot.X), Y: uint32(lot.Y), UtilityType: u},
			}
		}
	}
	if c.Loans.Count < economy.MaxLoans {
		return &Decision{Action: ActLoan, Rationale: why + "; borrowing to build", Act: action.TakeLoan{Tier: economy.LoanSmall}}
	}
	return nil
}

func raiseTax(c *CityStatus, why string) *Decision {
	rate := math.Min(c.Budget.TaxRate+taxStep, revenueTaxCeiling)
	return &Decision{
		Action:    ActRaiseTax,
		Rationale: why,
		Act:       action.SetTaxRate{Rate: float32(clampTax(rate))},
	}
}

// zoneForDemand paints one unzoned lot for the strongest demand above
// zoneDemand.
func zoneForDemand(snap *CitySnapshot) *Decision {
	d := snap.City.Demand
	best, zone := float32(zoneDemand), world.ZoneNone
	for _, cand := range []struct {
		v float32
		z world.ZoneType
	}{
		{d.Residential, world.ResidentialLow},
		{d.Commercial, world.CommercialLow},
		{d.Industrial, world.Industrial},
		{d.Office, world.Office},
	} {
		if cand.v > best {
			best, zone = cand.v, cand.z
		}
	}
	if zone == world.ZoneNone {
		return nil
	}
	lot, ok := pickLot(snap.Lots, true)
	if !ok {
		return nil
	}
	x, y := uint32(lot.X), uint32(lot.Y)
	return &Decision{
		Action:    ActZone,
		Rationale: fmt.Sprintf("%s demand at %.2f", zone, best),
		Act:       action.PaintZone{X0: x, Y0: y, X1: x, Y1: y, Zone: zone},
	}
}

// pickLot returns the first unzoned lot, or with unzonedOnly false falls
// back to any lot.
func pickLot(lots []Lot, unzonedOnly bool) (Lot, bool) {
	for _, l := range lots {
		if l.Zone == "" || l.Zone == world.ZoneNone.String() {
			return l, true
		}
	}
	if !unzonedOnly && len(lots) > 0 {
		return lots[0], true
	}
	return Lot{}, false
}

func clampTax(rate float64) float64 {
	return math.Max(0, math.Min(rate, economy.MaxTaxRate))
}
