package engine

import (
	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/advisor"
	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/energy"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/roadgraph"
	"github.com/talgya/gridcity/internal/weather"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// Cadences in ticks.
const (
	GrowthInterval      = 30
	ImmigrationInterval = 30
)

// Emission tuning for the derived layers.
const (
	industrialPollution = 6   // quanta per building level
	industrialNoise     = 30  // noise level at an industrial lot
	industrialSoil      = 0.4 // contamination per level per slow tick
	landfillSoil        = 2.0
	wastePerResident    = 0.06 // tons per resident per month
	drainPerRoadCell    = 0.02 // feet of storm drain capacity
	freeTransitMood     = 2
)

// systems lists every system in registration order. The schedule sorts
// them by stage and After constraints.
func (s *Simulation) systems() []System {
	roadsDirty := func(s *Simulation) bool { return s.Roads.Dirty() }
	infraDue := func(s *Simulation) bool { return s.infraDirt }
	utilitiesDue := func(s *Simulation) bool { return s.utilityDirt || SlowTick(s) }
	coverageDue := func(s *Simulation) bool { return s.Services.Changed() || SlowTick(s) }
	dispatchDue := EveryN(energy.DispatchInterval)

	return []System{
		// ── Input ──
		{Name: "apply_actions", Stage: StageInput, Guard: Idle, Run: (*Simulation).applyQueued},

		// ── Clock ──
		{Name: "advance_clock", Stage: StageClock, Run: func(s *Simulation) { s.Clock.Advance() }},

		// ── Propagation ──
		{Name: "road_graph", Stage: StagePropagation, Guard: roadsDirty, Run: (*Simulation).rebuildGraph},
		{Name: "mode_infra", Stage: StagePropagation, After: []string{"road_graph"}, Guard: infraDue, Run: (*Simulation).rebuildInfra},
		{Name: "utilities", Stage: StagePropagation, After: []string{"road_graph"}, Guard: utilitiesDue, Run: (*Simulation).propagateUtilities},
		{Name: "coverage", Stage: StagePropagation, Guard: coverageDue, Run: func(s *Simulation) {
			s.Layers.Coverage.Rebuild(s.serviceList())
		}},
		{Name: "walkability", Stage: StagePropagation, After: []string{"coverage"}, Guard: SlowTick, Run: func(s *Simulation) {
			propagation.UpdateWalkability(s.Layers.Walkability, s.Grid, s.Layers.Coverage)
		}},
		{Name: "trees", Stage: StagePropagation, Guard: NewDay, Run: func(s *Simulation) {
			propagation.GrowTrees(s.Layers.Trees, s.Grid)
		}},
		{Name: "pollution", Stage: StagePropagation, After: []string{"trees"}, Guard: SlowTick, Run: (*Simulation).updatePollution},
		{Name: "noise", Stage: StagePropagation, Guard: SlowTick, Run: (*Simulation).updateNoise},
		{Name: "soil", Stage: StagePropagation, Guard: SlowTick, Run: (*Simulation).updateSoil},
		{Name: "land_value", Stage: StagePropagation,
			After: []string{"walkability", "pollution", "noise", "soil", "trees"},
			Guard: SlowTick, Run: (*Simulation).updateLandValue},
		{Name: "flood", Stage: StagePropagation, Guard: SlowTick, Run: (*Simulation).updateFlood},

		// ── Simulation ──
		{Name: "weather", Stage: StageSimulation, Guard: NewHour, Run: (*Simulation).updateWeather},
		{Name: "drought", Stage: StageSimulation, After: []string{"weather"}, Guard: NewDay, Run: func(s *Simulation) {
			weather.UpdateDrought(s.Drought(), s.Weather().Rainfall30(), true)
		}},
		{Name: "reservoir", Stage: StageSimulation, After: []string{"drought"}, Guard: NewDay, Run: (*Simulation).updateReservoir},
		{Name: "energy_demand", Stage: StageSimulation, After: []string{"weather"}, Guard: dispatchDue, Run: func(s *Simulation) {
			s.demandMW = energy.AggregateDemand(s.Buildings.Completed(), s.serviceList(), s.Weather().Temperature)
		}},
		{Name: "dispatch", Stage: StageSimulation, After: []string{"energy_demand"}, Guard: dispatchDue, Run: (*Simulation).dispatch},
		{Name: "blackout", Stage: StageSimulation, After: []string{"dispatch"}, Guard: dispatchDue, Run: (*Simulation).rollingBlackout},
		{Name: "demand", Stage: StageSimulation, Guard: SlowTick, Run: func(s *Simulation) {
			st := zoning.CollectStats(s.Buildings, s.Roads, uint32(s.Citizens.Population()))
			*s.Demand() = zoning.ComputeDemand(st)
		}},
		{Name: "growth", Stage: StageSimulation, After: []string{"demand"}, Guard: EveryN(GrowthInterval), Run: (*Simulation).grow},
		{Name: "construction", Stage: StageSimulation, After: []string{"growth"}, Run: (*Simulation).construct},
		{Name: "upgrades", Stage: StageSimulation, After: []string{"construction"}, Guard: NewDay, Run: func(s *Simulation) {
			if up := zoning.UpgradeBuildings(s.Buildings, s.Layers.LandValue, s.Policies().Modifiers().MaxLevel); len(up) > 0 {
				s.emit(CatGrowth, "%d buildings upgraded", len(up))
			}
		}},
		{Name: "immigration", Stage: StageSimulation, After: []string{"construction"}, Guard: EveryN(ImmigrationInterval), Run: (*Simulation).immigrate},
		{Name: "jobs", Stage: StageSimulation, After: []string{"immigration"}, Guard: EveryN(ImmigrationInterval), Run: func(s *Simulation) {
			citizens.AssignJobs(s.Citizens, s.Buildings)
		}},
		{Name: "activities", Stage: StageSimulation, After: []string{"jobs"}, Run: func(s *Simulation) {
			citizens.UpdateActivities(s.Citizens, s.Clock.HourFloat(), citizens.Routes{
				Grid:    s.Grid,
				Graph:   s.Graph,
				Traffic: s.Layers.Traffic,
				Infra:   s.modeInfra,
			})
		}},
		{Name: "movement", Stage: StageSimulation, After: []string{"activities"}, Run: func(s *Simulation) {
			speed := 1 / s.Weather().Modifiers().TravelPenalty
			vehicles := citizens.Move(s.Citizens, s.Grid, speed)
			propagation.UpdateTraffic(s.Layers.Traffic, s.Grid, vehicles)
		}},
		{Name: "needs", Stage: StageSimulation, After: []string{"activities"}, Run: func(s *Simulation) {
			citizens.UpdateNeeds(s.Citizens, s.Grid)
		}},
		{Name: "happiness", Stage: StageSimulation, After: []string{"needs", "blackout"}, Guard: SlowTick, Run: (*Simulation).updateHappiness},
		{Name: "lifecycle", Stage: StageSimulation, After: []string{"happiness"}, Guard: NewDay, Run: (*Simulation).lifecycle},
		{Name: "tiers", Stage: StageSimulation, After: []string{"happiness"}, Guard: SlowTick, Run: func(s *Simulation) {
			*s.Tiers() = citizens.EvaluateTiers(s.Citizens, citizens.TierInput{
				Grid:      s.Grid,
				Coverage:  s.Layers.Coverage,
				LandValue: s.Layers.LandValue,
			})
		}},
		{Name: "affordability", Stage: StageSimulation, After: []string{"tiers"}, Guard: SlowTick, Run: (*Simulation).affordability},
		{Name: "waste", Stage: StageSimulation, Guard: SlowTick, Run: (*Simulation).updateWaste},
		{Name: "budget", Stage: StageSimulation, After: []string{"waste", "lifecycle", "upgrades"}, Guard: NewDay, Run: (*Simulation).dailyBudget},
		{Name: "blackout_casualties", Stage: StageSimulation, After: []string{"blackout"}, Guard: NewDay, Run: (*Simulation).blackoutCasualties},
		{Name: "advisor", Stage: StageSimulation, After: []string{"budget", "affordability"}, Guard: EveryN(advisor.EvaluateInterval), Run: (*Simulation).advise},

		// ── Stats ──
		{Name: "stats", Stage: StageStats, Guard: SlowTick, Run: (*Simulation).refreshStats},
		{Name: "daily_report", Stage: StageStats, After: []string{"stats"}, Guard: NewDay, Run: (*Simulation).dailyReport},
		{Name: "check_invariants", Stage: StageStats, Guard: SlowTick, Run: (*Simulation).checkInvariants},

		// ── Output ──
		{Name: "clear_changes", Stage: StageOutput, Run: func(s *Simulation) { s.World.ClearChanges() }},
	}
}

// ── Propagation ─────────────────────────────────────────────────────

func (s *Simulation) rebuildGraph() {
	s.Graph = roadgraph.Build(s.Roads)
	s.Roads.ClearDirty()
	s.utilityDirt = true
	s.infraDirt = true
}

func (s *Simulation) rebuildInfra() {
	s.modeInfra = citizens.BuildModeInfra(s.Roads, s.serviceList())
	s.modeInfra.FreeTransit = s.Policies().Modifiers().FreeTransit
	s.infraDirt = false
}

// propagateUtilities recomputes power and water reach, records the
// unmasked power state, then reapplies the current blackout mask.
func (s *Simulation) propagateUtilities() {
	wm := s.Weather().Modifiers()
	propagation.UpdateUtilities(s.Grid, s.utilityRefs(), propagation.UtilityParams{
		WeatherMultiplier: wm.UtilityRange,
		WaterRangeScale:   s.Reservoir().RangeScale(),
	}, s.Layers.Network)
	propagation.UpdatePowerLines(s.Grid, s.plantPositions(), s.Layers.PowerLines)

	if len(s.poweredBase) != len(s.Grid.Cells) {
		s.poweredBase = make([]bool, len(s.Grid.Cells))
	}
	for i := range s.Grid.Cells {
		s.poweredBase[i] = s.Grid.Cells[i].HasPower
	}
	energy.ApplyBlackoutMask(s.Blackout(), s.Grid)
	s.utilityDirt = false
}

// rebuildViews refreshes the network and power-line views without
// touching the grid's utility flags.
func (s *Simulation) rebuildViews() {
	scratch := s.Grid.Clone()
	wm := s.Weather().Modifiers()
	propagation.UpdateUtilities(scratch, s.utilityRefs(), propagation.UtilityParams{
		WeatherMultiplier: wm.UtilityRange,
		WaterRangeScale:   s.Reservoir().RangeScale(),
	}, s.Layers.Network)
	propagation.UpdatePowerLines(scratch, s.plantPositions(), s.Layers.PowerLines)
}

func (s *Simulation) updatePollution() {
	var sources []propagation.PollutionSource
	s.Buildings.Building.Each(func(e ecs.Entity, b *component.Building) {
		if b.Zone == world.Industrial && !s.Buildings.Construction.Has(e) {
			sources = append(sources, propagation.PollutionSource{X: b.GridX, Y: b.GridY, Quanta: float32(industrialPollution * int(b.Level))})
		}
	})
	s.Plants.Each(func(_ ecs.Entity, p *component.PowerPlant) {
		if p.CapacityMW <= 0 || p.CurrentOutputMW <= 0 {
			return
		}
		q := float32(p.PlantType.Pollution()) * p.CurrentOutputMW / p.CapacityMW
		sources = append(sources, propagation.PollutionSource{X: p.GridX, Y: p.GridY, Quanta: q})
	})
	s.Utilities.Each(func(_ ecs.Entity, u *component.UtilitySource) {
		if !u.UtilityType.IsPower() && u.UtilityType.Pollution() > 0 {
			sources = append(sources, propagation.PollutionSource{X: u.GridX, Y: u.GridY, Quanta: float32(u.UtilityType.Pollution())})
		}
	})
	sources = append(sources, propagation.TrafficSources(s.Layers.Traffic, s.Grid)...)
	w := s.Weather()
	propagation.UpdatePollution(s.Layers.Pollution, sources, propagation.Wind{DX: w.WindDX, DY: w.WindDY}, s.Layers.Trees)
}

func (s *Simulation) updateNoise() {
	var sources []propagation.NoiseSource
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) {
		if n := sb.ServiceType.Noise(); n > 0 {
			sources = append(sources, propagation.NoiseSource{X: sb.GridX, Y: sb.GridY, Level: n})
		}
	})
	s.Utilities.Each(func(_ ecs.Entity, u *component.UtilitySource) {
		if n := u.UtilityType.Noise(); n > 0 {
			sources = append(sources, propagation.NoiseSource{X: u.GridX, Y: u.GridY, Level: n})
		}
	})
	s.Buildings.Building.Each(func(e ecs.Entity, b *component.Building) {
		if b.Zone == world.Industrial && !s.Buildings.Construction.Has(e) {
			sources = append(sources, propagation.NoiseSource{X: b.GridX, Y: b.GridY, Level: industrialNoise})
		}
	})
	propagation.UpdateNoise(s.Layers.Noise, s.Grid, sources)
}

func (s *Simulation) updateSoil() {
	var sources []propagation.SoilSource
	s.Buildings.Building.Each(func(e ecs.Entity, b *component.Building) {
		if b.Zone == world.Industrial && !s.Buildings.Construction.Has(e) {
			sources = append(sources, propagation.SoilSource{X: b.GridX, Y: b.GridY, Amount: industrialSoil * float32(b.Level)})
		}
	})
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) {
		if sb.ServiceType == component.Landfill {
			sources = append(sources, propagation.SoilSource{X: sb.GridX, Y: sb.GridY, Amount: landfillSoil})
		}
	})
	propagation.UpdateSoil(s.Layers.Soil, sources)
}

func (s *Simulation) updateLandValue() {
	propagation.UpdateLandValue(s.Layers.LandValue, s.Grid, propagation.LandValueInputs{
		Coverage:    s.Layers.Coverage,
		Walkability: s.Layers.Walkability,
		Pollution:   s.Layers.Pollution,
		Noise:       s.Layers.Noise,
		Soil:        s.Layers.Soil,
		Trees:       s.Layers.Trees,
	})
}

func (s *Simulation) updateFlood() {
	f := s.Layers.Flood
	was := f.IsFlooding
	roads := s.Roads.Len()
	propagation.UpdateFlood(f, s.Grid, propagation.FloodInput{
		Runoff:        s.Weather().Runoff(),
		DrainCapacity: float32(roads) * drainPerRoadCell,
		DrainCount:    roads,
		Protected:     s.Policies().Modifiers().FloodProtected,
		Seed:          s.Seed,
		Tick:          s.Clock.Tick,
	}, s.Buildings.Completed())
	switch {
	case f.IsFlooding && !was:
		s.emit(CatWarning, "flooding: %d cells under water, max depth %.1f ft", f.FloodedCells, f.MaxDepth)
	case !f.IsFlooding && was:
		s.emit(CatWeather, "flood waters receded")
	}
}

// ── Simulation ──────────────────────────────────────────────────────

func (s *Simulation) updateWeather() {
	ch, changed := s.Weather().Update(s.Clock.Day(), s.Clock.Hour(), s.Seed)
	if !changed {
		return
	}
	if ch.SeasonChanged {
		s.emit(CatWeather, "%s has arrived", ch.Season)
	}
	if ch.From != ch.To {
		s.emit(CatWeather, "weather turned from %s to %s", ch.From, ch.To)
	}
	if ch.Extreme {
		s.emit(CatWarning, "extreme weather: %s", s.Weather().Modifiers().Description)
	}
}

func (s *Simulation) updateReservoir() {
	w := s.Weather()
	r := s.Reservoir()
	wasCritical := r.Critical()
	rain := w.RainHistory[len(w.RainHistory)-1]
	weather.UpdateReservoir(r, rain, uint32(s.Citizens.Population()), s.Drought().WaterDemandMultiplier(), w.Temperature)
	if r.Critical() && !wasCritical {
		s.emit(CatWarning, "reservoir critically low at %.0f%%", r.Level*100)
	}
}

func (s *Simulation) dispatch() {
	d := s.Dispatch()
	hadDeficit := d.Active && d.HasDeficit
	energy.Dispatch(d, s.demandMW, s.plantRefs())
	switch {
	case d.Active && d.HasDeficit && !hadDeficit:
		s.emit(CatEnergy, "power deficit: demand %.0f MW, supply %.0f MW", d.TotalDemandMW, d.TotalSupplyMW)
	case hadDeficit && !(d.Active && d.HasDeficit):
		s.emit(CatEnergy, "power supply meets demand again")
	}
}

// loadTier maps a cell to its blackout priority: the service standing on
// it, critical for utilities, otherwise by zone.
func (s *Simulation) loadTier() energy.TierFunc {
	prio := make(map[uint64]component.LoadPriority, s.Services.Len()+s.Utilities.Len())
	s.Services.Each(func(e ecs.Entity, sb *component.ServiceBuilding) {
		prio[uint64(e)] = sb.ServiceType.Priority()
	})
	s.Utilities.Each(func(e ecs.Entity, _ *component.UtilitySource) {
		prio[uint64(e)] = component.PriorityCritical
	})
	cells := s.Grid.Cells
	return func(i int) component.LoadPriority {
		c := cells[i]
		if c.BuildingID != 0 {
			if p, ok := prio[c.BuildingID]; ok {
				return p
			}
		}
		return energy.ZonePriority(c.Zone)
	}
}

// rollingBlackout restores the unmasked power state and sheds this
// dispatch period's cells.
func (s *Simulation) rollingBlackout() {
	if len(s.poweredBase) == len(s.Grid.Cells) {
		for i, on := range s.poweredBase {
			s.Grid.Cells[i].HasPower = on
		}
	}
	b := s.Blackout()
	was := b.Active
	energy.EvaluateBlackout(b, s.Grid, s.Dispatch(), s.Clock.Day(), s.loadTier())
	energy.ApplyBlackoutMask(b, s.Grid)
	switch {
	case b.Active && !was:
		s.emit(CatEnergy, "rolling blackout: %d cells shed (%.0f%% of load)", b.AffectedCells, b.LoadShedFraction*100)
	case !b.Active && was:
		s.emit(CatEnergy, "power restored to all cells")
	}
}

func (s *Simulation) blackoutCasualties() {
	b := s.Blackout()
	if !b.Extended() {
		return
	}
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) {
		if sb.ServiceType != component.Hospital {
			return
		}
		if b.Blacked(s.Grid.Index(sb.GridX, sb.GridY)) {
			b.HospitalCasualties++
			s.emit(CatWarning, "hospital at (%d,%d) without power for %d days", sb.GridX, sb.GridY, b.DurationDays)
		}
	})
}

func (s *Simulation) grow() {
	spawned := zoning.GrowBuildings(s.World, s.Buildings, zoning.GrowthInput{
		Grid:      s.Grid,
		Demand:    *s.Demand(),
		Nimby:     &s.nimby,
		LandValue: s.Layers.LandValue,
		Seed:      s.Seed,
		Tick:      s.Clock.Tick,
	})
	if len(spawned) > 0 {
		s.emit(CatGrowth, "%d construction sites opened", len(spawned))
	}
}

func (s *Simulation) construct() {
	done := zoning.AdvanceConstruction(s.Buildings, s.Grid, &s.nimby, s.Clock.Tick)
	s.Stats.Completed += len(done)
	for _, e := range done {
		if b, ok := s.Buildings.Building.Get(e); ok {
			s.emit(CatGrowth, "%s building completed at (%d,%d)", b.Zone, b.GridX, b.GridY)
		}
	}
}

func (s *Simulation) immigrate() {
	st := zoning.CollectStats(s.Buildings, s.Roads, uint32(s.Citizens.Population()))
	score := citizens.Attractiveness(
		citizens.AverageHappiness(s.Citizens),
		s.Citizens.Population(),
		zoning.VacancyRate(st.JobCapacity(), st.JobOccupants()),
		s.Affordability().AttractivenessPenalty(),
	)
	arrived := citizens.Immigrate(s.World, s.Citizens, s.Buildings, citizens.ImmigrationInput{
		Grid:           s.Grid,
		Attractiveness: score,
		Seed:           s.Seed,
		Tick:           s.Clock.Tick,
	})
	if len(arrived) > 0 {
		s.Stats.Arrivals += len(arrived)
		s.emit(CatPopulation, "%d residents moved in", len(arrived))
	}
}

func (s *Simulation) updateHappiness() {
	mood := -s.WasteEffects().HappinessPenalty
	if s.Policies().Modifiers().FreeTransit {
		mood += freeTransitMood
	}
	citizens.UpdateHappiness(s.Citizens, citizens.HappinessInput{
		Grid:       s.Grid,
		Coverage:   s.Layers.Coverage,
		Pollution:  s.Layers.Pollution,
		Noise:      s.Layers.Noise,
		Traffic:    s.Layers.Traffic,
		Blackout:   s.Blackout(),
		TaxRate:    s.Budget.TaxRate,
		Weather:    s.Weather().Modifiers().Happiness,
		PolicyMood: mood,
	})
}

func (s *Simulation) lifecycle() {
	res := citizens.ProcessLifecycle(s.World, s.Citizens, s.Buildings, s.Seed, s.Clock.Day())
	s.Stats.Deaths += res.Died
	s.Stats.Emigrants += res.Emigrated
	if res.Died > 0 || res.Emigrated > 0 {
		s.emit(CatPopulation, "%d residents died and %d left the city", res.Died, res.Emigrated)
	}
}

func (s *Simulation) affordability() {
	a := s.Affordability()
	was := a.CrisisActive
	citizens.Affordability(a, s.Citizens, s.Buildings, s.Layers.LandValue)
	if a.CrisisActive && !was {
		s.emit(CatWarning, "housing affordability crisis: rent burden %s", a.Tier)
	}
}

func (s *Simulation) updateWaste() {
	fx := s.WasteEffects()
	facilities := 0
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) {
		if sb.ServiceType == component.Landfill || sb.ServiceType == component.RecyclingCenter {
			facilities++
		}
	})
	tons := float64(s.Citizens.Population()) * wastePerResident
	*fx = economy.UpdateWaste(s.Waste(), tons, facilities)
}

// monthInputs gathers the recurring flows the budget projects from.
func (s *Simulation) monthInputs() economy.MonthInputs {
	in := economy.MonthInputs{
		RoadMaintenance: s.Roads.MaintenancePerMonth(),
		PolicyCost:      s.Policies().MonthlyCost() + s.Waste().MonthlyCost(),
		LoanPayments:    s.Loans().MonthlyPayments(),
		Modifiers:       s.Policies().Modifiers(),
	}
	for _, b := range s.Buildings.Completed() {
		in.Buildings = append(in.Buildings, economy.TaxBase{
			Zone:      b.Zone,
			Level:     b.Level,
			LandValue: s.Layers.LandValue.Get(b.GridX, b.GridY),
			Occupants: b.Occupants,
		})
	}
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) {
		in.ServiceUpkeep += sb.ServiceType.MonthlyUpkeep()
	})
	s.Utilities.Each(func(_ ecs.Entity, u *component.UtilitySource) {
		in.UtilityUpkeep += u.UtilityType.MonthlyUpkeep()
	})
	return in
}

// dailyBudget posts one day of income, expenses and loan payments.
func (s *Simulation) dailyBudget() {
	before := s.Budget.Treasury
	s.Budget.Project(s.monthInputs())
	s.Budget.ApplyDay(s.Clock.Day())
	res := s.Loans().ProcessDay(&s.Budget.Treasury)
	if res.LoansRepaid > 0 {
		s.emit(CatEconomy, "%d loans repaid in full", res.LoansRepaid)
	}
	if res.WentBankrupt {
		s.emit(CatWarning, "the city has declared bankruptcy with $%s in debt", humanize.Commaf(float64(int64(-s.Budget.Treasury))))
	}
	if before >= 0 && s.Budget.Treasury < 0 {
		s.emit(CatEconomy, "treasury went negative")
	}
}

func (s *Simulation) advise() {
	fl := s.Layers.Flood
	snap := advisor.Snapshot{
		Treasury:            s.Budget.Treasury,
		MonthlyIncome:       s.Budget.MonthlyIncome,
		MonthlyExpenses:     s.Budget.MonthlyExpenses,
		TaxRate:             s.Budget.TaxRate,
		Bankrupt:            s.Loans().Bankrupt,
		Loans:               len(s.Loans().Loans),
		Population:          s.Stats.Population,
		Unemployed:          s.Stats.Unemployed,
		AvgHappiness:        s.Stats.AvgHappiness,
		AffordabilityCrisis: s.Affordability().CrisisActive,
		Demand:              *s.Demand(),
		PowerDeficit:        s.Dispatch().Active && s.Dispatch().HasDeficit,
		BlackoutActive:      s.Blackout().Active,
		ReservoirLow:        s.Reservoir().Critical(),
		Flooding:            fl.IsFlooding,
		Grid:                s.Grid,
		Coverage:            s.Layers.Coverage,
		Pollution:           s.Layers.Pollution,
		Traffic:             s.Layers.Traffic,
	}
	s.Advisors.Evaluate(s.Clock.Tick, snap)
}
