package engine

import (
	"errors"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// RoadRefund is the share of a road's price returned when it is bulldozed.
const RoadRefund = 0.5

// ApplyAction executes a command against the city between ticks and
// records it in the action log. Invalid commands leave the city unchanged
// and report why.
func (s *Simulation) ApplyAction(a action.GameAction) action.Result {
	res := s.execute(a)
	s.ActionLog = append(s.ActionLog, action.Record{
		Tick:   s.Clock.Tick,
		Action: action.Envelope{Action: a},
		Result: res,
	})
	if res.OK() {
		s.emit(CatAction, "%s applied", a.Kind())
	} else {
		s.emit(CatAction, "%s rejected: %s", a.Kind(), res.Failure)
	}
	return res
}

// applyQueued drains the queue filled by Enqueue.
func (s *Simulation) applyQueued() {
	queued := s.pending
	s.pending = nil
	for _, a := range queued {
		s.ApplyAction(a)
	}
}

func (s *Simulation) execute(a action.GameAction) action.Result {
	switch a := a.(type) {
	case action.SetPaused:
		s.Clock.Paused = a.Paused
		return action.Success
	case action.SetSpeed:
		s.Clock.Speed = ClampSpeed(a.Speed)
		return action.Success
	case action.SetTaxRate:
		s.Budget.SetTaxRate(float64(a.Rate))
		return action.Success
	case action.PlaceRoad:
		return s.placeRoad(a)
	case action.BulldozeCell:
		return s.bulldoze(int(a.X), int(a.Y))
	case action.PaintZone:
		return s.paintZone(a)
	case action.PlaceService:
		return s.placeService(a)
	case action.PlaceUtility:
		return s.placeUtility(a)
	case action.TakeLoan:
		return s.takeLoan(a.Tier)
	case action.TogglePolicy:
		return s.togglePolicy(a.Policy)
	case action.DismissAdvice:
		if a.TipID == "" {
			return action.Fail(action.ReasonInvalid)
		}
		s.Advisors.Dismiss(a.TipID)
		return action.Success
	case nil:
		return action.Fail(action.ReasonInvalid)
	}
	return action.Failf("%s: unsupported action %s", action.ReasonInvalid, a.Kind())
}

// ── Roads ───────────────────────────────────────────────────────────

func (s *Simulation) placeRoad(a action.PlaceRoad) action.Result {
	x, y := int(a.X), int(a.Y)
	if !s.Grid.InBounds(x, y) {
		return action.Fail(action.ReasonOutOfBounds)
	}
	if !a.RoadType.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	if a.RoadType == world.OneWay && a.Direction == nil {
		return action.Fail(action.ReasonNeedsDirection)
	}
	c := s.Grid.Get(x, y)
	switch {
	case c.Type == world.Water:
		return action.Fail(action.ReasonBlockedByWater)
	case c.HasBuilding():
		return action.Fail(action.ReasonOccupied)
	}
	if c.Type == world.Road && c.RoadType == a.RoadType {
		if d, ok := s.Roads.OneWayDirection(x, y); a.RoadType != world.OneWay || (ok && d == *a.Direction) {
			return action.Success
		}
	}
	cost := a.RoadType.Cost()
	if cost > s.Budget.Treasury {
		return action.Fail(action.ReasonInsufficientFunds)
	}
	var ok bool
	if a.RoadType == world.OneWay {
		ok = s.Roads.PlaceOneWay(s.Grid, x, y, *a.Direction)
	} else {
		ok = s.Roads.PlaceRoad(s.Grid, x, y, a.RoadType)
	}
	if !ok {
		return action.Fail(action.ReasonInvalid)
	}
	s.Budget.Spend(cost)
	return action.Success
}

// ── Bulldozer ───────────────────────────────────────────────────────

// bulldoze clears the top-most thing on a cell: a building, a facility, a
// road, then zone paint.
func (s *Simulation) bulldoze(x, y int) action.Result {
	if !s.Grid.InBounds(x, y) {
		return action.Fail(action.ReasonOutOfBounds)
	}
	c := s.Grid.Get(x, y)
	if c.HasBuilding() {
		e := ecs.Entity(c.BuildingID)
		switch {
		case s.Buildings.Building.Has(e):
			evicted := citizens.Evict(s.World, s.Citizens, s.Buildings, e)
			zoning.Demolish(s.World, s.Buildings, s.Grid, e)
			if evicted > 0 {
				s.emit(CatPopulation, "%d residents lost their home or job to the bulldozer", evicted)
			}
			return action.Success
		case s.Services.Has(e), s.Utilities.Has(e):
			s.removeFacility(e)
			return action.Success
		}
		// Stale id with no entity behind it.
		s.Grid.Mut(x, y).BuildingID = 0
		return action.Success
	}
	if c.Type == world.Road {
		rt := c.RoadType
		if !s.Roads.RemoveRoad(s.Grid, x, y) {
			return action.Fail(action.ReasonNothingToRemove)
		}
		s.Budget.Treasury += rt.Cost() * RoadRefund
		return action.Success
	}
	if c.Zone != world.ZoneNone {
		s.Grid.Mut(x, y).Zone = world.ZoneNone
		return action.Success
	}
	return action.Fail(action.ReasonNothingToRemove)
}

func (s *Simulation) removeFacility(e ecs.Entity) {
	if u, ok := s.Utilities.Get(e); ok {
		s.utilityDirt = true
		s.emit(CatAction, "%s at (%d,%d) demolished", u.UtilityType, u.GridX, u.GridY)
	}
	if sb, ok := s.Services.Get(e); ok {
		s.infraDirt = true
		s.emit(CatAction, "%s at (%d,%d) demolished", sb.ServiceType, sb.GridX, sb.GridY)
	}
	s.clearFootprint(e)
	s.World.Despawn(e)
}

func (s *Simulation) clearFootprint(e ecs.Entity) {
	id := uint64(e)
	for i := range s.Grid.Cells {
		if s.Grid.Cells[i].BuildingID == id {
			s.Grid.Cells[i].BuildingID = 0
		}
	}
}

// ── Zoning ──────────────────────────────────────────────────────────

func (s *Simulation) paintZone(a action.PaintZone) action.Result {
	if !a.Zone.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	x0, x1 := int(min(a.X0, a.X1)), int(max(a.X0, a.X1))
	y0, y1 := int(min(a.Y0, a.Y1)), int(max(a.Y0, a.Y1))
	if !s.Grid.InBounds(x0, y0) || !s.Grid.InBounds(x1, y1) {
		return action.Fail(action.ReasonOutOfBounds)
	}
	painted := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			c := s.Grid.Mut(x, y)
			if c.Type != world.Grass || c.HasBuilding() {
				continue
			}
			if a.Zone != world.ZoneNone && !s.Grid.AdjacentToRoad(x, y) {
				continue
			}
			c.Zone = a.Zone
			painted++
		}
	}
	if painted == 0 {
		return action.Fail(action.ReasonNotRoadAdjacent)
	}
	return action.Success
}

// ── Facilities ──────────────────────────────────────────────────────

// checkLot validates a w×h lot at (x, y): in bounds, dry, clear of roads
// and buildings, touching a road.
func (s *Simulation) checkLot(x, y, w, h int) action.Result {
	if !s.Grid.InBounds(x, y) || !s.Grid.InBounds(x+w-1, y+h-1) {
		return action.Fail(action.ReasonOutOfBounds)
	}
	adjacent := false
	for cy := y; cy < y+h; cy++ {
		for cx := x; cx < x+w; cx++ {
			c := s.Grid.Get(cx, cy)
			switch {
			case c.Type == world.Water:
				return action.Fail(action.ReasonBlockedByWater)
			case c.Type == world.Road, c.HasBuilding():
				return action.Fail(action.ReasonOccupied)
			}
			adjacent = adjacent || s.Grid.AdjacentToRoad(cx, cy)
		}
	}
	if !adjacent {
		return action.Fail(action.ReasonNotRoadAdjacent)
	}
	return action.Success
}

// claimLot stamps the footprint with e and clears its zone paint.
func (s *Simulation) claimLot(e ecs.Entity, x, y, w, h int) {
	for cy := y; cy < y+h; cy++ {
		for cx := x; cx < x+w; cx++ {
			c := s.Grid.Mut(cx, cy)
			c.BuildingID = uint64(e)
			c.Zone = world.ZoneNone
		}
	}
}

func (s *Simulation) placeService(a action.PlaceService) action.Result {
	if !a.ServiceType.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	x, y := int(a.X), int(a.Y)
	w, h := a.ServiceType.Footprint()
	if res := s.checkLot(x, y, w, h); !res.OK() {
		return res
	}
	if !s.Budget.Spend(a.ServiceType.Cost()) {
		return action.Fail(action.ReasonInsufficientFunds)
	}
	e := s.World.Spawn()
	s.Services.Set(e, component.ServiceBuilding{
		ServiceType: a.ServiceType,
		GridX:       x,
		GridY:       y,
		Radius:      a.ServiceType.Radius(),
	})
	s.claimLot(e, x, y, w, h)
	s.infraDirt = true
	return action.Success
}

func (s *Simulation) placeUtility(a action.PlaceUtility) action.Result {
	if !a.UtilityType.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	x, y := int(a.X), int(a.Y)
	if res := s.checkLot(x, y, 1, 1); !res.OK() {
		return res
	}
	if !s.Budget.Spend(a.UtilityType.Cost()) {
		return action.Fail(action.ReasonInsufficientFunds)
	}
	e := s.World.Spawn()
	s.Utilities.Set(e, component.UtilitySource{
		UtilityType: a.UtilityType,
		Range:       a.UtilityType.Range(),
		GridX:       x,
		GridY:       y,
	})
	if a.UtilityType.IsPower() {
		s.Plants.Set(e, component.NewPowerPlant(a.UtilityType, x, y))
	}
	s.claimLot(e, x, y, 1, 1)
	s.utilityDirt = true
	return action.Success
}

// ── Finance ─────────────────────────────────────────────────────────

func (s *Simulation) takeLoan(tier economy.LoanTier) action.Result {
	if !tier.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	switch err := s.Loans().TakeLoan(tier, &s.Budget.Treasury); {
	case errors.Is(err, economy.ErrLoanCap):
		return action.Fail(action.ReasonLoanCap)
	case errors.Is(err, economy.ErrBankrupt):
		return action.Fail(action.ReasonBankrupt)
	case err != nil:
		return action.Failf("%s: %v", action.ReasonInvalid, err)
	}
	s.emit(CatEconomy, "took a %s loan of $%s", tier, humanize.Commaf(tier.Amount()))
	return action.Success
}

func (s *Simulation) togglePolicy(p economy.Policy) action.Result {
	if !p.Valid() {
		return action.Fail(action.ReasonInvalid)
	}
	if p.Waste() {
		ws := s.Waste()
		if !ws.IsActive(p) && ws.SetupCost(p) > s.Budget.Treasury {
			return action.Fail(action.ReasonInsufficientFunds)
		}
		on, cost := ws.Toggle(p)
		s.Budget.Spend(cost)
		s.emit(CatEconomy, "%s %s", p, onOff(on))
		return action.Success
	}
	on := s.Policies().Toggle(p)
	if p == economy.FreePublicTransport {
		s.infraDirt = true
	}
	s.emit(CatEconomy, "%s %s", p, onOff(on))
	return action.Success
}

func onOff(on bool) string {
	if on {
		return "enacted"
	}
	return "repealed"
}
