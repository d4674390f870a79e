package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/save"
	"github.com/talgya/gridcity/internal/world"
)

// testCity builds a flat 32×32 city with a main street, zoning on both
// sides, a coal plant and a water tower.
func testCity(t *testing.T, seed uint64) *Simulation {
	t.Helper()
	s, err := NewGame(Options{Width: 32, Height: 32, Seed: seed, Treasury: 500_000})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	must := func(a action.GameAction) {
		t.Helper()
		if r := s.ApplyAction(a); !r.OK() {
			t.Fatalf("%s: %s", a.Kind(), r)
		}
	}
	for x := uint32(2); x < 30; x++ {
		must(action.PlaceRoad{X: x, Y: 10, RoadType: world.Local})
	}
	must(action.PaintZone{X0: 2, Y0: 9, X1: 29, Y1: 9, Zone: world.ResidentialLow})
	must(action.PaintZone{X0: 2, Y0: 11, X1: 15, Y1: 11, Zone: world.CommercialLow})
	must(action.PaintZone{X0: 16, Y0: 11, X1: 29, Y1: 11, Zone: world.Industrial})
	must(action.PlaceUtility{X: 1, Y: 10, UtilityType: component.CoalPlant})
	must(action.PlaceUtility{X: 30, Y: 10, UtilityType: component.WaterTower})
	return s
}

func run(s *Simulation, ticks int) {
	for i := 0; i < ticks; i++ {
		s.tick()
	}
}

// ── Schedule ────────────────────────────────────────────────────────

func TestScheduleOrdersByStageThenAfter(t *testing.T) {
	noop := func(*Simulation) {}
	sc, err := NewSchedule([]System{
		{Name: "late", Stage: StageOutput, Run: noop},
		{Name: "b", Stage: StageSimulation, After: []string{"a"}, Run: noop},
		{Name: "a", Stage: StageSimulation, Run: noop},
		{Name: "c", Stage: StageSimulation, Run: noop},
		{Name: "first", Stage: StageInput, Run: noop},
	})
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	got := strings.Join(sc.Names(), ",")
	if want := "first,a,b,c,late"; got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestScheduleErrors(t *testing.T) {
	noop := func(*Simulation) {}
	tests := []struct {
		name    string
		systems []System
		want    error
	}{
		{"cycle", []System{
			{Name: "a", Stage: StageSimulation, After: []string{"b"}, Run: noop},
			{Name: "b", Stage: StageSimulation, After: []string{"a"}, Run: noop},
		}, ErrScheduleCycle},
		{"unknown", []System{
			{Name: "a", Stage: StageSimulation, After: []string{"ghost"}, Run: noop},
		}, ErrUnknownSystem},
		{"duplicate", []System{
			{Name: "a", Stage: StageSimulation, Run: noop},
			{Name: "a", Stage: StageStats, Run: noop},
		}, ErrDuplicateSystem},
		{"later stage", []System{
			{Name: "a", Stage: StagePropagation, After: []string{"b"}, Run: noop},
			{Name: "b", Stage: StageSimulation, Run: noop},
		}, ErrStageOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchedule(tt.systems)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCityScheduleOrdering(t *testing.T) {
	s := testCity(t, 1)
	names := s.Schedule().Names()
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	if names[0] != "apply_actions" || names[len(names)-1] != "clear_changes" {
		t.Fatalf("schedule starts %q and ends %q", names[0], names[len(names)-1])
	}
	pairs := [][2]string{
		{"apply_actions", "advance_clock"},
		{"advance_clock", "road_graph"},
		{"road_graph", "utilities"},
		{"trees", "pollution"},
		{"pollution", "land_value"},
		{"land_value", "weather"},
		{"energy_demand", "dispatch"},
		{"dispatch", "blackout"},
		{"blackout", "happiness"},
		{"activities", "movement"},
		{"waste", "budget"},
		{"stats", "daily_report"},
	}
	for _, p := range pairs {
		if pos[p[0]] >= pos[p[1]] {
			t.Errorf("%s runs at %d, not before %s at %d", p[0], pos[p[0]], p[1], pos[p[1]])
		}
	}
}

// ── Clock and journal ───────────────────────────────────────────────

func TestClockBoundaries(t *testing.T) {
	c := Clock{Minutes: MinutesPerDay - 2, Speed: 1}
	c.Advance()
	if c.NewHour() || c.NewDay() {
		t.Fatalf("23:58 → 23:59 crossed a boundary")
	}
	c.Advance()
	if !c.NewHour() || !c.NewDay() {
		t.Fatalf("23:59 → 00:00 should cross hour and day")
	}
	if c.Day() != 2 || c.Hour() != 0 {
		t.Errorf("day %d hour %d, want day 2 hour 0", c.Day(), c.Hour())
	}

	c = Clock{Speed: 9}
	c.Advance()
	if c.Minutes != MaxSpeed {
		t.Errorf("speed 9 advanced %d minutes, want %d", c.Minutes, MaxSpeed)
	}
	if ClampSpeed(0) != MinSpeed {
		t.Errorf("ClampSpeed(0) = %d", ClampSpeed(0))
	}
}

func TestJournalTrimsOldest(t *testing.T) {
	var j Journal
	for i := 0; i < MaxEvents+5; i++ {
		j.Emit(uint64(i/10), CatGrowth, "x")
	}
	if j.Len() != MaxEvents {
		t.Fatalf("Len = %d, want %d", j.Len(), MaxEvents)
	}
	if first := j.Recent(0)[0].Seq; first != 6 {
		t.Errorf("oldest seq = %d, want 6", first)
	}
	if n := len(j.InTick(50)); n != 10 {
		t.Errorf("InTick(50) = %d events, want 10", n)
	}
	if n := len(j.Since(j.LastSeq() - 3)); n != 3 {
		t.Errorf("Since(last-3) = %d events, want 3", n)
	}
}

// ── Actions ─────────────────────────────────────────────────────────

func TestApplyActionFailures(t *testing.T) {
	s := testCity(t, 2)
	s.Grid.Mut(5, 20).Type = world.Water
	oneWay := world.North

	tests := []struct {
		name string
		act  action.GameAction
		want string
	}{
		{"road out of bounds", action.PlaceRoad{X: 99, Y: 1}, action.ReasonOutOfBounds},
		{"road on water", action.PlaceRoad{X: 5, Y: 20}, action.ReasonBlockedByWater},
		{"road on plant", action.PlaceRoad{X: 1, Y: 10}, action.ReasonOccupied},
		{"one-way without heading", action.PlaceRoad{X: 5, Y: 5, RoadType: world.OneWay}, action.ReasonNeedsDirection},
		{"service far from roads", action.PlaceService{X: 20, Y: 25, ServiceType: component.Hospital}, action.ReasonNotRoadAdjacent},
		{"service on road", action.PlaceService{X: 5, Y: 10, ServiceType: component.Hospital}, action.ReasonOccupied},
		{"utility on water", action.PlaceUtility{X: 5, Y: 20, UtilityType: component.WaterTower}, action.ReasonBlockedByWater},
		{"zone away from roads", action.PaintZone{X0: 20, Y0: 20, X1: 25, Y1: 25, Zone: world.Office}, action.ReasonNotRoadAdjacent},
		{"bulldoze empty", action.BulldozeCell{X: 25, Y: 25}, action.ReasonNothingToRemove},
		{"bad loan tier", action.TakeLoan{Tier: economy.LoanTier(99)}, action.ReasonInvalid},
		{"bad policy", action.TogglePolicy{Policy: economy.Policy(99)}, action.ReasonInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Save()
			r := s.ApplyAction(tt.act)
			if r.Failure != tt.want {
				t.Fatalf("result = %s, want Failure(%s)", r, tt.want)
			}
			if !bytes.Equal(before, s.Save()) {
				t.Errorf("rejected action changed the city")
			}
		})
	}

	ok := s.ApplyAction(action.PlaceRoad{X: 5, Y: 5, RoadType: world.OneWay, Direction: &oneWay})
	if !ok.OK() {
		t.Fatalf("one-way with heading: %s", ok)
	}
	if d, _ := s.Roads.OneWayDirection(5, 5); d != world.North {
		t.Errorf("one-way heading = %s, want North", d)
	}
}

func TestInsufficientFunds(t *testing.T) {
	s, err := NewGame(Options{Width: 16, Height: 16, Seed: 3, Treasury: 15})
	if err != nil {
		t.Fatal(err)
	}
	if r := s.ApplyAction(action.PlaceRoad{X: 1, Y: 1, RoadType: world.Local}); !r.OK() {
		t.Fatalf("first road: %s", r)
	}
	if r := s.ApplyAction(action.PlaceRoad{X: 2, Y: 1, RoadType: world.Local}); r.Failure != action.ReasonInsufficientFunds {
		t.Errorf("second road = %s, want insufficient funds", r)
	}
	if s.Budget.Treasury != 5 {
		t.Errorf("treasury = %v, want 5", s.Budget.Treasury)
	}
}

func TestBulldozeOrder(t *testing.T) {
	s := testCity(t, 4)
	before := s.Budget.Treasury
	if r := s.ApplyAction(action.BulldozeCell{X: 12, Y: 10}); !r.OK() {
		t.Fatalf("bulldoze road: %s", r)
	}
	if s.Roads.IsRoad(12, 10) || s.Grid.Get(12, 10).Type != world.Grass {
		t.Errorf("road still present after bulldozing")
	}
	if want := before + world.Local.Cost()*RoadRefund; s.Budget.Treasury != want {
		t.Errorf("treasury = %v, want %v", s.Budget.Treasury, want)
	}

	plant := s.Grid.Get(1, 10).BuildingID
	if r := s.ApplyAction(action.BulldozeCell{X: 1, Y: 10}); !r.OK() {
		t.Fatalf("bulldoze plant: %s", r)
	}
	if s.Plants.Len() != 0 || s.Utilities.Len() != 1 || s.Grid.Mut(1, 10).HasBuilding() {
		t.Errorf("plant %d not fully removed: plants=%d utilities=%d", plant, s.Plants.Len(), s.Utilities.Len())
	}

	if r := s.ApplyAction(action.BulldozeCell{X: 3, Y: 9}); !r.OK() {
		t.Fatalf("bulldoze zone: %s", r)
	}
	if z := s.Grid.Get(3, 9).Zone; z != world.ZoneNone {
		t.Errorf("zone = %s after bulldozing", z)
	}
}

func TestPlaceServiceStampsFootprint(t *testing.T) {
	s := testCity(t, 5)
	if r := s.ApplyAction(action.PlaceService{X: 4, Y: 12, ServiceType: component.Hospital}); r.Failure != action.ReasonNotRoadAdjacent {
		t.Fatalf("hospital off the street = %s", r)
	}
	if r := s.ApplyAction(action.PlaceService{X: 4, Y: 11, ServiceType: component.Hospital}); !r.OK() {
		t.Fatalf("hospital: %s", r)
	}
	w, h := component.Hospital.Footprint()
	id := s.Grid.Get(4, 11).BuildingID
	for y := 11; y < 11+h; y++ {
		for x := 4; x < 4+w; x++ {
			c := s.Grid.Get(x, y)
			if c.BuildingID != id || c.Zone != world.ZoneNone {
				t.Errorf("cell (%d,%d) id=%d zone=%s", x, y, c.BuildingID, c.Zone)
			}
		}
	}
}

func TestTogglePolicies(t *testing.T) {
	s := testCity(t, 6)
	if r := s.ApplyAction(action.TogglePolicy{Policy: economy.FreePublicTransport}); !r.OK() {
		t.Fatalf("toggle: %s", r)
	}
	if !s.Policies().IsActive(economy.FreePublicTransport) || !s.infraDirt {
		t.Errorf("free transit not enacted or infrastructure not flagged")
	}
	before := s.Budget.Treasury
	if r := s.ApplyAction(action.TogglePolicy{Policy: economy.CompostingMandate}); r.Failure != action.ReasonInsufficientFunds {
		t.Fatalf("composting with $%.0f = %s, want insufficient funds", before, r)
	}
	if s.Waste().IsActive(economy.CompostingMandate) || s.Budget.Treasury != before {
		t.Errorf("rejected mandate still took effect")
	}
	if r := s.ApplyAction(action.TogglePolicy{Policy: economy.PlasticBagBan}); !r.OK() {
		t.Fatalf("bag ban: %s", r)
	}
	if !s.Waste().IsActive(economy.PlasticBagBan) || s.Budget.Treasury != before {
		t.Errorf("bag ban active=%t, treasury %v → %v", s.Waste().IsActive(economy.PlasticBagBan), before, s.Budget.Treasury)
	}
}

func TestLoanAction(t *testing.T) {
	s := testCity(t, 7)
	before := s.Budget.Treasury
	if r := s.ApplyAction(action.TakeLoan{Tier: economy.LoanTier(0)}); !r.OK() {
		t.Fatalf("loan: %s", r)
	}
	if s.Budget.Treasury != before+economy.LoanTier(0).Amount() || len(s.Loans().Loans) != 1 {
		t.Errorf("treasury %v loans %d after one loan", s.Budget.Treasury, len(s.Loans().Loans))
	}
}

func TestEnqueueRunsAtInputStage(t *testing.T) {
	s := testCity(t, 8)
	logged := len(s.ActionLog)
	s.Enqueue(action.SetSpeed{Speed: 3})
	s.Enqueue(action.SetTaxRate{Rate: 0.9})
	if s.Pending() != 2 {
		t.Fatalf("Pending = %d", s.Pending())
	}
	e := NewEngine(s, EngineOptions{})
	if err := e.Step(); err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 0 || s.Clock.Speed != 3 {
		t.Errorf("pending %d speed %d after one step", s.Pending(), s.Clock.Speed)
	}
	if s.Budget.TaxRate != economy.MaxTaxRate {
		t.Errorf("tax rate = %v, want clamped to %v", s.Budget.TaxRate, economy.MaxTaxRate)
	}
	if got := s.ActionLog[logged].Tick; got != 0 {
		t.Errorf("queued action logged at tick %d, want 0", got)
	}
	if s.Clock.Minutes != 6*MinutesPerHour+3 {
		t.Errorf("first tick advanced to minute %d", s.Clock.Minutes)
	}
}

// ── Engine ──────────────────────────────────────────────────────────

func TestStepIgnoresPause(t *testing.T) {
	s := testCity(t, 9)
	s.ApplyAction(action.SetPaused{Paused: true})
	e := NewEngine(s, EngineOptions{})
	tick, err := e.StepN(10)
	if err != nil {
		t.Fatal(err)
	}
	if tick != 10 {
		t.Errorf("tick = %d, want 10", tick)
	}
}

func TestUtilitiesPowerTheStreet(t *testing.T) {
	s := testCity(t, 10)
	run(s, 1)
	if !s.Grid.Get(5, 10).HasPower || !s.Grid.Get(28, 10).HasWater {
		t.Errorf("street not served: power=%t water=%t", s.Grid.Get(5, 10).HasPower, s.Grid.Get(28, 10).HasWater)
	}
	if s.Graph.NodeCount() == 0 {
		t.Errorf("road graph empty after first tick")
	}
}

func TestRunsAreDeterministic(t *testing.T) {
	a := testCity(t, 11)
	b := testCity(t, 11)
	run(a, 400)
	run(b, 400)
	if !bytes.Equal(a.Save(), b.Save()) {
		t.Fatalf("two runs from the same seed diverged")
	}
}

func TestSaveRestoreThenTick(t *testing.T) {
	s := testCity(t, 12)
	run(s, 250)
	data := s.Save()

	r, err := Restore(data, s.Options())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for _, ev := range r.Journal.Recent(0) {
		if ev.Category == CatWarning {
			t.Errorf("restore warned: %s", ev.Description)
		}
	}
	if *r.Weather() != *s.Weather() || *r.Drought() != *s.Drought() {
		t.Errorf("weather restored as %+v, want %+v", *r.Weather(), *s.Weather())
	}
	if !bytes.Equal(r.Save(), data) {
		t.Fatalf("restored city re-saves differently")
	}
	if r.Clock.Tick != s.Clock.Tick || r.Clock.Minutes != s.Clock.Minutes {
		t.Errorf("clock at tick %d minute %d, want tick %d minute %d", r.Clock.Tick, r.Clock.Minutes, s.Clock.Tick, s.Clock.Minutes)
	}

	for i := 0; i < 20; i++ {
		s.tick()
		r.tick()
		if !bytes.Equal(s.Save(), r.Save()) {
			t.Fatalf("restored city diverged %d ticks after load (tick %d)", i+1, s.Clock.Tick)
		}
	}
}

func TestRestoreKeepsUnknownSections(t *testing.T) {
	s := testCity(t, 13)
	s.foreign["zz_mod_data"] = []byte{1, 2, 3}
	r, err := Restore(s.Save(), s.Options())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Extensions(); len(got) != 1 || got[0] != "zz_mod_data" {
		t.Errorf("Extensions = %v", got)
	}
	if !bytes.Contains(r.Save(), []byte("zz_mod_data")) {
		t.Errorf("unknown section dropped on re-save")
	}
}

func TestStrictEngineRollsBack(t *testing.T) {
	s := testCity(t, 14)
	e := NewEngine(s, EngineOptions{Strict: true})
	if _, err := e.StepN(14); err != nil {
		t.Fatal(err)
	}
	// A road cell the network does not know about.
	e.Do(func(s *Simulation) { s.Grid.Mut(20, 20).Type = world.Road })

	err := e.Step()
	var v *InvariantViolation
	if !errors.As(err, &v) {
		t.Fatalf("Step = %v, want an invariant violation", err)
	}
	e.Do(func(s *Simulation) {
		if s.Clock.Tick != 14 {
			t.Errorf("rolled back to tick %d, want 14", s.Clock.Tick)
		}
		if evs := s.Journal.InTick(14); len(evs) == 0 || evs[len(evs)-1].Category != CatFatal {
			t.Errorf("no fatal event journaled")
		}
	})
	if e.Faulted() != nil {
		t.Errorf("strict engine marked faulted")
	}
	if err := e.Step(); err != nil {
		t.Errorf("step after rollback: %v", err)
	}
}

func TestApplyBatchCommitsOrRollsBack(t *testing.T) {
	s := testCity(t, 18)
	e := NewEngine(s, EngineOptions{})

	results, ok, err := e.ApplyBatch([]action.GameAction{
		action.SetSpeed{Speed: 2},
		action.PlaceRoad{X: 5, Y: 20, RoadType: world.Local},
	})
	if err != nil || !ok {
		t.Fatalf("ApplyBatch = %v, %v, %v", results, ok, err)
	}
	var logged int
	var treasury float64
	e.Do(func(s *Simulation) {
		if !s.Roads.IsRoad(5, 20) || s.Clock.Speed != 2 {
			t.Errorf("committed batch did not apply")
		}
		logged, treasury = len(s.ActionLog), s.Budget.Treasury
	})

	results, ok, err = e.ApplyBatch([]action.GameAction{
		action.PlaceRoad{X: 6, Y: 20, RoadType: world.Local},
		action.PlaceRoad{X: 1000, Y: 20, RoadType: world.Local},
		action.SetSpeed{Speed: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("batch with an out-of-bounds road committed")
	}
	want := []string{ReasonRolledBack, action.ReasonOutOfBounds, ReasonSkipped}
	for i, r := range results {
		if r.Failure != want[i] {
			t.Errorf("result %d = %s, want Failure(%s)", i, r, want[i])
		}
	}
	e.Do(func(s *Simulation) {
		if s.Roads.IsRoad(6, 20) {
			t.Error("rolled-back road is still on the map")
		}
		if s.Clock.Speed != 2 {
			t.Errorf("speed = %d, want 2", s.Clock.Speed)
		}
		if len(s.ActionLog) != logged || s.Budget.Treasury != treasury {
			t.Errorf("log %d treasury %v, want %d %v", len(s.ActionLog), s.Budget.Treasury, logged, treasury)
		}
	})
}

func TestEngineFaultsWithoutCheckpoint(t *testing.T) {
	s := testCity(t, 15)
	s.Grid.Mut(20, 20).Type = world.Road
	e := NewEngine(s, EngineOptions{})
	_, err := e.StepN(30)
	if !errors.Is(err, ErrFaulted) {
		t.Fatalf("StepN = %v, want ErrFaulted", err)
	}
	if s.Clock.Tick != 15 {
		t.Errorf("faulted at tick %d, want 15", s.Clock.Tick)
	}
	if !errors.Is(e.Step(), ErrFaulted) {
		t.Errorf("faulted engine kept stepping")
	}
}

func TestReplayReproducesCity(t *testing.T) {
	s := testCity(t, 16)
	run(s, 40)
	s.ApplyAction(action.PlaceService{X: 4, Y: 11, ServiceType: component.Hospital})
	s.ApplyAction(action.SetTaxRate{Rate: 0.12})
	run(s, 40)

	r, err := Replay(s.Options(), s.ActionLog, s.Clock.Tick)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !bytes.Equal(r.Save(), s.Save()) {
		t.Errorf("replayed city differs from the original")
	}
}

func TestObserve(t *testing.T) {
	s := testCity(t, 17)
	run(s, 60)
	obs := s.Observe()
	if obs.Tick != 60 || obs.Width != 32 {
		t.Errorf("tick %d width %d", obs.Tick, obs.Width)
	}
	if obs.Power.CapacityMW <= 0 {
		t.Errorf("dispatch never saw the coal plant: %+v", obs.Power)
	}
	if len(obs.Events) == 0 || len(obs.Events) > ObservedEvents {
		t.Errorf("observation carries %d events", len(obs.Events))
	}
}

func TestRuntimePanicFaultsEngine(t *testing.T) {
	s := testCity(t, 19)
	var table []int
	i := 3
	s.schedule = &Schedule{Systems: []System{
		{Name: "bad_lookup", Stage: StageSimulation, Run: func(*Simulation) { _ = table[i] }},
	}}
	e := NewEngine(s, EngineOptions{})
	err := e.Step()
	var v *InvariantViolation
	if !errors.Is(err, ErrFaulted) || !errors.As(err, &v) {
		t.Fatalf("Step = %v, want a fault wrapping an invariant violation", err)
	}
	if v.System != "bad_lookup" || !strings.Contains(v.Detail, "index out of range") {
		t.Errorf("violation = %+v", v)
	}
}

func TestRestoreRejectsCorruptRoadType(t *testing.T) {
	s := testCity(t, 20)
	data := s.Save()
	// Header is 16 bytes, cells 16 bytes each with the road type second.
	off := 16 + s.Grid.Index(3, 10)*16 + 1
	if world.CellType(data[off-1]) != world.Road {
		t.Fatalf("byte %d = %d, not the road cell (3,10)", off-1, data[off-1])
	}
	data[off] = 9
	if _, err := Restore(data, s.Options()); !errors.Is(err, save.ErrBadValue) {
		t.Fatalf("Restore = %v, want save.ErrBadValue", err)
	}
}
