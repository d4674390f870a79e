package steward

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/api"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/world"
)

// healthyCity is a balanced baseline each case perturbs.
func healthyCity(mod func(c *CityStatus)) *CitySnapshot {
	snap := &CitySnapshot{Lots: []Lot{{X: 3, Y: 4, Zone: "None"}}}
	c := &snap.City
	c.Tick, c.Day = 300, 2
	c.Stats.Population = 100
	c.Stats.Employed, c.Stats.Unemployed = 90, 5
	c.Stats.PoweredCells, c.Stats.WateredCells = 100, 100
	c.Budget.Treasury = 40_000
	c.Budget.TaxRate = 0.09
	c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 4000
	c.Demand.Residential, c.Demand.Commercial, c.Demand.Industrial, c.Demand.Office = 0.2, 0.2, 0.2, 0.2
	c.Power.DemandMW, c.Power.CapacityMW, c.Power.ReserveMargin = 100, 200, 0.5
	c.Water.ReservoirLevel = 0.8
	if mod != nil {
		mod(c)
	}
	return snap
}

func TestTriage(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(c *CityStatus)
		level string
	}{
		{"healthy", nil, Healthy},
		{"blackout", func(c *CityStatus) { c.Power.BlackoutActive = true }, Critical},
		{"bankrupt", func(c *CityStatus) { c.Loans.Bankrupt = true }, Critical},
		{"runway under a month", func(c *CityStatus) {
			c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 1000, 1000, 3000
		}, Critical},
		{"short runway", func(c *CityStatus) {
			c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 1000, 3000
		}, Warning},
		{"low reserve", func(c *CityStatus) { c.Power.ReserveMargin = 0.05 }, Warning},
		{"deficit", func(c *CityStatus) { c.Power.Deficit = true }, Warning},
		{"dry city", func(c *CityStatus) { c.Stats.WateredCells = 20 }, Warning},
		{"reservoir critical", func(c *CityStatus) { c.Water.Critical = true }, Warning},
		{"thin reserve", func(c *CityStatus) { c.Power.ReserveMargin = 0.2 }, Watch},
		{"unemployment", func(c *CityStatus) { c.Stats.Employed, c.Stats.Unemployed = 80, 20 }, Watch},
		{"unloaded grid", func(c *CityStatus) { c.Power.DemandMW, c.Power.ReserveMargin = 0, 0 }, Healthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Triage(healthyCity(tt.mod))
			if h.CrisisLevel != tt.level {
				t.Errorf("CrisisLevel = %s, want %s (%+v)", h.CrisisLevel, tt.level, h)
			}
		})
	}
}

func TestTriageSignals(t *testing.T) {
	h := Triage(healthyCity(func(c *CityStatus) {
		c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 1000, 3000
		c.Stats.WateredCells = 25
		c.Stats.Employed, c.Stats.Unemployed = 75, 25
	}))
	if h.RunwayMonths != 2.5 {
		t.Errorf("RunwayMonths = %v, want 2.5", h.RunwayMonths)
	}
	if h.WaterCoverage != 0.25 {
		t.Errorf("WaterCoverage = %v, want 0.25", h.WaterCoverage)
	}
	if h.UnemploymentRate != 0.25 {
		t.Errorf("UnemploymentRate = %v, want 0.25", h.UnemploymentRate)
	}
	if h := Triage(healthyCity(nil)); !math.IsInf(h.RunwayMonths, 1) {
		t.Errorf("surplus runway = %v, want +Inf", h.RunwayMonths)
	}
}

func TestDecide(t *testing.T) {
	zonedFirst := []Lot{{X: 1, Y: 1, Zone: "ResidentialLow"}, {X: 2, Y: 1, Zone: "None"}}
	tests := []struct {
		name   string
		mod    func(c *CityStatus)
		lots   []Lot
		mem    []CycleRecord
		action string
		check  func(t *testing.T, a action.GameAction)
	}{
		{
			name:   "stable city does nothing",
			action: ActNone,
		},
		{
			name:   "deficit builds gas",
			mod:    func(c *CityStatus) { c.Power.Deficit = true },
			action: ActPower,
			check: func(t *testing.T, a action.GameAction) {
				want := action.PlaceUtility{X: 3, Y: 4, UtilityType: component.GasPlant}
				if a != want {
					t.Errorf("act = %+v, want %+v", a, want)
				}
			},
		},
		{
			name:   "tight treasury builds wind",
			mod:    func(c *CityStatus) { c.Power.ReserveMargin, c.Budget.Treasury = 0.02, 15_000 },
			action: ActPower,
			check: func(t *testing.T, a action.GameAction) {
				if u := a.(action.PlaceUtility).UtilityType; u != component.WindFarm {
					t.Errorf("built %s, want WindFarm", u)
				}
			},
		},
		{
			name:   "broke city borrows for power",
			mod:    func(c *CityStatus) { c.Power.Deficit, c.Budget.Treasury = true, 5000 },
			action: ActLoan,
			check: func(t *testing.T, a action.GameAction) {
				if a != (action.TakeLoan{Tier: economy.LoanSmall}) {
					t.Errorf("act = %+v", a)
				}
			},
		},
		{
			name:   "power rule needs a lot",
			mod:    func(c *CityStatus) { c.Power.Deficit = true },
			lots:   []Lot{},
			action: ActNone,
		},
		{
			name:   "power on cooldown",
			mod:    func(c *CityStatus) { c.Power.Deficit = true },
			mem:    []CycleRecord{{Action: ActPower}, {Action: ActNone}},
			action: ActNone,
		},
		{
			name:   "dry city gets a tower",
			mod:    func(c *CityStatus) { c.Stats.WateredCells = 10 },
			action: ActWater,
			check: func(t *testing.T, a action.GameAction) {
				if u := a.(action.PlaceUtility).UtilityType; u != component.WaterTower {
					t.Errorf("built %s, want WaterTower", u)
				}
			},
		},
		{
			name: "short runway raises tax",
			mod: func(c *CityStatus) {
				c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 1000, 3000
			},
			action: ActRaiseTax,
			check:  wantTax(0.10),
		},
		{
			name: "short runway at the ceiling borrows",
			mod: func(c *CityStatus) {
				c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 1000, 3000
				c.Budget.TaxRate = 0.15
			},
			action: ActLoan,
		},
		{
			name: "short runway with no credit",
			mod: func(c *CityStatus) {
				c.Budget.Treasury, c.Budget.MonthlyIncome, c.Budget.MonthlyExpenses = 5000, 1000, 3000
				c.Budget.TaxRate, c.Loans.Count = 0.15, economy.MaxLoans
			},
			action: ActNone,
		},
		{
			name:   "bankrupt raises tax",
			mod:    func(c *CityStatus) { c.Loans.Bankrupt, c.Budget.TaxRate, c.Power.Deficit = true, 0.12, true },
			action: ActRaiseTax,
			check:  wantTax(0.13),
		},
		{
			name:   "bankrupt at the ceiling waits",
			mod:    func(c *CityStatus) { c.Loans.Bankrupt, c.Budget.TaxRate = true, 0.15 },
			action: ActNone,
		},
		{
			name:   "surplus lowers tax",
			mod:    func(c *CityStatus) { c.Budget.Treasury, c.Budget.TaxRate = 80_000, 0.12 },
			action: ActLowerTax,
			check:  wantTax(0.11),
		},
		{
			name:   "surplus cut stops at the default rate",
			mod:    func(c *CityStatus) { c.Budget.Treasury, c.Budget.TaxRate = 80_000, 0.096 },
			action: ActLowerTax,
			check:  wantTax(0.09),
		},
		{
			name:   "surplus at default rate",
			mod:    func(c *CityStatus) { c.Budget.Treasury = 80_000 },
			action: ActNone,
		},
		{
			name:   "strongest demand is zoned",
			mod:    func(c *CityStatus) { c.Demand.Residential, c.Demand.Commercial = 0.8, 0.6 },
			lots:   zonedFirst,
			action: ActZone,
			check: func(t *testing.T, a action.GameAction) {
				want := action.PaintZone{X0: 2, Y0: 1, X1: 2, Y1: 1, Zone: world.ResidentialLow}
				if a != want {
					t.Errorf("act = %+v, want %+v", a, want)
				}
			},
		},
		{
			name:   "industrial demand",
			mod:    func(c *CityStatus) { c.Demand.Industrial = 0.9 },
			action: ActZone,
			check: func(t *testing.T, a action.GameAction) {
				if z := a.(action.PaintZone).Zone; z != world.Industrial {
					t.Errorf("zoned %s, want Industrial", z)
				}
			},
		},
		{
			name:   "no unzoned lot",
			mod:    func(c *CityStatus) { c.Demand.Residential = 0.8 },
			lots:   zonedFirst[:1],
			action: ActNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := healthyCity(tt.mod)
			if tt.lots != nil {
				snap.Lots = tt.lots
			}
			mem := &CycleMemory{Records: tt.mem}
			d := Decide(snap, Triage(snap), mem)
			if d.Action != tt.action {
				t.Fatalf("Action = %s (%s), want %s", d.Action, d.Rationale, tt.action)
			}
			if (d.Act == nil) != (d.Action == ActNone) {
				t.Fatalf("Act = %v for action %s", d.Act, d.Action)
			}
			if d.Rationale == "" {
				t.Error("empty rationale")
			}
			if tt.check != nil {
				tt.check(t, d.Act)
			}
		})
	}
}

func wantTax(rate float32) func(t *testing.T, a action.GameAction) {
	return func(t *testing.T, a action.GameAction) {
		t.Helper()
		set, ok := a.(action.SetTaxRate)
		if !ok {
			t.Fatalf("act = %T, want SetTaxRate", a)
		}
		if math.Abs(float64(set.Rate-rate)) > 1e-6 {
			t.Errorf("Rate = %v, want %v", set.Rate, rate)
		}
	}
}

func TestCycleMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	m := LoadMemory(path)
	if len(m.Records) != 0 {
		t.Fatalf("fresh memory has %d records", len(m.Records))
	}
	for i := 0; i < 15; i++ {
		m.Record(CycleRecord{Tick: uint64(i), Action: ActNone})
	}
	if len(m.Records) != maxRecords || m.Records[0].Tick != 5 {
		t.Fatalf("ring kept %d records starting at tick %d", len(m.Records), m.Records[0].Tick)
	}

	m.Record(CycleRecord{Tick: 20, Action: ActWater})
	m.Record(CycleRecord{Tick: 21, Action: ActNone})
	if !m.CoolingDown(ActWater, 2) {
		t.Error("water not cooling down one cycle later")
	}
	if m.CoolingDown(ActWater, 1) {
		t.Error("cooldown window of one cycle reached back two")
	}
	if m.CoolingDown(ActPower, maxRecords) {
		t.Error("power cooling down without a record")
	}

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back := LoadMemory(path)
	if len(back.Records) != maxRecords || back.Records[maxRecords-2].Action != ActWater {
		t.Errorf("reloaded records = %+v", back.Records)
	}
	if s := back.Summary(); strings.Count(s, "\n") != maxRecords || !strings.Contains(s, "action=water") {
		t.Errorf("Summary = %q", s)
	}
}

func TestCorruptedMemoryStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	m := LoadMemory(path)
	if len(m.Records) != 0 {
		t.Fatalf("corrupted memory loaded %d records", len(m.Records))
	}
	m.Record(CycleRecord{Action: ActZone})
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := LoadMemory(path); len(got.Records) != 1 {
		t.Errorf("rewritten memory has %d records", len(got.Records))
	}
	if err := LoadMemory("").Save(); err != nil {
		t.Errorf("in-memory Save: %v", err)
	}
}

// fakeCity serves a fixed snapshot and records the actions posted to it.
type fakeCity struct {
	snap    *CitySnapshot
	acts    []action.GameAction
	result  string
	authBad atomic.Int32
}

func (f *fakeCity) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/status":
		w.Write([]byte(`{"tick":0}`))
	case "/api/v1/observation":
		json.NewEncoder(w).Encode(f.snap.City)
	case "/api/v1/query":
		json.NewEncoder(w).Encode(map[string]any{"layers": map[string]any{"lots": f.snap.Lots}})
	case "/api/v1/act":
		if r.Header.Get("Authorization") != "Bearer secret" {
			f.authBad.Add(1)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			Action action.Envelope `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.acts = append(f.acts, body.Action.Action)
		w.Write([]byte(`{"tick":301,"result":` + f.result + `}`))
	default:
		http.NotFound(w, r)
	}
}

func TestRunCycle(t *testing.T) {
	city := &fakeCity{
		snap:   healthyCity(func(c *CityStatus) { c.Power.Deficit = true }),
		result: `"Success"`,
	}
	ts := httptest.NewServer(city)
	defer ts.Close()

	s := New(ts.URL, "secret", "")
	rec, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.Action != ActPower || rec.Result != "Success" || rec.CrisisLevel != Warning || rec.Tick != 300 {
		t.Errorf("record = %+v", rec)
	}
	if len(city.acts) != 1 || city.acts[0] != (action.PlaceUtility{X: 3, Y: 4, UtilityType: component.GasPlant}) {
		t.Fatalf("posted %+v", city.acts)
	}

	// The same deficit next cycle is on cooldown.
	city.result = `{"Failure":"insufficient funds"}`
	rec, err = s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if rec.Action != ActNone || len(city.acts) != 1 {
		t.Errorf("second cycle acted: %+v, %d posts", rec, len(city.acts))
	}
	if len(s.Memory.Records) != 2 {
		t.Errorf("memory holds %d records, want 2", len(s.Memory.Records))
	}
}

func TestRunCycleRecordsRefusal(t *testing.T) {
	city := &fakeCity{
		snap:   healthyCity(func(c *CityStatus) { c.Stats.WateredCells = 0 }),
		result: `{"Failure":"lot is occupied"}`,
	}
	ts := httptest.NewServer(city)
	defer ts.Close()

	rec, err := New(ts.URL, "secret", "").RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.Action != ActWater || rec.Result != "Failure(lot is occupied)" {
		t.Errorf("record = %+v", rec)
	}
}

func TestActorErrors(t *testing.T) {
	city := &fakeCity{snap: healthyCity(nil), result: `"Success"`}
	ts := httptest.NewServer(city)
	defer ts.Close()

	_, err := NewActor(ts.URL, "wrong").Act(context.Background(), action.SetPaused{Paused: true})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Act with bad key: err = %v", err)
	}
	if city.authBad.Load() != 1 {
		t.Errorf("server saw %d bad auths", city.authBad.Load())
	}

	_, err = NewObserver(ts.URL + "/nowhere").Observe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Observe against missing API: err = %v", err)
	}
}

func TestWaitForAPI(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	if err := WaitForAPI(context.Background(), ts.URL, time.Minute); err != nil {
		t.Fatalf("WaitForAPI: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("polled %d times, want 3", calls.Load())
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := WaitForAPI(context.Background(), down.URL, 100*time.Millisecond); err == nil {
		t.Error("WaitForAPI succeeded against a dead API")
	}
}

func TestStewardAgainstCityAPI(t *testing.T) {
	sim, err := engine.NewGame(engine.Options{Width: 24, Height: 24, Seed: 5, Treasury: 200_000})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	eng := engine.NewEngine(sim, engine.EngineOptions{})
	eng.Do(func(sim *engine.Simulation) {
		for x := uint32(0); x < 24; x++ {
			if res := sim.ApplyAction(action.PlaceRoad{X: x, Y: 10, RoadType: world.Local}); !res.OK() {
				t.Fatalf("PlaceRoad(%d, 10): %s", x, res)
			}
		}
	})
	srv := &api.Server{Eng: eng, AdminKey: "secret"}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	s := New(ts.URL, "secret", "")
	ctx := context.Background()
	snap, err := s.Observer.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	var treasury float64
	eng.Do(func(sim *engine.Simulation) { treasury = sim.Budget.Treasury })
	if snap.City.Budget.Treasury != treasury || treasury >= 200_000 {
		t.Errorf("observed treasury %v, city has %v", snap.City.Budget.Treasury, treasury)
	}
	if len(snap.Lots) == 0 || snap.Lots[0] != (Lot{X: 0, Y: 9, Zone: "None"}) {
		t.Fatalf("lots = %+v", snap.Lots)
	}
	for _, l := range snap.Lots {
		if l.Y != 9 && l.Y != 11 {
			t.Errorf("lot %+v is not beside the road", l)
		}
	}

	res, err := s.Actor.Act(ctx, action.PaintZone{X0: 0, Y0: 9, X1: 0, Y1: 9, Zone: world.ResidentialLow})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if !res.Result.OK() {
		t.Fatalf("PaintZone refused: %s", res.Result)
	}
	eng.Do(func(sim *engine.Simulation) {
		if z := sim.Grid.Get(0, 9).Zone; z != world.ResidentialLow {
			t.Errorf("zone at (0,9) = %s", z)
		}
	})

	rec, err := s.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.Result != "" && !strings.HasPrefix(rec.Result, "Success") && !strings.HasPrefix(rec.Result, "Failure(") {
		t.Errorf("record result = %q", rec.Result)
	}
	if len(s.Memory.Records) != 1 {
		t.Errorf("memory holds %d records", len(s.Memory.Records))
	}
}
