// Simulation ties together all city systems and runs them each tick.
package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/advisor"
	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/energy"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/roadgraph"
	"github.com/talgya/gridcity/internal/save"
	"github.com/talgya/gridcity/internal/weather"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// State gates systems during save and load transitions.
type State uint8

const (
	StatePlaying State = iota
	StateLoading
)

// Options configure a new city.
type Options struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Seed     uint64  `json:"seed"`
	Treasury float64 `json:"treasury"`
	SlowTick uint64  `json:"slow_tick"` // ticks between heavy passes
	Terrain  bool    `json:"terrain"`   // generate noise terrain; false gives flat grass
}

// DefaultOptions is a 256×256 generated map with the standard treasury.
func DefaultOptions() Options {
	return Options{
		Width:    world.DefaultWidth,
		Height:   world.DefaultHeight,
		Seed:     42,
		Treasury: 100_000,
		SlowTick: 15,
		Terrain:  true,
	}
}

// Layers are the derived per-cell fields written by propagation.
type Layers struct {
	Coverage    *propagation.CoverageGrid
	Pollution   *propagation.PollutionGrid
	Noise       *propagation.NoiseGrid
	Soil        *propagation.SoilGrid
	Traffic     *propagation.TrafficGrid
	Trees       *propagation.TreeGrid
	Walkability *propagation.WalkabilityGrid
	LandValue   *propagation.LandValueGrid
	Flood       *propagation.FloodState
	PowerLines  *propagation.PowerLines
	Network     *propagation.NetworkView
}

// Simulation holds the complete city state. Every field a system touches
// hangs off it; nothing is process-global.
type Simulation struct {
	Seed      uint64
	Clock     Clock
	State     State
	Grid      *world.Grid
	Roads     *world.RoadNetwork
	Graph     *roadgraph.CSR
	Districts world.DistrictMap

	World     *ecs.World
	Res       *ecs.Resources
	Buildings *zoning.Buildings
	Citizens  *citizens.Stores
	Services  *ecs.Store[component.ServiceBuilding]
	Utilities *ecs.Store[component.UtilitySource]
	Plants    *ecs.Store[component.PowerPlant]

	Budget   economy.Budget
	Layers   Layers
	Journal  Journal
	Stats    Stats
	Advisors *advisor.Panel

	// ActionLog records every applied action for replays.
	ActionLog []action.Record

	opts        Options
	slowTick    uint64
	schedule    *Schedule
	registry    *save.Registry
	pending     []action.GameAction
	foreign     map[string][]byte
	modeInfra   *citizens.ModeInfra
	nimby       zoning.Nimby
	demandMW    float32
	utilityDirt bool
	infraDirt   bool
	poweredBase []bool // has_power before the blackout mask
	reportSeq   uint64
	observer    Observer
	running     string // system in progress
}

// NewGame builds a fresh city from opts.
func NewGame(opts Options) (*Simulation, error) {
	opts = opts.normalized()
	var g *world.Grid
	var canopy []float32
	if opts.Terrain {
		cfg := world.DefaultGenConfig()
		cfg.Width, cfg.Height, cfg.Seed = opts.Width, opts.Height, int64(opts.Seed)
		t := world.Generate(cfg)
		g, canopy = t.Grid, t.Canopy
	} else {
		g = world.NewGrid(opts.Width, opts.Height)
	}
	s, err := newSimulation(opts, g)
	if err != nil {
		return nil, err
	}
	s.Budget = economy.NewBudget(opts.Treasury)
	if canopy != nil {
		s.Layers.Trees.Seed(canopy)
	}
	s.refreshDerived()
	s.refreshStats()
	slog.Info("new game",
		"seed", opts.Seed,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"water_cells", g.CountType(world.Water),
	)
	return s, nil
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.SlowTick == 0 {
		o.SlowTick = d.SlowTick
	}
	return o
}

// newSimulation allocates every store, resource and layer for grid g and
// builds the tick schedule.
func newSimulation(opts Options, g *world.Grid) (*Simulation, error) {
	w := ecs.NewWorld()
	s := &Simulation{
		Seed:      opts.Seed,
		Clock:     NewClock(),
		Grid:      g,
		Roads:     world.NewRoadNetwork(),
		Districts: world.NewDistrictMap(g.Width, g.Height),
		World:     w,
		Res:       ecs.NewResources(),
		Buildings: zoning.NewBuildings(w),
		Citizens:  citizens.NewStores(w),
		Services:  ecs.NewStore[component.ServiceBuilding](w),
		Utilities: ecs.NewStore[component.UtilitySource](w),
		Plants:    ecs.NewStore[component.PowerPlant](w),
		Advisors:  advisor.NewPanel(),
		opts:      opts,
		slowTick:  opts.SlowTick,
		foreign:   make(map[string][]byte),
	}
	s.Layers = Layers{
		Coverage:    propagation.NewCoverageGrid(g.Width, g.Height),
		Pollution:   propagation.NewPollutionGrid(g.Width, g.Height),
		Noise:       propagation.NewNoiseGrid(g.Width, g.Height),
		Soil:        propagation.NewSoilGrid(g.Width, g.Height),
		Traffic:     propagation.NewTrafficGrid(g.Width, g.Height),
		Trees:       propagation.NewTreeGrid(g.Width, g.Height),
		Walkability: propagation.NewWalkabilityGrid(g.Width, g.Height),
		LandValue:   propagation.NewLandValueGrid(g.Width, g.Height),
		Flood:       propagation.NewFloodState(g.Width, g.Height),
		PowerLines:  propagation.NewPowerLines(len(g.Cells)),
		Network:     propagation.NewNetworkView(g.Width, g.Height),
	}
	s.Graph = roadgraph.Build(s.Roads)

	loans := economy.NewLoanBook()
	wx := weather.New()
	res := weather.NewReservoir()
	ecs.Set(s.Res, &loans)
	ecs.Set(s.Res, &economy.PolicyState{})
	ecs.Set(s.Res, &economy.WastePolicyState{})
	ecs.Set(s.Res, &economy.WasteEffects{})
	ecs.Set(s.Res, &energy.DispatchState{})
	ecs.Set(s.Res, &energy.BlackoutState{})
	ecs.Set(s.Res, &wx)
	ecs.Set(s.Res, &weather.DroughtState{})
	ecs.Set(s.Res, &res)
	ecs.Set(s.Res, &citizens.AffordabilityState{})
	ecs.Set(s.Res, &citizens.TierStats{})
	ecs.Set(s.Res, &zoning.Demand{})
	ecs.Set(s.Res, s.Advisors)

	s.registry = newRegistry(s)

	sched, err := NewSchedule(s.systems())
	if err != nil {
		return nil, fmt.Errorf("build schedule: %w", err)
	}
	s.schedule = sched
	return s, nil
}

// newRegistry wires every persisted resource and layer to its extension key.
func newRegistry(s *Simulation) *save.Registry {
	reg := save.NewRegistry()
	save.Register[economy.LoanBook](reg, economy.NewLoanBook)
	save.Register[economy.PolicyState](reg, func() economy.PolicyState { return economy.PolicyState{} })
	save.Register[economy.WastePolicyState](reg, func() economy.WastePolicyState { return economy.WastePolicyState{} })
	save.Register[energy.DispatchState](reg, func() energy.DispatchState { return energy.DispatchState{} })
	save.Register[energy.BlackoutState](reg, func() energy.BlackoutState {
		var b energy.BlackoutState
		if cur := ecs.Get[energy.BlackoutState](s.Res); cur != nil {
			b.Mask = cur.Mask
		}
		return b
	})
	save.Register[weather.Weather](reg, weather.New)
	save.Register[weather.DroughtState](reg, func() weather.DroughtState { return weather.DroughtState{} })
	save.Register[weather.ReservoirState](reg, weather.NewReservoir)
	save.Register[citizens.AffordabilityState](reg, func() citizens.AffordabilityState { return citizens.AffordabilityState{} })
	save.Register[advisor.Panel](reg, func() advisor.Panel { return *advisor.NewPanel() })

	jsonKey(reg, "zoning_demand", func() zoning.Demand { return zoning.Demand{} })
	jsonKey(reg, "tier_stats", func() citizens.TierStats { return citizens.TierStats{} })
	jsonKey(reg, "waste_effects", func() economy.WasteEffects { return economy.WasteEffects{} })

	fieldKey(reg, "layer_traffic", &s.Layers.Traffic.Field)
	fieldKey(reg, "layer_land_value", &s.Layers.LandValue.Field)
	fieldKey(reg, "layer_trees", &s.Layers.Trees.Field)
	fieldKey(reg, "layer_soil", &s.Layers.Soil.Field)
	fieldKey(reg, "layer_flood_depth", &s.Layers.Flood.Depth)
	fieldKey(reg, "layer_pollution", &s.Layers.Pollution.Field)
	fieldKey(reg, "layer_noise", &s.Layers.Noise.Field)
	fieldKey(reg, "layer_walkability", &s.Layers.Walkability.Field)

	// blackout_mask sorts before blackout_state, so the mask is in place
	// when the state's defaults copy it.
	reg.RegisterFuncs("blackout_mask",
		func(*ecs.Resources) ([]byte, bool) {
			b := s.Blackout()
			if !b.Active {
				return nil, false
			}
			return packBits(b.Mask), true
		},
		func(_ *ecs.Resources, b []byte) error {
			mask, err := unpackBits(b, len(s.Grid.Cells))
			if err != nil {
				return err
			}
			s.Blackout().Mask = mask
			return nil
		},
		func(*ecs.Resources) { s.Blackout().Mask = make([]bool, len(s.Grid.Cells)) },
	)
	reg.RegisterFuncs("power_base",
		func(*ecs.Resources) ([]byte, bool) {
			if len(s.poweredBase) == 0 {
				return nil, false
			}
			return packBits(s.poweredBase), true
		},
		func(_ *ecs.Resources, b []byte) error {
			base, err := unpackBits(b, len(s.Grid.Cells))
			if err != nil {
				return err
			}
			s.poweredBase = base
			return nil
		},
		func(*ecs.Resources) { s.poweredBase = nil },
	)
	reg.RegisterFuncs("engine_state",
		func(*ecs.Resources) ([]byte, bool) {
			b, err := json.Marshal(s.engineState())
			return b, err == nil
		},
		func(_ *ecs.Resources, b []byte) error {
			var es engineState
			if err := json.Unmarshal(b, &es); err != nil {
				return err
			}
			s.setEngineState(es)
			return nil
		},
		func(*ecs.Resources) { s.setEngineState(engineState{UtilityDirty: true, InfraDirty: true}) },
	)
	reg.RegisterFuncs("flood_state",
		func(*ecs.Resources) ([]byte, bool) {
			f := s.Layers.Flood
			if !f.IsFlooding && f.TotalDamage == 0 {
				return nil, false
			}
			b, err := json.Marshal(f)
			return b, err == nil
		},
		func(_ *ecs.Resources, b []byte) error { return json.Unmarshal(b, s.Layers.Flood) },
		func(*ecs.Resources) {
			depth := s.Layers.Flood.Depth
			*s.Layers.Flood = propagation.FloodState{Depth: depth}
		},
	)
	return reg
}

// jsonKey persists a plain resource as JSON, skipping the zero value.
func jsonKey[T comparable](reg *save.Registry, key string, defaults func() T) {
	reg.RegisterFuncs(key,
		func(r *ecs.Resources) ([]byte, bool) {
			v := ecs.Get[T](r)
			if v == nil || *v == defaults() {
				return nil, false
			}
			b, err := json.Marshal(v)
			return b, err == nil
		},
		func(r *ecs.Resources, b []byte) error {
			v := defaults()
			if err := json.Unmarshal(b, &v); err != nil {
				return err
			}
			*ecs.MustGet[T](r) = v
			return nil
		},
		func(r *ecs.Resources) { *ecs.MustGet[T](r) = defaults() },
	)
}

// fieldKey persists a layer through its binary encoding. A field of the
// wrong size is rejected and the layer is cleared.
func fieldKey[T propagation.Number](reg *save.Registry, key string, f *propagation.Field[T]) {
	reg.RegisterFuncs(key,
		func(*ecs.Resources) ([]byte, bool) {
			if f.IsZero() {
				return nil, false
			}
			b, err := f.MarshalBinary()
			return b, err == nil
		},
		func(_ *ecs.Resources, b []byte) error {
			var tmp propagation.Field[T]
			if err := tmp.UnmarshalBinary(b); err != nil {
				return err
			}
			if tmp.Width != f.Width || tmp.Height != f.Height {
				return fmt.Errorf("%s: layer is %dx%d, grid is %dx%d", key, tmp.Width, tmp.Height, f.Width, f.Height)
			}
			*f = tmp
			return nil
		},
		func(*ecs.Resources) { f.Clear() },
	)
}

// ── Resource accessors ──────────────────────────────────────────────

func (s *Simulation) Loans() *economy.LoanBook            { return ecs.MustGet[economy.LoanBook](s.Res) }
func (s *Simulation) Policies() *economy.PolicyState      { return ecs.MustGet[economy.PolicyState](s.Res) }
func (s *Simulation) Waste() *economy.WastePolicyState    { return ecs.MustGet[economy.WastePolicyState](s.Res) }
func (s *Simulation) WasteEffects() *economy.WasteEffects { return ecs.MustGet[economy.WasteEffects](s.Res) }
func (s *Simulation) Dispatch() *energy.DispatchState     { return ecs.MustGet[energy.DispatchState](s.Res) }
func (s *Simulation) Blackout() *energy.BlackoutState     { return ecs.MustGet[energy.BlackoutState](s.Res) }
func (s *Simulation) Weather() *weather.Weather           { return ecs.MustGet[weather.Weather](s.Res) }
func (s *Simulation) Drought() *weather.DroughtState      { return ecs.MustGet[weather.DroughtState](s.Res) }
func (s *Simulation) Reservoir() *weather.ReservoirState  { return ecs.MustGet[weather.ReservoirState](s.Res) }
func (s *Simulation) Demand() *zoning.Demand              { return ecs.MustGet[zoning.Demand](s.Res) }
func (s *Simulation) Tiers() *citizens.TierStats          { return ecs.MustGet[citizens.TierStats](s.Res) }

func (s *Simulation) Affordability() *citizens.AffordabilityState {
	return ecs.MustGet[citizens.AffordabilityState](s.Res)
}

// CurrentTick returns the most recently completed tick.
func (s *Simulation) CurrentTick() uint64 { return s.Clock.Tick }

// Schedule returns the ordered system list.
func (s *Simulation) Schedule() *Schedule { return s.schedule }

func (s *Simulation) emit(category, format string, args ...any) {
	s.Journal.Emit(s.Clock.Tick, category, fmt.Sprintf(format, args...))
}

// Enqueue queues an action for the input stage of the next tick.
func (s *Simulation) Enqueue(a action.GameAction) {
	s.pending = append(s.pending, a)
}

// Pending is the number of queued actions.
func (s *Simulation) Pending() int { return len(s.pending) }

// tick runs one full pass of the schedule.
func (s *Simulation) tick() {
	for i := range s.schedule.Systems {
		sys := &s.schedule.Systems[i]
		if sys.Guard != nil && !sys.Guard(s) {
			continue
		}
		s.running = sys.Name
		if s.observer != nil {
			done := s.observer.ObserveSystem(sys.Stage, sys.Name)
			sys.Run(s)
			done()
			continue
		}
		sys.Run(s)
	}
	s.running = ""
}

// Advance runs n ticks outside any Engine, ignoring the pause flag.
// Invariant violations are not recovered.
func (s *Simulation) Advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		s.tick()
	}
}

// ── Collections ─────────────────────────────────────────────────────

func (s *Simulation) serviceList() []component.ServiceBuilding {
	out := make([]component.ServiceBuilding, 0, s.Services.Len())
	s.Services.Each(func(_ ecs.Entity, sb *component.ServiceBuilding) { out = append(out, *sb) })
	return out
}

func (s *Simulation) utilityRefs() []propagation.UtilitySourceRef {
	out := make([]propagation.UtilitySourceRef, 0, s.Utilities.Len())
	s.Utilities.Each(func(e ecs.Entity, u *component.UtilitySource) {
		out = append(out, propagation.UtilitySourceRef{Entity: e, Source: *u})
	})
	return out
}

func (s *Simulation) plantPositions() []world.Pos {
	out := make([]world.Pos, 0, s.Plants.Len())
	s.Plants.Each(func(_ ecs.Entity, p *component.PowerPlant) {
		out = append(out, world.Pos{X: p.GridX, Y: p.GridY})
	})
	return out
}

func (s *Simulation) plantRefs() []*component.PowerPlant {
	out := make([]*component.PowerPlant, 0, s.Plants.Len())
	for _, e := range s.Plants.Entities() {
		out = append(out, s.Plants.Mut(e))
	}
	return out
}

// refreshDerived computes every derived layer from scratch for a new city.
func (s *Simulation) refreshDerived() {
	s.rebuildGraph()
	s.rebuildInfra()
	s.propagateUtilities()
	s.Layers.Coverage.Rebuild(s.serviceList())
	propagation.UpdateWalkability(s.Layers.Walkability, s.Grid, s.Layers.Coverage)
	s.updateNoise()
	s.updatePollution()
}

// engineState is the scheduler bookkeeping a checkpoint must carry for the
// next tick to match an uninterrupted run.
type engineState struct {
	UtilityDirty bool    `json:"utility_dirty,omitempty"`
	InfraDirty   bool    `json:"infra_dirty,omitempty"`
	RoadsDirty   bool    `json:"roads_dirty,omitempty"`
	DemandMW     float32 `json:"demand_mw,omitempty"`
	Stats        Stats   `json:"stats"`
}

func (s *Simulation) engineState() engineState {
	return engineState{
		UtilityDirty: s.utilityDirt,
		InfraDirty:   s.infraDirt,
		RoadsDirty:   s.Roads.Dirty(),
		DemandMW:     s.demandMW,
		Stats:        s.Stats,
	}
}

func (s *Simulation) setEngineState(es engineState) {
	s.utilityDirt = es.UtilityDirty
	s.infraDirt = es.InfraDirty
	if es.RoadsDirty {
		s.Roads.MarkDirty()
	}
	s.demandMW = es.DemandMW
	s.Stats = es.Stats
}
