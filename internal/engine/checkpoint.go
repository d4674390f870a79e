package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/roadgraph"
	"github.com/talgya/gridcity/internal/save"
)

// Options returns the options the city was founded with.
func (s *Simulation) Options() Options { return s.opts }

// Save encodes the whole city. Equal cities produce equal bytes.
func (s *Simulation) Save() []byte {
	f := &save.File{
		Version: save.CurrentVersion,
		Grid:    s.Grid,
		Roads:   save.RoadsFrom(s.Roads),
		Clock: save.Clock{
			Seed:       s.Seed,
			Tick:       s.Clock.Tick,
			Minutes:    s.Clock.Minutes,
			Speed:      s.Clock.Speed,
			Paused:     s.Clock.Paused,
			NextEntity: uint64(s.World.NextID()),
		},
		Budget:     s.Budget,
		Citizens:   s.Citizens.Records(),
		Buildings:  s.buildingRecords(),
		Facilities: s.facilityRecords(),
		Extensions: s.registry.Collect(s.Res),
	}
	for k, v := range s.foreign {
		if _, ok := f.Extensions[k]; !ok {
			f.Extensions[k] = v
		}
	}
	return save.Encode(f)
}

func (s *Simulation) buildingRecords() []save.Building {
	ents := s.Buildings.Building.Entities()
	out := make([]save.Building, 0, len(ents))
	for _, e := range ents {
		b, _ := s.Buildings.Building.Get(e)
		rec := save.Building{Entity: e, Building: b}
		if uc, ok := s.Buildings.Construction.Get(e); ok {
			rec.Construction = &uc
		}
		out = append(out, rec)
	}
	return out
}

func (s *Simulation) facilityRecords() []save.Facility {
	seen := make(map[ecs.Entity]struct{})
	for _, e := range s.Services.Entities() {
		seen[e] = struct{}{}
	}
	for _, e := range s.Utilities.Entities() {
		seen[e] = struct{}{}
	}
	for _, e := range s.Plants.Entities() {
		seen[e] = struct{}{}
	}
	ents := make([]ecs.Entity, 0, len(seen))
	for e := range seen {
		ents = append(ents, e)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i] < ents[j] })

	out := make([]save.Facility, 0, len(ents))
	for _, e := range ents {
		rec := save.Facility{Entity: e}
		if v, ok := s.Services.Get(e); ok {
			rec.Service = &v
		}
		if v, ok := s.Utilities.Get(e); ok {
			rec.Utility = &v
		}
		if v, ok := s.Plants.Get(e); ok {
			rec.Plant = &v
		}
		out = append(out, rec)
	}
	return out
}

// Restore rebuilds a city from Save output. Grid size and seed come from
// the save; opts supplies the rest. Extensions that fail to
// decode fall back to defaults and are journaled as warnings.
func Restore(data []byte, opts Options) (*Simulation, error) {
	f, err := save.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	opts.Width, opts.Height, opts.Seed = f.Grid.Width, f.Grid.Height, f.Clock.Seed
	opts = opts.normalized()

	s, err := newSimulation(opts, f.Grid)
	if err != nil {
		return nil, err
	}
	s.State = StateLoading
	s.Roads = f.Network()
	s.Clock = Clock{Tick: f.Clock.Tick, Minutes: f.Clock.Minutes, Speed: ClampSpeed(f.Clock.Speed), Paused: f.Clock.Paused}
	s.Budget = f.Budget

	for _, b := range f.Buildings {
		s.World.SpawnWithID(b.Entity)
		s.Buildings.Building.Set(b.Entity, b.Building)
		if b.Construction != nil {
			s.Buildings.Construction.Set(b.Entity, *b.Construction)
		}
	}
	for _, fc := range f.Facilities {
		s.World.SpawnWithID(fc.Entity)
		if fc.Service != nil {
			s.Services.Set(fc.Entity, *fc.Service)
		}
		if fc.Utility != nil {
			s.Utilities.Set(fc.Entity, *fc.Utility)
		}
		if fc.Plant != nil {
			s.Plants.Set(fc.Entity, *fc.Plant)
		}
	}
	for _, c := range f.Citizens {
		s.Citizens.Restore(s.World, c)
	}
	s.World.SetNextID(ecs.Entity(f.Clock.NextEntity))

	// The graph and mode infrastructure are pure functions of the roads
	// and services; the persisted flags then say whether a rebuild is due.
	s.Graph = roadgraph.Build(s.Roads)
	s.Roads.ClearDirty()
	s.rebuildInfra()

	s.foreign = s.registry.Apply(s.Res, f.Extensions, func(key string, err error) {
		s.emit(CatWarning, "save section %q unreadable, using defaults: %v", key, err)
	})
	if len(s.poweredBase) != len(s.Grid.Cells) {
		s.poweredBase = make([]bool, len(s.Grid.Cells))
		for i := range s.Grid.Cells {
			s.poweredBase[i] = s.Grid.Cells[i].HasPower
		}
	}
	if _, ok := f.Extensions["engine_state"]; !ok {
		s.refreshStats()
	}
	s.Layers.Coverage.Rebuild(s.serviceList())
	s.rebuildViews()

	s.State = StatePlaying
	slog.Info("city restored",
		"tick", s.Clock.Tick,
		"time", s.Clock.SimTime(),
		"size", humanize.Bytes(uint64(len(data))),
		"population", humanize.Comma(int64(s.Citizens.Population())),
		"unknown_sections", len(s.foreign),
	)
	return s, nil
}

// Clone deep-copies the city through a save round trip.
func (s *Simulation) Clone() (*Simulation, error) {
	c, err := Restore(s.Save(), s.Options())
	if err != nil {
		return nil, err
	}
	c.Journal = Journal{events: append([]Event(nil), s.Journal.events...), seq: s.Journal.seq}
	c.ActionLog = append([]action.Record(nil), s.ActionLog...)
	return c, nil
}

// Extensions lists the save sections this city carries that no subsystem
// claimed, sorted.
func (s *Simulation) Extensions() []string {
	return sortedKeys(s.foreign)
}

func sortedKeys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// packBits stores one flag per bit, least significant first.
func packBits(v []bool) []byte {
	out := make([]byte, (len(v)+7)/8)
	for i, b := range v {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(b []byte, n int) ([]bool, error) {
	if len(b) != (n+7)/8 {
		return nil, fmt.Errorf("bit set holds %d bytes, want %d", len(b), (n+7)/8)
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = b[i/8]&(1<<(i%8)) != 0
	}
	return out, nil
}
