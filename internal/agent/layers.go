package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/overlay"
	"github.com/talgya/gridcity/internal/world"
)

// LayerFunc renders one named data layer. It runs with exclusive access to
// the city and must not keep references into it.
type LayerFunc func(sim *engine.Simulation) any

// Layers maps query layer names to renderers. It is safe for concurrent
// use; the HTTP API and agent sessions share one.
type Layers struct {
	mu sync.RWMutex
	fn map[string]LayerFunc
}

// NewLayers returns an empty registry.
func NewLayers() *Layers {
	return &Layers{fn: make(map[string]LayerFunc)}
}

// Register adds or replaces a layer.
func (l *Layers) Register(name string, fn LayerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fn[name] = fn
}

// Names lists the registered layers, sorted.
func (l *Layers) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.fn))
	for name := range l.fn {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render evaluates the named layers against sim. Asking for a layer that
// does not exist is an error and renders nothing.
func (l *Layers) Render(sim *engine.Simulation, names []string) (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, name := range names {
		if _, ok := l.fn[name]; !ok {
			return nil, fmt.Errorf("unknown layer %q", name)
		}
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = l.fn[name](sim)
	}
	return out, nil
}

// RecentLimit bounds the events and actions layers.
const RecentLimit = 100

// DefaultLayers registers the built-in layers:
//
//	overview    64×64 ASCII map with headers and legend
//	detail      full-resolution ASCII crop of the built-up area
//	network     utility propagation summary
//	tiers       population tiers with percentages
//	stats       city aggregates
//	budget      treasury, tax rate and projections
//	power       dispatch and blackout outcome
//	water       reservoir and drought
//	weather     current conditions
//	events      newest journal events
//	actions     newest action log records
//	lots        vacant road-adjacent cells, row-major
//	schedule    system names in run order
//	extensions  save sections no subsystem claimed
func DefaultLayers() *Layers {
	l := NewLayers()
	l.Register("overview", func(s *engine.Simulation) any { return overlay.OverviewMap(s.Grid) })
	l.Register("detail", func(s *engine.Simulation) any { return overlay.DetailMap(s.Grid, 2) })
	l.Register("network", func(s *engine.Simulation) any { return overlay.NetworkSummary(s.Layers.Network) })
	l.Register("tiers", func(s *engine.Simulation) any { return overlay.TierStats(*s.Tiers()) })
	l.Register("stats", func(s *engine.Simulation) any { return s.Stats })
	l.Register("budget", func(s *engine.Simulation) any { return s.Budget })
	l.Register("power", func(s *engine.Simulation) any { return s.Observe().Power })
	l.Register("water", func(s *engine.Simulation) any { return s.Observe().Water })
	l.Register("weather", func(s *engine.Simulation) any { return s.Observe().Weather })
	l.Register("events", func(s *engine.Simulation) any { return s.Journal.Recent(RecentLimit) })
	l.Register("actions", func(s *engine.Simulation) any {
		log := s.ActionLog
		if len(log) > RecentLimit {
			log = log[len(log)-RecentLimit:]
		}
		return append([]action.Record{}, log...)
	})
	l.Register("lots", func(s *engine.Simulation) any { return VacantLots(s.Grid, MaxLots) })
	l.Register("schedule", func(s *engine.Simulation) any { return s.Schedule().Names() })
	l.Register("extensions", func(s *engine.Simulation) any { return s.Extensions() })
	return l
}

// MaxLots bounds the lots layer.
const MaxLots = 64

// Lot is a buildable cell.
type Lot struct {
	X    int            `json:"x"`
	Y    int            `json:"y"`
	Zone world.ZoneType `json:"zone"`
}

// VacantLots lists up to limit grass cells with no building that touch a
// road, scanning rows top to bottom.
func VacantLots(g *world.Grid, limit int) []Lot {
	out := []Lot{}
	for i := range g.Cells {
		c := &g.Cells[i]
		if c.Type != world.Grass || c.HasBuilding() {
			continue
		}
		x, y := g.Coords(i)
		if !g.AdjacentToRoad(x, y) {
			continue
		}
		out = append(out, Lot{X: x, Y: y, Zone: c.Zone})
		if len(out) == limit {
			break
		}
	}
	return out
}
