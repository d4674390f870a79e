// Package citizens simulates residents: arrival, daily routines, commuting,
// needs, happiness, aging and departure, and socio-economic tiers.
//
// Every pass walks citizens in ascending entity order and draws randomness
// from tick- or day-indexed streams, so identical inputs replay exactly.
package citizens

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/world"
)

// Stores holds every citizen component store.
type Stores struct {
	Citizen     *ecs.Store[component.Citizen]
	Position    *ecs.Store[component.Position]
	Velocity    *ecs.Store[component.Velocity]
	Home        *ecs.Store[component.HomeLocation]
	Work        *ecs.Store[component.WorkLocation]
	Details     *ecs.Store[component.CitizenDetails]
	State       *ecs.Store[component.CitizenStateComp]
	Path        *ecs.Store[component.PathCache]
	Personality *ecs.Store[component.Personality]
	Needs       *ecs.Store[component.Needs]
	Family      *ecs.Store[component.Family]
	Timer       *ecs.Store[component.ActivityTimer]
	Mode        *ecs.Store[component.ChosenTransportMode]
	Tier        *ecs.Store[component.PopulationTierComp]
}

// NewStores registers the citizen stores with w.
func NewStores(w *ecs.World) *Stores {
	return &Stores{
		Citizen:     ecs.NewStore[component.Citizen](w),
		Position:    ecs.NewStore[component.Position](w),
		Velocity:    ecs.NewStore[component.Velocity](w),
		Home:        ecs.NewStore[component.HomeLocation](w),
		Work:        ecs.NewStore[component.WorkLocation](w),
		Details:     ecs.NewStore[component.CitizenDetails](w),
		State:       ecs.NewStore[component.CitizenStateComp](w),
		Path:        ecs.NewStore[component.PathCache](w),
		Personality: ecs.NewStore[component.Personality](w),
		Needs:       ecs.NewStore[component.Needs](w),
		Family:      ecs.NewStore[component.Family](w),
		Timer:       ecs.NewStore[component.ActivityTimer](w),
		Mode:        ecs.NewStore[component.ChosenTransportMode](w),
		Tier:        ecs.NewStore[component.PopulationTierComp](w),
	}
}

// Population is the number of live citizens.
func (s *Stores) Population() int { return s.Citizen.Len() }

// Record is the full component set of one citizen. Saves and restores go
// through it.
type Record struct {
	Entity      ecs.Entity               `json:"entity"`
	Position    component.Position       `json:"position"`
	Home        component.HomeLocation   `json:"home"`
	Work        *component.WorkLocation  `json:"work,omitempty"`
	Details     component.CitizenDetails `json:"details"`
	State       component.CitizenState   `json:"state"`
	Path        component.PathCache      `json:"path"`
	Personality component.Personality    `json:"personality"`
	Needs       component.Needs          `json:"needs"`
	Family      component.Family         `json:"family"`
	Timer       component.ActivityTimer  `json:"timer"`
	Mode        component.TransportMode  `json:"mode"`
	Tier        component.PopulationTier `json:"tier"`
}

// Records exports all citizens in entity order.
func (s *Stores) Records() []Record {
	out := make([]Record, 0, s.Citizen.Len())
	for _, e := range s.Citizen.Entities() {
		r := Record{Entity: e}
		r.Position, _ = s.Position.Get(e)
		r.Home, _ = s.Home.Get(e)
		if wl, ok := s.Work.Get(e); ok {
			r.Work = &wl
		}
		r.Details, _ = s.Details.Get(e)
		st, _ := s.State.Get(e)
		r.State = st.State
		r.Path, _ = s.Path.Get(e)
		r.Personality, _ = s.Personality.Get(e)
		r.Needs, _ = s.Needs.Get(e)
		r.Family, _ = s.Family.Get(e)
		r.Timer, _ = s.Timer.Get(e)
		m, _ := s.Mode.Get(e)
		r.Mode = m.Mode
		tr, _ := s.Tier.Get(e)
		r.Tier = tr.Tier
		out = append(out, r)
	}
	return out
}

// Restore spawns a citizen from a record, keeping its entity id.
func (s *Stores) Restore(w *ecs.World, r Record) {
	w.SpawnWithID(r.Entity)
	s.attach(r.Entity, r)
}

func (s *Stores) attach(e ecs.Entity, r Record) {
	s.Citizen.Set(e, component.Citizen{})
	s.Position.Set(e, r.Position)
	s.Velocity.Set(e, component.Velocity{})
	s.Home.Set(e, r.Home)
	if r.Work != nil {
		s.Work.Set(e, *r.Work)
	}
	s.Details.Set(e, r.Details)
	s.State.Set(e, component.CitizenStateComp{State: r.State})
	s.Path.Set(e, r.Path)
	s.Personality.Set(e, r.Personality)
	s.Needs.Set(e, r.Needs)
	s.Family.Set(e, r.Family)
	s.Timer.Set(e, r.Timer)
	s.Mode.Set(e, component.ChosenTransportMode{Mode: r.Mode})
	s.Tier.Set(e, component.PopulationTierComp{Tier: r.Tier})
}

// cellCenter returns the world position of a grid cell's centre.
func cellCenter(x, y int) component.Position {
	wx, wy := world.GridToWorld(x, y)
	return component.Position{X: wx, Y: wy}
}
