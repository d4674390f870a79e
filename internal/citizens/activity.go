package citizens

import (
	"math"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/roadgraph"
	"github.com/talgya/gridcity/internal/world"
)

// Daily schedule, in hours of the game day.
const (
	WorkStartHour    = 7
	WorkEndHour      = 17
	LeisureStartHour = 18
	LeisureEndHour   = 22
	LeisureTicks     = 60
	LeisureFunBelow  = 50
	RoadAccessRadius = 3
)

// Routes is what route planning reads.
type Routes struct {
	Grid    *world.Grid
	Graph   *roadgraph.CSR
	Traffic roadgraph.TrafficView
	Infra   *ModeInfra
}

// ActivityResult counts state transitions in one pass.
type ActivityResult struct {
	Departures    int
	Arrivals      int
	PathRequests  int
	PathsNotFound int
}

// departureHour staggers morning departures over the first hour so the
// whole city does not hit the roads on one tick.
func departureHour(e ecs.Entity) float32 {
	return WorkStartHour + float32(e%4)*0.25
}

// UpdateActivities advances each citizen's daily state machine:
// home → commute → work → commute → home, with an evening leisure outing
// when fun runs low. Commutes request a route when they start.
func UpdateActivities(s *Stores, hour float32, r Routes) ActivityResult {
	var res ActivityResult
	for _, e := range s.Citizen.Entities() {
		st := s.State.Mut(e)
		timer := s.Timer.Mut(e)
		if st == nil || timer == nil {
			continue
		}
		timer.Ticks++
		home, _ := s.Home.Get(e)
		homePos := world.Pos{X: home.GridX, Y: home.GridY}

		switch st.State {
		case component.AtHome:
			if wl, ok := s.Work.Get(e); ok && hour >= departureHour(e) && hour < WorkEndHour {
				res.PathRequests++
				if !planRoute(s, e, homePos, world.Pos{X: wl.GridX, Y: wl.GridY}, r) {
					res.PathsNotFound++
				}
				transition(st, timer, component.CommutingToWork)
				res.Departures++
			} else if hour >= LeisureStartHour && hour < LeisureEndHour {
				if n, ok := s.Needs.Get(e); ok && n.Fun < LeisureFunBelow {
					transition(st, timer, component.Leisure)
				}
			}
		case component.CommutingToWork:
			if p := s.Path.Mut(e); p == nil || p.Done() {
				transition(st, timer, component.Working)
				if wl, ok := s.Work.Get(e); ok {
					s.Position.Set(e, cellCenter(wl.GridX, wl.GridY))
				}
				res.Arrivals++
			}
		case component.Working:
			wl, ok := s.Work.Get(e)
			if !ok || hour >= WorkEndHour || hour < WorkStartHour {
				from := homePos
				if ok {
					from = world.Pos{X: wl.GridX, Y: wl.GridY}
				}
				res.PathRequests++
				if !planRoute(s, e, from, homePos, r) {
					res.PathsNotFound++
				}
				transition(st, timer, component.CommutingHome)
				res.Departures++
			}
		case component.CommutingHome:
			if p := s.Path.Mut(e); p == nil || p.Done() {
				transition(st, timer, component.AtHome)
				s.Position.Set(e, cellCenter(home.GridX, home.GridY))
				res.Arrivals++
			}
		case component.Leisure:
			if timer.Ticks >= LeisureTicks || hour >= LeisureEndHour || hour < LeisureStartHour {
				transition(st, timer, component.AtHome)
			}
		}
	}
	return res
}

func transition(st *component.CitizenStateComp, timer *component.ActivityTimer, to component.CitizenState) {
	st.State = to
	timer.Ticks = 0
}

// planRoute picks a mode and fills the citizen's path cache. Road modes
// route over the road graph between the road cells nearest each end;
// without a connecting route the citizen walks straight. Reports whether
// a road route was found or not needed.
func planRoute(s *Stores, e ecs.Entity, from, to world.Pos, r Routes) bool {
	mode := ChooseMode(from, to, r.Grid, r.Infra)
	waypoints := []world.Pos{from, to}
	found := true
	if mode != component.Walk {
		found = false
		start, ok1 := nearestRoad(r.Grid, from, RoadAccessRadius, mode != component.Bike)
		goal, ok2 := nearestRoad(r.Grid, to, RoadAccessRadius, mode != component.Bike)
		if ok1 && ok2 && r.Graph != nil {
			var path []world.Pos
			if mode == component.Drive && r.Traffic != nil {
				path, _ = r.Graph.FindPathWithTraffic(start, goal, r.Traffic)
			} else {
				path = r.Graph.FindPath(start, goal)
			}
			if path != nil {
				waypoints = make([]world.Pos, 0, len(path)+2)
				waypoints = append(waypoints, from)
				waypoints = append(waypoints, path...)
				waypoints = append(waypoints, to)
				found = true
			}
		}
		if !found {
			mode = component.Walk
		}
	}
	s.Mode.Set(e, component.ChosenTransportMode{Mode: mode})
	s.Path.Set(e, component.PathCache{Waypoints: waypoints, Index: 1})
	return found
}

// Move steps every commuting citizen along its path. speedFactor scales
// all travel (weather). Returns the cells occupied by drivers, which feed
// the traffic density grid.
func Move(s *Stores, g *world.Grid, speedFactor float32) []world.Pos {
	var vehicles []world.Pos
	for _, e := range s.Citizen.Entities() {
		st, _ := s.State.Get(e)
		if !st.State.Commuting() {
			continue
		}
		path := s.Path.Mut(e)
		pos := s.Position.Mut(e)
		if path == nil || pos == nil || path.Done() {
			continue
		}
		m, _ := s.Mode.Get(e)
		step := m.Mode.CellsPerTick() * world.CellSize * speedFactor
		if gx, gy, ok := g.WorldToGrid(pos.X, pos.Y); ok {
			c := g.Get(gx, gy)
			if c.Type == world.Road && m.Mode == component.Drive {
				step *= 0.5 + c.RoadType.Speed()/world.MaxRoadSpeed
				vehicles = append(vehicles, world.Pos{X: gx, Y: gy})
			}
		}
		target := path.Waypoints[path.Index]
		tx, ty := world.GridToWorld(target.X, target.Y)
		dx, dy := tx-pos.X, ty-pos.Y
		dist := float32(math.Hypot(float64(dx), float64(dy)))
		vel := component.Velocity{}
		if dist <= step {
			pos.X, pos.Y = tx, ty
			path.Index++
		} else {
			vel.X, vel.Y = dx/dist*step, dy/dist*step
			pos.X += vel.X
			pos.Y += vel.Y
		}
		s.Velocity.Set(e, vel)
	}
	return vehicles
}
