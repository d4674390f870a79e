package citizens

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/world"
)

// Mode choice tuning. Distances are in cells; perceived times are in
// arbitrary units where lower is better.
const (
	MaxBikeDistance       = 80
	MaxBikeAccess         = 10
	MaxTransitAccess      = 15
	DriveAccessRadius     = 3
	DriveParkingOverhead  = 5
	TransitWaitOverhead   = 8
	FreeTransitPerception = 0.8
)

var modeSpeed = [...]float32{
	component.Walk:    0.30,
	component.Bike:    0.60,
	component.Transit: 0.80,
	component.Drive:   1.00,
}

var modeComfort = [...]float32{
	component.Walk:    1.0,
	component.Bike:    0.95,
	component.Transit: 0.85,
	component.Drive:   0.90,
}

// ModeInfra caches the infrastructure mode choice looks for.
type ModeInfra struct {
	BikePaths    []world.Pos
	TransitStops []world.Pos
	FreeTransit  bool
}

// BuildModeInfra collects bike paths from the road network and transit
// stops from service buildings.
func BuildModeInfra(roads *world.RoadNetwork, services []component.ServiceBuilding) *ModeInfra {
	m := &ModeInfra{}
	for _, p := range roads.Positions() {
		if rt, _ := roads.RoadType(p.X, p.Y); rt == world.Path {
			m.BikePaths = append(m.BikePaths, p)
		}
	}
	for _, s := range services {
		if s.ServiceType == component.BusDepot || s.ServiceType == component.TrainStation {
			m.TransitStops = append(m.TransitStops, world.Pos{X: s.GridX, Y: s.GridY})
		}
	}
	return m
}

// Manhattan is the grid distance between two cells.
func Manhattan(a, b world.Pos) float32 {
	return float32(absInt(a.X-b.X) + absInt(a.Y-b.Y))
}

// PerceivedTime returns the perceived trip time for mode m, or false when
// the mode is unavailable for this trip.
func PerceivedTime(m component.TransportMode, from, to world.Pos, g *world.Grid, infra *ModeInfra) (float32, bool) {
	d := Manhattan(from, to)
	switch m {
	case component.Walk:
		return d / modeSpeed[m] / modeComfort[m], true
	case component.Bike:
		if d > MaxBikeDistance || infra == nil || !anyWithin(infra.BikePaths, from, MaxBikeAccess) {
			return 0, false
		}
		return d / modeSpeed[m] / modeComfort[m], true
	case component.Transit:
		if infra == nil || !anyWithin(infra.TransitStops, from, MaxTransitAccess) || !anyWithin(infra.TransitStops, to, MaxTransitAccess) {
			return 0, false
		}
		access := float32(MaxTransitAccess) * 0.5
		t := (2*access + TransitWaitOverhead + d/modeSpeed[m]) / modeComfort[m]
		if infra.FreeTransit {
			t *= FreeTransitPerception
		}
		return t, true
	case component.Drive:
		if !nearVehicleRoad(g, from, DriveAccessRadius) {
			return 0, false
		}
		return (d + DriveParkingOverhead) / modeSpeed[m] / modeComfort[m], true
	}
	return 0, false
}

// ChooseMode picks the available mode with the lowest perceived time.
// Ties keep the earlier mode in Walk, Bike, Transit, Drive order.
func ChooseMode(from, to world.Pos, g *world.Grid, infra *ModeInfra) component.TransportMode {
	best := component.Walk
	bestT, _ := PerceivedTime(component.Walk, from, to, g, infra)
	for _, m := range []component.TransportMode{component.Bike, component.Transit, component.Drive} {
		if t, ok := PerceivedTime(m, from, to, g, infra); ok && t < bestT {
			best, bestT = m, t
		}
	}
	return best
}

func anyWithin(ps []world.Pos, p world.Pos, dist float32) bool {
	for _, q := range ps {
		if Manhattan(p, q) <= dist {
			return true
		}
	}
	return false
}

// nearVehicleRoad reports a drivable road within radius (square window).
func nearVehicleRoad(g *world.Grid, p world.Pos, radius int) bool {
	_, ok := nearestRoad(g, p, radius, true)
	return ok
}

// nearestRoad returns the closest road cell to p within radius, scanning
// rings outward in row-major order so ties resolve the same way every time.
func nearestRoad(g *world.Grid, p world.Pos, radius int, vehicleOnly bool) (world.Pos, bool) {
	for r := 0; r <= radius; r++ {
		for y := p.Y - r; y <= p.Y+r; y++ {
			for x := p.X - r; x <= p.X+r; x++ {
				if max(absInt(x-p.X), absInt(y-p.Y)) != r || !g.InBounds(x, y) {
					continue
				}
				c := g.Get(x, y)
				if c.Type != world.Road || (vehicleOnly && c.RoadType == world.Path) {
					continue
				}
				return world.Pos{X: x, Y: y}, true
			}
		}
	}
	return world.Pos{}, false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
