package energy

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/world"
)

// Comfort band in °C; outside it heating or cooling load rises.
const (
	heatingBase   = 18.0
	coolingBase   = 24.0
	heatingPerDeg = 0.02
	coolingPerDeg = 0.03
	serviceLoadMW = 0.5 // per footprint cell
)

// zoneLoadMW is the load per unit of building capacity.
var zoneLoadMW = [world.ZoneCount]float32{
	world.ZoneNone:          0,
	world.ResidentialLow:    0.004,
	world.ResidentialMedium: 0.004,
	world.ResidentialHigh:   0.005,
	world.CommercialLow:     0.008,
	world.CommercialHigh:    0.009,
	world.Industrial:        0.015,
	world.Office:            0.010,
	world.MixedUse:          0.006,
}

// TemperatureFactor scales demand for heating below 18 °C and cooling
// above 24 °C.
func TemperatureFactor(tempC float32) float32 {
	f := float32(1)
	if tempC < heatingBase {
		f += (heatingBase - tempC) * heatingPerDeg
	}
	if tempC > coolingBase {
		f += (tempC - coolingBase) * coolingPerDeg
	}
	return f
}

// AggregateDemand sums the electrical load of every finished building and
// service at the given outdoor temperature.
func AggregateDemand(buildings []component.Building, services []component.ServiceBuilding, tempC float32) float32 {
	var mw float32
	for i := range buildings {
		b := &buildings[i]
		if int(b.Zone) >= len(zoneLoadMW) {
			continue
		}
		mw += zoneLoadMW[b.Zone] * float32(b.Capacity)
	}
	for _, s := range services {
		w, h := s.ServiceType.Footprint()
		mw += serviceLoadMW * float32(w*h)
	}
	return mw * TemperatureFactor(tempC)
}
