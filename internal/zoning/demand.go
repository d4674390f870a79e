// Package zoning grows buildings on zoned land: it turns occupancy into
// per-category demand, spawns construction sites on road-adjacent zoned
// cells, advances construction, upgrades mature buildings and demolishes
// them on request.
package zoning

import (
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/world"
)

// Target job capacity per resident for each job category.
const (
	commercialPerResident = 0.25
	industrialPerResident = 0.25
	officePerResident     = 0.15
)

// Demand is the growth pressure per zone category in [0, 1].
type Demand struct {
	Residential float32 `json:"residential"`
	Commercial  float32 `json:"commercial"`
	Industrial  float32 `json:"industrial"`
	Office      float32 `json:"office"`
}

// For returns the demand that applies to zone z. Mixed use answers to the
// stronger of residential and commercial.
func (d Demand) For(z world.ZoneType) float32 {
	switch z {
	case world.ResidentialLow, world.ResidentialMedium, world.ResidentialHigh:
		return d.Residential
	case world.CommercialLow, world.CommercialHigh:
		return d.Commercial
	case world.Industrial:
		return d.Industrial
	case world.Office:
		return d.Office
	case world.MixedUse:
		return max(d.Residential, d.Commercial)
	}
	return 0
}

// Stats is the occupancy snapshot demand is computed from.
type Stats struct {
	Population           uint32 `json:"population"`
	ResidentialCapacity  uint32 `json:"residential_capacity"`
	ResidentialOccupants uint32 `json:"residential_occupants"`
	CommercialCapacity   uint32 `json:"commercial_capacity"`
	CommercialOccupants  uint32 `json:"commercial_occupants"`
	IndustrialCapacity   uint32 `json:"industrial_capacity"`
	IndustrialOccupants  uint32 `json:"industrial_occupants"`
	OfficeCapacity       uint32 `json:"office_capacity"`
	OfficeOccupants      uint32 `json:"office_occupants"`
	HasRoads             bool   `json:"has_roads"`
}

// JobCapacity is the total number of jobs across categories.
func (s Stats) JobCapacity() uint32 {
	return s.CommercialCapacity + s.IndustrialCapacity + s.OfficeCapacity
}

// JobOccupants is the number of filled jobs.
func (s Stats) JobOccupants() uint32 {
	return s.CommercialOccupants + s.IndustrialOccupants + s.OfficeOccupants
}

// CollectStats sums capacity and occupancy over completed buildings. Sites
// still under construction do not count.
func CollectStats(b *Buildings, roads *world.RoadNetwork, population uint32) Stats {
	s := Stats{Population: population, HasRoads: roads != nil && roads.Len() > 0}
	b.Building.Each(func(e ecs.Entity, bl *component.Building) {
		if b.Construction.Has(e) {
			return
		}
		switch {
		case bl.Zone == world.MixedUse:
			// Mixed use splits evenly between homes and shops.
			s.ResidentialCapacity += bl.Capacity / 2
			s.ResidentialOccupants += bl.Occupants / 2
			s.CommercialCapacity += bl.Capacity - bl.Capacity/2
			s.CommercialOccupants += bl.Occupants - bl.Occupants/2
		case bl.Zone.IsResidential():
			s.ResidentialCapacity += bl.Capacity
			s.ResidentialOccupants += bl.Occupants
		case bl.Zone.IsCommercial():
			s.CommercialCapacity += bl.Capacity
			s.CommercialOccupants += bl.Occupants
		case bl.Zone == world.Industrial:
			s.IndustrialCapacity += bl.Capacity
			s.IndustrialOccupants += bl.Occupants
		case bl.Zone == world.Office:
			s.OfficeCapacity += bl.Capacity
			s.OfficeOccupants += bl.Occupants
		}
	})
	return s
}

// VacancyRate is the unused share of capacity, 0 when there is none.
func VacancyRate(capacity, occupants uint32) float32 {
	if capacity == 0 || occupants >= capacity {
		return 0
	}
	return float32(capacity-occupants) / float32(capacity)
}

// ComputeDemand derives zone demand from occupancy. Without roads nothing
// can grow. A city with roads but no buildings gets bootstrap demand so the
// first houses and shops appear.
func ComputeDemand(s Stats) Demand {
	if !s.HasRoads {
		return Demand{}
	}
	if s.ResidentialCapacity == 0 && s.JobCapacity() == 0 {
		return Demand{Residential: 0.8, Commercial: 0.3, Industrial: 0.4, Office: 0.2}
	}

	resVacancy := VacancyRate(s.ResidentialCapacity, s.ResidentialOccupants)
	jobVacancy := VacancyRate(s.JobCapacity(), s.JobOccupants())

	// Homes are wanted when they are full and when jobs go unfilled.
	res := 0.6 - 2*resVacancy + 0.8*jobVacancy
	if s.ResidentialCapacity == 0 {
		res = 1
	}

	pop := float32(s.Population)
	return Demand{
		Residential: clamp01(res),
		Commercial:  jobDemand(pop*commercialPerResident, s.CommercialCapacity, s.CommercialOccupants),
		Industrial:  jobDemand(pop*industrialPerResident, s.IndustrialCapacity, s.IndustrialOccupants),
		Office:      jobDemand(pop*officePerResident, s.OfficeCapacity, s.OfficeOccupants),
	}
}

// jobDemand grows with the shortfall against a per-resident target and
// shrinks with vacancy.
func jobDemand(target float32, capacity, occupants uint32) float32 {
	if target < 1 {
		target = 1
	}
	shortfall := (target - float32(capacity)) / target
	return clamp01(0.3 + 0.5*shortfall - VacancyRate(capacity, occupants))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
