package steward

import (
	"math"
)

// Crisis levels, mildest first.
const (
	Healthy  = "HEALTHY"
	Watch    = "WATCH"
	Warning  = "WARNING"
	Critical = "CRITICAL"
)

// Triage thresholds.
const (
	lowReserve       = 0.10 // reserve margin below this is a warning
	thinReserve      = 0.25
	lowWaterCoverage = 0.5 // watered cells per powered cell
	shortRunway      = 3.0 // months of treasury left
	highUnemployment = 0.15
)

// CityHealth holds derived diagnostic signals computed from a CitySnapshot.
type CityHealth struct {
	ReserveMargin    float64
	PowerShort       bool    // deficit, blackout or a reserve under lowReserve
	WaterCoverage    float64 // watered cells per powered cell; 1 when nothing is powered
	RunwayMonths     float64 // +Inf while the budget is in surplus
	UnemploymentRate float64
	CrisisLevel      string
}

// Triage computes a CityHealth from the snapshot's data.
func Triage(snap *CitySnapshot) *CityHealth {
	c := &snap.City
	h := &CityHealth{
		ReserveMargin: float64(c.Power.ReserveMargin),
		WaterCoverage: 1,
		RunwayMonths:  math.Inf(1),
	}

	loaded := c.Power.DemandMW > 0
	h.PowerShort = c.Power.Deficit || c.Power.BlackoutActive || (loaded && h.ReserveMargin < lowReserve)

	if c.Stats.PoweredCells > 0 {
		h.WaterCoverage = float64(c.Stats.WateredCells) / float64(c.Stats.PoweredCells)
	}

	if net := c.Budget.MonthlyIncome - c.Budget.MonthlyExpenses; net < 0 {
		h.RunwayMonths = math.Max(c.Budget.Treasury, 0) / -net
	}

	if labour := c.Stats.Employed + c.Stats.Unemployed; labour > 0 {
		h.UnemploymentRate = float64(c.Stats.Unemployed) / float64(labour)
	}

	h.CrisisLevel = Healthy
	switch {
	case c.Loans.Bankrupt, c.Power.BlackoutActive, h.RunwayMonths < 1:
		h.CrisisLevel = Critical
	case h.PowerShort, c.Water.Critical, h.WaterCoverage < lowWaterCoverage, h.RunwayMonths < shortRunway:
		h.CrisisLevel = Warning
	case loaded && h.ReserveMargin < thinReserve, h.UnemploymentRate > highUnemployment:
		h.CrisisLevel = Watch
	}

	return h
}
