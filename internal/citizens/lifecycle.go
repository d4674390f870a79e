package citizens

import (
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/zoning"
)

// Lifecycle tuning. Probabilities are per citizen per day.
const (
	DaysPerYear          = 360
	OldAge               = 70
	MortalityPerYearOld  = 0.0005
	FrailHealth          = 20
	FrailMortality       = 0.01
	UnhappyThreshold     = 20
	EmigrationChance     = 0.02
	HealthRecoveryPerDay = 0.5
	MaxAge               = 110
)

// LifecycleResult counts what happened in one daily pass.
type LifecycleResult struct {
	Aged      int `json:"aged"`
	Died      int `json:"died"`
	Emigrated int `json:"emigrated"`
}

// ProcessLifecycle runs the daily aging, mortality and emigration pass.
// Everyone ages a year every DaysPerYear days. Each citizen draws at most
// twice from the day's stream, in entity order.
func ProcessLifecycle(w *ecs.World, s *Stores, b *zoning.Buildings, seed uint64, day uint32) LifecycleResult {
	var res LifecycleResult
	rng := entropy.NewSource(seed).Stream("lifecycle", uint64(day))
	yearEnd := day > 0 && day%DaysPerYear == 0
	for _, e := range s.Citizen.Entities() {
		d := s.Details.Mut(e)
		if d == nil {
			continue
		}
		if yearEnd && d.Age < 255 {
			d.Age++
			res.Aged++
		}
		d.Health = clampNeed(d.Health + HealthRecoveryPerDay)

		p := 0.0
		if d.Age > OldAge {
			p += float64(d.Age-OldAge) * MortalityPerYearOld
		}
		if d.Health < FrailHealth {
			p += FrailMortality
		}
		if d.Age >= MaxAge || (p > 0 && rng.Float64() < p) {
			Release(w, s, b, e)
			res.Died++
			continue
		}
		if d.Happiness < UnhappyThreshold && rng.Float64() < EmigrationChance {
			Release(w, s, b, e)
			res.Emigrated++
		}
	}
	return res
}
