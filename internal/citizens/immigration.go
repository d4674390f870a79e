package citizens

import (
	"math/rand/v2"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/entropy"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// Immigration tuning.
const (
	MaxArrivalsPerPass = 10
	ArrivalRate        = 0.05 // share of free housing filled per pass at full attractiveness
	WorkingAgeMin      = 18
	WorkingAgeMax      = 65
)

// salaryByEducation is the monthly salary for each education level.
var salaryByEducation = [...]float32{1800, 2600, 3600, 5200}

// Attractiveness scores how appealing the city is to newcomers, 0..100.
// Happy residents and open jobs pull people in; housing stress pushes them
// away.
func Attractiveness(avgHappiness float32, population int, jobVacancy, affordabilityPenalty float32) float32 {
	if population == 0 {
		avgHappiness = 60
	}
	score := 0.6*avgHappiness + 40*jobVacancy - affordabilityPenalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ImmigrationInput bundles what an arrival pass reads.
type ImmigrationInput struct {
	Grid           *world.Grid
	Attractiveness float32
	Seed           uint64
	Tick           uint64
}

// Immigrate moves newcomers into free housing. Homes are filled in entity
// order; the number of arrivals scales with free capacity and
// attractiveness. Returns the new citizens.
func Immigrate(w *ecs.World, s *Stores, b *zoning.Buildings, in ImmigrationInput) []ecs.Entity {
	var free uint32
	homes := b.Building.Entities()
	for _, e := range homes {
		bl, _ := b.Building.Get(e)
		if bl.Zone.IsResidential() && !b.Construction.Has(e) {
			free += bl.Free()
		}
	}
	if free == 0 || in.Attractiveness <= 0 {
		return nil
	}
	n := int(float32(free) * ArrivalRate * in.Attractiveness / 100)
	if n == 0 && in.Attractiveness >= 50 {
		n = 1
	}
	n = min(n, MaxArrivalsPerPass)

	rng := entropy.NewSource(in.Seed).Stream("immigration", in.Tick)
	var arrived []ecs.Entity
	for _, h := range homes {
		if len(arrived) >= n {
			break
		}
		if b.Construction.Has(h) {
			continue
		}
		bl := b.Building.Mut(h)
		for bl.Zone.IsResidential() && bl.Free() > 0 && len(arrived) < n {
			e := w.Spawn()
			s.attach(e, newcomer(rng, h, bl))
			bl.Occupants++
			arrived = append(arrived, e)
		}
	}
	return arrived
}

func newcomer(rng *rand.Rand, home ecs.Entity, bl *component.Building) Record {
	edu := uint8(rng.IntN(4))
	return Record{
		Position: cellCenter(bl.GridX, bl.GridY),
		Home:     component.HomeLocation{GridX: bl.GridX, GridY: bl.GridY, Building: home},
		Details: component.CitizenDetails{
			Age:       uint8(WorkingAgeMin + rng.IntN(40)),
			Gender:    component.Gender(rng.IntN(2)),
			Education: edu,
			Happiness: 60,
			Health:    80 + float32(rng.IntN(21)),
			Savings:   float32(500 + rng.IntN(4500)),
		},
		State: component.AtHome,
		Personality: component.Personality{
			Ambition:    rng.Float32(),
			Sociability: rng.Float32(),
			Materialism: rng.Float32(),
			Resilience:  rng.Float32(),
		},
		Needs: component.DefaultNeeds(),
		Mode:  component.Walk,
		Tier:  component.TierLow,
	}
}

// AssignJobs gives unemployed working-age citizens a job in the first
// completed workplace with a free position.
func AssignJobs(s *Stores, b *zoning.Buildings) int {
	jobs := make([]ecs.Entity, 0)
	for _, e := range b.Building.Entities() {
		bl, _ := b.Building.Get(e)
		if bl.Zone.IsJobs() && !b.Construction.Has(e) && bl.Free() > 0 {
			jobs = append(jobs, e)
		}
	}
	hired := 0
	j := 0
	for _, e := range s.Citizen.Entities() {
		if j >= len(jobs) {
			break
		}
		if s.Work.Has(e) {
			continue
		}
		d := s.Details.Mut(e)
		if d == nil || d.Age < WorkingAgeMin || d.Age > WorkingAgeMax {
			continue
		}
		job := b.Building.Mut(jobs[j])
		s.Work.Set(e, component.WorkLocation{GridX: job.GridX, GridY: job.GridY, Building: jobs[j]})
		d.Salary = salaryByEducation[min(int(d.Education), len(salaryByEducation)-1)]
		job.Occupants++
		hired++
		if job.Free() == 0 {
			j++
		}
	}
	return hired
}

// Release frees the home and job a citizen holds and despawns them.
func Release(w *ecs.World, s *Stores, b *zoning.Buildings, e ecs.Entity) {
	if h, ok := s.Home.Get(e); ok {
		if bl := b.Building.Mut(h.Building); bl != nil && bl.Occupants > 0 {
			bl.Occupants--
		}
	}
	if wl, ok := s.Work.Get(e); ok {
		if bl := b.Building.Mut(wl.Building); bl != nil && bl.Occupants > 0 {
			bl.Occupants--
		}
	}
	w.Despawn(e)
}

// Evict handles a building that is about to disappear: residents leave
// the city and workers lose their jobs. Returns how many residents left.
func Evict(w *ecs.World, s *Stores, b *zoning.Buildings, building ecs.Entity) int {
	left := 0
	for _, e := range s.Citizen.Entities() {
		if wl, ok := s.Work.Get(e); ok && wl.Building == building {
			s.Work.Remove(e)
			if d := s.Details.Mut(e); d != nil {
				d.Salary = 0
			}
		}
		if h, ok := s.Home.Get(e); ok && h.Building == building {
			Release(w, s, b, e)
			left++
		}
	}
	return left
}
