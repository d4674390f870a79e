package engine

import (
	"log/slog"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"

	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/world"
	"github.com/talgya/gridcity/internal/zoning"
)

// Stats is the city-wide aggregate refreshed on the slow tick.
type Stats struct {
	Population        uint32  `json:"population"`
	Employed          uint32  `json:"employed"`
	Unemployed        uint32  `json:"unemployed"`
	AvgHappiness      float32 `json:"avg_happiness"`
	Buildings         int     `json:"buildings"`
	UnderConstruction int     `json:"under_construction"`
	Services          int     `json:"services"`
	Utilities         int     `json:"utilities"`
	RoadCells         int     `json:"road_cells"`
	PoweredCells      int     `json:"powered_cells"`
	WateredCells      int     `json:"watered_cells"`
	AvgLandValue      float64 `json:"avg_land_value"`
	MaxPollution      float64 `json:"max_pollution"`
	TotalPollution    float64 `json:"total_pollution"`
	TotalTraffic      float64 `json:"total_traffic"`
	TreeCover         float64 `json:"tree_cover"`

	Occupancy zoning.Stats `json:"occupancy"`

	// Daily counters, reset by the daily report.
	Arrivals  int `json:"arrivals"`
	Deaths    int `json:"deaths"`
	Emigrants int `json:"emigrants"`
	Completed int `json:"completed"`
}

func (s *Simulation) refreshStats() {
	st := &s.Stats
	pop := s.Citizens.Population()
	st.Population = uint32(pop)
	st.Employed = uint32(s.Citizens.Work.Len())
	st.Unemployed = 0
	if st.Population > st.Employed {
		st.Unemployed = st.Population - st.Employed
	}
	st.AvgHappiness = citizens.AverageHappiness(s.Citizens)
	st.Buildings = s.Buildings.Building.Len() - s.Buildings.Construction.Len()
	st.UnderConstruction = s.Buildings.Construction.Len()
	st.Services = s.Services.Len()
	st.Utilities = s.Utilities.Len()
	st.RoadCells = s.Roads.Len()
	st.Occupancy = zoning.CollectStats(s.Buildings, s.Roads, st.Population)

	st.PoweredCells, st.WateredCells = 0, 0
	for i := range s.Grid.Cells {
		c := &s.Grid.Cells[i]
		if c.Type == world.Water {
			continue
		}
		if c.HasPower {
			st.PoweredCells++
		}
		if c.HasWater {
			st.WateredCells++
		}
	}

	scratch := make([]float64, len(s.Grid.Cells))
	st.AvgLandValue = floats.Sum(widen(scratch, s.Layers.LandValue.Data)) / float64(max(len(scratch), 1))
	widen(scratch, s.Layers.Pollution.Data)
	st.TotalPollution = floats.Sum(scratch)
	st.MaxPollution = floats.Max(scratch)
	st.TotalTraffic = floats.Sum(widen(scratch, s.Layers.Traffic.Data))
	st.TreeCover = floats.Sum(widen(scratch, s.Layers.Trees.Data))
}

// widen copies a numeric layer into dst as float64 and returns dst.
func widen[T uint8 | uint16 | float32](dst []float64, src []T) []float64 {
	for i := range dst {
		dst[i] = 0
		if i < len(src) {
			dst[i] = float64(src[i])
		}
	}
	return dst
}

// dailyReport logs the day's summary and resets the daily counters.
func (s *Simulation) dailyReport() {
	counts := make(map[string]int)
	for _, e := range s.Journal.Since(s.reportSeq) {
		counts[e.Category]++
	}
	s.reportSeq = s.Journal.LastSeq()
	st := &s.Stats
	slog.Info("daily report",
		"tick", s.Clock.Tick,
		"time", s.Clock.SimTime(),
		"population", humanize.Comma(int64(st.Population)),
		"employed", st.Employed,
		"arrivals", st.Arrivals,
		"deaths", st.Deaths,
		"emigrants", st.Emigrants,
		"completed", st.Completed,
		"avg_happiness", humanize.FtoaWithDigits(float64(st.AvgHappiness), 1),
		"treasury", "$"+humanize.Commaf(float64(int64(s.Budget.Treasury))),
		"monthly_net", humanize.Commaf(float64(int64(s.Budget.MonthlyIncome-s.Budget.MonthlyExpenses))),
		"powered_cells", humanize.Comma(int64(st.PoweredCells)),
		"price_mwh", humanize.FtoaWithDigits(float64(s.Dispatch().ElectricityPrice), 2),
		"events_economy", counts[CatEconomy],
		"events_energy", counts[CatEnergy],
		"events_warning", counts[CatWarning],
	)
	st.Arrivals, st.Deaths, st.Emigrants, st.Completed = 0, 0, 0, 0
}

