package weather

import "encoding/json"

// Reservoir tuning. Volumes are in million gallons.
const (
	ReservoirCapacity      = 5000.0
	catchmentPerInch       = 120.0 // inflow per inch of rain
	baseEvaporation        = 2.0   // per day
	perCapitaUsePerDay     = 0.1   // thousand gallons
	ReservoirWarnLevel     = 0.3
	ReservoirCriticalLevel = 0.1
)

// ReservoirState is the city's stored raw water.
type ReservoirState struct {
	Level      float32 `json:"level"` // fraction of capacity
	InflowDay  float32 `json:"inflow_day"`
	OutflowDay float32 `json:"outflow_day"`
	DaysLow    uint32  `json:"days_low"`
}

// NewReservoir starts three-quarters full.
func NewReservoir() ReservoirState {
	return ReservoirState{Level: 0.75}
}

// UpdateReservoir applies one day of rain inflow, evaporation, and city
// consumption.
func UpdateReservoir(r *ReservoirState, rainInches float32, population uint32, demandMult float32, temperature float32) {
	in := rainInches * catchmentPerInch
	evap := float32(baseEvaporation)
	if temperature > 25 {
		evap *= 1 + (temperature-25)*0.1
	}
	out := float32(population)*perCapitaUsePerDay*demandMult/1000 + evap
	r.InflowDay, r.OutflowDay = in, out
	r.Level = min(max(r.Level+(in-out)/ReservoirCapacity, 0), 1)
	if r.Level < ReservoirWarnLevel {
		r.DaysLow++
	} else {
		r.DaysLow = 0
	}
}

// RangeScale shrinks water-source reach when the reservoir runs low.
func (r *ReservoirState) RangeScale() float32 {
	if r.Level >= 0.5 {
		return 1
	}
	return max(0.5+r.Level, 0.5)
}

// Critical reports a nearly empty reservoir.
func (r *ReservoirState) Critical() bool { return r.Level < ReservoirCriticalLevel }

func (r *ReservoirState) SaveKey() string { return "reservoir" }

func (r *ReservoirState) SaveBytes() ([]byte, bool) {
	if *r == NewReservoir() {
		return nil, false
	}
	b, err := json.Marshal(r)
	return b, err == nil
}

func (r *ReservoirState) LoadBytes(b []byte) error {
	v := NewReservoir()
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = v
	return nil
}
