package weather

import (
	"encoding/json"
	"fmt"
)

// NormalRainfall30 is the expected rain over 30 days in inches.
const NormalRainfall30 = 3.0

// DroughtLevel buckets the drought index.
type DroughtLevel uint8

const (
	DroughtNone DroughtLevel = iota
	DroughtModerate
	DroughtSevere
	DroughtExtreme
)

var droughtNames = []string{"None", "Moderate", "Severe", "Extreme"}

func (l DroughtLevel) String() string { return droughtNames[min(int(l), len(droughtNames)-1)] }

func (l DroughtLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *DroughtLevel) UnmarshalText(b []byte) error {
	for i, n := range droughtNames {
		if n == string(b) {
			*l = DroughtLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown drought level %q", b)
}

// DroughtState tracks rainfall deficit.
type DroughtState struct {
	Index float32      `json:"index"` // 0 wet … 1 bone dry
	Level DroughtLevel `json:"level"`
	Days  uint32       `json:"days"` // consecutive days at Moderate or worse
}

// UpdateDrought recomputes the index from the 30-day rainfall total.
func UpdateDrought(d *DroughtState, rainfall30 float32, newDay bool) {
	d.Index = min(max(1-rainfall30/NormalRainfall30, 0), 1)
	switch {
	case d.Index >= 0.9:
		d.Level = DroughtExtreme
	case d.Index >= 0.75:
		d.Level = DroughtSevere
	case d.Index >= 0.5:
		d.Level = DroughtModerate
	default:
		d.Level = DroughtNone
	}
	if !newDay {
		return
	}
	if d.Level >= DroughtModerate {
		d.Days++
	} else {
		d.Days = 0
	}
}

// WaterDemandMultiplier raises consumption during drought.
func (d *DroughtState) WaterDemandMultiplier() float32 {
	return 1 + 0.3*d.Index
}

func (d *DroughtState) SaveKey() string { return "drought" }

func (d *DroughtState) SaveBytes() ([]byte, bool) {
	if *d == (DroughtState{}) {
		return nil, false
	}
	b, err := json.Marshal(d)
	return b, err == nil
}

func (d *DroughtState) LoadBytes(b []byte) error {
	var v DroughtState
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = v
	return nil
}
