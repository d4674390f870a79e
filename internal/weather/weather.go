// Package weather runs the seeded seasonal weather model: hourly
// temperature, daily weather events, rainfall history, and the drought
// and reservoir state that hang off it.
package weather

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/talgya/gridcity/internal/entropy"
)

// DaysPerSeason is the length of one season in game days.
const DaysPerSeason = 90

// Season of the year.
type Season uint8

const (
	Spring Season = iota
	Summer
	Autumn
	Winter
)

var seasonNames = []string{"Spring", "Summer", "Autumn", "Winter"}

func (s Season) String() string {
	if int(s) >= len(seasonNames) {
		return fmt.Sprintf("Season(%d)", s)
	}
	return seasonNames[s]
}

func (s Season) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Season) UnmarshalText(b []byte) error {
	for i, n := range seasonNames {
		if n == string(b) {
			*s = Season(i)
			return nil
		}
	}
	return fmt.Errorf("unknown season %q", b)
}

// SeasonFromDay maps a 1-based game day to its season.
func SeasonFromDay(day uint32) Season {
	if day == 0 {
		day = 1
	}
	return Season(((day - 1) / DaysPerSeason) % 4)
}

// Condition is the sky over the city.
type Condition uint8

const (
	Sunny Condition = iota
	PartlyCloudy
	Overcast
	Rain
	HeavyRain
	Snow
	Storm
)

var conditionNames = []string{"Sunny", "PartlyCloudy", "Overcast", "Rain", "HeavyRain", "Snow", "Storm"}

func (c Condition) String() string {
	if int(c) >= len(conditionNames) {
		return fmt.Sprintf("Condition(%d)", c)
	}
	return conditionNames[c]
}

func (c Condition) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Condition) UnmarshalText(b []byte) error {
	for i, n := range conditionNames {
		if n == string(b) {
			*c = Condition(i)
			return nil
		}
	}
	return fmt.Errorf("unknown weather condition %q", b)
}

// Precipitating reports rain, snow, or storm.
func (c Condition) Precipitating() bool { return c >= Rain }

type seasonParams struct {
	tMin, tMax   float32
	precipChance float32
	snow         bool
}

var climate = [4]seasonParams{
	Spring: {8, 18, 0.35, false},
	Summer: {18, 30, 0.25, false},
	Autumn: {7, 17, 0.40, false},
	Winter: {-4, 5, 0.30, true},
}

// Weather is the current conditions plus the rainfall history.
type Weather struct {
	Season             Season      `json:"season"`
	Condition          Condition   `json:"condition"`
	Temperature        float32     `json:"temperature"`      // °C
	PrecipIntensity    float32     `json:"precip_intensity"` // inches/hour
	WindDX             float32     `json:"wind_dx"`          // cells per update
	WindDY             float32     `json:"wind_dy"`
	EventDaysRemaining uint32      `json:"event_days_remaining"`
	Extreme            bool        `json:"extreme"`        // heat wave or cold snap
	DailyRainfall      float32     `json:"daily_rainfall"` // inches today
	RainHistory        [30]float32 `json:"rain_history"`   // last 30 days, oldest first
	LastDay            uint32      `json:"last_day"`
	LastHour           uint32      `json:"last_hour"`
}

// New returns mild spring weather.
func New() Weather {
	return Weather{Season: Spring, Condition: Sunny, Temperature: 12}
}

// DiurnalFactor is 0 at the 06:00 low and 1 at the 15:00 high.
func DiurnalFactor(hour uint32) float32 {
	h := float64(hour % 24)
	if h >= 6 && h <= 15 {
		t := (h - 6) / 9
		return float32(0.5 - 0.5*math.Cos(t*math.Pi))
	}
	since := h - 15
	if h < 15 {
		since = h + 9
	}
	return float32(0.5 + 0.5*math.Cos(since/15*math.Pi))
}

// Change describes a condition or season transition.
type Change struct {
	From, To      Condition
	SeasonChanged bool
	Season        Season
	Extreme       bool
}

// Update advances the weather to (day, hour). It does nothing unless the
// hour changed. New events are rolled once per day from the seeded stream.
func (w *Weather) Update(day, hour uint32, seed uint64) (Change, bool) {
	if day == w.LastDay && hour == w.LastHour {
		return Change{}, false
	}
	old := w.Condition
	oldSeason := w.Season
	dayChanged := day != w.LastDay
	w.LastDay, w.LastHour = day, hour
	w.Season = SeasonFromDay(day)
	p := climate[w.Season]

	if dayChanged {
		w.rollRainfall()
		if w.EventDaysRemaining > 0 {
			w.EventDaysRemaining--
		}
		if w.EventDaysRemaining == 0 {
			w.rollEvent(day, seed, p)
		}
	}

	variation := float32(math.Sin(float64(day)*0.1)) * 3
	lo, hi := p.tMin+variation, p.tMax+variation
	if w.Extreme {
		if w.Season == Winter {
			lo, hi = lo-12, hi-12
		} else {
			lo, hi = lo+8, hi+8
		}
	}
	target := lo + (hi-lo)*DiurnalFactor(hour)
	w.Temperature += (target - w.Temperature) * 0.3

	w.DailyRainfall += w.PrecipIntensity

	ch := Change{From: old, To: w.Condition, SeasonChanged: oldSeason != w.Season, Season: w.Season, Extreme: w.Extreme}
	return ch, old != w.Condition || ch.SeasonChanged
}

func (w *Weather) rollEvent(day uint32, seed uint64, p seasonParams) {
	r := entropy.NewSource(seed).Stream("weather", uint64(day))
	roll := r.Float32()
	strength := r.Float32()
	w.Extreme = false
	w.WindDX = (r.Float32()*2 - 1) * 0.5
	w.WindDY = (r.Float32()*2 - 1) * 0.5

	switch {
	case roll < 0.04 && (w.Season == Summer || (w.Season == Winter && p.snow)):
		w.Condition = Sunny
		w.Extreme = true
		w.EventDaysRemaining = 3 + uint32(strength*4)
	case roll < p.precipChance:
		switch {
		case p.snow && w.Temperature < 1:
			w.Condition = Snow
		case strength > 0.9:
			w.Condition = Storm
			w.WindDX *= 3
			w.WindDY *= 3
		case strength > 0.6:
			w.Condition = HeavyRain
		default:
			w.Condition = Rain
		}
		w.EventDaysRemaining = 1 + uint32(strength*2)
	case roll < p.precipChance+0.2:
		w.Condition = Overcast
		w.EventDaysRemaining = 1
	case roll < p.precipChance+0.45:
		w.Condition = PartlyCloudy
		w.EventDaysRemaining = 1
	default:
		w.Condition = Sunny
		w.EventDaysRemaining = 1
	}
	w.PrecipIntensity = Intensity(w.Condition, w.Season, strength)
}

// Intensity is the precipitation rate in inches/hour for a condition.
// strength in [0,1) picks a point inside the condition's band.
func Intensity(c Condition, s Season, strength float32) float32 {
	seasonal := float32(1)
	switch s {
	case Summer:
		seasonal = 1.3
	case Autumn:
		seasonal = 1.1
	case Winter:
		seasonal = 0.8
	}
	switch c {
	case Rain:
		return min(max((0.1+strength*0.6)*seasonal, 0.1), 1)
	case HeavyRain:
		return min(max((1+strength)*seasonal, 1), 2.5)
	case Storm:
		return max((2+strength*1.5)*seasonal, 2)
	case Snow:
		return 0.05 + strength*0.25
	default:
		return 0
	}
}

func (w *Weather) rollRainfall() {
	copy(w.RainHistory[:], w.RainHistory[1:])
	w.RainHistory[len(w.RainHistory)-1] = w.DailyRainfall
	w.DailyRainfall = 0
}

// Rainfall30 is the total rain over the last 30 days.
func (w *Weather) Rainfall30() float32 {
	var s float32
	for _, v := range w.RainHistory {
		s += v
	}
	return s
}

// Modifiers are the effects of the current weather on the rest of the city.
type Modifiers struct {
	UtilityRange  float32 // divides utility reach; ≥ 1
	TravelPenalty float32 // multiplies travel time
	Happiness     float32 // additive happiness delta
	Description   string
}

// Modifiers maps the current weather onto simulation effects.
func (w *Weather) Modifiers() Modifiers {
	m := Modifiers{UtilityRange: 1, TravelPenalty: 1, Description: describe(w)}
	switch w.Condition {
	case Storm:
		m.UtilityRange, m.TravelPenalty, m.Happiness = 1.5, 2.0, -4
	case Snow:
		m.UtilityRange, m.TravelPenalty, m.Happiness = 1.3, 1.5, -1
	case HeavyRain:
		m.UtilityRange, m.TravelPenalty, m.Happiness = 1.2, 1.3, -2
	case Rain:
		m.TravelPenalty, m.Happiness = 1.2, -1
	case Sunny:
		m.Happiness = 1
	}
	if w.Extreme {
		m.UtilityRange = max(m.UtilityRange, 1.25)
		m.Happiness -= 3
	}
	return m
}

// Runoff converts the current precipitation into flood-model runoff units.
func (w *Weather) Runoff() float32 {
	return w.PrecipIntensity * 100
}

func describe(w *Weather) string {
	switch {
	case w.Extreme && w.Season == Winter:
		return "cold snap"
	case w.Extreme:
		return "heat wave"
	case w.Condition.Precipitating():
		return w.Condition.String()
	}
	switch w.Season {
	case Spring:
		return "mild spring weather"
	case Summer:
		return "warm summer sun"
	case Autumn:
		return "cool autumn breeze"
	default:
		return "cold winter chill"
	}
}

func (w *Weather) SaveKey() string { return "weather" }

func (w *Weather) SaveBytes() ([]byte, bool) {
	b, err := json.Marshal(w)
	return b, err == nil
}

func (w *Weather) LoadBytes(b []byte) error {
	v := New()
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*w = v
	return nil
}
