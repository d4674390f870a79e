package engine

import "fmt"

// Game time. One tick advances Speed game minutes.
const (
	MinutesPerHour = 60
	MinutesPerDay  = 1440
	DaysPerSeason  = 90
	MinSpeed       = 1
	MaxSpeed       = 3
)

// Clock is the explicit time resource. Nothing in the simulation reads the
// wall clock.
type Clock struct {
	Tick    uint64 `json:"tick"`
	Minutes uint64 `json:"minutes"` // game minutes since the city was founded
	Speed   uint8  `json:"speed"`
	Paused  bool   `json:"paused"`

	newHour bool
	newDay  bool
}

// NewClock starts at 06:00 on day 1 at normal speed.
func NewClock() Clock {
	return Clock{Minutes: 6 * MinutesPerHour, Speed: MinSpeed}
}

// ClampSpeed maps any requested speed into MinSpeed..MaxSpeed.
func ClampSpeed(s uint8) uint8 {
	return min(max(s, MinSpeed), MaxSpeed)
}

// Advance moves the clock forward one tick and records whether an hour or
// a day boundary was crossed.
func (c *Clock) Advance() {
	before := c.Minutes
	c.Tick++
	c.Minutes += uint64(ClampSpeed(c.Speed))
	c.newHour = c.Minutes/MinutesPerHour != before/MinutesPerHour
	c.newDay = c.Minutes/MinutesPerDay != before/MinutesPerDay
}

// NewHour reports whether the last Advance crossed an hour boundary.
func (c *Clock) NewHour() bool { return c.newHour }

// NewDay reports whether the last Advance crossed midnight.
func (c *Clock) NewDay() bool { return c.newDay }

// Day is the 1-based game day.
func (c *Clock) Day() uint32 { return uint32(c.Minutes/MinutesPerDay) + 1 }

// Hour is the hour of the day, 0..23.
func (c *Clock) Hour() uint32 { return uint32(c.Minutes % MinutesPerDay / MinutesPerHour) }

// HourFloat is the fractional hour of the day.
func (c *Clock) HourFloat() float32 {
	return float32(c.Minutes%MinutesPerDay) / MinutesPerHour
}

// SimTime renders the clock for logs and status lines.
func (c *Clock) SimTime() string {
	totalDays := c.Minutes / MinutesPerDay
	day := totalDays%DaysPerSeason + 1
	seasons := totalDays / DaysPerSeason
	year := seasons/4 + 1
	seasonNames := [4]string{"Spring", "Summer", "Autumn", "Winter"}
	return fmt.Sprintf("%s Day %d, %d:%02d Year %d",
		seasonNames[seasons%4], day, c.Hour(), c.Minutes%MinutesPerHour, year)
}
