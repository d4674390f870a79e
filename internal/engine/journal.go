package engine

import "log/slog"

// MaxEvents is how many events the journal keeps in memory.
const MaxEvents = 1000

// Event categories.
const (
	CatEconomy    = "economy"
	CatEnergy     = "energy"
	CatWeather    = "weather"
	CatGrowth     = "growth"
	CatPopulation = "population"
	CatAction     = "action"
	CatWarning    = "warning"
	CatFatal      = "fatal"
)

// Event is a notable occurrence in the city.
type Event struct {
	Seq         uint64 `json:"seq"`
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Journal is the typed event log systems write to. Events from earlier
// systems are visible to later ones in the same tick.
type Journal struct {
	events []Event
	seq    uint64
}

// Emit appends an event and trims the oldest beyond MaxEvents.
func (j *Journal) Emit(tick uint64, category, description string) {
	j.seq++
	j.events = append(j.events, Event{Seq: j.seq, Tick: tick, Description: description, Category: category})
	if len(j.events) > MaxEvents {
		j.events = append(j.events[:0], j.events[len(j.events)-MaxEvents:]...)
	}
	switch category {
	case CatFatal:
		slog.Error("sim event", "tick", tick, "category", category, "description", description)
	case CatWarning:
		slog.Warn("sim event", "tick", tick, "category", category, "description", description)
	default:
		slog.Debug("sim event", "tick", tick, "category", category, "description", description)
	}
}

// Len is the number of events held.
func (j *Journal) Len() int { return len(j.events) }

// LastSeq is the sequence number of the newest event ever emitted.
func (j *Journal) LastSeq() uint64 { return j.seq }

// Since returns events with Seq greater than seq, oldest first.
func (j *Journal) Since(seq uint64) []Event {
	for i, e := range j.events {
		if e.Seq > seq {
			return append([]Event(nil), j.events[i:]...)
		}
	}
	return nil
}

// Recent returns up to n of the newest events, oldest first.
func (j *Journal) Recent(n int) []Event {
	if n <= 0 || n > len(j.events) {
		n = len(j.events)
	}
	return append([]Event(nil), j.events[len(j.events)-n:]...)
}

// InTick returns the events emitted during tick.
func (j *Journal) InTick(tick uint64) []Event {
	var out []Event
	for i := len(j.events) - 1; i >= 0 && j.events[i].Tick >= tick; i-- {
		if j.events[i].Tick == tick {
			out = append(out, j.events[i])
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
