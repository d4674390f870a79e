package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/gridcity/internal/action"
)

// ErrReplayDiverged is returned when a replayed action reports a different
// result than the one recorded.
var ErrReplayDiverged = errors.New("replay diverged")

// Replay rebuilds a city from a new game and an action log: each action is
// applied after the tick it originally followed, then the city runs on to
// tick until. Records must be in tick order.
func Replay(opts Options, log []action.Record, until uint64) (*Simulation, error) {
	s, err := NewGame(opts)
	if err != nil {
		return nil, err
	}
	for i, rec := range log {
		if rec.Tick < s.Clock.Tick {
			return nil, fmt.Errorf("replay record %d at tick %d: log out of order (city at %d)", i, rec.Tick, s.Clock.Tick)
		}
		for s.Clock.Tick < rec.Tick {
			s.tick()
		}
		got := s.ApplyAction(rec.Action.Action)
		if got != rec.Result {
			return s, fmt.Errorf("%w at tick %d: %s returned %s, recorded %s",
				ErrReplayDiverged, rec.Tick, rec.Action.Action.Kind(), got, rec.Result)
		}
	}
	for s.Clock.Tick < until {
		s.tick()
	}
	slog.Info("replay complete", "actions", len(log), "tick", s.Clock.Tick, "time", s.Clock.SimTime())
	return s, nil
}
