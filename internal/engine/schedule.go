package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Stage is one phase of a tick. Stages run in declaration order.
type Stage uint8

const (
	StageInput Stage = iota
	StageClock
	StagePropagation
	StageSimulation
	StageStats
	StageOutput
	stageCount
)

var stageNames = [...]string{"input", "clock", "propagation", "simulation", "stats", "output"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", s)
}

// Guard decides whether a system runs this tick.
type Guard func(s *Simulation) bool

// System is one unit of per-tick work.
type System struct {
	Name  string
	Stage Stage
	After []string // systems that must run first
	Guard Guard    // nil means every tick
	Run   func(s *Simulation)
}

// ── Guards ──────────────────────────────────────────────────────────

// EveryN runs on ticks divisible by n.
func EveryN(n uint64) Guard {
	if n == 0 {
		n = 1
	}
	return func(s *Simulation) bool { return s.Clock.Tick%n == 0 }
}

// SlowTick runs on the simulation's slow cadence.
func SlowTick(s *Simulation) bool {
	return s.Clock.Tick%s.slowTick == 0
}

// NewHour runs on the tick that crosses an hour boundary.
func NewHour(s *Simulation) bool { return s.Clock.NewHour() }

// NewDay runs on the tick that crosses midnight.
func NewDay(s *Simulation) bool { return s.Clock.NewDay() }

// InState runs only while the simulation is in st.
func InState(st State) Guard {
	return func(s *Simulation) bool { return s.State == st }
}

// Idle runs unless a save or load is in progress.
func Idle(s *Simulation) bool { return s.State != StateLoading }

// All combines guards; every one must pass.
func All(gs ...Guard) Guard {
	return func(s *Simulation) bool {
		for _, g := range gs {
			if g != nil && !g(s) {
				return false
			}
		}
		return true
	}
}

// ── Ordering ────────────────────────────────────────────────────────

var (
	ErrScheduleCycle   = errors.New("schedule has a dependency cycle")
	ErrUnknownSystem   = errors.New("unknown system")
	ErrDuplicateSystem = errors.New("duplicate system")
	ErrStageOrder      = errors.New("system depends on a later stage")
)

// Schedule is the ordered list of systems for one tick.
type Schedule struct {
	Systems []System
}

// NewSchedule orders systems by stage, then by After constraints inside
// each stage. Among systems with no constraint between them, registration
// order wins, so the result is stable.
func NewSchedule(systems []System) (*Schedule, error) {
	index := make(map[string]int, len(systems))
	for i, sys := range systems {
		if _, dup := index[sys.Name]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateSystem, sys.Name)
		}
		if sys.Stage >= stageCount {
			return nil, fmt.Errorf("system %q: invalid stage %d", sys.Name, sys.Stage)
		}
		index[sys.Name] = i
	}

	// Edges only run within a stage; a dependency on an earlier stage is
	// already satisfied by stage order.
	indeg := make([]int, len(systems))
	succ := make([][]int, len(systems))
	for i, sys := range systems {
		for _, dep := range sys.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("system %q after %q: %w", sys.Name, dep, ErrUnknownSystem)
			}
			switch {
			case systems[j].Stage > sys.Stage:
				return nil, fmt.Errorf("system %q (%s) after %q (%s): %w",
					sys.Name, sys.Stage, dep, systems[j].Stage, ErrStageOrder)
			case systems[j].Stage == sys.Stage:
				succ[j] = append(succ[j], i)
				indeg[i]++
			}
		}
	}

	out := make([]System, 0, len(systems))
	for st := Stage(0); st < stageCount; st++ {
		// Kahn's algorithm, always taking the lowest registration index.
		var ready []int
		total := 0
		for i, sys := range systems {
			if sys.Stage != st {
				continue
			}
			total++
			if indeg[i] == 0 {
				ready = append(ready, i)
			}
		}
		placed := 0
		for len(ready) > 0 {
			best := 0
			for k := range ready {
				if ready[k] < ready[best] {
					best = k
				}
			}
			i := ready[best]
			ready = append(ready[:best], ready[best+1:]...)
			out = append(out, systems[i])
			placed++
			for _, j := range succ[i] {
				indeg[j]--
				if indeg[j] == 0 {
					ready = append(ready, j)
				}
			}
		}
		if placed != total {
			var stuck []string
			for i, sys := range systems {
				if sys.Stage == st && indeg[i] > 0 {
					stuck = append(stuck, sys.Name)
				}
			}
			return nil, fmt.Errorf("%w in %s stage: %s", ErrScheduleCycle, st, strings.Join(stuck, ", "))
		}
	}
	return &Schedule{Systems: out}, nil
}

// Names lists systems in run order.
func (sc *Schedule) Names() []string {
	out := make([]string, len(sc.Systems))
	for i, sys := range sc.Systems {
		out[i] = sys.Name
	}
	return out
}
