package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/world"
)

// DefaultTickRate is the interactive loop rate in ticks per second.
const DefaultTickRate = 30

// ErrFaulted is returned by Step after an invariant violation in a
// non-strict engine.
var ErrFaulted = errors.New("engine faulted")

// InvariantViolation is raised (as a panic) by a system that finds the
// city in a state it must never reach. Step recovers it.
type InvariantViolation struct {
	System string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", v.System, v.Detail)
}

// Observer receives timing callbacks from the tick loop.
type Observer interface {
	ObserveTick(tick uint64, elapsed time.Duration)
	// ObserveSystem is called before a system runs; the returned func is
	// called once it finishes.
	ObserveSystem(stage Stage, name string) func()
}

// Engine owns a Simulation and drives it, either at a fixed rate (Run) or
// on demand (Step). All access to the simulation goes through the engine's
// lock.
type Engine struct {
	mu       sync.Mutex
	sim      *Simulation
	rate     int
	strict   bool
	faulted  error
	observer Observer
	hooks    []func(*Simulation)

	stop     chan struct{}
	stopOnce sync.Once
}

// EngineOptions configure an Engine.
type EngineOptions struct {
	TickRate int // ticks per second for Run; 0 means DefaultTickRate
	// Strict checkpoints the city before every tick and rolls back to it
	// when a tick violates an invariant.
	Strict   bool
	Observer Observer
}

// NewEngine wraps sim.
func NewEngine(sim *Simulation, opts EngineOptions) *Engine {
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	e := &Engine{
		sim:      sim,
		rate:     opts.TickRate,
		strict:   opts.Strict,
		observer: opts.Observer,
		stop:     make(chan struct{}),
	}
	sim.observer = opts.Observer
	return e
}

// OnTick registers fn to run after every completed tick, under the lock.
func (e *Engine) OnTick(fn func(*Simulation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Do runs fn with exclusive access to the simulation.
func (e *Engine) Do(fn func(*Simulation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.sim)
}

// Replace swaps in a different simulation, for new_game and loads.
func (e *Engine) Replace(sim *Simulation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sim.observer = e.observer
	e.sim = sim
	e.faulted = nil
}

// Faulted returns the violation that stopped a non-strict engine.
func (e *Engine) Faulted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.faulted
}

// Step runs exactly one tick, regardless of the pause flag.
func (e *Engine) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepLocked()
}

// StepN runs n ticks back to back and returns the tick reached. It stops
// early on the first error.
func (e *Engine) StepN(n uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := uint64(0); i < n; i++ {
		if err := e.stepLocked(); err != nil {
			return e.sim.Clock.Tick, err
		}
	}
	return e.sim.Clock.Tick, nil
}

func (e *Engine) stepLocked() (err error) {
	if e.faulted != nil {
		return e.faulted
	}
	sim := e.sim
	var checkpoint []byte
	if e.strict {
		checkpoint = sim.Save()
	}

	start := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var v *InvariantViolation
		switch p := r.(type) {
		case *InvariantViolation:
			v = p
		case runtime.Error:
			// A corrupt state that slipped past validation.
			v = &InvariantViolation{System: sim.running, Detail: p.Error()}
		default:
			panic(r)
		}
		err = e.recoverLocked(v, checkpoint)
	}()

	sim.tick()

	if e.observer != nil {
		e.observer.ObserveTick(sim.Clock.Tick, time.Since(start))
	}
	for _, h := range e.hooks {
		h(sim)
	}
	return nil
}

// recoverLocked handles a violation: strict engines restore the tick-start
// checkpoint, others stop.
func (e *Engine) recoverLocked(v *InvariantViolation, checkpoint []byte) error {
	failed := e.sim
	if checkpoint == nil {
		failed.emit(CatFatal, "%s", v.Error())
		e.faulted = fmt.Errorf("%w: %w", ErrFaulted, v)
		return e.faulted
	}
	restored, err := Restore(checkpoint, failed.Options())
	if err != nil {
		failed.emit(CatFatal, "%s; rollback failed: %v", v.Error(), err)
		e.faulted = fmt.Errorf("%w: %w", ErrFaulted, v)
		return e.faulted
	}
	restored.Journal = failed.Journal
	restored.ActionLog = failed.ActionLog
	restored.observer = e.observer
	e.sim = restored
	restored.emit(CatFatal, "%s; rolled back to tick %d", v.Error(), restored.Clock.Tick)
	return v
}

// Reasons reported for the actions of a batch that did not stick.
const (
	ReasonRolledBack = "rolled back: a later action in the batch failed"
	ReasonSkipped    = "skipped: an earlier action in the batch failed"
)

// ApplyBatch applies actions in order as one unit. When an action fails,
// the city returns to its state before the batch and the rest are
// skipped; ok is false and every result says why it did not apply.
func (e *Engine) ApplyBatch(actions []action.GameAction) (results []action.Result, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sim := e.sim
	checkpoint := sim.Save()
	logLen := len(sim.ActionLog)

	results = make([]action.Result, len(actions))
	failed := -1
	for i, a := range actions {
		results[i] = sim.ApplyAction(a)
		if !results[i].OK() {
			failed = i
			break
		}
	}
	if failed < 0 {
		return results, true, nil
	}

	for i := range results {
		switch {
		case i < failed:
			results[i] = action.Fail(ReasonRolledBack)
		case i > failed:
			results[i] = action.Fail(ReasonSkipped)
		}
	}
	restored, err := Restore(checkpoint, sim.Options())
	if err != nil {
		return results, false, fmt.Errorf("roll back batch: %w", err)
	}
	restored.Journal = sim.Journal
	restored.ActionLog = sim.ActionLog[:logLen]
	restored.observer = e.observer
	e.sim = restored
	restored.emit(CatAction, "batch of %d rolled back: %s failed (%s)",
		len(actions), actions[failed].Kind(), results[failed].Failure)
	return results, false, nil
}

// Run ticks at the configured rate until ctx is cancelled or Stop is
// called. Paused cities skip ticks. A tick in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.rate))
	defer ticker.Stop()

	e.Do(func(s *Simulation) {
		slog.Info("simulation engine started", "tick", s.Clock.Tick, "rate", e.rate, "time", s.Clock.SimTime())
	})
	defer e.Do(func(s *Simulation) {
		slog.Info("simulation engine stopped", "tick", s.Clock.Tick, "time", s.Clock.SimTime())
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
			e.mu.Lock()
			var err error
			if !e.sim.Clock.Paused {
				err = e.stepLocked()
			}
			e.mu.Unlock()
			var v *InvariantViolation
			if errors.As(err, &v) && !errors.Is(err, ErrFaulted) {
				// Rolled back; keep running.
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}

// Stop asks Run to return after the current tick.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// ── Invariants ──────────────────────────────────────────────────────

// checkInvariants verifies the grid mirrors the road network.
func (s *Simulation) checkInvariants() {
	g := s.Grid
	for i := range g.Cells {
		c := &g.Cells[i]
		x, y := g.Coords(i)
		rt, isRoad := s.Roads.RoadType(x, y)
		if (c.Type == world.Road) != isRoad {
			panic(&InvariantViolation{
				System: "check_invariants",
				Detail: fmt.Sprintf("cell (%d,%d) has type %s but the road network says road=%t", x, y, c.Type, isRoad),
			})
		}
		if isRoad && c.RoadType != rt {
			panic(&InvariantViolation{
				System: "check_invariants",
				Detail: fmt.Sprintf("cell (%d,%d) road type %s, network has %s", x, y, c.RoadType, rt),
			})
		}
	}
}
