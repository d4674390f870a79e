package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/observability"
	"github.com/talgya/gridcity/internal/persistence"
)

// MaxLineBytes bounds one command line.
const MaxLineBytes = 16 << 20

// Options configure a Session.
type Options struct {
	// Observer receives tick timings, typically a SimCollector.
	Observer engine.Observer
	// Layers serves query; nil means DefaultLayers.
	Layers *Layers
}

// Session drives one city for one agent. Ticks are strict: a tick that
// violates an invariant is rolled back and reported as an error.
type Session struct {
	ID string

	eng    *engine.Engine
	layers *Layers
	opts    engine.Options
	logger  *slog.Logger
	maxLine int
}

// NewSession takes ownership of sim.
func NewSession(sim *engine.Simulation, opts Options) *Session {
	if opts.Layers == nil {
		opts.Layers = DefaultLayers()
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		eng:    engine.NewEngine(sim, engine.EngineOptions{Strict: true, Observer: opts.Observer}),
		layers: opts.Layers,
		opts:    sim.Options(),
		logger:  slog.Default().With("session", id),
		maxLine: MaxLineBytes,
	}
}

// Engine exposes the session's engine, for tick hooks.
func (s *Session) Engine() *engine.Engine { return s.eng }

// Run answers commands from in until quit, EOF or ctx is done. It writes
// ready first. A line that fails to parse or is longer than MaxLineBytes
// gets an error response and the session continues. Cancellation is
// noticed between commands.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	send := func(r Response) error {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		return w.Flush()
	}

	s.logger.Info("agent session started", "seed", s.opts.Seed, "size", fmt.Sprintf("%dx%d", s.opts.Width, s.opts.Height))
	if err := send(reply(TypeReady)); err != nil {
		return err
	}

	r := bufio.NewReaderSize(in, 64*1024)
	commands := 0
	for {
		raw, tooLong, err := readLine(r, s.maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read commands: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if tooLong {
			commands++
			s.logger.Warn("agent command too long, skipped", "limit", s.maxLine)
			if err := send(errorReply(fmt.Errorf("command exceeds %s", humanize.IBytes(uint64(s.maxLine))))); err != nil {
				return err
			}
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		commands++

		cmd, err := ParseCommand(line)
		if err != nil {
			s.logger.Debug("agent command rejected", "error", err)
			if err := send(errorReply(err)); err != nil {
				return err
			}
			continue
		}
		resp := s.Handle(ctx, cmd)
		if err := send(resp); err != nil {
			return err
		}
		if resp.Type == TypeGoodbye {
			s.logger.Info("agent session ended", "reason", "quit", "commands", commands)
			return nil
		}
	}
	s.logger.Info("agent session ended", "reason", "eof", "commands", commands)
	return nil
}

// readLine returns the next line, newline included. A line longer than
// limit bytes is consumed and dropped, reported by tooLong. A final line
// without a newline is returned before io.EOF.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimSuffix(chunk, []byte("\n"))) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if len(line) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return line, tooLong, nil
		case rerr != nil:
			return nil, false, rerr
		}
		return line, tooLong, nil
	}
}

// Handle executes one parsed command.
func (s *Session) Handle(ctx context.Context, cmd Command) Response {
	ctx, span := observability.Tracer().Start(ctx, "agent."+cmd.Cmd,
		trace.WithAttributes(attribute.String("agent.session", s.ID)))
	defer span.End()

	start := time.Now()
	resp := s.dispatch(ctx, cmd, span)
	if resp.Type == TypeError {
		span.SetStatus(codes.Error, resp.Message)
	}
	s.logger.Debug("agent command", "cmd", cmd.Cmd, "type", resp.Type, "elapsed", time.Since(start))
	return resp
}

func (s *Session) dispatch(ctx context.Context, cmd Command, span trace.Span) Response {
	switch cmd.Cmd {
	case CmdObserve:
		var obs engine.Observation
		s.eng.Do(func(sim *engine.Simulation) { obs = sim.Observe() })
		obs.Faulted = s.eng.Faulted() != nil
		r := reply(TypeObservation)
		r.Observation = &obs
		return r

	case CmdAct:
		a := cmd.Action.Action
		span.SetAttributes(attribute.String("action.kind", a.Kind()))
		var res action.Result
		s.eng.Do(func(sim *engine.Simulation) { res = sim.ApplyAction(a) })
		r := reply(TypeActionResult)
		r.Result = &res
		return r

	case CmdBatchAct:
		span.SetAttributes(attribute.Int("action.count", len(cmd.Actions)))
		results, committed, err := s.eng.ApplyBatch(cmd.Actions)
		if err != nil {
			span.RecordError(err)
			return errorReply(err)
		}
		span.SetAttributes(attribute.Bool("batch.committed", committed))
		r := reply(TypeBatchResult)
		r.Results = results
		return r

	case CmdStep:
		span.SetAttributes(attribute.Int64("step.ticks", int64(*cmd.Ticks)))
		tick, err := s.eng.StepN(*cmd.Ticks)
		if err != nil {
			span.RecordError(err)
			return errorReply(fmt.Errorf("step stopped at tick %d: %w", tick, err))
		}
		r := reply(TypeStepComplete)
		r.Tick = tick
		return r

	case CmdNewGame:
		opts := s.opts
		opts.Seed = *cmd.Seed
		span.SetAttributes(attribute.Int64("game.seed", int64(opts.Seed)))
		sim, err := engine.NewGame(opts)
		if err != nil {
			return errorReply(fmt.Errorf("new game: %w", err))
		}
		s.eng.Replace(sim)
		s.opts = sim.Options()
		return reply(TypeOK)

	case CmdSaveReplay:
		return s.saveReplay(ctx, cmd.Path)

	case CmdLoadReplay:
		return s.loadReplay(ctx, cmd.Path)

	case CmdQuery:
		var layers map[string]any
		var err error
		s.eng.Do(func(sim *engine.Simulation) { layers, err = s.layers.Render(sim, cmd.Layers) })
		if err != nil {
			return errorReply(err)
		}
		r := reply(TypeQueryResult)
		r.Layers = layers
		return r

	case CmdQuit:
		return reply(TypeGoodbye)
	}
	return errorReply(fmt.Errorf("unknown command %q", cmd.Cmd))
}

func (s *Session) saveReplay(ctx context.Context, path string) Response {
	_, span := observability.Tracer().Start(ctx, "replay.save", trace.WithAttributes(attribute.String("replay.path", path)))
	defer span.End()

	var r persistence.Replay
	s.eng.Do(func(sim *engine.Simulation) { r = persistence.RecordReplay(sim) })
	if err := persistence.WriteReplay(path, r); err != nil {
		span.RecordError(err)
		return errorReply(err)
	}
	span.SetAttributes(attribute.Int("replay.actions", len(r.Records)), attribute.Int64("replay.tick", int64(r.FinalTick)))
	return reply(TypeOK)
}

func (s *Session) loadReplay(ctx context.Context, path string) Response {
	_, span := observability.Tracer().Start(ctx, "replay.load", trace.WithAttributes(attribute.String("replay.path", path)))
	defer span.End()

	r, err := persistence.ReadReplay(path)
	if err != nil {
		span.RecordError(err)
		return errorReply(err)
	}
	sim, err := r.Rebuild()
	if err != nil {
		span.RecordError(err)
		return errorReply(fmt.Errorf("load replay %s: %w", path, err))
	}
	s.eng.Replace(sim)
	s.opts = sim.Options()
	span.SetAttributes(attribute.Int64("replay.tick", int64(sim.Clock.Tick)))
	return reply(TypeOK)
}
