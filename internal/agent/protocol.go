// Package agent implements the headless agent protocol: newline-delimited
// JSON commands on one stream, one JSON response per command on another.
// An external program drives the city entirely through it; time moves only
// when the program sends step.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talgya/gridcity/internal/action"
	"github.com/talgya/gridcity/internal/engine"
)

// ProtocolVersion is reported in every response. Bump it when the command
// or response schema changes.
const ProtocolVersion = 1

// Command names, carried in the "cmd" field.
const (
	CmdObserve    = "observe"
	CmdAct        = "act"
	CmdBatchAct   = "batch_act"
	CmdStep       = "step"
	CmdNewGame    = "new_game"
	CmdSaveReplay = "save_replay"
	CmdLoadReplay = "load_replay"
	CmdQuery      = "query"
	CmdQuit       = "quit"
)

// Response types, carried in the "type" field.
const (
	TypeReady        = "ready"
	TypeObservation  = "observation"
	TypeActionResult = "action_result"
	TypeBatchResult  = "batch_result"
	TypeStepComplete = "step_complete"
	TypeQueryResult  = "query_result"
	TypeOK           = "ok"
	TypeError        = "error"
	TypeGoodbye      = "goodbye"
)

// Command is one line of agent input. Which fields matter depends on Cmd;
// unknown fields are ignored.
type Command struct {
	Cmd     string           `json:"cmd"`
	Action  *action.Envelope `json:"action,omitempty"`
	Actions action.List      `json:"actions,omitempty"`
	Ticks   *uint64          `json:"ticks,omitempty"`
	Seed    *uint64          `json:"seed,omitempty"`
	Path    string           `json:"path,omitempty"`
	Layers  []string         `json:"layers,omitempty"`
}

var errMissingField = errors.New("missing field")

// ParseCommand decodes and validates one input line.
func ParseCommand(line []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(line, &c); err != nil {
		return c, fmt.Errorf("parse command: %w", err)
	}
	missing := func(field string) error {
		return fmt.Errorf("%s: %w `%s`", c.Cmd, errMissingField, field)
	}
	switch c.Cmd {
	case CmdObserve, CmdQuit:
	case CmdAct:
		if c.Action == nil || c.Action.Action == nil {
			return c, missing("action")
		}
	case CmdBatchAct:
		if c.Actions == nil {
			return c, missing("actions")
		}
	case CmdStep:
		if c.Ticks == nil {
			return c, missing("ticks")
		}
	case CmdNewGame:
		if c.Seed == nil {
			return c, missing("seed")
		}
	case CmdSaveReplay, CmdLoadReplay:
		if c.Path == "" {
			return c, missing("path")
		}
	case CmdQuery:
		if c.Layers == nil {
			return c, missing("layers")
		}
	case "":
		return c, fmt.Errorf("parse command: %w `cmd`", errMissingField)
	default:
		return c, fmt.Errorf("unknown command %q", c.Cmd)
	}
	return c, nil
}

// Response is one line of agent output. Only the fields belonging to Type
// are written.
type Response struct {
	ProtocolVersion int                 `json:"protocol_version"`
	Type            string              `json:"type"`
	Observation     *engine.Observation `json:"observation,omitempty"`
	Result          *action.Result      `json:"result,omitempty"`
	Results         []action.Result     `json:"results,omitempty"`
	Tick            uint64              `json:"tick,omitempty"`
	Layers          map[string]any      `json:"layers,omitempty"`
	Message         string              `json:"message,omitempty"`
}

type header struct {
	ProtocolVersion int    `json:"protocol_version"`
	Type            string `json:"type"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	h := header{ProtocolVersion: r.ProtocolVersion, Type: r.Type}
	switch r.Type {
	case TypeObservation:
		return json.Marshal(struct {
			header
			Observation *engine.Observation `json:"observation"`
		}{h, r.Observation})
	case TypeActionResult:
		res := action.Success
		if r.Result != nil {
			res = *r.Result
		}
		return json.Marshal(struct {
			header
			Result action.Result `json:"result"`
		}{h, res})
	case TypeBatchResult:
		results := r.Results
		if results == nil {
			results = []action.Result{}
		}
		return json.Marshal(struct {
			header
			Results []action.Result `json:"results"`
		}{h, results})
	case TypeStepComplete:
		return json.Marshal(struct {
			header
			Tick uint64 `json:"tick"`
		}{h, r.Tick})
	case TypeQueryResult:
		layers := r.Layers
		if layers == nil {
			layers = map[string]any{}
		}
		return json.Marshal(struct {
			header
			Layers map[string]any `json:"layers"`
		}{h, layers})
	case TypeError:
		return json.Marshal(struct {
			header
			Message string `json:"message"`
		}{h, r.Message})
	default:
		return json.Marshal(h)
	}
}

func reply(typ string) Response {
	return Response{ProtocolVersion: ProtocolVersion, Type: typ}
}

func errorReply(err error) Response {
	r := reply(TypeError)
	r.Message = err.Error()
	return r
}
