// Package action defines the commands that mutate a running city and the
// result each one reports. Actions travel as externally tagged JSON, for
// example {"PlaceRoad":{"x":3,"y":4,"road_type":"Avenue"}}.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// GameAction is one player or agent command.
type GameAction interface {
	// Kind is the JSON tag the action travels under.
	Kind() string
}

type SetPaused struct {
	Paused bool `json:"paused"`
}

type SetSpeed struct {
	Speed uint8 `json:"speed"` // clamped to 1..3
}

type SetTaxRate struct {
	Rate float32 `json:"rate"` // clamped to [0, 0.25]
}

// PlaceRoad places one road cell. Direction is required for OneWay roads.
type PlaceRoad struct {
	X         uint32           `json:"x"`
	Y         uint32           `json:"y"`
	RoadType  world.RoadType   `json:"road_type"`
	Direction *world.Direction `json:"direction,omitempty"`
}

type BulldozeCell struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// PaintZone zones every road-adjacent grass cell in the inclusive
// rectangle. Corners may be given in either order.
type PaintZone struct {
	X0   uint32         `json:"x0"`
	Y0   uint32         `json:"y0"`
	X1   uint32         `json:"x1"`
	Y1   uint32         `json:"y1"`
	Zone world.ZoneType `json:"zone"`
}

type PlaceService struct {
	X           uint32                `json:"x"`
	Y           uint32                `json:"y"`
	ServiceType component.ServiceType `json:"service_type"`
}

type PlaceUtility struct {
	X           uint32                `json:"x"`
	Y           uint32                `json:"y"`
	UtilityType component.UtilityType `json:"utility_type"`
}

type TakeLoan struct {
	Tier economy.LoanTier `json:"tier"`
}

type TogglePolicy struct {
	Policy economy.Policy `json:"policy"`
}

// DismissAdvice hides an advisor tip until the session restores it.
type DismissAdvice struct {
	TipID string `json:"tip_id"`
}

func (SetPaused) Kind() string     { return "SetPaused" }
func (SetSpeed) Kind() string      { return "SetSpeed" }
func (SetTaxRate) Kind() string    { return "SetTaxRate" }
func (PlaceRoad) Kind() string     { return "PlaceRoad" }
func (BulldozeCell) Kind() string  { return "BulldozeCell" }
func (PaintZone) Kind() string     { return "PaintZone" }
func (PlaceService) Kind() string  { return "PlaceService" }
func (PlaceUtility) Kind() string  { return "PlaceUtility" }
func (TakeLoan) Kind() string      { return "TakeLoan" }
func (TogglePolicy) Kind() string  { return "TogglePolicy" }
func (DismissAdvice) Kind() string { return "DismissAdvice" }

var registry = map[string]func() GameAction{
	"SetPaused":     func() GameAction { return &SetPaused{} },
	"SetSpeed":      func() GameAction { return &SetSpeed{} },
	"SetTaxRate":    func() GameAction { return &SetTaxRate{} },
	"PlaceRoad":     func() GameAction { return &PlaceRoad{} },
	"BulldozeCell":  func() GameAction { return &BulldozeCell{} },
	"PaintZone":     func() GameAction { return &PaintZone{} },
	"PlaceService":  func() GameAction { return &PlaceService{} },
	"PlaceUtility":  func() GameAction { return &PlaceUtility{} },
	"TakeLoan":      func() GameAction { return &TakeLoan{} },
	"TogglePolicy":  func() GameAction { return &TogglePolicy{} },
	"DismissAdvice": func() GameAction { return &DismissAdvice{} },
}

// Kinds lists every known action tag in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ErrUnknownAction is returned when the tag names no action.
var ErrUnknownAction = errors.New("unknown action")

// Decode parses one externally tagged action.
func Decode(data []byte) (GameAction, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("decode action: want exactly one tag, got %d", len(tagged))
	}
	for tag, body := range tagged {
		mk, ok := registry[tag]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownAction, tag)
		}
		a := mk()
		if len(bytes.TrimSpace(body)) > 0 && !bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			if err := json.Unmarshal(body, a); err != nil {
				return nil, fmt.Errorf("decode %s: %w", tag, err)
			}
		}
		return deref(a), nil
	}
	return nil, nil
}

// deref returns the value form so callers can type-switch on plain structs.
func deref(a GameAction) GameAction {
	switch v := a.(type) {
	case *SetPaused:
		return *v
	case *SetSpeed:
		return *v
	case *SetTaxRate:
		return *v
	case *PlaceRoad:
		return *v
	case *BulldozeCell:
		return *v
	case *PaintZone:
		return *v
	case *PlaceService:
		return *v
	case *PlaceUtility:
		return *v
	case *TakeLoan:
		return *v
	case *TogglePolicy:
		return *v
	case *DismissAdvice:
		return *v
	}
	return a
}

// Encode writes a as {"Kind":{...}}.
func Encode(a GameAction) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	return json.Marshal(map[string]json.RawMessage{a.Kind(): body})
}

// List is a JSON array of tagged actions.
type List []GameAction

func (l List) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(l))
	for i, a := range l {
		b, err := Encode(a)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(raw)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode action list: %w", err)
	}
	out := make(List, 0, len(raw))
	for i, r := range raw {
		a, err := Decode(r)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	*l = out
	return nil
}

// Envelope carries a single action inside another JSON document.
type Envelope struct {
	Action GameAction
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Action == nil {
		return []byte("null"), nil
	}
	return Encode(e.Action)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	a, err := Decode(data)
	if err != nil {
		return err
	}
	e.Action = a
	return nil
}
