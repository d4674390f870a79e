package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/world"
)

// wire is a client-side view of a response line.
type wire struct {
	ProtocolVersion int    `json:"protocol_version"`
	Type            string `json:"type"`
	Observation     struct {
		Tick   uint64 `json:"tick"`
		Paused bool   `json:"paused"`
		Speed  uint8  `json:"speed"`
		Stats  struct {
			RoadCells int `json:"road_cells"`
		} `json:"stats"`
	} `json:"observation"`
	Result  json.RawMessage            `json:"result"`
	Results []json.RawMessage          `json:"results"`
	Tick    uint64                     `json:"tick"`
	Layers  map[string]json.RawMessage `json:"layers"`
	Message string                     `json:"message"`
}

func newSession(t *testing.T) *Session {
	t.Helper()
	sim, err := engine.NewGame(engine.Options{Width: 24, Height: 24, Seed: 7, Treasury: 200_000})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return NewSession(sim, Options{})
}

// script feeds lines to a session and returns the raw response lines.
func script(t *testing.T, s *Session, lines ...string) []string {
	t.Helper()
	var out strings.Builder
	if err := s.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
}

func decode(t *testing.T, lines []string) []wire {
	t.Helper()
	out := make([]wire, len(lines))
	for i, l := range lines {
		if err := json.Unmarshal([]byte(l), &out[i]); err != nil {
			t.Fatalf("response %d %q: %v", i, l, err)
		}
		if out[i].ProtocolVersion != ProtocolVersion {
			t.Errorf("response %d protocol_version = %d", i, out[i].ProtocolVersion)
		}
	}
	return out
}

func TestParseCommand(t *testing.T) {
	valid := []string{
		`{"cmd":"observe"}`,
		`{"cmd":"act","action":{"SetPaused":{"paused":true}}}`,
		`{"cmd":"batch_act","actions":[{"SetSpeed":{"speed":2}},{"SetPaused":{"paused":false}}]}`,
		`{"cmd":"batch_act","actions":[]}`,
		`{"cmd":"step","ticks":0}`,
		`{"cmd":"new_game","seed":42}`,
		`{"cmd":"save_replay","path":"/tmp/replay.db"}`,
		`{"cmd":"load_replay","path":"/tmp/replay.db"}`,
		`{"cmd":"query","layers":[]}`,
		`{"cmd":"quit","extra":true}`,
	}
	for _, in := range valid {
		if _, err := ParseCommand([]byte(in)); err != nil {
			t.Errorf("ParseCommand(%s): %v", in, err)
		}
	}

	invalid := []struct {
		in   string
		want string
	}{
		{`not json`, "parse command"},
		{`{}`, "cmd"},
		{`{"cmd":"fly"}`, `unknown command "fly"`},
		{`{"cmd":"step"}`, "ticks"},
		{`{"cmd":"new_game"}`, "seed"},
		{`{"cmd":"act"}`, "action"},
		{`{"cmd":"act","action":{"Teleport":{}}}`, "unknown action"},
		{`{"cmd":"save_replay"}`, "path"},
		{`{"cmd":"query"}`, "layers"},
	}
	for _, tt := range invalid {
		_, err := ParseCommand([]byte(tt.in))
		if err == nil {
			t.Errorf("ParseCommand(%s) succeeded", tt.in)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ParseCommand(%s) = %v, want mention of %q", tt.in, err, tt.want)
		}
	}
}

func TestParseCommandFields(t *testing.T) {
	c, err := ParseCommand([]byte(`{"cmd":"batch_act","actions":[{"SetSpeed":{"speed":2}},{"SetPaused":{"paused":false}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Actions) != 2 || c.Actions[0].Kind() != "SetSpeed" {
		t.Errorf("actions = %v", c.Actions)
	}
	c, _ = ParseCommand([]byte(`{"cmd":"query","layers":["overview","stats"]}`))
	if strings.Join(c.Layers, ",") != "overview,stats" {
		t.Errorf("layers = %v", c.Layers)
	}
	c, _ = ParseCommand([]byte(`{"cmd":"step","ticks":100}`))
	if *c.Ticks != 100 {
		t.Errorf("ticks = %d", *c.Ticks)
	}
}

func TestResponseWireFormat(t *testing.T) {
	tests := []struct {
		resp Response
		want string
	}{
		{reply(TypeReady), `{"protocol_version":1,"type":"ready"}`},
		{reply(TypeGoodbye), `{"protocol_version":1,"type":"goodbye"}`},
		{Response{ProtocolVersion: 1, Type: TypeStepComplete}, `{"protocol_version":1,"type":"step_complete","tick":0}`},
		{Response{ProtocolVersion: 1, Type: TypeStepComplete, Tick: 10, Message: "ignored"}, `{"protocol_version":1,"type":"step_complete","tick":10}`},
		{reply(TypeBatchResult), `{"protocol_version":1,"type":"batch_result","results":[]}`},
		{reply(TypeQueryResult), `{"protocol_version":1,"type":"query_result","layers":{}}`},
		{reply(TypeActionResult), `{"protocol_version":1,"type":"action_result","result":"Success"}`},
		{errorReply(errors.New("boom")), `{"protocol_version":1,"type":"error","message":"boom"}`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.resp)
		if err != nil {
			t.Fatalf("Marshal(%+v): %v", tt.resp, err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal = %s, want %s", got, tt.want)
		}
	}
}

func TestSessionConversation(t *testing.T) {
	s := newSession(t)
	lines := script(t, s,
		`{"cmd":"observe"}`,
		`this is not json`,
		``,
		`{"cmd":"fly"}`,
		`{"cmd":"step","ticks":10}`,
		`{"cmd":"act","action":{"PlaceRoad":{"x":3,"y":4,"road_type":"Local"}}}`,
		`{"cmd":"act","action":{"PlaceRoad":{"x":300,"y":4,"road_type":"Local"}}}`,
		`{"cmd":"query","layers":["overview","stats"]}`,
		`{"cmd":"query","layers":["nope"]}`,
		`{"cmd":"quit"}`,
		`{"cmd":"observe"}`,
	)
	if len(lines) != 10 {
		t.Fatalf("got %d responses, want 10:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	r := decode(t, lines)

	wantTypes := []string{
		TypeReady, TypeObservation, TypeError, TypeError, TypeStepComplete,
		TypeActionResult, TypeActionResult, TypeQueryResult, TypeError, TypeGoodbye,
	}
	for i, want := range wantTypes {
		if r[i].Type != want {
			t.Errorf("response %d type = %q, want %q", i, r[i].Type, want)
		}
	}
	if r[1].Observation.Tick != 0 {
		t.Errorf("first observation at tick %d", r[1].Observation.Tick)
	}
	if lines[4] != `{"protocol_version":1,"type":"step_complete","tick":10}` {
		t.Errorf("step response = %s", lines[4])
	}
	if string(r[5].Result) != `"Success"` {
		t.Errorf("road result = %s", r[5].Result)
	}
	if !strings.Contains(string(r[6].Result), "Failure") {
		t.Errorf("out-of-bounds road result = %s", r[6].Result)
	}
	if _, ok := r[7].Layers["overview"]; !ok {
		t.Errorf("query missing overview: %v", r[7].Layers)
	}
	var overview string
	if err := json.Unmarshal(r[7].Layers["overview"], &overview); err != nil || !strings.Contains(overview, "#") {
		t.Errorf("overview layer does not show the road: %v %q", err, overview)
	}
	if !strings.Contains(r[8].Message, "nope") {
		t.Errorf("unknown layer message = %q", r[8].Message)
	}
}

func TestStepIgnoresPause(t *testing.T) {
	s := newSession(t)
	r := decode(t, script(t, s,
		`{"cmd":"act","action":{"SetPaused":{"paused":true}}}`,
		`{"cmd":"step","ticks":5}`,
		`{"cmd":"observe"}`,
	))
	if r[2].Tick != 5 {
		t.Errorf("step while paused reached tick %d, want 5", r[2].Tick)
	}
	if !r[3].Observation.Paused || r[3].Observation.Tick != 5 {
		t.Errorf("observation = %+v", r[3].Observation)
	}
}

func TestBatchActIsAtomic(t *testing.T) {
	s := newSession(t)
	r := decode(t, script(t, s,
		`{"cmd":"batch_act","actions":[{"PlaceRoad":{"x":2,"y":2,"road_type":"Local"}},{"SetSpeed":{"speed":3}}]}`,
		`{"cmd":"batch_act","actions":[{"PlaceRoad":{"x":3,"y":2,"road_type":"Local"}},{"BulldozeCell":{"x":999,"y":0}}]}`,
		`{"cmd":"observe"}`,
	))
	if len(r[1].Results) != 2 || string(r[1].Results[0]) != `"Success"` {
		t.Errorf("committed batch results = %s", r[1].Results)
	}
	if len(r[2].Results) != 2 {
		t.Fatalf("rolled-back batch results = %s", r[2].Results)
	}
	if !strings.Contains(string(r[2].Results[0]), "rolled back") {
		t.Errorf("first result of failed batch = %s", r[2].Results[0])
	}
	if got := r[3].Observation.Stats.RoadCells; got > 1 {
		t.Errorf("road cells = %d after a rolled-back batch", got)
	}
	if r[3].Observation.Speed != 3 {
		t.Errorf("speed = %d, want 3 from the committed batch", r[3].Observation.Speed)
	}
	s.Engine().Do(func(sim *engine.Simulation) {
		if sim.Roads.IsRoad(3, 2) {
			t.Error("road from the failed batch survived")
		}
		if !sim.Roads.IsRoad(2, 2) {
			t.Error("road from the committed batch is gone")
		}
	})
}

func TestNewGameResets(t *testing.T) {
	s := newSession(t)
	r := decode(t, script(t, s,
		`{"cmd":"step","ticks":12}`,
		`{"cmd":"new_game","seed":9}`,
		`{"cmd":"observe"}`,
	))
	if r[2].Type != TypeOK {
		t.Fatalf("new_game = %+v", r[2])
	}
	if r[3].Observation.Tick != 0 {
		t.Errorf("new game starts at tick %d", r[3].Observation.Tick)
	}
	s.Engine().Do(func(sim *engine.Simulation) {
		if sim.Seed != 9 || sim.Grid.Width != 24 {
			t.Errorf("new game seed %d width %d", sim.Seed, sim.Grid.Width)
		}
	})
}

func TestReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.replay")
	s := newSession(t)
	r := decode(t, script(t, s,
		`{"cmd":"batch_act","actions":[{"PlaceRoad":{"x":4,"y":8,"road_type":"Local"}},{"PlaceRoad":{"x":5,"y":8,"road_type":"Local"}},{"PlaceRoad":{"x":6,"y":8,"road_type":"Local"}}]}`,
		`{"cmd":"step","ticks":20}`,
		`{"cmd":"act","action":{"SetTaxRate":{"rate":0.11}}}`,
		`{"cmd":"step","ticks":7}`,
		`{"cmd":"save_replay","path":"`+path+`"}`,
		`{"cmd":"new_game","seed":1}`,
		`{"cmd":"load_replay","path":"`+path+`"}`,
		`{"cmd":"observe"}`,
	))
	if r[5].Type != TypeOK || r[7].Type != TypeOK {
		t.Fatalf("save %+v load %+v", r[5], r[7])
	}
	obs := r[8].Observation
	if obs.Tick != 27 || obs.Stats.RoadCells != 3 {
		t.Errorf("replayed city at tick %d with %d road cells", obs.Tick, obs.Stats.RoadCells)
	}
}

func TestLoadReplayMissingFile(t *testing.T) {
	s := newSession(t)
	r := decode(t, script(t, s, `{"cmd":"load_replay","path":"`+filepath.Join(t.TempDir(), "none")+`"}`))
	if r[1].Type != TypeError {
		t.Errorf("load of a missing replay = %+v", r[1])
	}
}

func TestEOFEndsSession(t *testing.T) {
	s := newSession(t)
	lines := script(t, s, `{"cmd":"step","ticks":1}`)
	if len(lines) != 2 {
		t.Errorf("responses = %v", lines)
	}
}

func TestOversizedLineIsSkipped(t *testing.T) {
	s := newSession(t)
	s.maxLine = 64
	long := `{"cmd":"query","layers":["` + strings.Repeat("x", 200) + `"]}`
	r := decode(t, script(t, s, `{"cmd":"observe"}`, long, `{"cmd":"step","ticks":2}`))
	if len(r) != 4 {
		t.Fatalf("got %d responses, want 4", len(r))
	}
	if r[2].Type != TypeError || !strings.Contains(r[2].Message, "exceeds") {
		t.Errorf("oversized line = %+v", r[2])
	}
	if r[3].Type != TypeStepComplete || r[3].Tick != 2 {
		t.Errorf("command after the oversized line = %+v", r[3])
	}
}

func TestReadLine(t *testing.T) {
	in := "short\n" + strings.Repeat("y", 40) + "\nok\ntail"
	r := bufio.NewReaderSize(strings.NewReader(in), 16)
	want := []struct {
		line    string
		tooLong bool
	}{
		{"short\n", false},
		{"", true},
		{"ok\n", false},
		{"tail", false},
	}
	for i, w := range want {
		line, tooLong, err := readLine(r, 20)
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if string(line) != w.line || tooLong != w.tooLong {
			t.Errorf("line %d = %q, %t; want %q, %t", i, line, tooLong, w.line, w.tooLong)
		}
	}
	if _, _, err := readLine(r, 20); !errors.Is(err, io.EOF) {
		t.Errorf("after the last line err = %v, want io.EOF", err)
	}
}

func TestCancelledContextStops(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out strings.Builder
	err := s.Run(ctx, strings.NewReader(`{"cmd":"observe"}`+"\n"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if strings.TrimSpace(out.String()) != `{"protocol_version":1,"type":"ready"}` {
		t.Errorf("output = %q", out.String())
	}
}

func TestLayers(t *testing.T) {
	l := DefaultLayers()
	names := l.Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names not sorted: %v", names)
	}
	for _, want := range []string{"overview", "detail", "network", "tiers", "stats", "events"} {
		if i := sort.SearchStrings(names, want); i == len(names) || names[i] != want {
			t.Errorf("default layers missing %q", want)
		}
	}

	l.Register("answer", func(*engine.Simulation) any { return 42 })
	sim, err := engine.NewGame(engine.Options{Width: 8, Height: 8, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Render(sim, []string{"answer", "tiers"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got["answer"] != 42 || len(got) != 2 {
		t.Errorf("Render = %v", got)
	}
	if _, err := l.Render(sim, []string{"answer", "missing"}); err == nil {
		t.Error("Render accepted an unknown layer")
	}
}

func TestVacantLots(t *testing.T) {
	g := world.NewGrid(6, 6)
	roads := world.NewRoadNetwork()
	for x := 0; x < 6; x++ {
		roads.PlaceRoad(g, x, 2, world.Local)
	}
	g.Mut(0, 1).Type = world.Water
	g.Mut(1, 3).BuildingID = 9

	lots := VacantLots(g, MaxLots)
	// Rows 1 and 3 touch the road; (0,1) is water and (1,3) is built on.
	if len(lots) != 10 {
		t.Fatalf("len(lots) = %d, want 10: %v", len(lots), lots)
	}
	if lots[0] != (Lot{X: 1, Y: 1}) {
		t.Errorf("first lot = %+v, want (1,1)", lots[0])
	}
	for _, l := range lots {
		if l.Y != 1 && l.Y != 3 {
			t.Errorf("lot %+v is not beside the road", l)
		}
		if (l.X == 0 && l.Y == 1) || (l.X == 1 && l.Y == 3) {
			t.Errorf("lot %+v should be excluded", l)
		}
	}
	if got := VacantLots(g, 3); len(got) != 3 {
		t.Errorf("limit 3 returned %d lots", len(got))
	}
}
