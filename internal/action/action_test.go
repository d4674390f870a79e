package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		in   string
		want GameAction
	}{
		{`{"SetPaused":{"paused":true}}`, SetPaused{Paused: true}},
		{`{"SetSpeed":{"speed":2}}`, SetSpeed{Speed: 2}},
		{`{"PlaceRoad":{"x":3,"y":4,"road_type":"Avenue"}}`, PlaceRoad{X: 3, Y: 4, RoadType: world.Avenue}},
		{`{"PaintZone":{"x0":1,"y0":2,"x1":5,"y1":6,"zone":"ResidentialLow"}}`, PaintZone{X0: 1, Y0: 2, X1: 5, Y1: 6, Zone: world.ResidentialLow}},
		{`{"PlaceService":{"x":1,"y":1,"service_type":"Hospital"}}`, PlaceService{X: 1, Y: 1, ServiceType: component.Hospital}},
		{`{"PlaceUtility":{"x":2,"y":2,"utility_type":"CoalPlant"}}`, PlaceUtility{X: 2, Y: 2, UtilityType: component.CoalPlant}},
		{`{"TakeLoan":{"tier":"Medium"}}`, TakeLoan{Tier: economy.LoanMedium}},
		{`{"TogglePolicy":{"policy":"HighRiseBan"}}`, TogglePolicy{Policy: economy.HighRiseBan}},
		{`{"DismissAdvice":{"tip_id":"treasury_low"}}`, DismissAdvice{TipID: "treasury_low"}},
		{`{"BulldozeCell":{"x":9,"y":9,"extra":1}}`, BulldozeCell{X: 9, Y: 9}},
	}
	for _, tt := range tests {
		got, err := Decode([]byte(tt.in))
		if err != nil {
			t.Errorf("Decode(%s): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Decode(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDecodeOneWayDirection(t *testing.T) {
	a, err := Decode([]byte(`{"PlaceRoad":{"x":1,"y":1,"road_type":"OneWay","direction":"East"}}`))
	if err != nil {
		t.Fatal(err)
	}
	pr := a.(PlaceRoad)
	if pr.Direction == nil || *pr.Direction != world.East {
		t.Fatalf("direction = %v", pr.Direction)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte(`{"Teleport":{}}`)); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown tag: err = %v", err)
	}
	if _, err := Decode([]byte(`{"SetPaused":{},"SetSpeed":{}}`)); err == nil {
		t.Error("two tags accepted")
	}
	if _, err := Decode([]byte(`{"PlaceRoad":{"road_type":"Runway"}}`)); err == nil {
		t.Error("bad enum accepted")
	}
	if _, err := Decode([]byte(`[1,2]`)); err == nil {
		t.Error("array accepted")
	}
}

func TestEncodeIsExternallyTagged(t *testing.T) {
	b, err := Encode(SetTaxRate{Rate: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"SetTaxRate":{"rate":0.1}}` {
		t.Errorf("Encode = %s", b)
	}
}

func TestListRoundTrip(t *testing.T) {
	in := List{SetSpeed{Speed: 2}, SetPaused{Paused: false}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out List
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip = %#v", out)
	}
}

func TestResultJSON(t *testing.T) {
	b, _ := json.Marshal(Success)
	if string(b) != `"Success"` {
		t.Errorf("success = %s", b)
	}
	b, _ = json.Marshal(Fail(ReasonInsufficientFunds))
	if string(b) != `{"Failure":"insufficient funds"}` {
		t.Errorf("failure = %s", b)
	}

	var r Result
	if err := json.Unmarshal([]byte(`{"Failure":"blocked by water"}`), &r); err != nil || r.OK() || r.Failure != ReasonBlockedByWater {
		t.Errorf("decode failure = %+v, %v", r, err)
	}
	if err := json.Unmarshal([]byte(`"Success"`), &r); err != nil || !r.OK() {
		t.Errorf("decode success = %+v, %v", r, err)
	}
}

func TestRecordJSON(t *testing.T) {
	rec := Record{Tick: 7, Action: Envelope{Action: SetSpeed{Speed: 3}}, Result: Success}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"tick":7,"action":{"SetSpeed":{"speed":3}},"result":"Success"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
	var back Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Action.Action != (SetSpeed{Speed: 3}) {
		t.Errorf("action = %#v", back.Action.Action)
	}
}
