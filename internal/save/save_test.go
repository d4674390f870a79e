package save

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/weather"
	"github.com/talgya/gridcity/internal/world"
)

func sampleFile() *File {
	g := world.NewGrid(4, 3)
	roads := world.NewRoadNetwork()
	roads.PlaceRoad(g, 0, 1, world.Avenue)
	roads.PlaceOneWay(g, 1, 1, world.North)
	g.Mut(3, 2).Type = world.Water
	g.Mut(2, 0).Zone = world.ResidentialLow
	g.Mut(2, 0).BuildingID = 7
	g.Mut(2, 0).HasPower = true
	g.Mut(2, 0).Elevation = 12.5

	budget := economy.NewBudget(50_000)
	budget.LastDay = 3
	budget.Income.Residential = 1200

	return &File{
		Version: CurrentVersion,
		Grid:    g,
		Roads:   RoadsFrom(roads),
		Clock:   Clock{Seed: 42, Tick: 900, Minutes: 900, Speed: 2, NextEntity: 12},
		Budget:  budget,
		Citizens: []citizens.Record{{
			Entity:   9,
			Position: component.Position{X: 40, Y: 8},
			Home:     component.HomeLocation{GridX: 2, GridY: 0, Building: 7},
			Work:     &component.WorkLocation{GridX: 1, GridY: 2, Building: 8},
			Details:  component.CitizenDetails{Age: 31, Education: 2, Happiness: 66, Health: 90, Salary: 2100},
			State:    component.CommutingToWork,
			Path:     component.PathCache{Waypoints: []world.Pos{{X: 0, Y: 1}, {X: 1, Y: 1}}, Index: 1},
			Needs:    component.Needs{Hunger: 50, Energy: 60, Social: 70, Fun: 20, Comfort: 55},
			Family:   component.Family{Partner: 10},
			Timer:    component.ActivityTimer{Ticks: 14},
			Mode:     component.Bike,
			Tier:     component.TierMiddle,
		}},
		Buildings: []Building{
			{Entity: 7, Building: component.Building{Zone: world.ResidentialLow, Level: 1, GridX: 2, Capacity: 8, Occupants: 1, Width: 1, Height: 1}},
			{Entity: 8, Building: component.Building{Zone: world.Industrial, Level: 1, GridX: 1, GridY: 2, Capacity: 16, Width: 1, Height: 1},
				Construction: &component.UnderConstruction{TicksRemaining: 40, TotalTicks: 100}},
		},
		Facilities: []Facility{{
			Entity:  11,
			Utility: &component.UtilitySource{UtilityType: component.CoalPlant, Range: 20, GridX: 0, GridY: 2},
			Plant:   &component.PowerPlant{PlantType: component.CoalPlant, CapacityMW: 200, FuelCost: 30, GridY: 2},
		}},
		Extensions: map[string][]byte{"zeta": []byte("z"), "alpha": []byte("a")},
	}
}

func TestRoundTrip(t *testing.T) {
	in := sampleFile()
	data := Encode(in)
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Version != CurrentVersion {
		t.Errorf("version = %d", out.Version)
	}
	if out.Clock != in.Clock {
		t.Errorf("clock = %+v, want %+v", out.Clock, in.Clock)
	}
	if out.Budget != in.Budget {
		t.Errorf("budget = %+v", out.Budget)
	}
	for i := range in.Grid.Cells {
		if out.Grid.Cells[i] != in.Grid.Cells[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, out.Grid.Cells[i], in.Grid.Cells[i])
		}
	}
	net := out.Network()
	if d, ok := net.OneWayDirection(1, 1); !ok || d != world.North {
		t.Errorf("one-way direction = %v, %v", d, ok)
	}
	if rt, _ := net.RoadType(0, 1); rt != world.Avenue {
		t.Errorf("road type = %v", rt)
	}

	c := out.Citizens[0]
	want := in.Citizens[0]
	if c.Entity != want.Entity || c.Details != want.Details || c.Needs != want.Needs || c.Tier != want.Tier || c.Mode != want.Mode {
		t.Errorf("citizen = %+v", c)
	}
	if c.Work == nil || *c.Work != *want.Work {
		t.Errorf("work = %+v", c.Work)
	}
	if len(c.Path.Waypoints) != 2 || c.Path.Index != 1 || c.Path.Waypoints[1] != (world.Pos{X: 1, Y: 1}) {
		t.Errorf("path = %+v", c.Path)
	}

	if out.Buildings[0].Construction != nil {
		t.Error("completed building decoded with construction")
	}
	if uc := out.Buildings[1].Construction; uc == nil || uc.TicksRemaining != 40 {
		t.Errorf("construction = %+v", uc)
	}
	f := out.Facilities[0]
	if f.Service != nil || f.Utility == nil || f.Plant == nil || *f.Plant != *in.Facilities[0].Plant {
		t.Errorf("facility = %+v", f)
	}
	if string(out.Extensions["alpha"]) != "a" || string(out.Extensions["zeta"]) != "z" {
		t.Errorf("extensions = %v", out.Extensions)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Encode(sampleFile())
	for i := 0; i < 5; i++ {
		if b := Encode(sampleFile()); !bytes.Equal(a, b) {
			t.Fatal("equal states encoded differently")
		}
	}
}

func TestExtensionsSortedByKey(t *testing.T) {
	data := Encode(sampleFile())
	ia := bytes.Index(data, []byte("alpha"))
	iz := bytes.Index(data, []byte("zeta"))
	if ia < 0 || iz < 0 || ia > iz {
		t.Errorf("alpha at %d, zeta at %d", ia, iz)
	}
}

func TestDecodeRejects(t *testing.T) {
	good := Encode(sampleFile())

	if _, err := Decode([]byte("NOPE\x03\x00\x00\x00")); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad magic: %v", err)
	}

	future := append([]byte(nil), good...)
	future[4] = byte(CurrentVersion + 1)
	if _, err := Decode(future); !errors.Is(err, ErrFutureVersion) {
		t.Errorf("future version: %v", err)
	}

	zero := append([]byte(nil), good...)
	zero[4], zero[5] = 0, 0
	if _, err := Decode(zero); !errors.Is(err, ErrBadVersion) {
		t.Errorf("version 0: %v", err)
	}

	for _, cut := range []int{10, 40, len(good) / 2, len(good) - 1} {
		if _, err := Decode(good[:cut]); !errors.Is(err, ErrTruncated) {
			t.Errorf("cut at %d: %v", cut, err)
		}
	}

	if _, err := Decode(append(good, 0)); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("trailing byte: %v", err)
	}
}

func TestDecodeRejectsBadValues(t *testing.T) {
	// Cell (0,1) is the Avenue; cells are 16 bytes after a 16-byte header.
	const roadCell = 16 + 4*16
	for name, off := range map[string]int{"cell type": roadCell, "road type": roadCell + 1, "zone": roadCell + 2} {
		data := Encode(sampleFile())
		data[off] = 9
		if _, err := Decode(data); !errors.Is(err, ErrBadValue) {
			t.Errorf("%s byte 9: err = %v, want ErrBadValue", name, err)
		}
	}

	bad := func(p *component.UtilityType) { *p = 99 }
	tests := []struct {
		name string
		mod  func(f *File)
	}{
		{"road off the map", func(f *File) { f.Roads = append(f.Roads, Road{X: 4, Y: 0, Type: world.Local}) }},
		{"road direction", func(f *File) {
			d := world.Direction(7)
			f.Roads[1].Direction = &d
		}},
		{"citizen mode", func(f *File) { f.Citizens[0].Mode = 9 }},
		{"citizen tier", func(f *File) { f.Citizens[0].Tier = 9 }},
		{"citizen home", func(f *File) { f.Citizens[0].Home.GridY = 3 }},
		{"building zone", func(f *File) { f.Buildings[0].Building.Zone = 200 }},
		{"building position", func(f *File) { f.Buildings[1].Building.GridX = -1 }},
		{"utility type", func(f *File) { bad(&f.Facilities[0].Utility.UtilityType) }},
		{"plant type", func(f *File) { bad(&f.Facilities[0].Plant.PlantType) }},
		{"service type", func(f *File) {
			f.Facilities[0].Service = &component.ServiceBuilding{ServiceType: 250}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleFile()
			tt.mod(f)
			if _, err := Decode(Encode(f)); !errors.Is(err, ErrBadValue) {
				t.Errorf("err = %v, want ErrBadValue", err)
			}
		})
	}
}

func TestFailingMigrationAbortsLoad(t *testing.T) {
	saved := migrations
	defer func() { migrations = saved }()
	boom := errors.New("boom")
	migrations = []migration{
		saved[0],
		{from: 2, run: func(*File) error { return boom }},
	}
	_, err := Decode(encodeVersion(sampleFile(), 1))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the migration error", err)
	}
	if !strings.Contains(err.Error(), "v2 to v3") {
		t.Errorf("err = %v, want the failing step named", err)
	}
}

func TestMigrateFromV1(t *testing.T) {
	in := sampleFile()
	data := encodeVersion(in, 1)
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode v1: %v", err)
	}
	if out.Version != CurrentVersion {
		t.Errorf("version after migrate = %d", out.Version)
	}
	for _, b := range out.Buildings {
		if b.Building.Width != 1 || b.Building.Height != 1 {
			t.Errorf("footprint = %dx%d", b.Building.Width, b.Building.Height)
		}
	}
	c := out.Citizens[0]
	if c.Needs != component.DefaultNeeds() {
		t.Errorf("needs = %+v", c.Needs)
	}
	if len(c.Path.Waypoints) != 0 || c.Path.Index != 0 {
		t.Errorf("path = %+v", c.Path)
	}
	if c.Details != in.Citizens[0].Details {
		t.Errorf("details lost in migration: %+v", c.Details)
	}
}

func TestMigrateFromV2KeepsFootprint(t *testing.T) {
	in := sampleFile()
	in.Buildings[0].Building.Width = 2
	out, err := Decode(encodeVersion(in, 2))
	if err != nil {
		t.Fatal(err)
	}
	if out.Buildings[0].Building.Width != 2 {
		t.Errorf("width = %d", out.Buildings[0].Building.Width)
	}
	if out.Citizens[0].Needs != component.DefaultNeeds() {
		t.Errorf("needs = %+v", out.Citizens[0].Needs)
	}
}

func newRegistry() *Registry {
	reg := NewRegistry()
	Register[economy.WastePolicyState](reg, func() economy.WastePolicyState { return economy.WastePolicyState{} })
	Register[economy.LoanBook](reg, economy.NewLoanBook)
	Register[weather.ReservoirState](reg, weather.NewReservoir)
	return reg
}

func TestWasteDefaultIsSkipped(t *testing.T) {
	r := ecs.NewResources()
	ecs.Set(r, &economy.WastePolicyState{})
	ecs.Set(r, ptr(economy.NewLoanBook()))
	ecs.Set(r, ptr(weather.NewReservoir()))

	reg := newRegistry()
	ext := reg.Collect(r)
	if _, ok := ext["waste_policies"]; ok {
		t.Fatal("default waste policies were saved")
	}

	// Dirty the state, then load from a map without the key.
	w := ecs.Get[economy.WastePolicyState](r)
	w.Toggle(economy.PlasticBagBan)
	reg.Apply(r, ext, nil)
	if got := ecs.Get[economy.WastePolicyState](r); got != w || *got != (economy.WastePolicyState{}) {
		t.Errorf("waste state after load = %+v", *got)
	}
}

func TestApplyPreservesUnknownAndRecovers(t *testing.T) {
	r := ecs.NewResources()
	book := economy.NewLoanBook()
	book.CreditRating = 0.5
	ecs.Set(r, &book)
	res := weather.NewReservoir()
	ecs.Set(r, &res)

	reg := newRegistry()
	var warned []string
	unknown := reg.Apply(r, map[string][]byte{
		"loan_book":        []byte("{not json"),
		"future_subsystem": []byte{1, 2, 3},
	}, func(key string, err error) { warned = append(warned, key) })

	if len(warned) != 1 || warned[0] != "loan_book" {
		t.Errorf("warned = %v", warned)
	}
	if got := ecs.Get[economy.LoanBook](r); got != &book || got.CreditRating != economy.NewLoanBook().CreditRating {
		t.Errorf("loan book not reset to default: %+v", got)
	}
	if !bytes.Equal(unknown["future_subsystem"], []byte{1, 2, 3}) || len(unknown) != 1 {
		t.Errorf("unknown = %v", unknown)
	}
}

func TestCollectRoundTrip(t *testing.T) {
	r := ecs.NewResources()
	book := economy.NewLoanBook()
	treasury := 10_000.0
	if err := book.TakeLoan(economy.LoanSmall, &treasury); err != nil {
		t.Fatal(err)
	}
	ecs.Set(r, &book)
	ecs.Set(r, &economy.WastePolicyState{})
	ecs.Set(r, ptr(weather.NewReservoir()))

	reg := newRegistry()
	ext := reg.Collect(r)

	r2 := ecs.NewResources()
	reg.Apply(r2, ext, func(key string, err error) { t.Errorf("%s: %v", key, err) })
	got := ecs.Get[economy.LoanBook](r2)
	if got == nil || len(got.Loans) != 1 || got.MonthlyPayments() != book.MonthlyPayments() {
		t.Errorf("loan book = %+v", got)
	}
}

func TestDuplicateKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	reg := NewRegistry()
	Register[economy.LoanBook](reg, economy.NewLoanBook)
	Register[economy.LoanBook](reg, economy.NewLoanBook)
}

func ptr[T any](v T) *T { return &v }
