// Package save encodes a city into a versioned little-endian byte stream
// and back. The fixed sections (grid, roads, clock, budget, citizens,
// buildings, facilities) are followed by a key-sorted extension map that
// subsystems fill through a Registry.
package save

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/economy"
	"github.com/talgya/gridcity/internal/world"
)

// Magic opens every save.
const Magic = "GCSV"

// CurrentVersion is the layout Encode writes.
//
//	1  initial layout
//	2  buildings carry width and height
//	3  citizens carry needs and a path cache
const CurrentVersion uint16 = 3

var (
	ErrBadMagic      = errors.New("not a save file")
	ErrFutureVersion = errors.New("save written by a newer version")
	ErrBadVersion    = errors.New("invalid save version")
	ErrTrailingBytes = errors.New("trailing bytes after save")
)

const noDirection = 0xFF

// Clock is the time section plus the counters a restore needs to keep
// spawning the same entity ids.
type Clock struct {
	Seed       uint64 `json:"seed"`
	Tick       uint64 `json:"tick"`
	Minutes    uint64 `json:"minutes"`
	Speed      uint8  `json:"speed"`
	Paused     bool   `json:"paused"`
	NextEntity uint64 `json:"next_entity"`
}

// Road is one road cell with its one-way heading, if any.
type Road struct {
	X         int
	Y         int
	Type      world.RoadType
	Direction *world.Direction
}

// Building is a zoned building entity.
type Building struct {
	Entity       ecs.Entity
	Building     component.Building
	Construction *component.UnderConstruction
}

// Facility is a placed service or utility entity. A power plant carries
// both Utility and Plant.
type Facility struct {
	Entity  ecs.Entity
	Service *component.ServiceBuilding
	Utility *component.UtilitySource
	Plant   *component.PowerPlant
}

// File is a decoded save.
type File struct {
	Version    uint16
	Flags      uint16
	Grid       *world.Grid
	Roads      []Road
	Clock      Clock
	Budget     economy.Budget
	Citizens   []citizens.Record
	Buildings  []Building
	Facilities []Facility
	Extensions map[string][]byte
}

// Encode writes f at CurrentVersion. Extensions are emitted sorted by key
// so equal states produce equal bytes.
func Encode(f *File) []byte {
	return encodeVersion(f, CurrentVersion)
}

func encodeVersion(f *File, version uint16) []byte {
	w := &writer{b: make([]byte, 0, 64+len(f.Grid.Cells)*16)}
	w.b = append(w.b, Magic...)
	w.u16(version)
	w.u16(f.Flags)

	// grid
	w.u32(uint32(f.Grid.Width))
	w.u32(uint32(f.Grid.Height))
	for i := range f.Grid.Cells {
		c := &f.Grid.Cells[i]
		w.u8(uint8(c.Type))
		w.u8(uint8(c.RoadType))
		w.u8(uint8(c.Zone))
		var flags uint8
		if c.HasPower {
			flags |= 1
		}
		if c.HasWater {
			flags |= 2
		}
		w.u8(flags)
		w.f32(c.Elevation)
		w.u64(c.BuildingID)
	}

	// network
	w.u32(uint32(len(f.Roads)))
	for _, r := range f.Roads {
		w.u32(uint32(r.X))
		w.u32(uint32(r.Y))
		w.u8(uint8(r.Type))
		if r.Direction != nil {
			w.u8(uint8(*r.Direction))
		} else {
			w.u8(noDirection)
		}
	}

	// clock
	w.u64(f.Clock.Seed)
	w.u64(f.Clock.Tick)
	w.u64(f.Clock.Minutes)
	w.u8(f.Clock.Speed)
	w.boolean(f.Clock.Paused)
	w.u64(f.Clock.NextEntity)

	writeBudget(w, &f.Budget)

	w.u32(uint32(len(f.Citizens)))
	for i := range f.Citizens {
		writeCitizen(w, &f.Citizens[i], version)
	}

	w.u32(uint32(len(f.Buildings)))
	for i := range f.Buildings {
		writeBuilding(w, &f.Buildings[i], version)
	}

	w.u32(uint32(len(f.Facilities)))
	for i := range f.Facilities {
		writeFacility(w, &f.Facilities[i])
	}

	keys := make([]string, 0, len(f.Extensions))
	for k := range f.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		w.key(k)
		w.blob(f.Extensions[k])
	}
	return w.b
}

// Decode parses a save of any supported version and migrates it to
// CurrentVersion.
func Decode(data []byte) (*File, error) {
	if len(data) < len(Magic)+4 || string(data[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}
	r := &reader{b: data, off: len(Magic)}
	f := &File{Version: r.u16(), Flags: r.u16()}
	switch {
	case f.Version == 0:
		return nil, ErrBadVersion
	case f.Version > CurrentVersion:
		return nil, fmt.Errorf("%w: %d > %d", ErrFutureVersion, f.Version, CurrentVersion)
	}

	width, height := int(r.u32()), int(r.u32())
	if r.err == nil && (width <= 0 || height <= 0 || width*height > r.remaining()/16) {
		return nil, fmt.Errorf("decode grid: bad dimensions %dx%d: %w", width, height, ErrTruncated)
	}
	f.Grid = world.NewGrid(width, height)
	for i := range f.Grid.Cells {
		c := &f.Grid.Cells[i]
		c.Type = world.CellType(r.u8())
		c.RoadType = world.RoadType(r.u8())
		c.Zone = world.ZoneType(r.u8())
		flags := r.u8()
		c.HasPower = flags&1 != 0
		c.HasWater = flags&2 != 0
		c.Elevation = r.f32()
		c.BuildingID = r.u64()
	}

	n := r.count(10)
	f.Roads = make([]Road, n)
	for i := range f.Roads {
		rd := &f.Roads[i]
		rd.X, rd.Y = int(r.u32()), int(r.u32())
		rd.Type = world.RoadType(r.u8())
		if d := r.u8(); d != noDirection {
			dir := world.Direction(d)
			rd.Direction = &dir
		}
	}

	f.Clock = Clock{
		Seed:    r.u64(),
		Tick:    r.u64(),
		Minutes: r.u64(),
		Speed:   r.u8(),
		Paused:  r.boolean(),
	}
	f.Clock.NextEntity = r.u64()

	readBudget(r, &f.Budget)

	n = r.count(8)
	f.Citizens = make([]citizens.Record, n)
	for i := range f.Citizens {
		readCitizen(r, &f.Citizens[i], f.Version)
	}

	n = r.count(8)
	f.Buildings = make([]Building, n)
	for i := range f.Buildings {
		readBuilding(r, &f.Buildings[i], f.Version)
	}

	n = r.count(9)
	f.Facilities = make([]Facility, n)
	for i := range f.Facilities {
		readFacility(r, &f.Facilities[i])
	}

	n = r.count(6)
	f.Extensions = make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		k := r.key()
		f.Extensions[k] = r.blob()
	}

	if r.err != nil {
		return nil, fmt.Errorf("decode save v%d: %w", f.Version, r.err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("decode save v%d: %w (%d)", f.Version, ErrTrailingBytes, r.remaining())
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("decode save v%d: %w", f.Version, err)
	}
	if _, err := Migrate(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Network rebuilds a road network from the grid and road records.
func (f *File) Network() *world.RoadNetwork {
	n := world.NewRoadNetwork()
	for _, r := range f.Roads {
		if r.Type == world.OneWay && r.Direction != nil {
			n.SetOneWayDirection(world.Pos{X: r.X, Y: r.Y}, *r.Direction)
		}
	}
	n.Rebuild(f.Grid)
	return n
}

// RoadsFrom exports a network as road records in row-major order.
func RoadsFrom(n *world.RoadNetwork) []Road {
	ps := n.Positions()
	out := make([]Road, 0, len(ps))
	for _, p := range ps {
		rt, _ := n.RoadType(p.X, p.Y)
		rd := Road{X: p.X, Y: p.Y, Type: rt}
		if d, ok := n.OneWayDirection(p.X, p.Y); ok {
			rd.Direction = &d
		}
		out = append(out, rd)
	}
	return out
}

// ── Sections ────────────────────────────────────────────────────────

func writeBudget(w *writer, b *economy.Budget) {
	w.f64(b.Treasury)
	w.f64(b.TaxRate)
	w.f64(b.MonthlyIncome)
	w.f64(b.MonthlyExpenses)
	w.f64(b.Income.Residential)
	w.f64(b.Income.Commercial)
	w.f64(b.Income.Industrial)
	w.f64(b.Income.Office)
	w.f64(b.Expenses.Services)
	w.f64(b.Expenses.Utilities)
	w.f64(b.Expenses.Roads)
	w.f64(b.Expenses.Loans)
	w.f64(b.Expenses.Policies)
	w.u32(b.LastDay)
}

func readBudget(r *reader, b *economy.Budget) {
	b.Treasury = r.f64()
	b.TaxRate = r.f64()
	b.MonthlyIncome = r.f64()
	b.MonthlyExpenses = r.f64()
	b.Income.Residential = r.f64()
	b.Income.Commercial = r.f64()
	b.Income.Industrial = r.f64()
	b.Income.Office = r.f64()
	b.Expenses.Services = r.f64()
	b.Expenses.Utilities = r.f64()
	b.Expenses.Roads = r.f64()
	b.Expenses.Loans = r.f64()
	b.Expenses.Policies = r.f64()
	b.LastDay = r.u32()
}

func writeLocation(w *writer, x, y int, b ecs.Entity) {
	w.i32(x)
	w.i32(y)
	w.u64(uint64(b))
}

func writeCitizen(w *writer, c *citizens.Record, version uint16) {
	w.u64(uint64(c.Entity))
	w.f32(c.Position.X)
	w.f32(c.Position.Y)
	writeLocation(w, c.Home.GridX, c.Home.GridY, c.Home.Building)
	w.boolean(c.Work != nil)
	if c.Work != nil {
		writeLocation(w, c.Work.GridX, c.Work.GridY, c.Work.Building)
	}
	d := &c.Details
	w.u8(d.Age)
	w.u8(uint8(d.Gender))
	w.u8(d.Education)
	w.f32(d.Happiness)
	w.f32(d.Health)
	w.f32(d.Salary)
	w.f32(d.Savings)
	w.u8(uint8(c.State))
	if version >= 3 {
		w.u32(uint32(len(c.Path.Waypoints)))
		for _, p := range c.Path.Waypoints {
			w.i32(p.X)
			w.i32(p.Y)
		}
		w.i32(c.Path.Index)
	}
	p := &c.Personality
	w.f32(p.Ambition)
	w.f32(p.Sociability)
	w.f32(p.Materialism)
	w.f32(p.Resilience)
	if version >= 3 {
		n := &c.Needs
		w.f32(n.Hunger)
		w.f32(n.Energy)
		w.f32(n.Social)
		w.f32(n.Fun)
		w.f32(n.Comfort)
	}
	w.u64(uint64(c.Family.Partner))
	w.u64(uint64(c.Family.Parent))
	w.u32(c.Timer.Ticks)
	w.u8(uint8(c.Mode))
	w.u8(uint8(c.Tier))
}

func readCitizen(r *reader, c *citizens.Record, version uint16) {
	c.Entity = ecs.Entity(r.u64())
	c.Position.X = r.f32()
	c.Position.Y = r.f32()
	c.Home.GridX, c.Home.GridY, c.Home.Building = r.i32(), r.i32(), ecs.Entity(r.u64())
	if r.boolean() {
		wl := component.WorkLocation{GridX: r.i32(), GridY: r.i32()}
		wl.Building = ecs.Entity(r.u64())
		c.Work = &wl
	}
	d := &c.Details
	d.Age = r.u8()
	d.Gender = component.Gender(r.u8())
	d.Education = r.u8()
	d.Happiness = r.f32()
	d.Health = r.f32()
	d.Salary = r.f32()
	d.Savings = r.f32()
	c.State = component.CitizenState(r.u8())
	if version >= 3 {
		n := r.count(8)
		if n > 0 {
			c.Path.Waypoints = make([]world.Pos, n)
			for i := range c.Path.Waypoints {
				c.Path.Waypoints[i] = world.Pos{X: r.i32(), Y: r.i32()}
			}
		}
		c.Path.Index = r.i32()
	}
	p := &c.Personality
	p.Ambition = r.f32()
	p.Sociability = r.f32()
	p.Materialism = r.f32()
	p.Resilience = r.f32()
	if version >= 3 {
		n := &c.Needs
		n.Hunger = r.f32()
		n.Energy = r.f32()
		n.Social = r.f32()
		n.Fun = r.f32()
		n.Comfort = r.f32()
	}
	c.Family.Partner = ecs.Entity(r.u64())
	c.Family.Parent = ecs.Entity(r.u64())
	c.Timer.Ticks = r.u32()
	c.Mode = component.TransportMode(r.u8())
	c.Tier = component.PopulationTier(r.u8())
}

func writeBuilding(w *writer, b *Building, version uint16) {
	w.u64(uint64(b.Entity))
	bl := &b.Building
	w.u8(uint8(bl.Zone))
	w.u8(bl.Level)
	w.i32(bl.GridX)
	w.i32(bl.GridY)
	w.u32(bl.Capacity)
	w.u32(bl.Occupants)
	if version >= 2 {
		w.u8(bl.Width)
		w.u8(bl.Height)
	}
	w.boolean(b.Construction != nil)
	if b.Construction != nil {
		w.u32(b.Construction.TicksRemaining)
		w.u32(b.Construction.TotalTicks)
	}
}

func readBuilding(r *reader, b *Building, version uint16) {
	b.Entity = ecs.Entity(r.u64())
	bl := &b.Building
	bl.Zone = world.ZoneType(r.u8())
	bl.Level = r.u8()
	bl.GridX = r.i32()
	bl.GridY = r.i32()
	bl.Capacity = r.u32()
	bl.Occupants = r.u32()
	if version >= 2 {
		bl.Width = r.u8()
		bl.Height = r.u8()
	}
	if r.boolean() {
		b.Construction = &component.UnderConstruction{TicksRemaining: r.u32(), TotalTicks: r.u32()}
	}
}

const (
	facService = 1 << iota
	facUtility
	facPlant
)

func writeFacility(w *writer, f *Facility) {
	w.u64(uint64(f.Entity))
	var flags uint8
	if f.Service != nil {
		flags |= facService
	}
	if f.Utility != nil {
		flags |= facUtility
	}
	if f.Plant != nil {
		flags |= facPlant
	}
	w.u8(flags)
	if s := f.Service; s != nil {
		w.u8(uint8(s.ServiceType))
		w.i32(s.GridX)
		w.i32(s.GridY)
		w.f32(s.Radius)
	}
	if u := f.Utility; u != nil {
		w.u8(uint8(u.UtilityType))
		w.u32(u.Range)
		w.i32(u.GridX)
		w.i32(u.GridY)
	}
	if p := f.Plant; p != nil {
		w.u8(uint8(p.PlantType))
		w.f32(p.CapacityMW)
		w.f32(p.CurrentOutputMW)
		w.f32(p.FuelCost)
		w.i32(p.GridX)
		w.i32(p.GridY)
	}
}

func readFacility(r *reader, f *Facility) {
	f.Entity = ecs.Entity(r.u64())
	flags := r.u8()
	if flags&facService != 0 {
		f.Service = &component.ServiceBuilding{ServiceType: component.ServiceType(r.u8()), GridX: r.i32(), GridY: r.i32()}
		f.Service.Radius = r.f32()
	}
	if flags&facUtility != 0 {
		f.Utility = &component.UtilitySource{UtilityType: component.UtilityType(r.u8()), Range: r.u32(), GridX: r.i32(), GridY: r.i32()}
	}
	if flags&facPlant != 0 {
		f.Plant = &component.PowerPlant{
			PlantType:       component.UtilityType(r.u8()),
			CapacityMW:      r.f32(),
			CurrentOutputMW: r.f32(),
			FuelCost:        r.f32(),
			GridX:           r.i32(),
			GridY:           r.i32(),
		}
	}
}
