package world

import "fmt"

// RoadType is the class of a road cell.
type RoadType uint8

const (
	Local RoadType = iota
	Avenue
	Boulevard
	Highway
	OneWay
	Path
)

var roadTypeNames = [...]string{"Local", "Avenue", "Boulevard", "Highway", "OneWay", "Path"}

type roadProps struct {
	speed       float32 // km/h
	capacity    uint32  // vehicles per cell before congestion
	cost        float64 // placement cost per cell
	maintenance float64 // monthly upkeep per cell
	width       uint8
	upgrade     RoadType
	canUpgrade  bool
}

var roadTable = [...]roadProps{
	Local:     {speed: 30, capacity: 20, cost: 10, maintenance: 0.3, width: 1, upgrade: Avenue, canUpgrade: true},
	Avenue:    {speed: 50, capacity: 40, cost: 20, maintenance: 0.6, width: 1, upgrade: Boulevard, canUpgrade: true},
	Boulevard: {speed: 60, capacity: 60, cost: 30, maintenance: 1.0, width: 2, upgrade: Highway, canUpgrade: true},
	Highway:   {speed: 100, capacity: 80, cost: 40, maintenance: 2.0, width: 2},
	OneWay:    {speed: 40, capacity: 25, cost: 15, maintenance: 0.4, width: 1},
	Path:      {speed: 5, capacity: 5, cost: 5, maintenance: 0.05, width: 1},
}

// MaxRoadSpeed is the fastest speed of any road type.
const MaxRoadSpeed = float32(100)

func (r RoadType) String() string {
	if int(r) < len(roadTypeNames) {
		return roadTypeNames[r]
	}
	return fmt.Sprintf("RoadType(%d)", r)
}

// Valid reports whether r names a known road type.
func (r RoadType) Valid() bool { return int(r) < len(roadTable) }

func (r RoadType) Speed() float32           { return roadTable[r].speed }
func (r RoadType) Capacity() uint32         { return roadTable[r].capacity }
func (r RoadType) Cost() float64            { return roadTable[r].cost }
func (r RoadType) MaintenanceCost() float64 { return roadTable[r].maintenance }
func (r RoadType) WidthCells() uint8        { return roadTable[r].width }

// UpgradeTier returns the next road class, if any.
func (r RoadType) UpgradeTier() (RoadType, bool) {
	p := roadTable[r]
	return p.upgrade, p.canUpgrade
}

func (r RoadType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RoadType) UnmarshalText(b []byte) error {
	for i, n := range roadTypeNames {
		if n == string(b) {
			*r = RoadType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown road type %q", b)
}

// ZoneType is the land-use designation painted on a cell.
type ZoneType uint8

const (
	ZoneNone ZoneType = iota
	ResidentialLow
	ResidentialMedium
	ResidentialHigh
	CommercialLow
	CommercialHigh
	Industrial
	Office
	MixedUse
)

// ZoneCount is the number of zone types including ZoneNone.
const ZoneCount = int(MixedUse) + 1

var zoneNames = [...]string{
	"None", "ResidentialLow", "ResidentialMedium", "ResidentialHigh",
	"CommercialLow", "CommercialHigh", "Industrial", "Office", "MixedUse",
}

func (z ZoneType) String() string {
	if int(z) < len(zoneNames) {
		return zoneNames[z]
	}
	return fmt.Sprintf("ZoneType(%d)", z)
}

func (z ZoneType) Valid() bool { return int(z) < len(zoneNames) }

func (z ZoneType) IsResidential() bool {
	return z == ResidentialLow || z == ResidentialMedium || z == ResidentialHigh || z == MixedUse
}

func (z ZoneType) IsCommercial() bool { return z == CommercialLow || z == CommercialHigh || z == MixedUse }

// IsJobs reports whether buildings in this zone provide employment.
func (z ZoneType) IsJobs() bool {
	return z == CommercialLow || z == CommercialHigh || z == Industrial || z == Office || z == MixedUse
}

func (z ZoneType) MarshalText() ([]byte, error) { return []byte(z.String()), nil }

func (z *ZoneType) UnmarshalText(b []byte) error {
	for i, n := range zoneNames {
		if n == string(b) {
			*z = ZoneType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown zone type %q", b)
}

// Direction is the travel direction of a one-way road cell.
type Direction uint8

const (
	North Direction = iota
	South
	East
	West
)

var directionNames = [...]string{"North", "South", "East", "West"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", d)
}

func (d Direction) Valid() bool { return int(d) < len(directionNames) }

// Delta returns the grid step for d.
func (d Direction) Delta() (int, int) {
	o := neighborOffsets[d]
	return o[0], o[1]
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// DirectionBetween returns the direction of a single orthogonal step from
// (x0, y0) to (x1, y1).
func DirectionBetween(x0, y0, x1, y1 int) (Direction, bool) {
	switch {
	case x1 == x0 && y1 == y0-1:
		return North, true
	case x1 == x0 && y1 == y0+1:
		return South, true
	case x1 == x0+1 && y1 == y0:
		return East, true
	case x1 == x0-1 && y1 == y0:
		return West, true
	}
	return North, false
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	for i, n := range directionNames {
		if n == string(b) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}
