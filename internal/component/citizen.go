package component

import (
	"github.com/talgya/gridcity/internal/ecs"
	"github.com/talgya/gridcity/internal/world"
)

// Citizen marks a simulated resident.
type Citizen struct{}

// Position is a world-space location.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Velocity is world units per tick.
type Velocity struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// HomeLocation points at the citizen's residence.
type HomeLocation struct {
	GridX    int        `json:"grid_x"`
	GridY    int        `json:"grid_y"`
	Building ecs.Entity `json:"building"`
}

// WorkLocation points at the citizen's workplace.
type WorkLocation struct {
	GridX    int        `json:"grid_x"`
	GridY    int        `json:"grid_y"`
	Building ecs.Entity `json:"building"`
}

// Gender is informational only.
type Gender uint8

const (
	Female Gender = iota
	Male
)

func (g Gender) Valid() bool { return g <= Male }

// CitizenDetails holds demographic and economic attributes.
type CitizenDetails struct {
	Age       uint8   `json:"age"`
	Gender    Gender  `json:"gender"`
	Education uint8   `json:"education"` // 0 none .. 3 university
	Happiness float32 `json:"happiness"` // 0–100
	Health    float32 `json:"health"`    // 0–100
	Salary    float32 `json:"salary"`    // per month
	Savings   float32 `json:"savings"`
}

// CitizenState is the daily activity phase.
type CitizenState uint8

const (
	AtHome CitizenState = iota
	CommutingToWork
	Working
	CommutingHome
	Leisure
)

var stateNames = []string{"AtHome", "CommutingToWork", "Working", "CommutingHome", "Leisure"}

func (s CitizenState) String() string { return enumName(stateNames, int(s), "CitizenState") }

func (s CitizenState) Valid() bool { return int(s) < len(stateNames) }

func (s CitizenState) Commuting() bool { return s == CommutingToWork || s == CommutingHome }

// CitizenStateComp wraps the current state.
type CitizenStateComp struct {
	State CitizenState `json:"state"`
}

// PathCache holds the route currently being followed.
type PathCache struct {
	Waypoints []world.Pos `json:"waypoints"`
	Index     int         `json:"index"`
}

// Done reports whether the route has been fully consumed.
func (p *PathCache) Done() bool { return p.Index >= len(p.Waypoints) }

// Personality traits in [0, 1].
type Personality struct {
	Ambition    float32 `json:"ambition"`
	Sociability float32 `json:"sociability"`
	Materialism float32 `json:"materialism"`
	Resilience  float32 `json:"resilience"`
}

// Needs in [0, 100]; higher is better satisfied.
type Needs struct {
	Hunger  float32 `json:"hunger"`
	Energy  float32 `json:"energy"`
	Social  float32 `json:"social"`
	Fun     float32 `json:"fun"`
	Comfort float32 `json:"comfort"`
}

// DefaultNeeds is the state of a freshly arrived citizen.
func DefaultNeeds() Needs {
	return Needs{Hunger: 80, Energy: 80, Social: 70, Fun: 70, Comfort: 70}
}

// Average returns the mean satisfaction.
func (n Needs) Average() float32 {
	return (n.Hunger + n.Energy + n.Social + n.Fun + n.Comfort) / 5
}

// Family links a citizen to relatives by entity id.
type Family struct {
	Partner ecs.Entity `json:"partner"`
	Parent  ecs.Entity `json:"parent"`
}

// ActivityTimer counts ticks spent in the current state.
type ActivityTimer struct {
	Ticks uint32 `json:"ticks"`
}

// TransportMode is how a citizen commutes.
type TransportMode uint8

const (
	Walk TransportMode = iota
	Bike
	Transit
	Drive
)

var modeNames = []string{"Walk", "Bike", "Transit", "Drive"}

func (m TransportMode) String() string { return enumName(modeNames, int(m), "TransportMode") }

func (m TransportMode) Valid() bool { return int(m) < len(modeNames) }

func (m TransportMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *TransportMode) UnmarshalText(b []byte) error {
	v, err := enumParse(modeNames, b, "transport mode")
	*m = TransportMode(v)
	return err
}

// CellsPerTick is the travel speed of a mode on open ground.
func (m TransportMode) CellsPerTick() float32 {
	switch m {
	case Walk:
		return 0.08
	case Bike:
		return 0.2
	case Transit:
		return 0.35
	default:
		return 0.5
	}
}

// ChosenTransportMode wraps the mode.
type ChosenTransportMode struct {
	Mode TransportMode `json:"mode"`
}

// PopulationTier is a socio-economic band.
type PopulationTier uint8

const (
	TierLow PopulationTier = iota
	TierMiddle
	TierHigh
)

var tierNames = []string{"Low", "Middle", "High"}

func (t PopulationTier) String() string { return enumName(tierNames, int(t), "PopulationTier") }

func (t PopulationTier) Valid() bool { return int(t) < len(tierNames) }

func (t PopulationTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *PopulationTier) UnmarshalText(b []byte) error {
	v, err := enumParse(tierNames, b, "population tier")
	*t = PopulationTier(v)
	return err
}

// PopulationTierComp wraps the tier.
type PopulationTierComp struct {
	Tier PopulationTier `json:"tier"`
}
