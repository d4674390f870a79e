package component

// CoverageBit is one category in the per-cell service coverage bitfield.
type CoverageBit uint8

const (
	CoverHealth CoverageBit = 1 << iota
	CoverEducation
	CoverPolice
	CoverFire
	CoverPark
	CoverEntertainment
	CoverTransport
	CoverGarbage
)

// ServiceType is a civic building kind.
type ServiceType uint8

const (
	Hospital ServiceType = iota
	Clinic
	School
	University
	PoliceStation
	FireStation
	Park
	Plaza
	Stadium
	Museum
	BusDepot
	TrainStation
	Landfill
	RecyclingCenter
)

var serviceNames = []string{
	"Hospital", "Clinic", "School", "University", "PoliceStation", "FireStation",
	"Park", "Plaza", "Stadium", "Museum", "BusDepot", "TrainStation",
	"Landfill", "RecyclingCenter",
}

type serviceProps struct {
	coverage CoverageBit
	radius   float32 // world units
	cost     float64
	upkeep   float64 // per month
	width    int
	height   int
	priority LoadPriority
	noise    uint8
}

var serviceTable = []serviceProps{
	Hospital:        {CoverHealth, 400, 20000, 1500, 2, 2, PriorityCritical, 20},
	Clinic:          {CoverHealth, 200, 6000, 500, 1, 1, PriorityCritical, 5},
	School:          {CoverEducation, 240, 8000, 600, 1, 1, PriorityHigh, 15},
	University:      {CoverEducation, 480, 30000, 2000, 2, 2, PriorityHigh, 15},
	PoliceStation:   {CoverPolice, 320, 10000, 800, 1, 1, PriorityCritical, 10},
	FireStation:     {CoverFire, 320, 10000, 800, 1, 1, PriorityCritical, 15},
	Park:            {CoverPark, 128, 2000, 100, 1, 1, PriorityLow, 0},
	Plaza:           {CoverPark, 96, 3000, 150, 1, 1, PriorityLow, 10},
	Stadium:         {CoverEntertainment, 480, 40000, 2500, 2, 2, PriorityLow, 60},
	Museum:          {CoverEntertainment, 320, 15000, 700, 1, 1, PriorityNormal, 5},
	BusDepot:        {CoverTransport, 320, 8000, 700, 1, 1, PriorityHigh, 25},
	TrainStation:    {CoverTransport, 560, 35000, 2200, 2, 2, PriorityHigh, 40},
	Landfill:        {CoverGarbage, 640, 12000, 900, 2, 2, PriorityLow, 20},
	RecyclingCenter: {CoverGarbage, 400, 14000, 1000, 1, 1, PriorityLow, 15},
}

func (s ServiceType) String() string { return enumName(serviceNames, int(s), "ServiceType") }

func (s ServiceType) Valid() bool { return int(s) < len(serviceTable) }

// Coverage is the bit this service stamps into the coverage grid.
func (s ServiceType) Coverage() CoverageBit { return serviceTable[s].coverage }

// Radius is the coverage radius in world units.
func (s ServiceType) Radius() float32 { return serviceTable[s].radius }

func (s ServiceType) Cost() float64 { return serviceTable[s].cost }

func (s ServiceType) MonthlyUpkeep() float64 { return serviceTable[s].upkeep }

// Footprint returns the building size in cells.
func (s ServiceType) Footprint() (int, int) { return serviceTable[s].width, serviceTable[s].height }

func (s ServiceType) Priority() LoadPriority { return serviceTable[s].priority }

// Noise is the noise level emitted at the service's cell.
func (s ServiceType) Noise() uint8 { return serviceTable[s].noise }

func (s ServiceType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ServiceType) UnmarshalText(b []byte) error {
	v, err := enumParse(serviceNames, b, "service type")
	*s = ServiceType(v)
	return err
}

// ServiceBuilding is a civic building that stamps coverage.
type ServiceBuilding struct {
	ServiceType ServiceType `json:"service_type"`
	GridX       int         `json:"grid_x"`
	GridY       int         `json:"grid_y"`
	Radius      float32     `json:"radius"`
}

// LoadPriority orders cells for rolling blackouts. Low sheds first.
type LoadPriority uint8

const (
	PriorityLow LoadPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = []string{"Low", "Normal", "High", "Critical"}

func (p LoadPriority) String() string { return enumName(priorityNames, int(p), "LoadPriority") }

func (p LoadPriority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *LoadPriority) UnmarshalText(b []byte) error {
	v, err := enumParse(priorityNames, b, "load priority")
	*p = LoadPriority(v)
	return err
}
