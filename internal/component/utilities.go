package component

// UtilityType is a power or water source kind.
type UtilityType uint8

const (
	CoalPlant UtilityType = iota
	GasPlant
	NuclearPlant
	SolarFarm
	WindFarm
	WaterTower
	WaterTreatment
	PumpingStation
)

var utilityNames = []string{
	"CoalPlant", "GasPlant", "NuclearPlant", "SolarFarm", "WindFarm",
	"WaterTower", "WaterTreatment", "PumpingStation",
}

type utilityProps struct {
	power      bool
	rangeCells uint32
	capacityMW float32
	fuelCost   float32 // $/MWh
	cost       float64
	upkeep     float64
	pollution  uint8 // quanta emitted per tick at full output
	noise      uint8
}

var utilityTable = []utilityProps{
	CoalPlant:      {true, 30, 200, 30, 25000, 1800, 15, 40},
	GasPlant:       {true, 28, 150, 45, 20000, 1500, 8, 30},
	NuclearPlant:   {true, 40, 800, 12, 90000, 5000, 0, 20},
	SolarFarm:      {true, 20, 50, 0, 15000, 400, 0, 0},
	WindFarm:       {true, 20, 40, 0, 12000, 350, 0, 25},
	WaterTower:     {false, 25, 0, 0, 5000, 300, 0, 0},
	WaterTreatment: {false, 40, 0, 0, 18000, 1100, 2, 15},
	PumpingStation: {false, 30, 0, 0, 9000, 600, 0, 10},
}

func (u UtilityType) String() string { return enumName(utilityNames, int(u), "UtilityType") }

func (u UtilityType) Valid() bool { return int(u) < len(utilityTable) }

// IsPower reports whether the utility feeds the electric grid.
func (u UtilityType) IsPower() bool { return utilityTable[u].power }

// Range is the base BFS range in cells.
func (u UtilityType) Range() uint32 { return utilityTable[u].rangeCells }

func (u UtilityType) CapacityMW() float32 { return utilityTable[u].capacityMW }

func (u UtilityType) FuelCost() float32 { return utilityTable[u].fuelCost }

func (u UtilityType) Cost() float64 { return utilityTable[u].cost }

func (u UtilityType) MonthlyUpkeep() float64 { return utilityTable[u].upkeep }

func (u UtilityType) Pollution() uint8 { return utilityTable[u].pollution }

func (u UtilityType) Noise() uint8 { return utilityTable[u].noise }

func (u UtilityType) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *UtilityType) UnmarshalText(b []byte) error {
	v, err := enumParse(utilityNames, b, "utility type")
	*u = UtilityType(v)
	return err
}

// UtilitySource propagates power or water through the grid.
type UtilitySource struct {
	UtilityType UtilityType `json:"utility_type"`
	Range       uint32      `json:"range"`
	GridX       int         `json:"grid_x"`
	GridY       int         `json:"grid_y"`
}

// PowerPlant participates in merit-order dispatch.
type PowerPlant struct {
	PlantType       UtilityType `json:"plant_type"`
	CapacityMW      float32     `json:"capacity_mw"`
	CurrentOutputMW float32     `json:"current_output_mw"`
	FuelCost        float32     `json:"fuel_cost"`
	GridX           int         `json:"grid_x"`
	GridY           int         `json:"grid_y"`
}

// NewPowerPlant returns a plant at its construction defaults.
func NewPowerPlant(t UtilityType, x, y int) PowerPlant {
	return PowerPlant{
		PlantType:  t,
		CapacityMW: t.CapacityMW(),
		FuelCost:   t.FuelCost(),
		GridX:      x,
		GridY:      y,
	}
}
