package propagation

// Soil contamination tuning.
const (
	SoilDecay = 0.995
	SoilMax   = 100
)

// SoilSource deposits contamination at a cell each slow tick.
type SoilSource struct {
	X, Y   int
	Amount float32
}

// SoilGrid accumulates contamination across slow ticks.
type SoilGrid struct {
	Field[float32]
}

// NewSoilGrid allocates clean soil.
func NewSoilGrid(width, height int) *SoilGrid {
	return &SoilGrid{Field: NewField[float32](width, height)}
}

// UpdateSoil decays every cell and adds this slow tick's deposits.
func UpdateSoil(s *SoilGrid, sources []SoilSource) {
	for i, v := range s.Data {
		v *= SoilDecay
		if v < 0.01 {
			v = 0
		}
		s.Data[i] = v
	}
	for _, src := range sources {
		if !s.InBounds(src.X, src.Y) {
			continue
		}
		i := src.Y*s.Width + src.X
		s.Data[i] = min(s.Data[i]+src.Amount, SoilMax)
	}
}
