// Terrain generation using layered simplex noise. Produces elevation,
// lakes, and an initial tree canopy for a new city.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Width        int
	Height       int
	Seed         int64
	WaterLevel   float64 // normalized elevation below which cells are water (0.0–1.0)
	MaxElevation float64 // metres at normalized elevation 1.0
	ForestLevel  float64 // canopy noise threshold for initial trees
	ClearRadius  float64 // fraction of the map around the centre kept dry
}

// DefaultGenConfig returns the standard 256×256 terrain settings.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		Seed:         42,
		WaterLevel:   0.32,
		MaxElevation: 60,
		ForestLevel:  0.68,
		ClearRadius:  0.2,
	}
}

// Terrain is the output of Generate.
type Terrain struct {
	Grid   *Grid
	Canopy []float32 // initial tree maturity per cell, 0 = no tree
}

// Generate builds a grid from noise. The same config always yields the
// same terrain.
func Generate(cfg GenConfig) *Terrain {
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	forestNoise := opensimplex.NewNormalized(cfg.Seed + 1)

	g := NewGrid(cfg.Width, cfg.Height)
	canopy := make([]float32, cfg.Width*cfg.Height)

	cx, cy := float64(cfg.Width)/2, float64(cfg.Height)/2
	maxR := math.Hypot(cx, cy)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)
			elev := octaveNoise(elevNoise, fx, fy, 5, 0.012, 0.5)

			// Keep the core of the map buildable: raise elevation toward the centre.
			dist := math.Hypot(fx-cx, fy-cy) / maxR
			if dist < cfg.ClearRadius {
				lift := (cfg.ClearRadius - dist) / cfg.ClearRadius
				elev = elev + (1-elev)*lift*0.6
			}

			idx := y*cfg.Width + x
			c := &g.Cells[idx]
			c.Elevation = float32(elev * cfg.MaxElevation)
			if elev < cfg.WaterLevel {
				c.Type = Water
				continue
			}

			forest := octaveNoise(forestNoise, fx, fy, 3, 0.03, 0.5)
			if forest > cfg.ForestLevel {
				canopy[idx] = float32(math.Min(1, (forest-cfg.ForestLevel)/(1-cfg.ForestLevel)*2))
			}
		}
	}

	return &Terrain{Grid: g, Canopy: canopy}
}

// octaveNoise samples multi-octave noise normalized to [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
