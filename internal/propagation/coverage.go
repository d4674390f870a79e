package propagation

import (
	"math"

	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/world"
)

// CoverageGrid is a per-cell bitfield of service categories in reach.
type CoverageGrid struct {
	Field[uint8]
	rebuilds uint64
}

// NewCoverageGrid allocates an empty coverage grid.
func NewCoverageGrid(width, height int) *CoverageGrid {
	return &CoverageGrid{Field: NewField[uint8](width, height)}
}

// Has reports whether the cell carries the given coverage bit.
func (c *CoverageGrid) Has(x, y int, bit component.CoverageBit) bool {
	return c.Get(x, y)&uint8(bit) != 0
}

// Rebuilds counts how many times the grid was re-stamped.
func (c *CoverageGrid) Rebuilds() uint64 { return c.rebuilds }

// Rebuild clears every cell and stamps each service's radius using
// Euclidean distance measured in cells.
func (c *CoverageGrid) Rebuild(services []component.ServiceBuilding) {
	c.Clear()
	c.rebuilds++
	for _, s := range services {
		radius := s.Radius
		if radius <= 0 {
			radius = s.ServiceType.Radius()
		}
		rc := radius / world.CellSize
		r := int(math.Ceil(float64(rc)))
		bit := uint8(s.ServiceType.Coverage())
		r2 := rc * rc
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if float32(dx*dx+dy*dy) > r2 {
					continue
				}
				x, y := s.GridX+dx, s.GridY+dy
				if !c.InBounds(x, y) {
					continue
				}
				c.Data[y*c.Width+x] |= bit
			}
		}
	}
}

// Count returns the number of categories covering a cell.
func (c *CoverageGrid) Count(x, y int) int {
	v := c.Get(x, y)
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
