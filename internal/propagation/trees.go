package propagation

import "github.com/talgya/gridcity/internal/world"

// TreeGrowthPerSlowTick is the maturity gained by a tree each slow tick.
const TreeGrowthPerSlowTick = 0.002

// TreeGrid stores tree maturity in [0,1]. Zero means no tree.
type TreeGrid struct {
	Field[float32]
}

// NewTreeGrid allocates an empty canopy.
func NewTreeGrid(width, height int) *TreeGrid {
	return &TreeGrid{Field: NewField[float32](width, height)}
}

// Seed plants trees from a canopy density map, young trees at 0.2 maturity
// scaled by density.
func (t *TreeGrid) Seed(canopy []float32) {
	for i, c := range canopy {
		if i >= len(t.Data) {
			break
		}
		if c > 0 {
			t.Data[i] = min(0.2+c, 1)
		}
	}
}

// Plant places a sapling at (x, y) if the cell has no tree.
func (t *TreeGrid) Plant(x, y int) {
	if t.InBounds(x, y) && t.Get(x, y) == 0 {
		t.Set(x, y, 0.05)
	}
}

// Neighbours counts 4-neighbours that hold a tree.
func (t *TreeGrid) Neighbours(x, y int) int {
	n := 0
	for _, d := range [4][2]int{{0, -1}, {0, 1}, {1, 0}, {-1, 0}} {
		if t.Get(x+d[0], y+d[1]) > 0 {
			n++
		}
	}
	return n
}

// Count returns the number of cells holding a tree.
func (t *TreeGrid) Count() int {
	n := 0
	for _, v := range t.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// GrowTrees ages every tree and removes trees from cells that are no
// longer open grass.
func GrowTrees(t *TreeGrid, g *world.Grid) {
	for i, c := range g.Cells {
		if i >= len(t.Data) {
			break
		}
		if c.Type != world.Grass || c.HasBuilding() {
			t.Data[i] = 0
			continue
		}
		if t.Data[i] > 0 {
			t.Data[i] = min(t.Data[i]+TreeGrowthPerSlowTick, 1)
		}
	}
}
