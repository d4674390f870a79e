package propagation

import "github.com/talgya/gridcity/internal/world"

// Walkability tuning.
const (
	walkPerService = 15
	walkPerShop    = 5
	walkShopRadius = 3
	WalkabilityMax = 100
)

// WalkabilityGrid scores each cell 0..100 on what is reachable on foot.
type WalkabilityGrid struct {
	Field[uint8]
}

// NewWalkabilityGrid allocates a zeroed grid.
func NewWalkabilityGrid(width, height int) *WalkabilityGrid {
	return &WalkabilityGrid{Field: NewField[uint8](width, height)}
}

// UpdateWalkability scores each cell from its coverage categories and the
// commercial buildings within a short walk.
func UpdateWalkability(wg *WalkabilityGrid, g *world.Grid, cov *CoverageGrid) {
	w, h := g.Width, g.Height
	shops := make([]int32, w*h) // prefix sums of commercial building cells
	for y := 0; y < h; y++ {
		var row int32
		for x := 0; x < w; x++ {
			c := g.Cells[y*w+x]
			if c.HasBuilding() && c.Zone.IsCommercial() {
				row++
			}
			above := int32(0)
			if y > 0 {
				above = shops[(y-1)*w+x]
			}
			shops[y*w+x] = row + above
		}
	}
	rect := func(x0, y0, x1, y1 int) int32 {
		x0, y0 = max(x0, 0), max(y0, 0)
		x1, y1 = min(x1, w-1), min(y1, h-1)
		s := shops[y1*w+x1]
		if x0 > 0 {
			s -= shops[y1*w+x0-1]
		}
		if y0 > 0 {
			s -= shops[(y0-1)*w+x1]
		}
		if x0 > 0 && y0 > 0 {
			s += shops[(y0-1)*w+x0-1]
		}
		return s
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if g.Cells[i].Type == world.Water {
				wg.Data[i] = 0
				continue
			}
			score := 0
			if cov != nil {
				score += cov.Count(x, y) * walkPerService
			}
			score += int(rect(x-walkShopRadius, y-walkShopRadius, x+walkShopRadius, y+walkShopRadius)) * walkPerShop
			wg.Data[i] = uint8(min(score, WalkabilityMax))
		}
	}
}
