package world

// DistrictSize is the edge length, in cells, of one statistical district.
const DistrictSize = 16

// DistrictMap partitions the grid into square districts for aggregation.
type DistrictMap struct {
	Cols int
	Rows int
}

// NewDistrictMap covers a width×height grid.
func NewDistrictMap(width, height int) DistrictMap {
	return DistrictMap{
		Cols: (width + DistrictSize - 1) / DistrictSize,
		Rows: (height + DistrictSize - 1) / DistrictSize,
	}
}

// Count is the number of districts.
func (d DistrictMap) Count() int { return d.Cols * d.Rows }

// DistrictOf returns the district index containing cell (x, y).
func (d DistrictMap) DistrictOf(x, y int) int {
	return (y/DistrictSize)*d.Cols + x/DistrictSize
}
