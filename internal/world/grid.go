// Package world provides the city grid, its cells, and the road network
// laid on top of it.
package world

import (
	"errors"
	"fmt"
	"math"
)

// Grid dimensions and the world-space size of one cell.
const (
	DefaultWidth  = 256
	DefaultHeight = 256
	CellSize      = float32(16.0) // world units per cell edge
)

// ErrOutOfBounds is returned when a coordinate falls outside the grid.
var ErrOutOfBounds = errors.New("out of bounds")

// CellType is the base terrain of a cell.
type CellType uint8

const (
	Grass CellType = iota
	Water
	Road
)

var cellTypeNames = [...]string{"Grass", "Water", "Road"}

func (c CellType) String() string {
	if int(c) < len(cellTypeNames) {
		return cellTypeNames[c]
	}
	return fmt.Sprintf("CellType(%d)", c)
}

func (c CellType) Valid() bool { return int(c) < len(cellTypeNames) }

// Cell is one grid square.
type Cell struct {
	Type       CellType
	RoadType   RoadType // meaningful only when Type == Road
	Zone       ZoneType
	HasPower   bool
	HasWater   bool
	Elevation  float32 // metres
	BuildingID uint64  // 0 = no building
}

// HasBuilding reports whether a building occupies the cell.
func (c *Cell) HasBuilding() bool { return c.BuildingID != 0 }

// Pos is an integer grid coordinate.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is a row-major W×H array of cells.
type Grid struct {
	Width  int
	Height int
	Cells  []Cell
}

// NewGrid allocates a grid of grass cells.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Cells:  make([]Cell, width*height),
	}
}

// InBounds reports whether (x, y) is a valid cell coordinate.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Index returns the row-major index of (x, y). The coordinate must be in bounds.
func (g *Grid) Index(x, y int) int {
	if Debug && !g.InBounds(x, y) {
		panic(fmt.Sprintf("world: index (%d,%d) outside %dx%d grid", x, y, g.Width, g.Height))
	}
	return y*g.Width + x
}

// Coords is the inverse of Index.
func (g *Grid) Coords(idx int) (int, int) {
	return idx % g.Width, idx / g.Width
}

// Get returns a copy of the cell at (x, y). Out-of-bounds reads return the
// zero cell (and panic in debug builds).
func (g *Grid) Get(x, y int) Cell {
	if !g.InBounds(x, y) {
		if Debug {
			panic(fmt.Sprintf("world: get (%d,%d) outside %dx%d grid", x, y, g.Width, g.Height))
		}
		return Cell{}
	}
	return g.Cells[y*g.Width+x]
}

// Mut returns a pointer to the cell at (x, y), or nil when out of bounds.
func (g *Grid) Mut(x, y int) *Cell {
	if !g.InBounds(x, y) {
		if Debug {
			panic(fmt.Sprintf("world: mut (%d,%d) outside %dx%d grid", x, y, g.Width, g.Height))
		}
		return nil
	}
	return &g.Cells[y*g.Width+x]
}

// Neighbor offsets in N, S, E, W order.
var neighborOffsets = [4][2]int{{0, -1}, {0, 1}, {1, 0}, {-1, 0}}

// Neighbors4 returns the in-bounds orthogonal neighbours of (x, y) in
// N, S, E, W order along with how many of the four slots are valid.
func (g *Grid) Neighbors4(x, y int) ([4]Pos, int) {
	var out [4]Pos
	n := 0
	for _, d := range neighborOffsets {
		nx, ny := x+d[0], y+d[1]
		if g.InBounds(nx, ny) {
			out[n] = Pos{X: nx, Y: ny}
			n++
		}
	}
	return out, n
}

// GridToWorld returns the world-space centre of cell (gx, gy).
func GridToWorld(gx, gy int) (float32, float32) {
	return (float32(gx) + 0.5) * CellSize, (float32(gy) + 0.5) * CellSize
}

// WorldToGrid maps a world-space point to the containing cell. ok is false
// when the point lies outside the grid.
func (g *Grid) WorldToGrid(wx, wy float32) (gx, gy int, ok bool) {
	gx = int(math.Floor(float64(wx / CellSize)))
	gy = int(math.Floor(float64(wy / CellSize)))
	return gx, gy, g.InBounds(gx, gy)
}

// CountType returns how many cells have the given type.
func (g *Grid) CountType(t CellType) int {
	n := 0
	for i := range g.Cells {
		if g.Cells[i].Type == t {
			n++
		}
	}
	return n
}

// AdjacentToRoad reports whether any orthogonal neighbour of (x, y) is a road.
func (g *Grid) AdjacentToRoad(x, y int) bool {
	nbrs, n := g.Neighbors4(x, y)
	for _, p := range nbrs[:n] {
		if g.Cells[p.Y*g.Width+p.X].Type == Road {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height, Cells: make([]Cell, len(g.Cells))}
	copy(c.Cells, g.Cells)
	return c
}
