// Package overlay renders read-only views of a city for agents and
// spectators: ASCII maps, utility network summaries, and tier tables.
package overlay

import (
	"fmt"
	"strings"

	"github.com/talgya/gridcity/internal/world"
)

// OverviewSize is the side of the overview map in characters.
const OverviewSize = 64

// Grass is the character for an empty cell.
const Grass = '.'

// zoneChars maps each zone to its lowercase (zoned, unbuilt) letter. The
// uppercase letter marks a building in that zone.
var zoneChars = [world.ZoneCount]byte{
	world.ZoneNone:          Grass,
	world.ResidentialLow:    'r',
	world.ResidentialMedium: 'm',
	world.ResidentialHigh:   'd',
	world.CommercialLow:     'c',
	world.CommercialHigh:    'k',
	world.Industrial:        'i',
	world.Office:            'o',
	world.MixedUse:          'x',
}

// CellChar is the map character for one cell, by priority: water, road,
// building, zone paint, grass.
func CellChar(c world.Cell) byte {
	switch {
	case c.Type == world.Water:
		return '~'
	case c.Type == world.Road:
		return roadChar(c.RoadType)
	case c.HasBuilding():
		if c.Zone == world.ZoneNone || !c.Zone.Valid() {
			return 'B'
		}
		return zoneChars[c.Zone] - 'a' + 'A'
	case c.Zone != world.ZoneNone && c.Zone.Valid():
		return zoneChars[c.Zone]
	}
	return Grass
}

func roadChar(rt world.RoadType) byte {
	switch rt {
	case world.Avenue:
		return '='
	case world.Boulevard:
		return 'H'
	case world.Highway:
		return '%'
	}
	return '#'
}

// priority ranks characters when a block of cells collapses to one.
func priority(ch byte) int {
	switch {
	case ch == '~':
		return 4
	case ch == '#' || ch == '=' || ch == 'H' || ch == '%':
		return 3
	case ch >= 'A' && ch <= 'Z':
		return 2
	case ch >= 'a' && ch <= 'z':
		return 1
	}
	return 0
}

// OverviewMap collapses the grid to at most OverviewSize×OverviewSize
// characters. Each character shows the highest-priority cell in its
// block. Rows and columns carry grid coordinates, and a legend follows.
func OverviewMap(g *world.Grid) string {
	block := max(1, (max(g.Width, g.Height)+OverviewSize-1)/OverviewSize)
	cols := (g.Width + block - 1) / block
	rows := (g.Height + block - 1) / block

	var b strings.Builder
	b.WriteString(rowMargin)
	for col := 0; col < cols; col += 8 {
		label := fmt.Sprintf("%-8d", col*block)
		if col+8 >= cols {
			label = strings.TrimRight(label, " ")
		}
		b.WriteString(label)
	}
	b.WriteByte('\n')

	for row := 0; row < rows; row++ {
		if row%4 == 0 {
			fmt.Fprintf(&b, "%4d | ", row*block)
		} else {
			b.WriteString("     | ")
		}
		for col := 0; col < cols; col++ {
			b.WriteByte(blockChar(g, col*block, row*block, block))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	writeLegend(&b)
	return b.String()
}

func blockChar(g *world.Grid, x0, y0, block int) byte {
	best := byte(Grass)
	bestPri := 0
	for y := y0; y < y0+block && y < g.Height; y++ {
		for x := x0; x < x0+block && x < g.Width; x++ {
			ch := CellChar(g.Get(x, y))
			if p := priority(ch); p > bestPri {
				best, bestPri = ch, p
			}
		}
	}
	return best
}

// DetailMap renders one character per cell, cropped to the bounding box
// of non-grass cells plus margin on every side.
func DetailMap(g *world.Grid, margin int) string {
	x0, y0, x1, y1, ok := contentBounds(g)
	if !ok {
		return "(empty grid: no roads, zones or buildings)"
	}
	return DetailRegion(g, x0-margin, y0-margin, x1+margin, y1+margin)
}

// DetailRegion renders the inclusive rectangle (x0,y0)-(x1,y1), clamped
// to the grid, at full resolution.
func DetailRegion(g *world.Grid, x0, y0, x1, y1 int) string {
	x0, y0 = max(0, x0), max(0, y0)
	x1, y1 = min(g.Width-1, x1), min(g.Height-1, y1)
	if x0 > x1 || y0 > y1 {
		return ""
	}

	var b strings.Builder
	b.WriteString(columnHeader(x0, x1-x0+1))
	b.WriteByte('\n')
	for y := y0; y <= y1; y++ {
		fmt.Fprintf(&b, "%4d | ", y)
		for x := x0; x <= x1; x++ {
			b.WriteByte(CellChar(g.Get(x, y)))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	writeLegend(&b)
	return b.String()
}

func contentBounds(g *world.Grid) (x0, y0, x1, y1 int, ok bool) {
	x0, y0 = g.Width, g.Height
	x1, y1 = -1, -1
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if CellChar(g.Get(x, y)) == Grass {
				continue
			}
			x0, y0 = min(x0, x), min(y0, y)
			x1, y1 = max(x1, x), max(y1, y)
		}
	}
	return x0, y0, x1, y1, x1 >= 0
}

// rowMargin is the width of the "NNNN | " row label.
const rowMargin = "       "

// columnHeader labels every 10th column on wide maps and every 5th on
// narrow ones. The first column is labelled too when its label fits
// before the next one.
func columnHeader(x0, width int) string {
	interval := 5
	if width > 40 {
		interval = 10
	}
	var b strings.Builder
	b.WriteString(rowMargin)
	for col := 0; col < width; {
		x := x0 + col
		label := fmt.Sprint(x)
		first := col == 0 && interval-x%interval > len(label)
		if x%interval == 0 || first {
			b.WriteString(label)
			col += len(label)
			continue
		}
		b.WriteByte(' ')
		col++
	}
	return strings.TrimRight(b.String(), " ")
}

func writeLegend(b *strings.Builder) {
	b.WriteString("Legend:\n")
	b.WriteString("  .=Grass  ~=Water  #=Road(Local)  ==Road(Avenue)  H=Road(Boulevard)  %=Road(Highway)\n")
	b.WriteString("  r=ResLow  m=ResMed  d=ResHigh  c=ComLow  k=ComHigh  i=Industrial  o=Office  x=MixedUse\n")
	b.WriteString("  Uppercase zone letter = building in that zone  B=Building(unzoned)\n")
}
