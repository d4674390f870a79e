package overlay

import (
	"strings"
	"testing"

	"github.com/talgya/gridcity/internal/citizens"
	"github.com/talgya/gridcity/internal/component"
	"github.com/talgya/gridcity/internal/propagation"
	"github.com/talgya/gridcity/internal/world"
)

func TestCellChar(t *testing.T) {
	cases := []struct {
		name string
		cell world.Cell
		want byte
	}{
		{"grass", world.Cell{}, '.'},
		{"water", world.Cell{Type: world.Water}, '~'},
		{"water beats zone", world.Cell{Type: world.Water, Zone: world.Industrial}, '~'},
		{"local", world.Cell{Type: world.Road, RoadType: world.Local}, '#'},
		{"one-way", world.Cell{Type: world.Road, RoadType: world.OneWay}, '#'},
		{"avenue", world.Cell{Type: world.Road, RoadType: world.Avenue}, '='},
		{"boulevard", world.Cell{Type: world.Road, RoadType: world.Boulevard}, 'H'},
		{"highway", world.Cell{Type: world.Road, RoadType: world.Highway}, '%'},
		{"zoned residential", world.Cell{Zone: world.ResidentialLow}, 'r'},
		{"zoned high density", world.Cell{Zone: world.ResidentialHigh}, 'd'},
		{"zoned industrial", world.Cell{Zone: world.Industrial}, 'i'},
		{"built residential", world.Cell{Zone: world.ResidentialLow, BuildingID: 9}, 'R'},
		{"built commercial", world.Cell{Zone: world.CommercialHigh, BuildingID: 9}, 'K'},
		{"unzoned building", world.Cell{BuildingID: 9}, 'B'},
	}
	for _, tc := range cases {
		if got := CellChar(tc.cell); got != tc.want {
			t.Errorf("%s: CellChar = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func mapRows(m string) []string {
	var rows []string
	for _, line := range strings.Split(m, "\n") {
		if i := strings.Index(line, " | "); i >= 0 {
			rows = append(rows, line[i+3:])
		}
	}
	return rows
}

func TestOverviewMapBlocks(t *testing.T) {
	g := world.NewGrid(256, 256)
	// A block with water, a road and zone paint shows water.
	g.Mut(1, 1).Type = world.Water
	g.Mut(2, 2).Type = world.Road
	g.Mut(3, 3).Zone = world.ResidentialLow
	// A block with a road and a building shows the road.
	g.Mut(8, 0).Type = world.Road
	g.Mut(8, 0).RoadType = world.Highway
	g.Mut(9, 1).BuildingID = 4
	// Zone paint alone.
	g.Mut(255, 255).Zone = world.Office

	rows := mapRows(OverviewMap(g))
	if len(rows) != OverviewSize {
		t.Fatalf("got %d rows, want %d", len(rows), OverviewSize)
	}
	for i, r := range rows {
		if len(r) != OverviewSize {
			t.Fatalf("row %d has %d columns, want %d", i, len(r), OverviewSize)
		}
	}
	if rows[0][0] != '~' {
		t.Errorf("block (0,0) = %q, want '~'", rows[0][0])
	}
	if rows[0][2] != '%' {
		t.Errorf("block (2,0) = %q, want '%%'", rows[0][2])
	}
	if rows[63][63] != 'o' {
		t.Errorf("block (63,63) = %q, want 'o'", rows[63][63])
	}
	if rows[10][10] != '.' {
		t.Errorf("empty block = %q, want '.'", rows[10][10])
	}
}

func TestOverviewMapSmallGrid(t *testing.T) {
	g := world.NewGrid(20, 10)
	g.Mut(19, 9).Type = world.Water
	m := OverviewMap(g)
	rows := mapRows(m)
	if len(rows) != 10 || len(rows[0]) != 20 {
		t.Fatalf("small grid map is %dx%d, want 20x10", len(rows[0]), len(rows))
	}
	if rows[9][19] != '~' {
		t.Errorf("corner = %q, want '~'", rows[9][19])
	}
	if !strings.Contains(m, "Legend:") {
		t.Error("map has no legend")
	}
}

func TestDetailMapCrops(t *testing.T) {
	g := world.NewGrid(64, 64)
	for x := 20; x <= 30; x++ {
		g.Mut(x, 40).Type = world.Road
	}
	g.Mut(25, 41).Zone = world.CommercialLow

	m := DetailMap(g, 2)
	rows := mapRows(m)
	if len(rows) != 6 { // y 38..43
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	if len(rows[0]) != 15 { // x 18..32
		t.Fatalf("row width %d, want 15", len(rows[0]))
	}
	if rows[2] != "..###########.." {
		t.Errorf("road row = %q", rows[2])
	}
	if rows[3][7] != 'c' {
		t.Errorf("zone cell = %q, want 'c'", rows[3][7])
	}
	if !strings.Contains(m, "  40 | ") {
		t.Error("row labels missing")
	}
}

func TestDetailMapEmpty(t *testing.T) {
	if m := DetailMap(world.NewGrid(8, 8), 1); !strings.HasPrefix(m, "(empty grid") {
		t.Errorf("empty grid map = %q", m)
	}
}

func TestDetailRegionClamps(t *testing.T) {
	g := world.NewGrid(10, 10)
	rows := mapRows(DetailRegion(g, -5, -5, 3, 2))
	if len(rows) != 3 || len(rows[0]) != 4 {
		t.Fatalf("clamped region is %dx%d, want 4x3", len(rows[0]), len(rows))
	}
	if DetailRegion(g, 12, 12, 20, 20) != "" {
		t.Error("region outside the grid should render nothing")
	}
}

func TestColumnHeader(t *testing.T) {
	cases := []struct {
		x0, width int
		want      string
	}{
		{18, 15, "  20   25   30"},
		{16, 10, "16  20   25"},
		{0, 12, "0    5    10"},
	}
	for _, tc := range cases {
		if got := columnHeader(tc.x0, tc.width); got != rowMargin+tc.want {
			t.Errorf("columnHeader(%d, %d) = %q, want %q", tc.x0, tc.width, got, rowMargin+tc.want)
		}
	}
}

func TestNetworkSummary(t *testing.T) {
	g := world.NewGrid(12, 12)
	view := propagation.NewNetworkView(12, 12)
	sources := []propagation.UtilitySourceRef{
		{Entity: 1, Source: component.UtilitySource{UtilityType: component.CoalPlant, Range: 3, GridX: 2, GridY: 2}},
		{Entity: 2, Source: component.UtilitySource{UtilityType: component.WaterTower, Range: 2, GridX: 9, GridY: 9}},
	}
	propagation.UpdateUtilities(g, sources, propagation.UtilityParams{}, view)

	n := NetworkSummary(view)
	if len(n.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(n.Sources))
	}
	if n.PowerCells != int(n.Sources[0].CellsCovered) || n.PowerCells == 0 {
		t.Errorf("power cells = %d, source covered %d", n.PowerCells, n.Sources[0].CellsCovered)
	}
	if n.WaterCells != int(n.Sources[1].CellsCovered) || n.WaterCells == 0 {
		t.Errorf("water cells = %d, source covered %d", n.WaterCells, n.Sources[1].CellsCovered)
	}
	if n.MaxPower != 3 || n.MaxWater != 2 {
		t.Errorf("max distances = %d/%d, want 3/2", n.MaxPower, n.MaxWater)
	}
	if len(n.Idle) != 0 {
		t.Errorf("idle = %v, want none", n.Idle)
	}

	if z := NetworkSummary(nil); z.PowerCells != 0 || z.Sources != nil {
		t.Errorf("nil view summary = %+v", z)
	}
}

func TestTierStats(t *testing.T) {
	got := TierStats(citizens.TierStats{Low: 2, Middle: 1, High: 1})
	if got.Total != 4 || got.LowPercent != 50 || got.MiddlePercent != 25 || got.HighPercent != 25 {
		t.Errorf("TierStats = %+v", got)
	}
	if empty := TierStats(citizens.TierStats{}); empty.LowPercent != 0 || empty.Total != 0 {
		t.Errorf("empty TierStats = %+v", empty)
	}
}
