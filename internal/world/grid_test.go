package world

import "testing"

func TestNeighbors4Counts(t *testing.T) {
	g := NewGrid(8, 6)
	cases := []struct {
		x, y int
		want int
	}{
		{0, 0, 2}, {7, 0, 2}, {0, 5, 2}, {7, 5, 2},
		{3, 0, 3}, {3, 5, 3}, {0, 2, 3}, {7, 2, 3},
		{3, 3, 4},
	}
	for _, tc := range cases {
		if _, n := g.Neighbors4(tc.x, tc.y); n != tc.want {
			t.Errorf("Neighbors4(%d,%d) count = %d, want %d", tc.x, tc.y, n, tc.want)
		}
	}
}

func TestNeighbors4Order(t *testing.T) {
	g := NewGrid(5, 5)
	nbrs, n := g.Neighbors4(2, 2)
	want := []Pos{{2, 1}, {2, 3}, {3, 2}, {1, 2}}
	if n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
	for i, p := range want {
		if nbrs[i] != p {
			t.Errorf("neighbor %d = %v, want %v", i, nbrs[i], p)
		}
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	g := NewGrid(DefaultWidth, DefaultHeight)
	for y := 0; y < g.Height; y += 7 {
		for x := 0; x < g.Width; x += 5 {
			wx, wy := GridToWorld(x, y)
			gx, gy, ok := g.WorldToGrid(wx, wy)
			if !ok || gx != x || gy != y {
				t.Fatalf("round trip (%d,%d) -> (%v,%v) -> (%d,%d,%v)", x, y, wx, wy, gx, gy, ok)
			}
		}
	}
	if _, _, ok := g.WorldToGrid(-1, 5); ok {
		t.Error("negative world coordinate should be out of bounds")
	}
}

func TestIndexCoordsInverse(t *testing.T) {
	g := NewGrid(10, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 10; x++ {
			cx, cy := g.Coords(g.Index(x, y))
			if cx != x || cy != y {
				t.Fatalf("Coords(Index(%d,%d)) = (%d,%d)", x, y, cx, cy)
			}
		}
	}
}

func TestOutOfBoundsAccessIsGuarded(t *testing.T) {
	if Debug {
		t.Skip("debug build panics on out-of-bounds access")
	}
	g := NewGrid(4, 4)
	if c := g.Get(9, 9); c.Type != Grass || c.BuildingID != 0 {
		t.Errorf("Get out of bounds = %+v, want zero cell", c)
	}
	if g.Mut(-1, 0) != nil {
		t.Error("Mut out of bounds should return nil")
	}
}

func TestPlaceRoad(t *testing.T) {
	g := NewGrid(16, 16)
	n := NewRoadNetwork()

	g.Mut(3, 3).Zone = ResidentialLow
	if !n.PlaceRoad(g, 3, 3, Avenue) {
		t.Fatal("PlaceRoad on grass failed")
	}
	c := g.Get(3, 3)
	if c.Type != Road || c.RoadType != Avenue {
		t.Errorf("cell = %+v, want Avenue road", c)
	}
	if c.Zone != ZoneNone {
		t.Errorf("zone = %v, want cleared", c.Zone)
	}
	if !n.Dirty() {
		t.Error("network should be dirty after placement")
	}

	n.ClearDirty()
	if !n.PlaceRoad(g, 3, 3, Avenue) {
		t.Error("re-placing the same type should succeed")
	}
	if n.Dirty() {
		t.Error("same-type placement should be a no-op")
	}

	if n.PlaceRoad(g, 16, 0, Local) {
		t.Error("out of bounds placement should fail")
	}
	g.Mut(5, 5).Type = Water
	if n.PlaceRoad(g, 5, 5, Local) {
		t.Error("placement on water should fail")
	}
	if g.Get(5, 5).Type != Water {
		t.Error("failed placement mutated the cell")
	}
}

func TestRoadMirrorInvariant(t *testing.T) {
	g := NewGrid(12, 12)
	n := NewRoadNetwork()
	for x := 0; x < 12; x++ {
		n.PlaceRoad(g, x, 4, Local)
	}
	n.PlaceRoad(g, 6, 4, Highway)
	n.RemoveRoad(g, 2, 4)

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := g.Get(x, y)
			isRoad := n.IsRoad(x, y)
			if (c.Type == Road) != isRoad {
				t.Fatalf("(%d,%d) grid road=%v network road=%v", x, y, c.Type == Road, isRoad)
			}
			if isRoad {
				rt, _ := n.RoadType(x, y)
				if rt != c.RoadType {
					t.Fatalf("(%d,%d) road type grid=%v network=%v", x, y, c.RoadType, rt)
				}
			}
		}
	}
}

func TestIntersectionsAndSegments(t *testing.T) {
	g := NewGrid(11, 11)
	n := NewRoadNetwork()
	// A plus sign centred on (5,5).
	for i := 1; i <= 9; i++ {
		n.PlaceRoad(g, i, 5, Local)
		n.PlaceRoad(g, 5, i, Local)
	}

	inter := n.Intersections()
	if len(inter) != 1 || inter[0] != (Pos{5, 5}) {
		t.Fatalf("intersections = %v, want [(5,5)]", inter)
	}

	segs := n.Segments(g)
	if len(segs) != 4 {
		t.Fatalf("segments = %d, want 4", len(segs))
	}
	for _, s := range segs {
		if len(s.Cells) != 5 {
			t.Errorf("segment length = %d, want 5", len(s.Cells))
		}
	}

	n.RemoveRoad(g, 5, 4)
	n.RemoveRoad(g, 5, 6)
	if len(n.Intersections()) != 0 {
		t.Errorf("intersections after removal = %v, want none", n.Intersections())
	}
}

func TestUpgradeChainTerminates(t *testing.T) {
	for rt := Local; rt <= Path; rt++ {
		cur := rt
		for steps := 0; ; steps++ {
			next, ok := cur.UpgradeTier()
			if !ok {
				break
			}
			if steps > 5 {
				t.Fatalf("upgrade chain from %v does not terminate", rt)
			}
			cur = next
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Width, cfg.Height = 64, 64
	a := Generate(cfg)
	b := Generate(cfg)
	for i := range a.Grid.Cells {
		if a.Grid.Cells[i] != b.Grid.Cells[i] || a.Canopy[i] != b.Canopy[i] {
			t.Fatalf("cell %d differs between runs", i)
		}
	}
	if a.Grid.Get(32, 32).Type == Water {
		t.Error("map centre should be dry land")
	}
}
