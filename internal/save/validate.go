package save

import (
	"errors"
	"fmt"
)

// ErrBadValue means a field decoded cleanly but holds a value no city can
// have, such as an enum byte past the end of its table.
var ErrBadValue = errors.New("invalid value in save")

// validate range-checks every enum and grid coordinate so a loaded city
// never indexes a table or the grid out of range.
func (f *File) validate() error {
	g := f.Grid
	for i := range g.Cells {
		c := &g.Cells[i]
		if !c.Type.Valid() || !c.RoadType.Valid() || !c.Zone.Valid() {
			x, y := g.Coords(i)
			return fmt.Errorf("%w: cell (%d,%d) type=%d road=%d zone=%d",
				ErrBadValue, x, y, uint8(c.Type), uint8(c.RoadType), uint8(c.Zone))
		}
	}

	for _, rd := range f.Roads {
		if !g.InBounds(rd.X, rd.Y) {
			return fmt.Errorf("%w: road (%d,%d) outside the map", ErrBadValue, rd.X, rd.Y)
		}
		if !rd.Type.Valid() {
			return fmt.Errorf("%w: road (%d,%d) type=%d", ErrBadValue, rd.X, rd.Y, uint8(rd.Type))
		}
		if rd.Direction != nil && !rd.Direction.Valid() {
			return fmt.Errorf("%w: road (%d,%d) direction=%d", ErrBadValue, rd.X, rd.Y, uint8(*rd.Direction))
		}
	}

	for i := range f.Citizens {
		c := &f.Citizens[i]
		switch {
		case !c.Details.Gender.Valid(), !c.State.Valid(), !c.Mode.Valid(), !c.Tier.Valid():
			return fmt.Errorf("%w: citizen %d gender=%d state=%d mode=%d tier=%d", ErrBadValue, c.Entity,
				uint8(c.Details.Gender), uint8(c.State), uint8(c.Mode), uint8(c.Tier))
		case !g.InBounds(c.Home.GridX, c.Home.GridY):
			return fmt.Errorf("%w: citizen %d home outside the map", ErrBadValue, c.Entity)
		case c.Work != nil && !g.InBounds(c.Work.GridX, c.Work.GridY):
			return fmt.Errorf("%w: citizen %d work outside the map", ErrBadValue, c.Entity)
		}
	}

	for i := range f.Buildings {
		b := &f.Buildings[i].Building
		if !b.Zone.Valid() || !g.InBounds(b.GridX, b.GridY) {
			return fmt.Errorf("%w: building %d zone=%d at (%d,%d)",
				ErrBadValue, f.Buildings[i].Entity, uint8(b.Zone), b.GridX, b.GridY)
		}
	}

	for i := range f.Facilities {
		fc := &f.Facilities[i]
		if s := fc.Service; s != nil && (!s.ServiceType.Valid() || !g.InBounds(s.GridX, s.GridY)) {
			return fmt.Errorf("%w: facility %d service=%d at (%d,%d)", ErrBadValue, fc.Entity, uint8(s.ServiceType), s.GridX, s.GridY)
		}
		if u := fc.Utility; u != nil && (!u.UtilityType.Valid() || !g.InBounds(u.GridX, u.GridY)) {
			return fmt.Errorf("%w: facility %d utility=%d at (%d,%d)", ErrBadValue, fc.Entity, uint8(u.UtilityType), u.GridX, u.GridY)
		}
		if p := fc.Plant; p != nil && (!p.PlantType.Valid() || !g.InBounds(p.GridX, p.GridY)) {
			return fmt.Errorf("%w: facility %d plant=%d at (%d,%d)", ErrBadValue, fc.Entity, uint8(p.PlantType), p.GridX, p.GridY)
		}
	}
	return nil
}
