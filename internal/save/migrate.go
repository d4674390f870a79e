package save

import (
	"fmt"

	"github.com/talgya/gridcity/internal/component"
)

// A migration upgrades a decoded file from one version to the next. A step
// that returns an error aborts the load.
type migration struct {
	from uint16
	run  func(*File) error
}

// migrations upgrade a decoded file one version at a time.
var migrations = []migration{
	{from: 1, run: func(f *File) error {
		for i := range f.Buildings {
			f.Buildings[i].Building.Width = 1
			f.Buildings[i].Building.Height = 1
		}
		return nil
	}},
	{from: 2, run: func(f *File) error {
		for i := range f.Citizens {
			f.Citizens[i].Needs = component.DefaultNeeds()
			f.Citizens[i].Path = component.PathCache{}
		}
		return nil
	}},
}

// Migrate brings f up to CurrentVersion and reports how many steps ran.
// On error f is left at the last version that migrated cleanly.
func Migrate(f *File) (int, error) {
	steps := 0
	for f.Version < CurrentVersion {
		ran := false
		for _, m := range migrations {
			if m.from != f.Version {
				continue
			}
			if err := m.run(f); err != nil {
				return steps, fmt.Errorf("migrate save v%d to v%d: %w", f.Version, f.Version+1, err)
			}
			f.Version++
			steps++
			ran = true
			break
		}
		if !ran {
			return steps, fmt.Errorf("no migration from save v%d", f.Version)
		}
	}
	return steps, nil
}
