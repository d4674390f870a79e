package save

import (
	"fmt"
	"sort"

	"github.com/talgya/gridcity/internal/ecs"
)

// Saveable is a resource that persists itself into the extension map.
// SaveBytes returning false means "nothing worth saving": the key is left
// out and a load resets the resource to its default.
type Saveable interface {
	SaveKey() string
	SaveBytes() ([]byte, bool)
	LoadBytes([]byte) error
}

type entry struct {
	key   string
	save  func(r *ecs.Resources) ([]byte, bool)
	load  func(r *ecs.Resources, b []byte) error
	reset func(r *ecs.Resources)
}

// Registry maps extension keys to the resources that own them.
type Registry struct {
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds the Saveable resource of type T. defaults builds the value
// a resource is reset to when its key is absent or unreadable. Loads write
// through the pointer already held in Resources so references stay valid.
func Register[T any, P interface {
	*T
	Saveable
}](reg *Registry, defaults func() T) {
	var zero T
	key := P(&zero).SaveKey()
	reg.add(entry{
		key: key,
		save: func(r *ecs.Resources) ([]byte, bool) {
			v := ecs.Get[T](r)
			if v == nil {
				return nil, false
			}
			return P(v).SaveBytes()
		},
		load: func(r *ecs.Resources, b []byte) error {
			v := ecs.Get[T](r)
			if v == nil {
				v = new(T)
				ecs.Set(r, v)
			}
			tmp := defaults()
			if err := P(&tmp).LoadBytes(b); err != nil {
				return err
			}
			*v = tmp
			return nil
		},
		reset: func(r *ecs.Resources) {
			d := defaults()
			if v := ecs.Get[T](r); v != nil {
				*v = d
				return
			}
			ecs.Set(r, &d)
		},
	})
}

// RegisterFuncs adds a key backed by plain functions, for state that is not
// a single resource.
func (reg *Registry) RegisterFuncs(key string, save func(*ecs.Resources) ([]byte, bool), load func(*ecs.Resources, []byte) error, reset func(*ecs.Resources)) {
	reg.add(entry{key: key, save: save, load: load, reset: reset})
}

func (reg *Registry) add(e entry) {
	if _, dup := reg.entries[e.key]; dup {
		panic(fmt.Sprintf("save: duplicate extension key %q", e.key))
	}
	reg.entries[e.key] = e
}

// Keys returns the registered keys in sorted order.
func (reg *Registry) Keys() []string {
	out := make([]string, 0, len(reg.entries))
	for k := range reg.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Collect gathers every registered payload that wants saving.
func (reg *Registry) Collect(r *ecs.Resources) map[string][]byte {
	out := make(map[string][]byte, len(reg.entries))
	for _, k := range reg.Keys() {
		if b, ok := reg.entries[k].save(r); ok {
			out[k] = b
		}
	}
	return out
}

// Apply loads ext into the registered resources. Keys the registry does
// not know are returned untouched so they survive a re-save. Registered
// keys that are missing reset to their defaults; payloads that fail to
// decode also reset and are reported through warn.
func (reg *Registry) Apply(r *ecs.Resources, ext map[string][]byte, warn func(key string, err error)) map[string][]byte {
	unknown := make(map[string][]byte)
	for k, b := range ext {
		if _, ok := reg.entries[k]; !ok {
			unknown[k] = b
		}
	}
	for _, k := range reg.Keys() {
		e := reg.entries[k]
		b, ok := ext[k]
		if !ok {
			e.reset(r)
			continue
		}
		if err := e.load(r, b); err != nil {
			e.reset(r)
			if warn != nil {
				warn(k, err)
			}
		}
	}
	return unknown
}
