// Package ecs provides typed component stores keyed by entity id, a
// type-keyed resource table, and tick-level change tracking.
//
// Iteration over a store always visits entities in ascending id order so
// that every system sees the same sequence on every run.
package ecs

import (
	"sort"
)

// Entity is an opaque entity id. Zero is never allocated.
type Entity uint64

type componentStore interface {
	remove(e Entity)
	ClearChanges()
}

// World allocates entity ids and owns the component stores.
type World struct {
	nextID Entity
	alive  map[Entity]struct{}
	stores []componentStore
}

// NewWorld creates an empty world whose first entity is 1.
func NewWorld() *World {
	return &World{nextID: 1, alive: make(map[Entity]struct{})}
}

// Spawn allocates a fresh entity.
func (w *World) Spawn() Entity {
	e := w.nextID
	w.nextID++
	w.alive[e] = struct{}{}
	return e
}

// SpawnWithID registers an entity restored from a save. The id counter is
// bumped past it.
func (w *World) SpawnWithID(e Entity) {
	w.alive[e] = struct{}{}
	if e >= w.nextID {
		w.nextID = e + 1
	}
}

// Despawn removes an entity and all of its components.
func (w *World) Despawn(e Entity) {
	if _, ok := w.alive[e]; !ok {
		return
	}
	delete(w.alive, e)
	for _, s := range w.stores {
		s.remove(e)
	}
}

// Alive reports whether e has been spawned and not despawned.
func (w *World) Alive(e Entity) bool {
	_, ok := w.alive[e]
	return ok
}

// Count returns the number of live entities.
func (w *World) Count() int { return len(w.alive) }

// NextID returns the id the next Spawn will hand out.
func (w *World) NextID() Entity { return w.nextID }

// SetNextID restores the id counter from a save.
func (w *World) SetNextID(id Entity) {
	if id > w.nextID {
		w.nextID = id
	}
}

// ClearChanges resets Added/Removed tracking on every store. Called once at
// the end of each tick.
func (w *World) ClearChanges() {
	for _, s := range w.stores {
		s.ClearChanges()
	}
}

// Store holds one component type.
type Store[T any] struct {
	components map[Entity]*T
	entities   []Entity // ascending
	added      []Entity
	removed    []Entity
}

// NewStore creates a store for T and attaches it to w so Despawn reaches it.
func NewStore[T any](w *World) *Store[T] {
	s := &Store[T]{components: make(map[Entity]*T)}
	if w != nil {
		w.stores = append(w.stores, s)
	}
	return s
}

// Set inserts or replaces e's component.
func (s *Store[T]) Set(e Entity, val T) {
	if p, ok := s.components[e]; ok {
		*p = val
		return
	}
	v := val
	s.components[e] = &v
	i := sort.Search(len(s.entities), func(i int) bool { return s.entities[i] >= e })
	s.entities = append(s.entities, 0)
	copy(s.entities[i+1:], s.entities[i:])
	s.entities[i] = e
	s.added = append(s.added, e)
}

// Get returns a copy of e's component.
func (s *Store[T]) Get(e Entity) (T, bool) {
	if p, ok := s.components[e]; ok {
		return *p, true
	}
	var zero T
	return zero, false
}

// Mut returns a pointer to e's component, or nil.
func (s *Store[T]) Mut(e Entity) *T {
	return s.components[e]
}

// Has reports whether e carries this component.
func (s *Store[T]) Has(e Entity) bool {
	_, ok := s.components[e]
	return ok
}

// Remove deletes e's component.
func (s *Store[T]) Remove(e Entity) { s.remove(e) }

func (s *Store[T]) remove(e Entity) {
	if _, ok := s.components[e]; !ok {
		return
	}
	delete(s.components, e)
	i := sort.Search(len(s.entities), func(i int) bool { return s.entities[i] >= e })
	s.entities = append(s.entities[:i], s.entities[i+1:]...)
	s.removed = append(s.removed, e)
}

// Len returns the number of components.
func (s *Store[T]) Len() int { return len(s.entities) }

// Entities returns a copy of the entity list in ascending id order.
func (s *Store[T]) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// Each visits every component in ascending entity order. The callback may
// mutate the component through the pointer but must not add or remove
// components of this type.
func (s *Store[T]) Each(fn func(e Entity, c *T)) {
	for _, e := range s.entities {
		fn(e, s.components[e])
	}
}

// Added returns entities that gained this component since the last clear.
func (s *Store[T]) Added() []Entity { return s.added }

// Removed returns entities that lost this component since the last clear.
func (s *Store[T]) Removed() []Entity { return s.removed }

// Changed reports whether any component was added or removed since the
// last clear.
func (s *Store[T]) Changed() bool { return len(s.added) > 0 || len(s.removed) > 0 }

func (s *Store[T]) ClearChanges() {
	s.added = s.added[:0]
	s.removed = s.removed[:0]
}

// Clear drops every component without recording removals.
func (s *Store[T]) Clear() {
	s.components = make(map[Entity]*T)
	s.entities = s.entities[:0]
	s.added = s.added[:0]
	s.removed = s.removed[:0]
}
