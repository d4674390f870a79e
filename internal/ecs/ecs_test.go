package ecs

import "testing"

type health struct{ HP int }
type tag struct{}

func TestStoreIteratesInEntityOrder(t *testing.T) {
	w := NewWorld()
	s := NewStore[health](w)

	ids := make([]Entity, 5)
	for i := range ids {
		ids[i] = w.Spawn()
	}
	// Insert out of order.
	for _, i := range []int{3, 0, 4, 1, 2} {
		s.Set(ids[i], health{HP: i})
	}

	var seen []Entity
	s.Each(func(e Entity, h *health) { seen = append(seen, e) })
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("iteration order %v is not ascending", seen)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("visited %d entities, want 5", len(seen))
	}
}

func TestDespawnRemovesFromAllStores(t *testing.T) {
	w := NewWorld()
	hs := NewStore[health](w)
	ts := NewStore[tag](w)

	e := w.Spawn()
	hs.Set(e, health{HP: 10})
	ts.Set(e, tag{})
	w.Despawn(e)

	if hs.Has(e) || ts.Has(e) {
		t.Error("despawned entity still has components")
	}
	if w.Alive(e) {
		t.Error("despawned entity still alive")
	}
}

func TestChangeTracking(t *testing.T) {
	w := NewWorld()
	s := NewStore[health](w)
	e := w.Spawn()

	if s.Changed() {
		t.Fatal("new store reports changes")
	}
	s.Set(e, health{HP: 1})
	if !s.Changed() || len(s.Added()) != 1 {
		t.Fatalf("Added = %v, want [%d]", s.Added(), e)
	}
	w.ClearChanges()
	s.Set(e, health{HP: 2}) // replace is not an add
	if s.Changed() {
		t.Error("replacing a component should not count as a change")
	}
	s.Remove(e)
	if len(s.Removed()) != 1 {
		t.Errorf("Removed = %v, want one entry", s.Removed())
	}
}

func TestMutWritesThrough(t *testing.T) {
	s := NewStore[health](nil)
	s.Set(7, health{HP: 1})
	s.Mut(7).HP = 42
	if h, _ := s.Get(7); h.HP != 42 {
		t.Errorf("HP = %d, want 42", h.HP)
	}
}

func TestSpawnWithIDBumpsCounter(t *testing.T) {
	w := NewWorld()
	w.SpawnWithID(40)
	if got := w.Spawn(); got != 41 {
		t.Errorf("Spawn after restore = %d, want 41", got)
	}
}

func TestResources(t *testing.T) {
	r := NewResources()
	if Get[health](r) != nil {
		t.Fatal("empty table returned a resource")
	}
	Set(r, &health{HP: 3})
	MustGet[health](r).HP++
	if Get[health](r).HP != 4 {
		t.Errorf("HP = %d, want 4", Get[health](r).HP)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustGet on missing resource should panic")
		}
	}()
	MustGet[tag](r)
}
