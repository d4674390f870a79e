package ecs

import (
	"fmt"
	"reflect"
)

// Resources is a table of singletons keyed by their Go type.
type Resources struct {
	items map[reflect.Type]any
}

// NewResources returns an empty table.
func NewResources() *Resources {
	return &Resources{items: make(map[reflect.Type]any)}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Set stores v as the singleton of type T.
func Set[T any](r *Resources, v *T) {
	r.items[typeKey[T]()] = v
}

// Get returns the singleton of type T, or nil.
func Get[T any](r *Resources) *T {
	v, ok := r.items[typeKey[T]()]
	if !ok {
		return nil
	}
	return v.(*T)
}

// MustGet returns the singleton of type T and panics when absent. Missing
// resources are wiring bugs, not runtime conditions.
func MustGet[T any](r *Resources) *T {
	v := Get[T](r)
	if v == nil {
		panic(fmt.Sprintf("ecs: resource %s not registered", typeKey[T]()))
	}
	return v
}

// Has reports whether a singleton of type T exists.
func Has[T any](r *Resources) bool {
	_, ok := r.items[typeKey[T]()]
	return ok
}
