//go:build debug

package world

// Debug enables bounds panics on grid access.
const Debug = true
