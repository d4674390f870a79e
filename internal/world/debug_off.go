//go:build !debug

package world

// Debug enables bounds panics on grid access. Build with -tags debug.
const Debug = false
