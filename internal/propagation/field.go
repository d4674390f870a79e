// Package propagation holds the derived per-cell fields of the city and
// the kernels that recompute them from sources each cycle.
package propagation

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Number is any fixed-size numeric cell value.
type Number interface {
	constraints.Integer | constraints.Float
}

// Field is a W×H row-major grid of numeric values.
type Field[T Number] struct {
	Width  int
	Height int
	Data   []T
}

// NewField allocates a zeroed field.
func NewField[T Number](width, height int) Field[T] {
	return Field[T]{Width: width, Height: height, Data: make([]T, width*height)}
}

func (f *Field[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// Get returns the value at (x, y), or zero when out of bounds.
func (f *Field[T]) Get(x, y int) T {
	if !f.InBounds(x, y) {
		var zero T
		return zero
	}
	return f.Data[y*f.Width+x]
}

// Set writes (x, y); out-of-bounds writes are dropped.
func (f *Field[T]) Set(x, y int, v T) {
	if f.InBounds(x, y) {
		f.Data[y*f.Width+x] = v
	}
}

// Clear zeroes every cell.
func (f *Field[T]) Clear() {
	clear(f.Data)
}

// Sum returns the total over all cells as float64.
func (f *Field[T]) Sum() float64 {
	s := 0.0
	for _, v := range f.Data {
		s += float64(v)
	}
	return s
}

// Mean returns the average cell value.
func (f *Field[T]) Mean() float64 {
	if len(f.Data) == 0 {
		return 0
	}
	return f.Sum() / float64(len(f.Data))
}

// IsZero reports whether every cell is zero.
func (f *Field[T]) IsZero() bool {
	for _, v := range f.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// MarshalBinary encodes width, height, and the cells little-endian.
func (f *Field[T]) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	hdr := [2]uint32{uint32(f.Width), uint32(f.Height)}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, f.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (f *Field[T]) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("field header: %w", err)
	}
	n := int(hdr[0]) * int(hdr[1])
	if n < 0 || n > 1<<24 {
		return fmt.Errorf("field size %dx%d out of range", hdr[0], hdr[1])
	}
	data := make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("field cells: %w", err)
	}
	f.Width, f.Height, f.Data = int(hdr[0]), int(hdr[1]), data
	return nil
}

func clampU8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
