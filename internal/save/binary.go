package save

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated means the byte stream ended inside a field.
var ErrTruncated = errors.New("save data truncated")

// writer appends little-endian fields to a byte slice.
type writer struct {
	b []byte
}

func (w *writer) u8(v uint8)    { w.b = append(w.b, v) }
func (w *writer) u16(v uint16)  { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *writer) u32(v uint32)  { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64)  { w.b = binary.LittleEndian.AppendUint64(w.b, v) }
func (w *writer) i32(v int)     { w.u32(uint32(int32(v))) }
func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// key writes a u16-length UTF-8 string.
func (w *writer) key(s string) {
	w.u16(uint16(len(s)))
	w.b = append(w.b, s...)
}

// blob writes a u32-length byte payload.
func (w *writer) blob(p []byte) {
	w.u32(uint32(len(p)))
	w.b = append(w.b, p...)
}

// reader consumes little-endian fields. The first short read sets err and
// every later read returns zero.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w at offset %d (need %d bytes)", ErrTruncated, r.off, n)
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) u8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if p := r.take(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

func (r *reader) i32() int       { return int(int32(r.u32())) }
func (r *reader) f32() float32   { return math.Float32frombits(r.u32()) }
func (r *reader) f64() float64   { return math.Float64frombits(r.u64()) }
func (r *reader) boolean() bool  { return r.u8() != 0 }
func (r *reader) key() string    { return string(r.take(int(r.u16()))) }
func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) blob() []byte {
	n := r.u32()
	p := r.take(int(n))
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// count reads a u32 element count and rejects counts that could not fit
// in the remaining bytes at minSize bytes each.
func (r *reader) count(minSize int) int {
	n := int(r.u32())
	if r.err == nil && minSize > 0 && n > r.remaining()/minSize {
		r.err = fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncated, n, r.remaining())
		return 0
	}
	return n
}
