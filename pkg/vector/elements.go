// ABOUTME: Element <-> byte conversion for a vector's logical type,
// ABOUTME: including the generic-era stand-in for the old derive macro

package vector

import (
	"encoding/binary"
	"math"
)

// Numeric is the set of built-in numeric kinds the base ElementCodec
// knows how to serialize directly.
type Numeric interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// ElementCodec converts a vector's logical element type to and from
// its fixed-width on-disk byte representation. It is resolved once at
// Open time, not per element — the only thing resolved per element is
// the Encode/Decode call itself.
type ElementCodec[T any] interface {
	// Size is the fixed byte width of one encoded element.
	Size() int
	Encode(v T, buf []byte)
	Decode(buf []byte) T
}

// NumericCodec is the ElementCodec for any of the built-in numeric
// kinds in Numeric.
type NumericCodec[T Numeric] struct{}

func (NumericCodec[T]) Size() int {
	var z T
	switch any(z).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int64, uint64, float64:
		return 8
	default:
		panic("vector: unsupported numeric kind")
	}
}

func (NumericCodec[T]) Encode(v T, buf []byte) {
	switch x := any(v).(type) {
	case int8:
		buf[0] = byte(x)
	case uint8:
		buf[0] = x
	case int16:
		binary.LittleEndian.PutUint16(buf, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(buf, x)
	case int32:
		binary.LittleEndian.PutUint32(buf, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(buf, x)
	case float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(buf, x)
	case float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
	default:
		panic("vector: unsupported numeric kind")
	}
}

func (NumericCodec[T]) Decode(buf []byte) T {
	var z T
	switch any(z).(type) {
	case int8:
		return any(int8(buf[0])).(T)
	case uint8:
		return any(buf[0]).(T)
	case int16:
		return any(int16(binary.LittleEndian.Uint16(buf))).(T)
	case uint16:
		return any(binary.LittleEndian.Uint16(buf)).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(buf))).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(buf)).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(buf))).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(buf))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(buf)).(T)
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(buf))).(T)
	default:
		panic("vector: unsupported numeric kind")
	}
}

// DelegatingCodec adapts a single-field wrapper type T to an
// ElementCodec by forwarding to its inner numeric type U. This is the
// generic structural-forwarding replacement for the original derive
// macro: no reflection, no per-element dynamic dispatch beyond the one
// interface call Open already pays for every other codec.
type DelegatingCodec[T any, U Numeric] struct {
	ToInner   func(T) U
	FromInner func(U) T
}

func (d DelegatingCodec[T, U]) Size() int { return NumericCodec[U]{}.Size() }

func (d DelegatingCodec[T, U]) Encode(v T, buf []byte) {
	NumericCodec[U]{}.Encode(d.ToInner(v), buf)
}

func (d DelegatingCodec[T, U]) Decode(buf []byte) T {
	return d.FromInner(NumericCodec[U]{}.Decode(buf))
}
