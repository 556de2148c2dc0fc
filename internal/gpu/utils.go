package gpu

import (
	"encoding/binary"
	"math"

	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/x448/float16"
)

// AlignUp rounds n up to a multiple of align.
func AlignUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// FloatBytes is the padded byte size of count elements at a precision. Buffer sizes
// are kept at multiples of 4 so they can be written and copied.
func FloatBytes(count int, p kernels.Precision) uint64 {
	return AlignUp(uint64(count)*uint64(p.ByteWidth()), 4)
}

// EncodeFloats packs values little-endian at the given precision, padded to 4 bytes.
func EncodeFloats(values []float32, p kernels.Precision) []byte {
	out := make([]byte, FloatBytes(len(values), p))
	PutFloats(out, values, p)
	return out
}

// PutFloats writes values into dst at the given precision.
func PutFloats(dst []byte, values []float32, p kernels.Precision) {
	if p == kernels.F16 {
		for i, v := range values {
			binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(v).Bits())
		}
		return
	}
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// DecodeFloats unpacks count elements from data at the given precision.
func DecodeFloats(data []byte, count int, p kernels.Precision) []float32 {
	out := make([]float32, count)
	if p == kernels.F16 {
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[i*2:])).Float32()
		}
		return out
	}
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// RoundToPrecision returns the values as the device will see them after upload.
func RoundToPrecision(values []float32, p kernels.Precision) []float32 {
	out := make([]float32, len(values))
	if p != kernels.F16 {
		copy(out, values)
		return out
	}
	for i, v := range values {
		out[i] = float16.Fromfloat32(v).Float32()
	}
	return out
}

// EncodeUint32s packs values little-endian, zero padded to at least minSize bytes.
func EncodeUint32s(values []uint32, minSize int) []byte {
	size := len(values) * 4
	if size < minSize {
		size = minSize
	}
	out := make([]byte, AlignUp(uint64(size), 4))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// DecodeUint32s unpacks every whole uint32 in data.
func DecodeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

// DecodeUint64s unpacks every whole uint64 in data.
func DecodeUint64s(data []byte) []uint64 {
	out := make([]uint64, len(data)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return out
}
