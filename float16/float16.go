// Package float16 converts between IEEE-754 single and half precision bit
// patterns. Half precision tensors are fed to and read from the inference
// engine as raw uint16 buffers; this package is the dtype bridge.
package float16

import (
	"encoding/binary"
	"math"
)

const (
	signMask16     = 0x8000
	expMask16      = 0x7c00
	mantMask16     = 0x03ff
	canonicalNaN16 = 0x7e00
)

// Encode converts a float32 to a half precision bit pattern, truncating
// excess mantissa bits. Values outside the half range saturate to signed
// infinity. Any NaN payload collapses to a single canonical NaN; this is
// lossy and intentional.
func Encode(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & signMask16
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 31:
		// Overflow, infinity or NaN.
		if (bits&0x7f800000) == 0x7f800000 && mant != 0 {
			return sign | canonicalNaN16
		}
		return sign | expMask16
	case exp <= 0:
		// Subnormal half: restore the implicit leading bit and shift the
		// mantissa into the 10-bit field. Far enough below the subnormal
		// range the result flushes to signed zero.
		shift := uint32(14 - exp)
		if shift > 24 {
			return sign
		}
		return sign | uint16((mant|0x800000)>>shift)
	default:
		return sign | uint16(exp)<<10 | uint16(mant>>13)
	}
}

// Decode converts a half precision bit pattern back to float32. Subnormal
// halves are renormalized; infinity and NaN propagate.
func Decode(h uint16) float32 {
	sign := uint32(h&signMask16) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & mantMask16)

	switch {
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Renormalize: shift until the implicit bit appears.
		e := uint32(113)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= mantMask16
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		if mant == 0 {
			return math.Float32frombits(sign | 0x7f800000)
		}
		return math.Float32frombits(sign | 0x7fc00000)
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	}
}

// EncodeSlice converts a whole float32 buffer to half precision.
func EncodeSlice(src []float32) []uint16 {
	dst := make([]uint16, len(src))
	for i, v := range src {
		dst[i] = Encode(v)
	}
	return dst
}

// DecodeSlice converts a whole half precision buffer to float32.
func DecodeSlice(src []uint16) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = Decode(v)
	}
	return dst
}

// AppendBytes appends the little-endian byte representation of a half
// precision buffer, the layout the engine expects for raw FP16 tensor data.
func AppendBytes(dst []byte, src []uint16) []byte {
	for _, v := range src {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

// PutBytes writes the little-endian byte representation of a half precision
// buffer into dst, which must hold at least 2*len(src) bytes.
func PutBytes(dst []byte, src []uint16) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], v)
	}
}

// FromBytes interprets a little-endian raw FP16 tensor buffer.
func FromBytes(src []byte) []uint16 {
	dst := make([]uint16, len(src)/2)
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint16(src[i*2:])
	}
	return dst
}
