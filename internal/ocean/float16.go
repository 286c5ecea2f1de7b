package ocean

import "math"

// float32ToFloat16 converts src into IEEE 754-2008 binary16 values stored in
// dst. dst must be at least len(src).
func float32ToFloat16(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = float32ToFloat16Bits(v)
	}
}

// float16ToFloat32 expands binary16 data into float32 values.
// dst must be at least len(src).
func float16ToFloat32(dst []float32, src []uint16) {
	for i, v := range src {
		dst[i] = float16BitsToFloat32(v)
	}
}

func float32ToFloat16Bits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int(b>>23) & 0xff
	mant := b & 0x7fffff

	if exp == 0xff {
		if mant == 0 {
			return sign | 0x7c00
		}
		// keep NaN a NaN
		m := uint16(mant >> 13)
		if m == 0 {
			m = 1
		}
		return sign | 0x7c00 | m
	}
	if exp == 0 && mant == 0 {
		return sign
	}

	e := exp - 127 + 15
	switch {
	case e >= 0x1f:
		return sign | 0x7c00
	case e <= 0:
		if e < -10 {
			return sign
		}
		m := (mant | 0x800000) >> uint(1-e)
		return sign | uint16((m+0x1000)>>13)
	}
	mant += 0x1000
	if mant&0x800000 != 0 {
		mant = 0
		e++
		if e >= 0x1f {
			return sign | 0x7c00
		}
	}
	return sign | uint16(e<<10) | uint16(mant>>13)
}

func float16BitsToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal: normalize
		e := -14
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(e+127)<<23 | mant<<13)
	case 0x1f:
		b := sign | 0x7f800000 | mant<<13
		if mant != 0 {
			b |= 1
		}
		return math.Float32frombits(b)
	}
	return math.Float32frombits(sign | uint32(exp-15+127)<<23 | mant<<13)
}
