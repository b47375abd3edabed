package normalmap

import "unsafe"

// Texel32 is a 32-bit RGBA texel. In a normal map only R and G are meaningful:
// they carry the X and Y surface perturbation biased by 128.
type Texel32 struct {
	R, G, B, A uint8
}

// Texel16 is a packed 16-bit color. The samplers copy it as an opaque unit and
// never decode it.
type Texel16 uint16

// Texel is the set of texel types accepted by the generic sampler.
type Texel interface {
	Texel32 | Texel16
}

// NeutralNormal is the normal texel that decodes to a zero perturbation.
var NeutralNormal = Texel32{R: 128, G: 128, B: 255, A: 255}

// PackRGBA5551 packs 8-bit channels into the RRRRRGGGGGBBBBBA layout used by
// 16-bit framebuffers. Alpha becomes a single coverage bit.
func PackRGBA5551(r, g, b, a uint8) Texel16 {
	v := uint16(r>>3)<<11 | uint16(g>>3)<<6 | uint16(b>>3)<<1
	if a >= 128 {
		v |= 1
	}
	return Texel16(v)
}

// RGBA expands a 5551 texel to 8-bit channels, replicating the high bits into
// the low bits so that full intensity maps to 255.
func (t Texel16) RGBA() (r, g, b, a uint8) {
	expand := func(v uint16) uint8 {
		v &= 0x1F
		return uint8(v<<3 | v>>2) //nolint:gosec // 5-bit value fits
	}
	r = expand(uint16(t) >> 11)
	g = expand(uint16(t) >> 6)
	b = expand(uint16(t) >> 1)
	if t&1 != 0 {
		a = 255
	}
	return r, g, b, a
}

// texelBits returns the storage width of T in bits.
func texelBits[T Texel]() int {
	var zero T
	return int(unsafe.Sizeof(zero)) * 8
}
