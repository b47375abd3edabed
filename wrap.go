package normalmap

// Wrap returns c modulo extent in [0, extent). Unlike the % operator it is a
// floor modulo, so negative coordinates wrap to the far edge instead of
// producing a negative index. extent must be positive.
func Wrap(c, extent int) int {
	m := c % extent
	if m < 0 {
		m += extent
	}
	return m
}

// DecodeNormal returns the (dx, dy) perturbation encoded in t for the given
// strength. strength is a power-of-two deviation bound: strength 5 allows
// offsets in [-16, 15]. The shift is arithmetic, so negative deltas stay
// negative (floor division by 2^(8-strength)).
func DecodeNormal(t Texel32, strength int) (dx, dy int) {
	return decodeShift(t, uint(8-strength)) //nolint:gosec // strength validated by callers
}

// MaxDeviation returns the largest |dx| a normal texel can produce at the
// given strength, reached by R=0. It is 2^(strength-1) for strength >= 1 and
// 1 at strength 0, where the arithmetic shift still rounds -128 down to -1.
func MaxDeviation(strength int) int {
	dx, _ := DecodeNormal(Texel32{R: 0, G: 128}, strength)
	return -dx
}

func decodeShift(t Texel32, shift uint) (dx, dy int) {
	return (int(t.R) - 128) >> shift, (int(t.G) - 128) >> shift
}
