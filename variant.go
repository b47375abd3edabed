package normalmap

import "strconv"

// Variant selects one of the four sampling variants.
type Variant uint8

const (
	// Opt32 samples a same-size 32-bit environment map.
	Opt32 Variant = iota

	// Opt16 samples a same-size 16-bit environment map.
	Opt16

	// Filt32 samples a 32-bit environment map magnified by 2^filterFactor.
	Filt32

	// Filt16 samples a 16-bit environment map magnified by 2^filterFactor.
	Filt16

	variantCount
)

// variantSpec is one row of the sampling table. The sign columns say how the
// decoded perturbation enters the source coordinate:
//
//	x = j*2^ff + shiftX + dxSign*dx
//	y = i*2^ff + shiftY + dySign*dy
//
// Unfiltered variants add dx and filtered variants subtract it. That mismatch
// is observed reference output and is kept as is.
type variantSpec struct {
	name     string
	bits     int
	filtered bool
	dxSign   int
	dySign   int
}

var variantTable = [variantCount]variantSpec{
	Opt32:  {name: "opt32", bits: 32, filtered: false, dxSign: +1, dySign: -1},
	Opt16:  {name: "opt16", bits: 16, filtered: false, dxSign: +1, dySign: -1},
	Filt32: {name: "filt32", bits: 32, filtered: true, dxSign: -1, dySign: -1},
	Filt16: {name: "filt16", bits: 16, filtered: true, dxSign: -1, dySign: -1},
}

// String returns the variant name.
func (v Variant) String() string {
	if v < variantCount {
		return variantTable[v].name
	}
	return "Variant(" + strconv.Itoa(int(v)) + ")"
}

// Filtered reports whether the variant samples a magnified environment map.
func (v Variant) Filtered() bool {
	return v < variantCount && variantTable[v].filtered
}

// Bits returns the environment and destination texel width of the variant.
func (v Variant) Bits() int {
	if v < variantCount {
		return variantTable[v].bits
	}
	return 0
}
