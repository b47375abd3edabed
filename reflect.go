package normalmap

import (
	"fmt"

	"github.com/SpookyIluha/normalmap-ucodetest/internal/parallel"
)

// ReflectOpt32 computes reflections from a 32-bit environment map of the same
// size as the normal map. normal, env and dst must all hold 2^size * 2^size
// texels in row-major order. dst is fully overwritten.
//
// The environment map is shifted by (shiftX, shiftY) with wraparound and each
// destination texel (i, j) copies env[y][x] with
//
//	x = (j + shiftX + dx) mod 2^size
//	y = (i + shiftY - dy) mod 2^size
//
// where (dx, dy) is the normal texel decoded at strength.
func ReflectOpt32(normal, env, dst []Texel32, size, shiftX, shiftY, strength int) error {
	return Reflect(Opt32, normal, env, dst, Params{Size: size, ShiftX: shiftX, ShiftY: shiftY, Strength: strength})
}

// ReflectOpt16 is ReflectOpt32 for a 16-bit environment and destination map.
// Texels are copied bit-for-bit.
func ReflectOpt16(normal []Texel32, env, dst []Texel16, size, shiftX, shiftY, strength int) error {
	return Reflect(Opt16, normal, env, dst, Params{Size: size, ShiftX: shiftX, ShiftY: shiftY, Strength: strength})
}

// ReflectFilt32 computes reflections from a 32-bit environment map magnified
// by 2^filterFactor, which gives smoother reflections at the cost of memory.
// normal and dst hold 2^size squared texels; env holds 2^(size+filterFactor)
// squared texels. Source coordinates advance in magnified units:
//
//	x = (j*2^filterFactor + shiftX - dx) mod W
//	y = (i*2^filterFactor + shiftY - dy) mod W
//
// Note that dx is subtracted here and added in ReflectOpt32.
func ReflectFilt32(normal, env, dst []Texel32, size, filterFactor, shiftX, shiftY, strength int) error {
	return Reflect(Filt32, normal, env, dst, Params{
		Size: size, FilterFactor: filterFactor, ShiftX: shiftX, ShiftY: shiftY, Strength: strength,
	})
}

// ReflectFilt16 is ReflectFilt32 for a 16-bit environment and destination map.
func ReflectFilt16(normal []Texel32, env, dst []Texel16, size, filterFactor, shiftX, shiftY, strength int) error {
	return Reflect(Filt16, normal, env, dst, Params{
		Size: size, FilterFactor: filterFactor, ShiftX: shiftX, ShiftY: shiftY, Strength: strength,
	})
}

// Reflect runs variant v over the given buffers. It validates p and the
// buffer lengths, then samples without allocating.
func Reflect[T Texel](v Variant, normal []Texel32, env, dst []T, p Params) error {
	spec, err := checkReflect(v, normal, env, dst, p)
	if err != nil {
		return err
	}
	sampleRows(spec, normal, env, dst, p, 0, p.Side())
	return nil
}

// reflectBands is Reflect with the destination rows split into bands that
// run on pool. Bands write disjoint rows of dst.
func reflectBands[T Texel](pool *parallel.WorkerPool, v Variant, normal []Texel32, env, dst []T, p Params) error {
	spec, err := checkReflect(v, normal, env, dst, p)
	if err != nil {
		return err
	}
	pool.ForEachBand(p.Side(), minBandRows, func(lo, hi int) {
		sampleRows(spec, normal, env, dst, p, lo, hi)
	})
	return nil
}

// minBandRows keeps bands large enough to amortize scheduling.
const minBandRows = 16

func checkReflect[T Texel](v Variant, normal []Texel32, env, dst []T, p Params) (variantSpec, error) {
	if v >= variantCount {
		return variantSpec{}, fmt.Errorf("%w: unknown variant %d", ErrContractViolation, v)
	}
	spec := variantTable[v]
	if bits := texelBits[T](); bits != spec.bits {
		return variantSpec{}, fmt.Errorf("%w: variant %s needs %d-bit texels, got %d-bit", ErrContractViolation, spec.name, spec.bits, bits)
	}
	if err := p.validate(spec.filtered); err != nil {
		return variantSpec{}, err
	}
	n := p.Side()
	w := p.EnvSide()
	if err := checkLen("normal map", len(normal), n*n); err != nil {
		return variantSpec{}, err
	}
	if err := checkLen("environment map", len(env), w*w); err != nil {
		return variantSpec{}, err
	}
	if err := checkLen("destination map", len(dst), n*n); err != nil {
		return variantSpec{}, err
	}
	return spec, nil
}

// sampleRows is the shared inner loop over destination rows [i0, i1).
// Buffers must already be validated.
func sampleRows[T Texel](spec variantSpec, normal []Texel32, env, dst []T, p Params, i0, i1 int) {
	n := p.Side()
	w := p.EnvSide()
	step := 1 << p.FilterFactor
	shift := uint(8 - p.Strength) //nolint:gosec // strength validated
	// Pre-wrapped shifts keep the sums far from int overflow.
	sx, sy := Wrap(p.ShiftX, w), Wrap(p.ShiftY, w)

	k := i0 * n
	for i := i0; i < i1; i++ {
		row := i*step + sy
		for j := 0; j < n; j++ {
			dx, dy := decodeShift(normal[k], shift)
			x := Wrap(j*step+sx+spec.dxSign*dx, w)
			y := Wrap(row+spec.dySign*dy, w)
			dst[k] = env[y*w+x]
			k++
		}
	}
}
