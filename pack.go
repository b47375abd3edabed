package normalmap

import "fmt"

// PackedSize returns the byte length of a packed normal map of the given
// size: one signed X byte and one signed Y byte per texel.
func PackedSize(size int) int {
	n := 1 << size
	return 2 * n * n
}

// PackNormalMap writes the planar, chunk-interleaved encoding of normal into
// dst. Texels are taken in raster order in groups of PackChunk; each group
// emits an 8-byte X chunk holding R-128 followed by an 8-byte Y chunk holding
// G-128, stored as two's-complement int8. B and A are discarded.
//
// dst must hold exactly PackedSize(size) bytes. size below MinPackSize
// returns ErrUnsupportedShape.
func PackNormalMap(dst []byte, normal []Texel32, size int) error {
	if size < MinPackSize {
		return fmt.Errorf("%w: size %d has fewer than %d texels per row", ErrUnsupportedShape, size, PackChunk)
	}
	if size > MaxSize {
		return &ParamError{Name: "size", Value: size, Min: MinPackSize, Max: MaxSize}
	}
	n := 1 << size
	if err := checkLen("normal map", len(normal), n*n); err != nil {
		return err
	}
	if err := checkLen("packed normal map", len(dst), PackedSize(size)); err != nil {
		return err
	}

	for g := 0; g < len(normal); g += PackChunk {
		xs := dst[2*g : 2*g+PackChunk]
		ys := dst[2*g+PackChunk : 2*g+2*PackChunk]
		for l, t := range normal[g : g+PackChunk] {
			xs[l] = t.R ^ 0x80
			ys[l] = t.G ^ 0x80
		}
	}
	return nil
}

// NewPackedNormalMap allocates and fills a packed normal map. It is meant for
// asset preprocessing; the result is read-only afterwards.
func NewPackedNormalMap(normal []Texel32, size int) ([]byte, error) {
	if size < MinPackSize || size > MaxSize {
		return nil, PackNormalMap(nil, normal, size)
	}
	dst := make([]byte, PackedSize(size))
	if err := PackNormalMap(dst, normal, size); err != nil {
		return nil, err
	}
	return dst, nil
}

// PackedDelta returns the signed X and Y deltas of the texel at raster index
// in a packed normal map.
func PackedDelta(packed []byte, index int) (x, y int8) {
	base := (index/PackChunk)*2*PackChunk + index%PackChunk
	return int8(packed[base]), int8(packed[base+PackChunk]) //nolint:gosec // two's-complement reinterpretation
}

// OffloadShiftY converts a CPU-convention vertical shift into the convention
// of Offloader.Reflect, whose y source coordinate is i - shiftY - dy.
func OffloadShiftY(cpuShiftY int) int {
	return -cpuShiftY
}

// ReflectPacked16 is the synchronous reference of Offloader.Reflect. It
// samples env through a packed normal map with Filt16 addressing at
// filterFactor 0, using the offload vertical convention:
//
//	x = (j + shiftX - dx) mod 2^size
//	y = (i - shiftY - dy) mod 2^size
//
// Calling it with OffloadShiftY(s) matches ReflectFilt16 with shiftY s.
func ReflectPacked16(packed []byte, env, dst []Texel16, size, shiftX, shiftY, strength int) error {
	if err := ValidateOffload(packed, env, dst, size, strength); err != nil {
		return err
	}
	n := 1 << size
	mask := n - 1
	shift := uint(8 - strength) //nolint:gosec // strength validated
	shiftX, shiftY = Wrap(shiftX, n), Wrap(shiftY, n)

	for g := 0; g < n*n; g += PackChunk {
		xs := packed[2*g : 2*g+PackChunk]
		ys := packed[2*g+PackChunk : 2*g+2*PackChunk]
		i := g >> size
		for l := 0; l < PackChunk; l++ {
			j := (g + l) & mask
			dx := int(int8(xs[l])) >> shift //nolint:gosec // two's-complement reinterpretation
			dy := int(int8(ys[l])) >> shift //nolint:gosec // two's-complement reinterpretation
			x := Wrap(j+shiftX-dx, n)
			y := Wrap(i-shiftY-dy, n)
			dst[g+l] = env[y*n+x]
		}
	}
	return nil
}

// ValidateOffload checks the inputs of one offloaded reflect pass: size in
// [MinOffloadSize, MaxOffloadSize], strength in [0, MaxStrength], and buffer
// lengths matching size. Offloader implementations call it before enqueueing.
func ValidateOffload(packed []byte, env, dst []Texel16, size, strength int) error {
	if size < MinOffloadSize || size > MaxOffloadSize {
		return &ParamError{Name: "size", Value: size, Min: MinOffloadSize, Max: MaxOffloadSize}
	}
	if err := validateStrength(strength); err != nil {
		return err
	}
	n := 1 << size
	if err := checkLen("packed normal map", len(packed), PackedSize(size)); err != nil {
		return err
	}
	if err := checkLen("environment map", len(env), n*n); err != nil {
		return err
	}
	return checkLen("destination map", len(dst), n*n)
}
