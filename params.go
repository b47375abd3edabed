package normalmap

// Supported parameter ranges.
const (
	// MaxSize is the largest supported log2 side length (4096 texels).
	MaxSize = 12

	// MaxFilterFactor is the largest supported log2 magnification of a
	// filtered environment map.
	MaxFilterFactor = 4

	// MaxStrength is the largest strength; at 8 the full signed byte range
	// of a normal texel becomes the offset.
	MaxStrength = 8

	// MinPackSize is the smallest size the packer accepts: 2^3 texels per
	// row is one 8-texel chunk.
	MinPackSize = 3

	// PackChunk is the number of texels grouped into one X/Y chunk pair.
	PackChunk = 8
)

// Params carries the scalar inputs of one reflection pass.
type Params struct {
	// Size is log2 of the normal and destination side length.
	Size int

	// FilterFactor is log2 of the environment map magnification.
	// Must be 0 for unfiltered variants.
	FilterFactor int

	// ShiftX and ShiftY translate the environment map, with wraparound,
	// before sampling. Any int is accepted.
	ShiftX, ShiftY int

	// Strength bounds the perturbation to 2^(Strength-1) pixels.
	Strength int
}

// Side returns the normal and destination side length, 2^Size.
func (p Params) Side() int { return 1 << p.Size }

// EnvSide returns the environment map side length, 2^(Size+FilterFactor).
func (p Params) EnvSide() int { return 1 << (p.Size + p.FilterFactor) }

func (p Params) validate(filtered bool) error {
	if p.Size < 0 || p.Size > MaxSize {
		return &ParamError{Name: "size", Value: p.Size, Min: 0, Max: MaxSize}
	}
	maxFF := 0
	if filtered {
		maxFF = MaxFilterFactor
	}
	if p.FilterFactor < 0 || p.FilterFactor > maxFF {
		return &ParamError{Name: "filterFactor", Value: p.FilterFactor, Min: 0, Max: maxFF}
	}
	return validateStrength(p.Strength)
}

func validateStrength(strength int) error {
	if strength < 0 || strength > MaxStrength {
		return &ParamError{Name: "strength", Value: strength, Min: 0, Max: MaxStrength}
	}
	return nil
}

func checkLen(buffer string, got, want int) error {
	if got != want {
		return &ShapeError{Buffer: buffer, Got: got, Want: want}
	}
	return nil
}
