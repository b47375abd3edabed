// Package synth generates procedural normal and environment maps for tests
// and tools. Asset loading lives outside the library, so these stand in for
// real textures.
package synth

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

// Flat returns a normal map of side 2^size where every texel decodes to a
// zero perturbation.
func Flat(size int) []normalmap.Texel32 {
	return Uniform(size, 128, 128)
}

// Uniform returns a normal map of side 2^size with every texel set to (r, g).
func Uniform(size int, r, g uint8) []normalmap.Texel32 {
	n := 1 << size
	out := make([]normalmap.Texel32, n*n)
	for i := range out {
		out[i] = normalmap.Texel32{R: r, G: g, B: 255, A: 255}
	}
	return out
}

// Waves returns a tileable normal map of side 2^size derived from a height
// field made of sine waves. freq is the number of periods across the map and
// amplitude the peak height in texels.
func Waves(size int, freq int, amplitude float32) []normalmap.Texel32 {
	n := 1 << size
	k := 2 * math.Pi * float64(freq) / float64(n)
	height := func(x, y int) float32 {
		fx, fy := float64(x), float64(y)
		h := math.Sin(k*fx) + math.Sin(k*fy) + 0.5*math.Sin(k*(fx+fy))
		return amplitude * float32(h) / 2.5
	}

	out := make([]normalmap.Texel32, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dhdx := (height(x+1, y) - height(x-1, y)) / 2
			dhdy := (height(x, y+1) - height(x, y-1)) / 2
			out[y*n+x] = EncodeNormal(mgl32.Vec3{-dhdx, -dhdy, 1}.Normalize())
		}
	}
	return out
}

// EncodeNormal maps a unit vector to the 128-biased texel encoding.
func EncodeNormal(v mgl32.Vec3) normalmap.Texel32 {
	enc := func(c float32) uint8 {
		return uint8(mgl32.Clamp(128+c*127, 0, 255) + 0.5)
	}
	return normalmap.Texel32{R: enc(v.X()), G: enc(v.Y()), B: enc(v.Z()), A: 255}
}

// Checker returns a square environment image of the given side with a
// vertical sky gradient crossed by a checkerboard of cell-sized squares.
func Checker(side, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		t := float64(y) / float64(side)
		for x := 0; x < side; x++ {
			c := color.NRGBA{
				R: uint8(40 + 120*t),
				G: uint8(90 + 100*t),
				B: uint8(200 - 80*t),
				A: 255,
			}
			if (x/cell+y/cell)%2 == 0 {
				c.R, c.G, c.B = c.R/2+120, c.G/2+120, c.B/2+120
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Random32 returns count pseudo-random 32-bit texels from seed.
func Random32(count int, seed uint64) []normalmap.Texel32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	out := make([]normalmap.Texel32, count)
	for i := range out {
		v := rng.Uint32()
		out[i] = normalmap.Texel32{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: uint8(v >> 24)}
	}
	return out
}

// Random16 returns count pseudo-random 16-bit texels from seed.
func Random16(count int, seed uint64) []normalmap.Texel16 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	out := make([]normalmap.Texel16, count)
	for i := range out {
		out[i] = normalmap.Texel16(rng.Uint32())
	}
	return out
}
