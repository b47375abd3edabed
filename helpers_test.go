package normalmap

import "math/rand/v2"

func randomTexels32(count int, seed uint64) []Texel32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	out := make([]Texel32, count)
	for i := range out {
		v := rng.Uint32()
		out[i] = Texel32{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: uint8(v >> 24)}
	}
	return out
}

func randomTexels16(count int, seed uint64) []Texel16 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	out := make([]Texel16, count)
	for i := range out {
		out[i] = Texel16(rng.Uint32())
	}
	return out
}

func filledNormal(size int, t Texel32) []Texel32 {
	n := 1 << size
	out := make([]Texel32, n*n)
	for i := range out {
		out[i] = t
	}
	return out
}
