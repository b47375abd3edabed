// Package normalmap computes image-space specular reflections by perturbing
// environment map lookups with a normal map.
//
// # Overview
//
// For every texel (i, j) of a 2^size square destination map, the R and G
// channels of the matching normal texel are decoded into a small offset
// (dx, dy), the offset is applied to (j, i) together with a caller-supplied
// shift, the result wraps around the environment map, and the environment
// texel found there is copied into the destination. Nothing is blended.
//
// # Quick Start
//
//	normal, size, _ := normalmap.NormalMapFromImage(normalImg)
//	env, _ := normalmap.Env32FromImage(envImg)
//	dst := make([]normalmap.Texel32, len(normal))
//
//	// Once per frame:
//	err := normalmap.ReflectOpt32(normal, env, dst, size, shiftX, shiftY, 5)
//
// # Variants
//
// Four samplers cover 32-bit and 16-bit color, each with a same-size
// environment map (Opt32, Opt16) or one magnified by 2^filterFactor (Filt32,
// Filt16). The addressing of each variant is a row in one table; see
// [Variant]. Every entry point validates parameters and buffer lengths and
// returns an error wrapping [ErrContractViolation] instead of reading out of
// bounds. The inner loop does not allocate.
//
// # Offloading
//
// [PackNormalMap] re-encodes a normal map into 8-texel X and Y chunks for
// data-parallel hardware. An [Offloader] consumes that layout asynchronously:
// bind buffers with ConfigureSources, enqueue passes with Reflect, wait with
// Drain. [CPUOffloader] implements the same contract in a goroutine. Hardware
// backends register themselves through blank imports:
//
//	import _ "github.com/SpookyIluha/normalmap-ucodetest/gpu" // wgpu compute
//
// [Renderer] ties it together for a per-frame caller: it packs once, binds
// once, offloads when it can and falls back to [ReflectFilt16] otherwise.
//
// # Concurrency
//
// The samplers and the packer keep no state and may run concurrently on
// distinct buffers. Two calls must never target the same destination at the
// same time.
//
// # Logging
//
// The package is silent by default. Call [SetLogger] to receive diagnostics.
package normalmap
