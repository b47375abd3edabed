//go:build !nogpu

// Package gpu runs normal-mapped reflection passes on the GPU through
// gogpu/wgpu HAL compute pipelines.
//
// ReflectOffloader implements normalmap.Offloader. The packed normal map and
// the 16-bit environment map are uploaded once per ConfigureSources; each
// Reflect records one compute dispatch plus a copy into a staging buffer and
// submits it with its own fence. Drain waits on the fences in submission
// order and reads the staging buffer back into the destination slice.
//
// When no Vulkan adapter is available every operation returns
// normalmap.ErrFallbackToCPU.
package gpu
