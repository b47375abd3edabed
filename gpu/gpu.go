//go:build !nogpu

// Package gpu registers the wgpu reflection offloader.
//
// Import this package to run normalmap.Renderer frames as compute dispatches.
// If GPU initialization fails (no Vulkan adapter available), the offloader
// stays registered, reports normalmap.ErrFallbackToCPU and rendering falls
// back to the CPU samplers.
//
// Usage:
//
//	import _ "github.com/SpookyIluha/normalmap-ucodetest/gpu" // enable GPU offload
package gpu

import (
	"github.com/gogpu/gpucontext"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
	gpuimpl "github.com/SpookyIluha/normalmap-ucodetest/internal/gpu"
)

func init() {
	if err := normalmap.RegisterOffloader(gpuimpl.NewReflectOffloader()); err != nil {
		normalmap.Logger().Warn("GPU offloader not available", "err", err)
	}
}

// SetDeviceProvider makes the registered offloader share a GPU device with
// an external provider (e.g., a gogpu window) instead of owning one.
//
// The provider must also implement HalDevice() any and HalQueue() any
// returning wgpu/hal types.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return normalmap.SetOffloaderDeviceProvider(provider)
}
