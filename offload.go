package normalmap

import (
	"context"
	"errors"
	"sync"
)

// Offload size limits. The hardware path processes rows in 8-texel chunks
// and rejects rows of 640 texels or more.
const (
	MinOffloadSize = MinPackSize
	MaxOffloadSize = 9
)

// Offloader runs reflection passes asynchronously on dedicated hardware.
//
// The contract mirrors a command queue:
//   - ConfigureSources binds the packed normal map, the 16-bit environment
//     map and the 16-bit destination. It must be called before Reflect and
//     again whenever any buffer changes.
//   - Reflect enqueues one pass with the most recently bound buffers and
//     returns without waiting. Its shiftY uses the offload convention; see
//     OffloadShiftY.
//   - Drain blocks until all enqueued passes completed and the destination
//     holds the result of the last one. It returns the first error raised
//     asynchronously since the previous Drain.
//
// Between Reflect and Drain the caller must not read the destination nor
// modify the packed normal map or environment map. There is no cancellation:
// a context passed to Drain bounds the wait, not the work.
//
// Any method may return ErrFallbackToCPU; callers then compute the pass with
// ReflectPacked16 or ReflectFilt16.
type Offloader interface {
	// Name returns the offloader name (e.g., "cpu-queue", "wgpu", "opencl").
	Name() string

	// Init acquires device resources. Called once during registration.
	Init() error

	// Close releases device resources. Pending work is drained first.
	Close()

	// ConfigureSources binds the buffers used by subsequent Reflect calls.
	ConfigureSources(packed []byte, env, dst []Texel16) error

	// Reflect enqueues one reflection pass.
	Reflect(size, shiftX, shiftY, strength int) error

	// Drain waits for every enqueued pass.
	Drain(ctx context.Context) error
}

var (
	offloadMu sync.RWMutex
	offloader Offloader
)

// RegisterOffloader registers the offloader used by renderers that were not
// given one explicitly.
//
// Only one offloader can be registered. Subsequent calls replace and close
// the previous one. Init is called during registration; if it fails the
// offloader is not registered and the error is returned.
//
// Typical usage via blank import in backend packages:
//
//	func init() {
//	    normalmap.RegisterOffloader(gpu.NewReflectOffloader())
//	}
func RegisterOffloader(o Offloader) error {
	if o == nil {
		return errors.New("normalmap: offloader must not be nil")
	}
	if err := o.Init(); err != nil {
		return err
	}
	propagateLogger(o, Logger())

	offloadMu.Lock()
	old := offloader
	offloader = o
	offloadMu.Unlock()
	if old != nil && old != o {
		forgetBinding(old)
		old.Close()
	}
	Logger().Info("normalmap: offloader registered", "name", o.Name())
	return nil
}

// ActiveOffloader returns the registered offloader, or nil if none.
func ActiveOffloader() Offloader {
	offloadMu.RLock()
	o := offloader
	offloadMu.RUnlock()
	return o
}

// UnregisterOffloader closes and removes the registered offloader.
func UnregisterOffloader() {
	offloadMu.Lock()
	old := offloader
	offloader = nil
	offloadMu.Unlock()
	if old != nil {
		forgetBinding(old)
		old.Close()
	}
}

// DeviceProviderAware is an optional interface for offloaders that can share
// a GPU device with an external provider (e.g., a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// SetOffloaderDeviceProvider passes a device provider to the registered
// offloader. If no offloader is registered or it does not support device
// sharing, this is a no-op.
func SetOffloaderDeviceProvider(provider any) error {
	o := ActiveOffloader()
	if o == nil {
		return nil
	}
	if dpa, ok := o.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
