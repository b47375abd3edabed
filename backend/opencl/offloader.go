//go:build opencl

package opencl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

const reflectKernelSource = `__kernel void reflect_packed16(
    const int size,
    const int shift_x,
    const int shift_y,
    const int strength,
    __global const char* normals,
    __global const ushort* env,
    __global ushort* dest)
{
    int p = get_global_id(0);
    int n = 1 << size;
    if (p >= n * n) {
        return;
    }
    int mask = n - 1;
    int i = p >> size;
    int j = p & mask;
    int base = (p >> 3) * 16 + (p & 7);
    int shift = 8 - strength;
    int dx = ((int)normals[base]) >> shift;
    int dy = ((int)normals[base + 8]) >> shift;
    int x = (j + shift_x - dx) & mask;
    int y = (i - shift_y - dy) & mask;
    dest[p] = env[y * n + x];
}`

// Offloader runs reflection passes with OpenCL. Reflect enqueues the kernel
// without blocking; Drain performs a blocking readback of the destination.
type Offloader struct {
	mu sync.Mutex

	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	normalsBuf *cl.MemObject
	envBuf     *cl.MemObject
	destBuf    *cl.MemObject

	packed []byte
	env    []normalmap.Texel16
	dst    []normalmap.Texel16
	bound  bool

	pending    int
	deviceName string
	ready      bool
	closed     bool
}

var _ normalmap.Offloader = (*Offloader)(nil)

// New returns an uninitialized offloader.
func New() *Offloader { return &Offloader{} }

func (o *Offloader) Name() string { return "opencl" }

// DeviceName returns the name of the selected OpenCL device.
func (o *Offloader) DeviceName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceName
}

// Init selects a GPU device, falling back to a CPU device, and builds the
// kernel.
func (o *Offloader) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return normalmap.ErrOffloaderClosed
	}
	if o.ready {
		return nil
	}

	device, err := selectDevice()
	if err != nil {
		return err
	}
	ctx, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return fmt.Errorf("opencl: creating context: %w", err)
	}
	o.context = ctx
	o.queue, err = ctx.CreateCommandQueue(device, 0)
	if err != nil {
		o.releaseLocked()
		return fmt.Errorf("opencl: creating command queue: %w", err)
	}
	o.program, err = ctx.CreateProgramWithSource([]string{reflectKernelSource})
	if err != nil {
		o.releaseLocked()
		return fmt.Errorf("opencl: creating program: %w", err)
	}
	if err := o.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		o.releaseLocked()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return fmt.Errorf("opencl: building program: %s", string(buildErr))
		}
		return fmt.Errorf("opencl: building program: %w", err)
	}
	o.kernel, err = o.program.CreateKernel("reflect_packed16")
	if err != nil {
		o.releaseLocked()
		return fmt.Errorf("opencl: creating kernel: %w", err)
	}
	o.deviceName = device.Name()
	o.ready = true
	normalmap.Logger().Info("opencl: offloader initialized", "device", o.deviceName)
	return nil
}

func selectDevice() (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "opencl: querying platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && !errors.Is(derr, cl.ErrDeviceNotFound) {
				continue
			}
			if len(devices) > 0 {
				return devices[0], nil
			}
		}
	}
	return nil, errors.New("opencl: no suitable devices found")
}

func (o *Offloader) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queue != nil && o.pending > 0 {
		if err := o.queue.Finish(); err != nil {
			normalmap.Logger().Warn("opencl: finish on close failed", "err", err)
		}
	}
	o.releaseLocked()
	o.closed = true
}

// ConfigureSources allocates device buffers and uploads the packed normal
// map and the environment map.
func (o *Offloader) ConfigureSources(packed []byte, env, dst []normalmap.Texel16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if o.pending > 0 {
		return fmt.Errorf("%w: rebinding with %d passes in flight", normalmap.ErrContractViolation, o.pending)
	}
	if len(packed) == 0 || len(env) == 0 || len(dst) == 0 {
		return fmt.Errorf("%w: empty source buffer", normalmap.ErrShapeMismatch)
	}

	o.releaseBuffersLocked()
	var err error
	o.normalsBuf, err = o.context.CreateEmptyBuffer(cl.MemReadOnly, len(packed))
	if err != nil {
		return fmt.Errorf("opencl: allocating normals buffer: %w", err)
	}
	o.envBuf, err = o.context.CreateEmptyBuffer(cl.MemReadOnly, len(env)*2)
	if err != nil {
		o.releaseBuffersLocked()
		return fmt.Errorf("opencl: allocating environment buffer: %w", err)
	}
	o.destBuf, err = o.context.CreateEmptyBuffer(cl.MemWriteOnly, len(dst)*2)
	if err != nil {
		o.releaseBuffersLocked()
		return fmt.Errorf("opencl: allocating destination buffer: %w", err)
	}

	if _, err := o.queue.EnqueueWriteBuffer(o.normalsBuf, true, 0, len(packed), unsafe.Pointer(&packed[0]), nil); err != nil {
		o.releaseBuffersLocked()
		return fmt.Errorf("opencl: writing normals buffer: %w", err)
	}
	if _, err := o.queue.EnqueueWriteBuffer(o.envBuf, true, 0, len(env)*2, unsafe.Pointer(&env[0]), nil); err != nil {
		o.releaseBuffersLocked()
		return fmt.Errorf("opencl: writing environment buffer: %w", err)
	}
	if err := o.kernel.SetArgs(int32(0), int32(0), int32(0), int32(0), o.normalsBuf, o.envBuf, o.destBuf); err != nil {
		o.releaseBuffersLocked()
		return fmt.Errorf("opencl: setting kernel arguments: %w", err)
	}

	o.packed, o.env, o.dst = packed, env, dst
	o.bound = true
	return nil
}

// Reflect enqueues one kernel launch covering the destination.
func (o *Offloader) Reflect(size, shiftX, shiftY, strength int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if !o.bound {
		return normalmap.ErrNoSources
	}
	if err := normalmap.ValidateOffload(o.packed, o.env, o.dst, size, strength); err != nil {
		return err
	}

	n := 1 << size
	args := [4]int{size, normalmap.Wrap(shiftX, n), normalmap.Wrap(shiftY, n), strength}
	for i, v := range args {
		if err := o.kernel.SetArgInt32(i, int32(v)); err != nil { //nolint:gosec // bounded by validation
			return fmt.Errorf("opencl: setting kernel argument %d: %w", i, err)
		}
	}
	if _, err := o.queue.EnqueueNDRangeKernel(o.kernel, nil, []int{n * n}, nil, nil); err != nil {
		return fmt.Errorf("opencl: enqueueing kernel: %w", err)
	}
	o.pending++
	return nil
}

// Drain reads the destination back with a blocking transfer. The context is
// only checked before the transfer; an in-flight readback cannot be
// interrupted.
func (o *Offloader) Drain(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if o.pending == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.queue.EnqueueReadBuffer(o.destBuf, true, 0, len(o.dst)*2, unsafe.Pointer(&o.dst[0]), nil); err != nil {
		return fmt.Errorf("opencl: reading destination buffer: %w", err)
	}
	o.pending = 0
	return nil
}

func (o *Offloader) usableLocked() error {
	if o.closed {
		return normalmap.ErrOffloaderClosed
	}
	if !o.ready {
		return normalmap.ErrFallbackToCPU
	}
	return nil
}

func (o *Offloader) releaseBuffersLocked() {
	for _, b := range []**cl.MemObject{&o.destBuf, &o.envBuf, &o.normalsBuf} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	o.packed, o.env, o.dst = nil, nil, nil
	o.bound = false
}

func (o *Offloader) releaseLocked() {
	o.releaseBuffersLocked()
	if o.kernel != nil {
		o.kernel.Release()
		o.kernel = nil
	}
	if o.program != nil {
		o.program.Release()
		o.program = nil
	}
	if o.queue != nil {
		o.queue.Release()
		o.queue = nil
	}
	if o.context != nil {
		o.context.Release()
		o.context = nil
	}
	o.ready = false
	o.pending = 0
}
