//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DefaultFenceTimeout bounds a single fence wait in Drain and Close.
const DefaultFenceTimeout = 5 * time.Second

// reflectParamsSize is the byte size of the Params uniform in reflect.wgsl.
const reflectParamsSize = 16

// ReflectOffloader runs reflection passes as wgpu/hal compute dispatches.
// It implements normalmap.Offloader.
//
// Every Reflect records its own command buffer and fence; Drain waits on
// them in order and copies the staging buffer into the bound destination.
type ReflectOffloader struct {
	mu sync.Mutex

	// FenceTimeout bounds each fence wait. Zero means DefaultFenceTimeout.
	FenceTimeout time.Duration

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	normalsBuf hal.Buffer
	envBuf     hal.Buffer
	destBuf    hal.Buffer
	stagingBuf hal.Buffer
	normalsLen uint64
	envLen     uint64
	destLen    uint64

	// Host view of the bound buffers.
	packed []byte
	env    []normalmap.Texel16
	dst    []normalmap.Texel16
	bound  bool

	pending []*reflectPass

	gpuReady       bool
	externalDevice bool // true when using shared device (don't destroy on Close)
	closed         bool
}

// reflectPass holds the resources of one submitted dispatch until Drain.
type reflectPass struct {
	uniform   hal.Buffer
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
	fence     hal.Fence
}

var _ normalmap.Offloader = (*ReflectOffloader)(nil)

// NewReflectOffloader returns an uninitialized offloader. Init opens a
// Vulkan device; SetDeviceProvider shares one instead.
func NewReflectOffloader() *ReflectOffloader {
	return &ReflectOffloader{FenceTimeout: DefaultFenceTimeout}
}

func (o *ReflectOffloader) Name() string { return "wgpu" }

// SetLogger receives the logger from normalmap.SetLogger.
func (o *ReflectOffloader) SetLogger(l *slog.Logger) { setLogger(l) }

// Init opens a GPU device. A missing GPU is not an error: the offloader
// stays registered and reports normalmap.ErrFallbackToCPU.
func (o *ReflectOffloader) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gpuReady {
		return nil
	}
	if err := o.initGPU(); err != nil {
		slogger().Warn("gpu-reflect: GPU init failed, using CPU fallback", "err", err)
	}
	return nil
}

// Ready reports whether a device and pipeline are available.
func (o *ReflectOffloader) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gpuReady
}

func (o *ReflectOffloader) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gpuReady && len(o.pending) > 0 {
		if err := o.waitPendingLocked(context.Background()); err != nil {
			slogger().Warn("gpu-reflect: pending passes lost on close", "err", err)
		}
	}
	o.releasePendingLocked()
	o.destroySourcesLocked()
	o.destroyPipelines()
	o.releaseDeviceLocked()
	o.closed = true
}

// SetDeviceProvider switches the offloader to a shared GPU device from an
// external provider. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func (o *ReflectOffloader) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return errors.New("gpu-reflect: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return errors.New("gpu-reflect: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return errors.New("gpu-reflect: provider HalQueue is not hal.Queue")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) > 0 {
		return fmt.Errorf("%w: device switch with %d passes in flight", normalmap.ErrContractViolation, len(o.pending))
	}

	o.destroySourcesLocked()
	o.destroyPipelines()
	o.releaseDeviceLocked()

	o.device = device
	o.queue = queue
	o.externalDevice = true
	o.closed = false

	if err := o.createPipelines(); err != nil {
		o.gpuReady = false
		return fmt.Errorf("gpu-reflect: create pipelines with shared device: %w", err)
	}
	o.gpuReady = true
	slogger().Info("gpu-reflect: switched to shared GPU device")
	return nil
}

// ConfigureSources uploads the packed normal map and the environment map and
// sizes the destination buffers. The host slices are kept; dst is written by
// Drain.
func (o *ReflectOffloader) ConfigureSources(packed []byte, env, dst []normalmap.Texel16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if len(o.pending) > 0 {
		return fmt.Errorf("%w: rebinding with %d passes in flight", normalmap.ErrContractViolation, len(o.pending))
	}
	if len(packed) == 0 || len(env) == 0 || len(dst) == 0 {
		return fmt.Errorf("%w: empty source buffer", normalmap.ErrShapeMismatch)
	}

	normalsLen := alignWord(uint64(len(packed)))
	envLen := alignWord(uint64(len(env)) * 2)
	destLen := alignWord(uint64(len(dst)) * 2)
	if normalsLen != o.normalsLen || envLen != o.envLen || destLen != o.destLen {
		o.destroySourcesLocked()
		if err := o.createSourcesLocked(normalsLen, envLen, destLen); err != nil {
			o.destroySourcesLocked()
			return err
		}
	}

	normals := make([]byte, normalsLen)
	copy(normals, packed)
	o.queue.WriteBuffer(o.normalsBuf, 0, normals)
	o.queue.WriteBuffer(o.envBuf, 0, packTexels(env, envLen))

	o.packed, o.env, o.dst = packed, env, dst
	o.bound = true
	return nil
}

// Reflect records and submits one dispatch. It returns without waiting.
func (o *ReflectOffloader) Reflect(size, shiftX, shiftY, strength int) error {
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

	pass, err := o.submitPassLocked(makeReflectParams(size, shiftX, shiftY, strength))
	if err != nil {
		return err
	}
	o.pending = append(o.pending, pass)
	return nil
}

// Drain waits for every submitted pass and copies the result of the last one
// into the bound destination slice.
func (o *ReflectOffloader) Drain(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if len(o.pending) == 0 {
		return nil
	}
	if err := o.waitPendingLocked(ctx); err != nil {
		return err
	}
	o.releasePendingLocked()

	readback := make([]byte, o.destLen)
	if err := o.queue.ReadBuffer(o.stagingBuf, 0, readback); err != nil {
		return fmt.Errorf("gpu-reflect: readback: %w", err)
	}
	unpackTexels(readback, o.dst)
	return nil
}

func (o *ReflectOffloader) usableLocked() error {
	if o.closed {
		return normalmap.ErrOffloaderClosed
	}
	if !o.gpuReady {
		return normalmap.ErrFallbackToCPU
	}
	return nil
}

func (o *ReflectOffloader) fenceTimeout() time.Duration {
	if o.FenceTimeout <= 0 {
		return DefaultFenceTimeout
	}
	return o.FenceTimeout
}

// waitPendingLocked waits on each fence in submission order. Completed
// passes stay in the list; releasePendingLocked frees them.
func (o *ReflectOffloader) waitPendingLocked(ctx context.Context) error {
	for _, p := range o.pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := o.fenceTimeout()
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < timeout {
				timeout = max(left, 0)
			}
		}
		done, err := o.device.Wait(p.fence, 1, timeout)
		if err != nil {
			return fmt.Errorf("gpu-reflect: wait for GPU: %w", err)
		}
		if !done {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gpu-reflect: wait for GPU: timed out after %v", timeout)
		}
	}
	return nil
}

func (o *ReflectOffloader) releasePendingLocked() {
	for _, p := range o.pending {
		o.releasePass(p)
	}
	o.pending = o.pending[:0]
}

func (o *ReflectOffloader) releasePass(p *reflectPass) {
	if o.device == nil {
		return
	}
	if p.fence != nil {
		o.device.DestroyFence(p.fence)
	}
	if p.cmdBuf != nil {
		o.device.FreeCommandBuffer(p.cmdBuf)
	}
	if p.bindGroup != nil {
		o.device.DestroyBindGroup(p.bindGroup)
	}
	if p.uniform != nil {
		o.device.DestroyBuffer(p.uniform)
	}
}

func (o *ReflectOffloader) submitPassLocked(params []byte) (*reflectPass, error) {
	p := &reflectPass{}
	ok := false
	defer func() {
		if !ok {
			o.releasePass(p)
		}
	}()

	ub, err := o.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "reflect_params", Size: reflectParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu-reflect: create uniform buffer: %w", err)
	}
	p.uniform = ub
	o.queue.WriteBuffer(ub, 0, params)

	bg, err := o.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "reflect_bind", Layout: o.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: reflectParamsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: o.normalsBuf.NativeHandle(), Offset: 0, Size: o.normalsLen}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: o.envBuf.NativeHandle(), Offset: 0, Size: o.envLen}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: o.destBuf.NativeHandle(), Offset: 0, Size: o.destLen}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu-reflect: create bind group: %w", err)
	}
	p.bindGroup = bg

	encoder, err := o.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "reflect_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpu-reflect: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("reflect"); err != nil {
		return nil, fmt.Errorf("gpu-reflect: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "reflect_pass"})
	pass.SetPipeline(o.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(dispatchCount(o.destLen), 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(o.destBuf, o.stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: o.destLen},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu-reflect: end encoding: %w", err)
	}
	p.cmdBuf = cmdBuf

	fence, err := o.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu-reflect: create fence: %w", err)
	}
	p.fence = fence
	if err := o.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("gpu-reflect: submit: %w", err)
	}
	ok = true
	return p, nil
}

func (o *ReflectOffloader) createSourcesLocked(normalsLen, envLen, destLen uint64) error {
	var err error
	o.normalsBuf, err = o.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "reflect_normals", Size: normalsLen,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu-reflect: create normals buffer: %w", err)
	}
	o.envBuf, err = o.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "reflect_env", Size: envLen,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu-reflect: create environment buffer: %w", err)
	}
	o.destBuf, err = o.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "reflect_dest", Size: destLen,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu-reflect: create destination buffer: %w", err)
	}
	o.stagingBuf, err = o.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "reflect_staging", Size: destLen,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu-reflect: create staging buffer: %w", err)
	}
	o.normalsLen, o.envLen, o.destLen = normalsLen, envLen, destLen
	return nil
}

func (o *ReflectOffloader) destroySourcesLocked() {
	if o.device != nil {
		for _, b := range []hal.Buffer{o.normalsBuf, o.envBuf, o.destBuf, o.stagingBuf} {
			if b != nil {
				o.device.DestroyBuffer(b)
			}
		}
	}
	o.normalsBuf, o.envBuf, o.destBuf, o.stagingBuf = nil, nil, nil, nil
	o.normalsLen, o.envLen, o.destLen = 0, 0, 0
	o.packed, o.env, o.dst = nil, nil, nil
	o.bound = false
}

func (o *ReflectOffloader) releaseDeviceLocked() {
	if !o.externalDevice {
		if o.device != nil {
			o.device.Destroy()
		}
		if o.instance != nil {
			o.instance.Destroy()
		}
	}
	o.device = nil
	o.queue = nil
	o.instance = nil
	o.gpuReady = false
	o.externalDevice = false
}

func (o *ReflectOffloader) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return errors.New("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	o.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return errors.New("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	o.device = openDev.Device
	o.queue = openDev.Queue
	if err := o.createPipelines(); err != nil {
		o.device.Destroy()
		o.device = nil
		o.queue = nil
		return fmt.Errorf("create pipelines: %w", err)
	}
	o.gpuReady = true
	slogger().Info("gpu-reflect: offloader initialized", "adapter", selected.Info.Name)
	return nil
}

func (o *ReflectOffloader) createPipelines() error {
	spirv, err := compileSPIRV(reflectShaderSource)
	if err != nil {
		return err
	}
	shader, err := o.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "reflect",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create reflect shader module: %w", err)
	}
	o.shader = shader

	bindLayout, err := o.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "reflect_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create reflect bind group layout: %w", err)
	}
	o.bindLayout = bindLayout

	pipeLayout, err := o.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "reflect_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{o.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create reflect pipeline layout: %w", err)
	}
	o.pipeLayout = pipeLayout

	pipeline, err := o.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "reflect_pipeline", Layout: o.pipeLayout,
		Compute: hal.ComputeState{Module: o.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create reflect compute pipeline: %w", err)
	}
	o.pipeline = pipeline
	return nil
}

func (o *ReflectOffloader) destroyPipelines() {
	if o.device == nil {
		return
	}
	if o.pipeline != nil {
		o.device.DestroyComputePipeline(o.pipeline)
	}
	if o.pipeLayout != nil {
		o.device.DestroyPipelineLayout(o.pipeLayout)
	}
	if o.bindLayout != nil {
		o.device.DestroyBindGroupLayout(o.bindLayout)
	}
	if o.shader != nil {
		o.device.DestroyShaderModule(o.shader)
	}
	o.pipeline, o.pipeLayout, o.bindLayout, o.shader = nil, nil, nil, nil
}

// makeReflectParams encodes the Params uniform. Shifts are reduced modulo
// the side length so the shader's i32 arithmetic cannot overflow.
func makeReflectParams(size, shiftX, shiftY, strength int) []byte {
	n := 1 << size
	buf := make([]byte, reflectParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(size))                             //nolint:gosec // size validated
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(normalmap.Wrap(shiftX, n)))) //nolint:gosec // wrapped into [0, n)
	binary.LittleEndian.PutUint32(buf[8:], uint32(int32(normalmap.Wrap(shiftY, n)))) //nolint:gosec // wrapped into [0, n)
	binary.LittleEndian.PutUint32(buf[12:], uint32(strength))                        //nolint:gosec // strength validated
	return buf
}

// dispatchCount returns the workgroup count covering destLen bytes, one
// invocation per 32-bit word.
func dispatchCount(destLen uint64) uint32 {
	words := destLen / 4
	return uint32((words + reflectWorkgroupSize - 1) / reflectWorkgroupSize) //nolint:gosec // bounded by MaxOffloadSize
}

func alignWord(n uint64) uint64 {
	return (n + 3) &^ 3
}

// packTexels lays out 16-bit texels little-endian, two per word, padded to
// byteLen.
func packTexels(texels []normalmap.Texel16, byteLen uint64) []byte {
	out := make([]byte, byteLen)
	for i, t := range texels {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(t))
	}
	return out
}

func unpackTexels(packed []byte, dst []normalmap.Texel16) {
	for i := range dst {
		dst[i] = normalmap.Texel16(binary.LittleEndian.Uint16(packed[i*2:]))
	}
}
