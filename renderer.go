package normalmap

import (
	"context"
	"errors"
	"sync"

	"github.com/SpookyIluha/normalmap-ucodetest/internal/parallel"
)

// PathCPU is reported by Renderer.LastPath for frames computed by the
// synchronous samplers.
const PathCPU = "cpu-fallback"

// An offloader holds one set of bound buffers and one queue, whichever
// Renderer uses it. offloadBound records which Renderer's buffers each
// offloader currently holds; offloadSeqMu is held across a whole
// bind, reflect and drain sequence.
var (
	offloadSeqMu sync.Mutex
	offloadBound = map[Offloader]*Renderer{}
)

// Renderer drives one 16-bit reflection per frame. It packs the normal map
// once, keeps the destination buffer across frames, and prefers an
// Offloader when one is available, falling back to ReflectFilt16 on any
// offload error. Both paths use the same addressing, so output does not
// depend on which one ran.
//
// A Renderer is safe for concurrent use, but frames are serialized because
// they share one destination. Renderers sharing an offloader take turns on it.
type Renderer struct {
	mu sync.Mutex

	size         int
	filterFactor int
	normal       []Texel32
	packed       []byte
	env          []Texel16
	dst          []Texel16

	pool      *parallel.WorkerPool
	offloader Offloader
	cpuOnly   bool
	lastPath  string

	// unavailable is the offloader whose ErrFallbackToCPU was already
	// reported; repeats are logged at debug level.
	unavailable Offloader
}

// NewRenderer validates the buffers and prepares a Renderer. normal holds
// 2^size squared texels and env holds 2^(size+filterFactor) squared texels.
func NewRenderer(normal []Texel32, env []Texel16, size int, opts ...RendererOption) (*Renderer, error) {
	o := defaultRendererOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := Params{Size: size, FilterFactor: o.filterFactor}
	if err := p.validate(true); err != nil {
		return nil, err
	}
	n := p.Side()
	if err := checkLen("normal map", len(normal), n*n); err != nil {
		return nil, err
	}
	if err := checkLen("environment map", len(env), p.EnvSide()*p.EnvSide()); err != nil {
		return nil, err
	}
	dst := o.dst
	if dst == nil {
		dst = make([]Texel16, n*n)
	} else if err := checkLen("destination map", len(dst), n*n); err != nil {
		return nil, err
	}

	r := &Renderer{
		size:         size,
		filterFactor: o.filterFactor,
		normal:       normal,
		env:          env,
		dst:          dst,
		offloader:    o.offloader,
		cpuOnly:      o.cpuOnly || o.filterFactor != 0 || size < MinOffloadSize || size > MaxOffloadSize,
	}
	if o.workers > 1 {
		r.pool = parallel.NewWorkerPool(o.workers)
	}
	if !r.cpuOnly {
		packed, err := NewPackedNormalMap(normal, size)
		if err != nil {
			return nil, err
		}
		r.packed = packed
	}
	Logger().Debug("normalmap: renderer created",
		"size", size, "filterFactor", o.filterFactor, "cpuOnly", r.cpuOnly, "workers", o.workers)
	return r, nil
}

// Render computes one frame and returns the destination buffer. shiftY uses
// the CPU convention; the conversion for offloaders happens here. The
// returned slice is reused by the next call.
func (r *Renderer) Render(ctx context.Context, shiftX, shiftY, strength int) ([]Texel16, error) {
	if err := validateStrength(strength); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if off := r.activeOffloader(); off != nil {
		err := r.offload(ctx, off, shiftX, shiftY, strength)
		if err == nil {
			r.unavailable = nil
			r.lastPath = off.Name()
			return r.dst, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logOffloadFailure(off, err)
	}

	if err := r.reflectCPU(shiftX, shiftY, strength); err != nil {
		return nil, err
	}
	r.lastPath = PathCPU
	return r.dst, nil
}

// LastPath returns the name of the offloader that computed the last frame,
// or PathCPU.
func (r *Renderer) LastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPath
}

// Close detaches the Renderer from its offloader and stops its CPU workers.
// The offloader itself is not closed; it belongs to the registry or to the
// caller of WithOffloader. Frames rendered after Close run on the CPU.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	r.unbind()
	r.offloader = nil
	r.cpuOnly = true
}

// Destination returns the destination buffer.
func (r *Renderer) Destination() []Texel16 { return r.dst }

// Size returns log2 of the destination side length.
func (r *Renderer) Size() int { return r.size }

func (r *Renderer) activeOffloader() Offloader {
	if r.cpuOnly {
		return nil
	}
	if r.offloader != nil {
		return r.offloader
	}
	return ActiveOffloader()
}

// offload runs one pass on off. Sources are rebound whenever off last held
// another Renderer's buffers, and after any failure.
func (r *Renderer) offload(ctx context.Context, off Offloader, shiftX, shiftY, strength int) error {
	offloadSeqMu.Lock()
	defer offloadSeqMu.Unlock()

	err := r.offloadLocked(ctx, off, shiftX, shiftY, strength)
	if err != nil {
		delete(offloadBound, off)
	}
	return err
}

func (r *Renderer) offloadLocked(ctx context.Context, off Offloader, shiftX, shiftY, strength int) error {
	if offloadBound[off] != r {
		delete(offloadBound, off)
		if err := off.ConfigureSources(r.packed, r.env, r.dst); err != nil {
			return err
		}
		offloadBound[off] = r
	}
	if err := off.Reflect(r.size, shiftX, OffloadShiftY(shiftY), strength); err != nil {
		return err
	}
	return off.Drain(ctx)
}

func (r *Renderer) logOffloadFailure(off Offloader, err error) {
	if errors.Is(err, ErrFallbackToCPU) {
		if r.unavailable == off {
			Logger().Debug("normalmap: offloader still unavailable", "offloader", off.Name())
			return
		}
		r.unavailable = off
	}
	Logger().Warn("normalmap: offload failed, using CPU", "offloader", off.Name(), "err", err)
}

// unbind drops every binding that refers to r's buffers.
func (r *Renderer) unbind() {
	offloadSeqMu.Lock()
	defer offloadSeqMu.Unlock()
	for off, owner := range offloadBound {
		if owner == r {
			delete(offloadBound, off)
		}
	}
}

// forgetBinding drops the binding record of an offloader leaving the
// registry.
func forgetBinding(off Offloader) {
	offloadSeqMu.Lock()
	delete(offloadBound, off)
	offloadSeqMu.Unlock()
}

func (r *Renderer) reflectCPU(shiftX, shiftY, strength int) error {
	if r.pool == nil {
		return ReflectFilt16(r.normal, r.env, r.dst, r.size, r.filterFactor, shiftX, shiftY, strength)
	}
	p := Params{Size: r.size, FilterFactor: r.filterFactor, ShiftX: shiftX, ShiftY: shiftY, Strength: strength}
	return reflectBands(r.pool, Filt16, r.normal, r.env, r.dst, p)
}
