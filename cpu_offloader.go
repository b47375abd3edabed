package normalmap

import (
	"context"
	"sync"
)

// DefaultQueueDepth is the number of commands a CPUOffloader buffers before
// Reflect blocks.
const DefaultQueueDepth = 16

type cpuCommandKind uint8

const (
	cmdBind cpuCommandKind = iota
	cmdReflect
	cmdFence
)

type cpuCommand struct {
	kind cpuCommandKind

	packed []byte
	env    []Texel16
	dst    []Texel16

	size, shiftX, shiftY, strength int

	fence chan struct{}
}

// CPUOffloader implements Offloader with a background goroutine that
// executes ReflectPacked16. It has the same asynchronous contract as the
// hardware backends and serves as their fallback and test double.
//
// Usage:
//
//	normalmap.RegisterOffloader(normalmap.NewCPUOffloader(0))
type CPUOffloader struct {
	depth int

	mu      sync.Mutex
	cmds    chan cpuCommand
	stopped chan struct{}
	started bool
	closed  bool

	// Submit-side view of the bound buffers, used to validate Reflect
	// synchronously.
	packed []byte
	env    []Texel16
	dst    []Texel16
	bound  bool

	errMu sync.Mutex
	err   error
}

var _ Offloader = (*CPUOffloader)(nil)

// NewCPUOffloader returns an offloader with the given queue depth. A depth
// of zero or less uses DefaultQueueDepth. Init must be called before use;
// RegisterOffloader does this.
func NewCPUOffloader(queueDepth int) *CPUOffloader {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &CPUOffloader{depth: queueDepth}
}

// Name returns "cpu-queue".
func (o *CPUOffloader) Name() string { return "cpu-queue" }

// Init starts the worker goroutine. Calling it again is a no-op.
func (o *CPUOffloader) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOffloaderClosed
	}
	if o.started {
		return nil
	}
	o.cmds = make(chan cpuCommand, o.depth)
	o.stopped = make(chan struct{})
	o.started = true
	go o.worker(o.cmds, o.stopped)
	return nil
}

// Close drains pending work and stops the worker. Safe to call repeatedly.
func (o *CPUOffloader) Close() {
	o.mu.Lock()
	if o.closed || !o.started {
		o.closed = true
		o.mu.Unlock()
		return
	}
	o.closed = true
	cmds, stopped := o.cmds, o.stopped
	o.mu.Unlock()

	close(cmds)
	<-stopped
}

// ConfigureSources binds the buffers for subsequent Reflect calls.
// Lengths are checked against size at Reflect time.
func (o *CPUOffloader) ConfigureSources(packed []byte, env, dst []Texel16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	o.packed, o.env, o.dst = packed, env, dst
	o.bound = true
	o.cmds <- cpuCommand{kind: cmdBind, packed: packed, env: env, dst: dst}
	return nil
}

// Reflect validates the pass against the bound buffers and enqueues it.
func (o *CPUOffloader) Reflect(size, shiftX, shiftY, strength int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usableLocked(); err != nil {
		return err
	}
	if !o.bound {
		return ErrNoSources
	}
	if err := ValidateOffload(o.packed, o.env, o.dst, size, strength); err != nil {
		return err
	}
	o.cmds <- cpuCommand{kind: cmdReflect, size: size, shiftX: shiftX, shiftY: shiftY, strength: strength}
	return nil
}

// Drain waits until every enqueued pass completed or ctx is done.
func (o *CPUOffloader) Drain(ctx context.Context) error {
	fence := make(chan struct{})

	// The fence is sent under mu so Close cannot close the queue mid-send.
	o.mu.Lock()
	if err := o.usableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	select {
	case o.cmds <- cpuCommand{kind: cmdFence, fence: fence}:
		o.mu.Unlock()
	case <-ctx.Done():
		o.mu.Unlock()
		return ctx.Err()
	}

	select {
	case <-fence:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.errMu.Lock()
	err := o.err
	o.err = nil
	o.errMu.Unlock()
	return err
}

func (o *CPUOffloader) usableLocked() error {
	if o.closed {
		return ErrOffloaderClosed
	}
	if !o.started {
		return ErrNotInitialized
	}
	return nil
}

func (o *CPUOffloader) worker(cmds <-chan cpuCommand, stopped chan<- struct{}) {
	defer close(stopped)

	var packed []byte
	var env, dst []Texel16
	for cmd := range cmds {
		switch cmd.kind {
		case cmdBind:
			packed, env, dst = cmd.packed, cmd.env, cmd.dst
		case cmdReflect:
			if err := ReflectPacked16(packed, env, dst, cmd.size, cmd.shiftX, cmd.shiftY, cmd.strength); err != nil {
				o.recordErr(err)
			}
		case cmdFence:
			close(cmd.fence)
		}
	}
}

func (o *CPUOffloader) recordErr(err error) {
	o.errMu.Lock()
	if o.err == nil {
		o.err = err
	}
	o.errMu.Unlock()
	Logger().Warn("normalmap: cpu offload pass failed", "err", err)
}
