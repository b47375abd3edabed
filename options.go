package normalmap

// RendererOption configures a Renderer during creation.
//
// Example:
//
//	// CPU only, magnified environment map
//	r, err := normalmap.NewRenderer(normal, env, 5,
//	    normalmap.WithCPUOnly(),
//	    normalmap.WithFilterFactor(2))
type RendererOption func(*rendererOptions)

type rendererOptions struct {
	offloader    Offloader
	cpuOnly      bool
	filterFactor int
	dst          []Texel16
	workers      int
}

func defaultRendererOptions() rendererOptions {
	return rendererOptions{
		offloader: nil, // resolved to ActiveOffloader() at render time
	}
}

// WithOffloader makes the Renderer use o instead of the registered
// offloader. The Renderer does not call Init or Close on o.
func WithOffloader(o Offloader) RendererOption {
	return func(opts *rendererOptions) {
		opts.offloader = o
	}
}

// WithCPUOnly disables offloading; every frame runs ReflectFilt16.
func WithCPUOnly() RendererOption {
	return func(opts *rendererOptions) {
		opts.cpuOnly = true
	}
}

// WithFilterFactor declares the environment map as magnified by
// 2^filterFactor. Offloaders only handle filterFactor 0, so a non-zero value
// implies CPU rendering.
func WithFilterFactor(filterFactor int) RendererOption {
	return func(opts *rendererOptions) {
		opts.filterFactor = filterFactor
	}
}

// WithDestination makes the Renderer write into a caller-owned buffer of
// 2^size * 2^size texels instead of allocating one.
func WithDestination(dst []Texel16) RendererOption {
	return func(opts *rendererOptions) {
		opts.dst = dst
	}
}

// WithWorkers splits CPU frames into row bands computed by n goroutines.
// Values below 2 keep CPU frames on the calling goroutine. Zero-allocation
// rendering only holds for the single-goroutine path.
func WithWorkers(n int) RendererOption {
	return func(opts *rendererOptions) {
		opts.workers = n
	}
}
