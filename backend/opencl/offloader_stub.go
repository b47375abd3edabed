//go:build !opencl

package opencl

import (
	"context"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

// Offloader is unavailable without the opencl build tag.
type Offloader struct{}

var _ normalmap.Offloader = (*Offloader)(nil)

// New returns an offloader whose Init fails with ErrUnavailable.
func New() *Offloader { return &Offloader{} }

func (o *Offloader) Name() string { return "opencl" }

func (o *Offloader) Init() error { return ErrUnavailable }

func (o *Offloader) Close() {}

// DeviceName returns "".
func (o *Offloader) DeviceName() string { return "" }

func (o *Offloader) ConfigureSources([]byte, []normalmap.Texel16, []normalmap.Texel16) error {
	return normalmap.ErrFallbackToCPU
}

func (o *Offloader) Reflect(int, int, int, int) error { return normalmap.ErrFallbackToCPU }

func (o *Offloader) Drain(context.Context) error { return normalmap.ErrFallbackToCPU }
