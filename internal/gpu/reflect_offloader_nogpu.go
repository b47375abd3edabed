//go:build nogpu

package gpu

import (
	"context"
	"errors"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

// ReflectOffloader is a placeholder when GPU support is compiled out. It
// registers cleanly and reports normalmap.ErrFallbackToCPU for every pass.
type ReflectOffloader struct{}

var _ normalmap.Offloader = (*ReflectOffloader)(nil)

func NewReflectOffloader() *ReflectOffloader { return &ReflectOffloader{} }

func (o *ReflectOffloader) Name() string { return "wgpu" }
func (o *ReflectOffloader) Init() error  { return nil }
func (o *ReflectOffloader) Close()       {}
func (o *ReflectOffloader) Ready() bool  { return false }

func (o *ReflectOffloader) SetDeviceProvider(any) error {
	return errors.New("gpu-reflect: built with nogpu")
}

func (o *ReflectOffloader) ConfigureSources([]byte, []normalmap.Texel16, []normalmap.Texel16) error {
	return normalmap.ErrFallbackToCPU
}

func (o *ReflectOffloader) Reflect(int, int, int, int) error { return normalmap.ErrFallbackToCPU }

func (o *ReflectOffloader) Drain(context.Context) error { return normalmap.ErrFallbackToCPU }
