package normalmap

import (
	"errors"
	"fmt"
)

// Package errors. All of them describe caller mistakes; none is retryable.
var (
	// ErrContractViolation is the root of every parameter and buffer-shape
	// error returned by the samplers and the packer.
	ErrContractViolation = errors.New("normalmap: contract violation")

	// ErrShapeMismatch is returned when a buffer length does not match the
	// shape implied by size and filterFactor.
	ErrShapeMismatch = fmt.Errorf("%w: shape mismatch", ErrContractViolation)

	// ErrUnsupportedShape is returned by the packer for maps smaller than one
	// 8-texel chunk group per row (size < 3).
	ErrUnsupportedShape = errors.New("normalmap: unsupported shape")

	// ErrFallbackToCPU indicates the offloader cannot handle this request.
	// The caller should transparently fall back to the CPU samplers.
	ErrFallbackToCPU = errors.New("normalmap: falling back to CPU reflection")

	// ErrNoSources is returned by Offloader.Reflect when ConfigureSources
	// has not been called.
	ErrNoSources = errors.New("normalmap: offload sources not configured")

	// ErrNotInitialized is returned when an offloader is used before Init.
	ErrNotInitialized = errors.New("normalmap: offloader not initialized")

	// ErrOffloaderClosed is returned by operations on a closed offloader.
	ErrOffloaderClosed = errors.New("normalmap: offloader closed")
)

// ParamError reports a scalar parameter outside its supported range.
type ParamError struct {
	Name     string
	Value    int
	Min, Max int
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("normalmap: %s=%d out of range [%d, %d]", e.Name, e.Value, e.Min, e.Max)
}

// Unwrap makes ParamError match ErrContractViolation.
func (e *ParamError) Unwrap() error { return ErrContractViolation }

// ShapeError reports a buffer whose length does not match the declared shape.
type ShapeError struct {
	Buffer string
	Got    int
	Want   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("normalmap: %s has %d elements, want %d", e.Buffer, e.Got, e.Want)
}

// Unwrap makes ShapeError match ErrShapeMismatch and ErrContractViolation.
func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }
