// Package opencl provides a normalmap.Offloader backed by an OpenCL kernel.
//
// The real implementation needs an OpenCL ICD loader and is only built with
// the opencl tag:
//
//	go build -tags opencl ./...
//
// Without the tag, Init returns ErrUnavailable.
//
// Usage:
//
//	if err := opencl.Register(); err != nil {
//	    log.Printf("OpenCL offload disabled: %v", err)
//	}
package opencl

import (
	"errors"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

// ErrUnavailable is returned by Init when OpenCL support is not compiled in.
var ErrUnavailable = errors.New("opencl: support is not enabled; rebuild with -tags opencl")

// Register initializes an OpenCL offloader and registers it with normalmap.
func Register() error {
	return normalmap.RegisterOffloader(New())
}
