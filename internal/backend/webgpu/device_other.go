//go:build !windows

package webgpu

import (
	"github.com/born-ml/prims/internal/fusion"
)

// device is never opened on this platform: the WebGPU bindings load the
// native library through the Windows loader only.
type device struct{}

func openDevice() (*device, error) {
	return nil, ErrUnavailable
}

func (d *device) compile(*fusion.Program, *Shader) (fusion.Kernel, error) {
	return nil, ErrUnavailable
}

func (d *device) release() {}
