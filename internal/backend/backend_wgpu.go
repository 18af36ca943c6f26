//go:build wgpu

package backend

import (
	"errors"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/device/wgpu"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

const wgpuEnabled = true

var errWGPUUnavailable = errors.New("wgpu backend not available")

// openWGPU ties the adapter lifetime to the returned session.
func openWGPU(shape tensor.Shape, local int, log logger.Logger) (*device.Session, error) {
	ctx, err := wgpu.Open(log)
	if err != nil {
		return nil, err
	}
	s, err := ctx.NewSession(shape, local)
	if err != nil {
		ctx.Release()
		return nil, err
	}
	return device.NewSession(s.Queue, s.Input, s.Weight, s.Output, s.Kernel, s.LocalSize, func() error {
		err := s.Release()
		ctx.Release()
		return err
	}), nil
}
