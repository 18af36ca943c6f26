//go:build !wgpu

package backend

import (
	"errors"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

const wgpuEnabled = false

var errWGPUUnavailable = errors.New("wgpu backend not available in this build (rebuild with -tags wgpu)")

func openWGPU(tensor.Shape, int, logger.Logger) (*device.Session, error) {
	return nil, errWGPUUnavailable
}
