package backend

import (
	"fmt"
	"strings"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/device/emu"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

const (
	Host = "host"
	Emu  = "emu"
	WGPU = "wgpu"
	Auto = "auto"
)

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Host, Emu, WGPU, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, host, emu, or wgpu)", backend)
	}
}

// Open resolves name and opens a device session sized for shape. The host
// backend has no session; callers run the host path when it returns nil.
// The resolved backend name is returned alongside the session.
func Open(name string, shape tensor.Shape, local int, log logger.Logger) (*device.Session, string, error) {
	if log == nil {
		log = logger.Discard()
	}
	backend, err := Normalize(name)
	if err != nil {
		return nil, "", err
	}
	if err := shape.Validate(); err != nil {
		return nil, "", err
	}

	switch backend {
	case Host:
		return nil, Host, nil
	case Emu:
		s, err := openEmu(shape, local, log)
		return s, Emu, err
	case WGPU:
		if !wgpuEnabled {
			return nil, "", errWGPUUnavailable
		}
		s, err := openWGPU(shape, local, log)
		return s, WGPU, err
	}

	if wgpuEnabled {
		s, err := openWGPU(shape, local, log)
		if err == nil {
			return s, WGPU, nil
		}
		log.Warn("wgpu backend unavailable, falling back", "fallback", Emu, "error", err)
	}
	s, err := openEmu(shape, local, log)
	return s, Emu, err
}

func openEmu(shape tensor.Shape, local int, log logger.Logger) (*device.Session, error) {
	return emu.New(emu.Options{Log: log}).NewSession(shape, local)
}
