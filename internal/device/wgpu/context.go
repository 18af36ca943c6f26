//go:build wgpu

// Package wgpu is a device backend on WebGPU. It is compiled only with the
// wgpu build tag because it links the native wgpu library.
package wgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/matfwd/internal/logger"
)

// Context is an opened adapter, device and queue. Unlike a process-wide
// singleton it is created and released by its owner.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	log logger.Logger
}

// Open requests a high-performance adapter, falling back to low-power and
// then the default adapter.
func Open(log logger.Logger) (*Context, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("device", "wgpu")

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("wgpu: failed to create instance")
	}

	var (
		adapter *wgpu.Adapter
		err     error
	)
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		adapter, err = instance.RequestAdapter(opts)
		if err == nil && adapter != nil {
			break
		}
		log.Debug("adapter request failed", "error", err)
	}
	if adapter == nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: all adapter requests failed: %v", err)
	}

	info := adapter.GetInfo()
	log.Info("using adapter", "name", info.Name, "vendor", info.VendorName)

	c := &Context{Instance: instance, Adapter: adapter, log: log}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("wgpu: request device: %w", err)
	}
	c.Device = dev
	c.Queue = dev.GetQueue()
	if c.Queue == nil {
		c.Release()
		return nil, fmt.Errorf("wgpu: device queue not initialized")
	}
	return c, nil
}

func (c *Context) Release() {
	if c.Queue != nil {
		c.Queue.Release()
		c.Queue = nil
	}
	if c.Device != nil {
		c.Device.Release()
		c.Device = nil
	}
	if c.Adapter != nil {
		c.Adapter.Release()
		c.Adapter = nil
	}
	if c.Instance != nil {
		c.Instance.Release()
		c.Instance = nil
	}
}
