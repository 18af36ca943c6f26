//go:build wgpu

package wgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/tensor"
)

const (
	DefaultLocalSize = 64
	maxWorkgroupsX   = 65535
)

var (
	storageReadWrite  = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	stagingReadBuffer = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
)

// Buffer is a storage buffer holding float32 elements.
type Buffer struct {
	buf *wgpu.Buffer
	n   int
}

func (b *Buffer) Len() int { return b.n }

func (c *Context) newBuffer(label string, n int, usage wgpu.BufferUsage) (*Buffer, error) {
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(n * 4),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %s: %w", label, err)
	}
	return &Buffer{buf: buf, n: n}, nil
}

// NewSession allocates buffers sized for shape and compiles the forward
// kernel with a work-group size of local (0 selects DefaultLocalSize).
func (c *Context) NewSession(shape tensor.Shape, local int) (*device.Session, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if local == 0 {
		local = DefaultLocalSize
	}
	if local < 0 || local > 256 {
		return nil, fmt.Errorf("wgpu: local size %d outside [1, 256]", local)
	}

	var (
		bufs []*Buffer
		err  error
	)
	alloc := func(label string, n int, usage wgpu.BufferUsage) *Buffer {
		if err != nil {
			return nil
		}
		var b *Buffer
		b, err = c.newBuffer(label, n, usage)
		if b != nil {
			bufs = append(bufs, b)
		}
		return b
	}
	in := alloc("matmul_inp", shape.InputLen(), storageReadWrite)
	w := alloc("matmul_weight", shape.WeightLen(), storageReadWrite)
	out := alloc("matmul_out", shape.OutputLen(), storageReadWrite)
	staging := alloc("matmul_staging", shape.OutputLen(), stagingReadBuffer)
	params := alloc("matmul_params", 4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		destroyAll(bufs)
		return nil, err
	}

	k, err := c.compile(local, out, in, w, params)
	if err != nil {
		destroyAll(bufs)
		return nil, err
	}

	q := &Queue{ctx: c, staging: staging}
	release := func() error {
		k.release()
		destroyAll(bufs)
		return nil
	}
	c.log.Debug("session created", "shape", shape.String(), "local", local)
	return device.NewSession(q, in, w, out, k, local, release), nil
}

func destroyAll(bufs []*Buffer) {
	for _, b := range bufs {
		if b != nil && b.buf != nil {
			b.buf.Destroy()
		}
	}
}
