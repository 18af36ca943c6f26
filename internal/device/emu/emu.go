// Package emu is a device backend that executes kernels on host goroutines.
//
// Device memory regions are private float32 arrays reachable only through the
// command queue, so the transfer/launch/finish/readback sequence behaves the
// way it does on a discrete accelerator: writes and reads are blocking, kernel
// launches are asynchronous until Finish.
package emu

import (
	"fmt"
	"runtime"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

const (
	DefaultMaxWorkGroupSize = 1024
	DefaultLocalSize        = 64
)

// Options configures an emulated device. Zero values select defaults.
type Options struct {
	// MaxWorkGroupSize is the largest local size a launch may request.
	MaxWorkGroupSize int
	// DefaultLocalSize is used when a launch passes local == 0.
	DefaultLocalSize int
	// Workers bounds how many work-groups execute at once.
	Workers int
	Log     logger.Logger
}

type Device struct {
	opts Options
	log  logger.Logger
}

func New(opts Options) *Device {
	if opts.MaxWorkGroupSize <= 0 {
		opts.MaxWorkGroupSize = DefaultMaxWorkGroupSize
	}
	if opts.DefaultLocalSize <= 0 {
		opts.DefaultLocalSize = min(DefaultLocalSize, opts.MaxWorkGroupSize)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Device{opts: opts, log: log.With("device", "emu")}
}

func (d *Device) Name() string { return "emu" }

func (d *Device) MaxWorkGroupSize() int { return d.opts.MaxWorkGroupSize }

// Alloc reserves a device region of n float32 elements.
func (d *Device) Alloc(n int) (*Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("emu: negative allocation %d", n)
	}
	return &Buffer{data: make([]float32, n)}, nil
}

// NewSession allocates a session whose buffers are sized exactly for shape.
func (d *Device) NewSession(shape tensor.Shape, local int) (*device.Session, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return d.NewSessionCapacity(shape.InputLen(), shape.WeightLen(), shape.OutputLen(), local)
}

// NewSessionCapacity allocates a session with explicit buffer capacities, so
// one session can serve any shape that fits.
func (d *Device) NewSessionCapacity(inputLen, weightLen, outputLen, local int) (*device.Session, error) {
	if local < 0 || local > d.opts.MaxWorkGroupSize {
		return nil, fmt.Errorf("emu: local size %d outside [0, %d]", local, d.opts.MaxWorkGroupSize)
	}
	in, err := d.Alloc(inputLen)
	if err != nil {
		return nil, err
	}
	w, err := d.Alloc(weightLen)
	if err != nil {
		return nil, err
	}
	out, err := d.Alloc(outputLen)
	if err != nil {
		return nil, err
	}

	k := newKernel(device.KernelMatmulForward, matmulForward)
	for idx, buf := range map[int]*Buffer{device.ArgOut: out, device.ArgInp: in, device.ArgWeight: w} {
		if err := k.setBuffer(idx, buf); err != nil {
			return nil, err
		}
	}

	q := d.NewQueue()
	release := func() error {
		err := q.Release()
		in.free()
		w.free()
		out.free()
		return err
	}
	d.log.Debug("session created", "input", inputLen, "weight", weightLen, "output", outputLen, "local", local)
	return device.NewSession(q, in, w, out, k, local, release), nil
}

// Buffer is an emulated device memory region.
type Buffer struct {
	data []float32
}

func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) free() { b.data = nil }

func asBuffer(b device.Buffer) (*Buffer, error) {
	eb, ok := b.(*Buffer)
	if !ok || eb == nil {
		return nil, fmt.Errorf("emu: foreign buffer %T", b)
	}
	return eb, nil
}
