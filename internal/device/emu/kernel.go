package emu

import (
	"fmt"
	"sync"

	"github.com/samcharles93/matfwd/internal/device"
)

type kernelFunc func(gid int, a *launchArgs)

// launchArgs is the argument snapshot taken when a kernel is enqueued.
type launchArgs struct {
	out, inp, weight []float32
	B, T, C, OC      int
}

type argSlot struct {
	buf    *Buffer
	scalar int32
	set    bool
}

// Kernel is an emulated program handle. Argument values are captured at
// enqueue time, so rebinding after EnqueueKernel does not affect a launch
// already in the queue.
type Kernel struct {
	name string
	fn   kernelFunc

	mu   sync.Mutex
	args [device.NumArgs]argSlot
}

func newKernel(name string, fn kernelFunc) *Kernel {
	return &Kernel{name: name, fn: fn}
}

func (k *Kernel) Name() string { return k.name }

// SetArg binds a shape scalar. Buffer slots are bound by the device when the
// session is created and cannot be rebound here.
func (k *Kernel) SetArg(index int, value int32) error {
	if index < device.ArgB || index >= device.NumArgs {
		return fmt.Errorf("emu: kernel %s: invalid scalar argument index %d", k.name, index)
	}
	k.mu.Lock()
	k.args[index] = argSlot{scalar: value, set: true}
	k.mu.Unlock()
	return nil
}

func (k *Kernel) setBuffer(index int, b *Buffer) error {
	if index < 0 || index >= device.ArgB {
		return fmt.Errorf("emu: kernel %s: invalid buffer argument index %d", k.name, index)
	}
	k.mu.Lock()
	k.args[index] = argSlot{buf: b, set: true}
	k.mu.Unlock()
	return nil
}

func (k *Kernel) snapshot() (*launchArgs, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, a := range k.args {
		if !a.set {
			return nil, fmt.Errorf("emu: kernel %s: argument %d not set", k.name, i)
		}
	}
	return &launchArgs{
		out:    k.args[device.ArgOut].buf.data,
		inp:    k.args[device.ArgInp].buf.data,
		weight: k.args[device.ArgWeight].buf.data,
		B:      int(k.args[device.ArgB].scalar),
		T:      int(k.args[device.ArgT].scalar),
		C:      int(k.args[device.ArgC].scalar),
		OC:     int(k.args[device.ArgOC].scalar),
	}, nil
}

// matmulForward computes one output element (b,t,o) as a dot product of
// inp[b,t,:] and weight[o,:]. No bias.
func matmulForward(gid int, a *launchArgs) {
	if gid >= a.B*a.T*a.OC {
		return
	}
	bt := gid / a.OC
	o := gid % a.OC
	inp := a.inp[bt*a.C : bt*a.C+a.C]
	w := a.weight[o*a.C : o*a.C+a.C]
	var val float32
	for i := range inp {
		val += float32(inp[i] * w[i])
	}
	a.out[gid] = val
}
