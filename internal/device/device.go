// Package device defines the contract between the linear forward executor and
// a parallel compute device: a command queue, device-resident buffers and a
// compiled forward kernel, bundled into a Session.
package device

import (
	"errors"
	"sync"
)

// Kernel argument slots of the matmul forward kernel. Buffer slots are bound
// once when a backend creates the session; shape scalars are bound per call.
const (
	ArgOut = iota
	ArgInp
	ArgWeight
	ArgB
	ArgT
	ArgC
	ArgOC

	NumArgs
)

// KernelMatmulForward is the entry point name every backend compiles.
const KernelMatmulForward = "matmul_forward"

// ErrReleased is returned by queues and sessions used after Release.
var ErrReleased = errors.New("device: session released")

// Buffer is a device-resident region of float32 elements.
type Buffer interface {
	// Len is the capacity of the region in elements.
	Len() int
}

// Kernel is a compiled program handle with an invocation context.
type Kernel interface {
	Name() string
	SetArg(index int, value int32) error
}

// Queue is an in-order command queue.
type Queue interface {
	// WriteBuffer copies src into the start of dst and blocks until the bytes
	// are resident on the device.
	WriteBuffer(dst Buffer, src []float32) error
	// ReadBuffer copies len(dst) elements from the start of src into dst and
	// blocks until the copy completes.
	ReadBuffer(src Buffer, dst []float32) error
	// EnqueueKernel schedules global work items in groups of local. It does
	// not wait for the kernel to run.
	EnqueueKernel(k Kernel, global, local int) error
	// Finish blocks until every enqueued command has completed and reports
	// the first execution failure since the previous Finish.
	Finish() error
}

// Session bundles everything one forward call touches on the device.
//
// A session is not safe for concurrent use: every call overwrites the three
// buffers and mutates GlobalSize. Callers serialize access themselves.
type Session struct {
	Queue  Queue
	Input  Buffer
	Weight Buffer
	Output Buffer
	Kernel Kernel

	GlobalSize int
	LocalSize  int

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

// NewSession assembles a session. release is called once by Release and may
// be nil.
func NewSession(q Queue, input, weight, output Buffer, k Kernel, local int, release func() error) *Session {
	return &Session{
		Queue:     q,
		Input:     input,
		Weight:    weight,
		Output:    output,
		Kernel:    k,
		LocalSize: local,
		release:   release,
	}
}

// Release frees the session's device resources. It is safe to call more than
// once; later calls return the result of the first.
func (s *Session) Release() error {
	if s == nil {
		return nil
	}
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.releaseErr = s.release()
		}
	})
	return s.releaseErr
}

// Capacity reports the element capacity of the input, weight and output
// buffers.
func (s *Session) Capacity() (input, weight, output int) {
	return s.Input.Len(), s.Weight.Len(), s.Output.Len()
}
