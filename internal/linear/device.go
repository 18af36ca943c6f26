package linear

import (
	"github.com/samcharles93/matfwd/internal/device"
)

// ForwardDevice computes out = inp · weightᵀ on the session's device, with no
// bias.
//
// inp is (B,T,C), weight is (OC,C) and out is (B,T,OC), all row-major. The
// session's buffers must be large enough for these counts. The call blocks
// until the result is back in out. It overwrites all three device regions and
// the session's GlobalSize, so one session must not serve two calls at once.
//
// Any failure aborts the call and returns an *Error; out is then undefined.
func ForwardDevice(s *device.Session, out, inp, weight []float32, B, T, C, OC int) error {
	q := s.Queue

	if err := q.WriteBuffer(s.Input, inp[:B*T*C]); err != nil {
		return newError(TransferFailure, "write input", err)
	}
	if err := q.WriteBuffer(s.Weight, weight[:OC*C]); err != nil {
		return newError(TransferFailure, "write weight", err)
	}

	scalars := [...]struct {
		index int
		value int
	}{
		{device.ArgB, B},
		{device.ArgT, T},
		{device.ArgC, C},
		{device.ArgOC, OC},
	}
	for _, a := range scalars {
		if err := s.Kernel.SetArg(a.index, int32(a.value)); err != nil {
			return newError(KernelArgBindFailure, "set kernel arguments", err)
		}
	}

	s.GlobalSize = B * T * OC
	if err := q.EnqueueKernel(s.Kernel, s.GlobalSize, s.LocalSize); err != nil {
		return newError(LaunchFailure, "enqueue kernel", err)
	}
	if err := q.Finish(); err != nil {
		return newError(LaunchFailure, "finish", err)
	}

	if err := q.ReadBuffer(s.Output, out[:B*T*OC]); err != nil {
		return newError(ReadbackFailure, "read output", err)
	}
	return nil
}
