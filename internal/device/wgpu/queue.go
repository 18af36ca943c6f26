//go:build wgpu

package wgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/matfwd/internal/device"
)

// Queue adapts the WebGPU queue to the blocking device contract.
type Queue struct {
	ctx     *Context
	staging *Buffer
}

func asBuffer(b device.Buffer) (*Buffer, error) {
	wb, ok := b.(*Buffer)
	if !ok || wb == nil || wb.buf == nil {
		return nil, fmt.Errorf("wgpu: foreign buffer %T", b)
	}
	return wb, nil
}

// WriteBuffer uploads src and waits for the queue to drain so the bytes are
// resident when it returns.
func (q *Queue) WriteBuffer(dst device.Buffer, src []float32) error {
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if len(src) > b.n {
		return fmt.Errorf("wgpu: write of %d elements exceeds buffer of %d", len(src), b.n)
	}
	if err := q.ctx.Queue.WriteBuffer(b.buf, 0, wgpu.ToBytes(src)); err != nil {
		return fmt.Errorf("wgpu: write buffer: %w", err)
	}
	q.ctx.Device.Poll(true, nil)
	return nil
}

func (q *Queue) EnqueueKernel(k device.Kernel, global, local int) error {
	wk, ok := k.(*Kernel)
	if !ok || wk == nil {
		return fmt.Errorf("wgpu: foreign kernel %T", k)
	}
	if local != 0 && local != wk.workgroupSize {
		return fmt.Errorf("wgpu: local size %d differs from compiled work-group size %d", local, wk.workgroupSize)
	}
	for i, ok := range wk.set {
		if !ok {
			return fmt.Errorf("wgpu: argument %d not set", device.ArgB+i)
		}
	}
	groups := (global + wk.workgroupSize - 1) / wk.workgroupSize
	if global <= 0 || groups > maxWorkgroupsX {
		return fmt.Errorf("wgpu: global size %d needs %d work-groups (max %d)", global, groups, maxWorkgroupsX)
	}

	if err := q.ctx.Queue.WriteBuffer(wk.paramsBuf.buf, 0, wgpu.ToBytes(wk.params[:])); err != nil {
		return fmt.Errorf("wgpu: upload kernel params: %w", err)
	}

	enc, err := q.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(wk.pipeline)
	pass.SetBindGroup(0, wk.bindGroup, nil)
	pass.DispatchWorkgroups(uint32(groups), 1, 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("wgpu: finish command buffer: %w", err)
	}
	q.ctx.Queue.Submit(cmd)
	cmd.Release()
	return nil
}

func (q *Queue) Finish() error {
	q.ctx.Device.Poll(true, nil)
	return nil
}

// ReadBuffer copies src through the staging buffer and maps it for reading.
func (q *Queue) ReadBuffer(src device.Buffer, dst []float32) error {
	b, err := asBuffer(src)
	if err != nil {
		return err
	}
	if len(dst) > b.n || len(dst) > q.staging.n {
		return fmt.Errorf("wgpu: read of %d elements exceeds buffer of %d", len(dst), b.n)
	}
	size := uint64(len(dst) * 4)

	enc, err := q.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(b.buf, 0, q.staging.buf, 0, size)
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("wgpu: finish copy: %w", err)
	}
	q.ctx.Queue.Submit(cmd)
	cmd.Release()

	err = waitMapped(func(cb wgpu.BufferMapCallback) error {
		return q.staging.buf.MapAsync(wgpu.MapModeRead, 0, size, cb)
	}, func() { q.ctx.Device.Poll(true, nil) })
	if err != nil {
		return err
	}

	data := q.staging.buf.GetMappedRange(0, uint(size))
	defer q.staging.buf.Unmap()
	if data == nil {
		return fmt.Errorf("wgpu: mapped range nil")
	}
	copy(dst, wgpu.FromBytes[float32](data))
	return nil
}

// waitMapped starts a map request and polls until its callback fires. A
// request that fails to start returns at once since its callback never runs.
func waitMapped(start func(wgpu.BufferMapCallback) error, poll func()) error {
	done := make(chan struct{})
	var mapErr error
	err := start(func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("wgpu: map status %d", status)
		}
		close(done)
	})
	if err != nil {
		return fmt.Errorf("wgpu: map staging buffer: %w", err)
	}

Loop:
	for {
		poll()
		select {
		case <-done:
			break Loop
		default:
		}
	}
	return mapErr
}
