package emu

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/logger"
)

type command struct {
	name  string
	run   func() error
	reply chan error
}

// Queue is an in-order command queue served by a single goroutine.
type Queue struct {
	dev *Device
	log logger.Logger

	mu     sync.RWMutex
	closed bool
	cmds   chan command
	exited chan struct{}

	errMu    sync.Mutex
	asyncErr error
}

func (d *Device) NewQueue() *Queue {
	q := &Queue{
		dev:    d,
		log:    d.log,
		cmds:   make(chan command, 16),
		exited: make(chan struct{}),
	}
	go q.serve()
	return q
}

func (q *Queue) serve() {
	defer close(q.exited)
	for cmd := range q.cmds {
		err := runCommand(cmd)
		if cmd.reply != nil {
			cmd.reply <- err
			continue
		}
		if err != nil {
			q.recordErr(err)
		}
	}
}

func runCommand(cmd command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = executionError(cmd.name, rec)
		}
	}()
	return cmd.run()
}

func (q *Queue) recordErr(err error) {
	q.errMu.Lock()
	if q.asyncErr == nil {
		q.asyncErr = err
	}
	q.errMu.Unlock()
}

func (q *Queue) takeErr() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.asyncErr
	q.asyncErr = nil
	return err
}

func (q *Queue) submit(cmd command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return device.ErrReleased
	}
	q.cmds <- cmd
	return nil
}

func (q *Queue) submitWait(name string, run func() error) error {
	reply := make(chan error, 1)
	if err := q.submit(command{name: name, run: run, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

func (q *Queue) WriteBuffer(dst device.Buffer, src []float32) error {
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	return q.submitWait("write", func() error {
		if b.data == nil && len(src) > 0 {
			return fmt.Errorf("emu: write to freed buffer")
		}
		if len(src) > len(b.data) {
			return fmt.Errorf("emu: write of %d elements exceeds buffer of %d", len(src), len(b.data))
		}
		copy(b.data, src)
		return nil
	})
}

func (q *Queue) ReadBuffer(src device.Buffer, dst []float32) error {
	b, err := asBuffer(src)
	if err != nil {
		return err
	}
	return q.submitWait("read", func() error {
		if b.data == nil && len(dst) > 0 {
			return fmt.Errorf("emu: read from freed buffer")
		}
		if len(dst) > len(b.data) {
			return fmt.Errorf("emu: read of %d elements exceeds buffer of %d", len(dst), len(b.data))
		}
		copy(dst, b.data)
		return nil
	})
}

// EnqueueKernel validates the launch shape, snapshots the kernel arguments and
// schedules the launch. Execution failures surface from Finish.
func (q *Queue) EnqueueKernel(k device.Kernel, global, local int) error {
	ek, ok := k.(*Kernel)
	if !ok || ek == nil {
		return fmt.Errorf("emu: foreign kernel %T", k)
	}
	if global <= 0 {
		return fmt.Errorf("emu: global size %d must be positive", global)
	}
	if local == 0 {
		local = q.dev.opts.DefaultLocalSize
	}
	if local < 0 || local > q.dev.opts.MaxWorkGroupSize {
		return fmt.Errorf("emu: local size %d outside [1, %d]", local, q.dev.opts.MaxWorkGroupSize)
	}
	args, err := ek.snapshot()
	if err != nil {
		return err
	}
	groups := (global + local - 1) / local
	q.log.Debug("enqueue kernel", "kernel", ek.name, "global", global, "local", local, "groups", groups)
	return q.submit(command{
		name: ek.name,
		run: func() error {
			return q.dev.launch(ek, args, global, local, groups)
		},
	})
}

func (q *Queue) Finish() error {
	if err := q.submitWait("finish", func() error { return nil }); err != nil {
		return err
	}
	return q.takeErr()
}

// Release drains pending commands and stops the queue goroutine.
func (q *Queue) Release() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	<-q.exited
	if err := q.takeErr(); err != nil {
		return fmt.Errorf("emu: pending failure at release: %w", err)
	}
	return nil
}

// launch runs every work-group of one kernel invocation. Work items inside a
// group execute sequentially; groups run concurrently up to Workers.
func (d *Device) launch(k *Kernel, args *launchArgs, global, local, groups int) error {
	var eg errgroup.Group
	eg.SetLimit(d.opts.Workers)
	for g := 0; g < groups; g++ {
		start := g * local
		end := min(start+local, global)
		eg.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = executionError(k.name, rec)
				}
			}()
			for gid := start; gid < end; gid++ {
				k.fn(gid, args)
			}
			return nil
		})
	}
	return eg.Wait()
}

func executionError(name string, rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("emu: %s execution failed: %w", name, recErr)
	}
	return fmt.Errorf("emu: %s execution failed: %v", name, rec)
}
