package linear

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

// Mode names the execution path a forward call took.
type Mode string

const (
	ModeDevice Mode = "device"
	ModeHost   Mode = "host"
)

var (
	ErrNoSession   = errors.New("linear: no device session")
	ErrUnknownMode = errors.New("linear: unknown mode")
)

// ParseMode accepts "", "host" or "device". The empty mode lets the Executor
// pick its default path.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", ModeHost, ModeDevice:
		return m, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

// Stats counts calls served by an Executor.
type Stats struct {
	Device   int64 `json:"device"`
	Host     int64 `json:"host"`
	Failures int64 `json:"failures"`
}

// Executor is the layer driver: it owns an optional device session and
// routes each forward call to the device or host path. Calls on the device
// path are serialized, so an Executor may be shared between goroutines.
type Executor struct {
	mu      sync.Mutex
	session *device.Session
	backend string
	log     logger.Logger

	device   atomic.Int64
	host     atomic.Int64
	failures atomic.Int64
}

// NewExecutor takes ownership of session, which may be nil to run every call
// on the host.
func NewExecutor(session *device.Session, backend string, log logger.Logger) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	if session == nil {
		backend = string(ModeHost)
	}
	return &Executor{
		session: session,
		backend: backend,
		log:     log.With("component", "linear", "backend", backend),
	}
}

// Mode reports the path Forward currently uses.
func (e *Executor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ModeHost
	}
	return ModeDevice
}

func (e *Executor) Backend() string { return e.backend }

func (e *Executor) Stats() Stats {
	return Stats{
		Device:   e.device.Load(),
		Host:     e.host.Load(),
		Failures: e.failures.Load(),
	}
}

// Forward computes out = inp · weightᵀ (+ bias when bias is non-nil) using the
// device session when one is present.
//
// On the device path the bias is added on the host after readback, so results
// agree with ForwardHostBiased within floating-point tolerance rather than
// bit for bit.
func (e *Executor) Forward(out, inp, weight, bias []float32, shape tensor.Shape) (Mode, error) {
	return e.ForwardMode("", out, inp, weight, bias, shape)
}

// ForwardMode is Forward with an explicit path. An empty mode selects the
// default path; ModeDevice fails when no session is present.
func (e *Executor) ForwardMode(mode Mode, out, inp, weight, bias []float32, shape tensor.Shape) (Mode, error) {
	if err := shape.Check(out, inp, weight, bias); err != nil {
		return "", err
	}

	mode, err := ParseMode(string(mode))
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	switch mode {
	case "":
		if e.session == nil {
			mode = ModeHost
		} else {
			mode = ModeDevice
		}
	case ModeHost:
	case ModeDevice:
		if e.session == nil {
			e.mu.Unlock()
			return "", fmt.Errorf("%w (backend %s)", ErrNoSession, e.backend)
		}
	}

	// The host path touches no shared state and runs unlocked.
	if mode == ModeHost {
		e.mu.Unlock()
		e.forwardHost(out, inp, weight, bias, shape)
		return ModeHost, nil
	}
	defer e.mu.Unlock()
	return ModeDevice, e.forwardDevice(out, inp, weight, bias, shape)
}

func (e *Executor) forwardHost(out, inp, weight, bias []float32, s tensor.Shape) {
	if bias != nil {
		ForwardHostBiased(out, inp, weight, bias, s.B, s.T, s.C, s.OC)
	} else {
		ForwardHost(out, inp, weight, s.B, s.T, s.C, s.OC)
	}
	e.host.Add(1)
}

func (e *Executor) forwardDevice(out, inp, weight, bias []float32, s tensor.Shape) error {
	in, w, o := e.session.Capacity()
	if s.InputLen() > in || s.WeightLen() > w || s.OutputLen() > o {
		e.failures.Add(1)
		return fmt.Errorf("%w: %s exceeds session capacity (input %d, weight %d, output %d)",
			tensor.ErrInvalidShape, s, in, w, o)
	}

	e.log.Debug("device forward", "shape", s.String(), "local", e.session.LocalSize)
	if err := ForwardDevice(e.session, out, inp, weight, s.B, s.T, s.C, s.OC); err != nil {
		e.failures.Add(1)
		e.log.Error("device forward failed", "kind", KindOf(err).String(), "error", err)
		return err
	}
	if bias != nil {
		AddBias(out, bias, s.B, s.T, s.OC)
	}
	e.device.Add(1)
	return nil
}

// Close releases the device session. Later calls run on the host.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Release()
	e.session = nil
	return err
}
