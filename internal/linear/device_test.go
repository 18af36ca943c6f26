package linear

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/device/emu"
	"github.com/samcharles93/matfwd/internal/tensor"
)

func newEmuSession(t *testing.T, s tensor.Shape, local int) *device.Session {
	t.Helper()
	sess, err := emu.New(emu.Options{}).NewSession(s, local)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = sess.Release() })
	return sess
}

type operands struct {
	inp, weight, bias []float32
}

func randomOperands(s tensor.Shape, seed int64) operands {
	op := operands{
		inp:    make([]float32, s.InputLen()),
		weight: make([]float32, s.WeightLen()),
		bias:   make([]float32, s.BiasLen()),
	}
	tensor.FillRand(op.inp, seed)
	tensor.FillRand(op.weight, seed+1)
	tensor.FillRand(op.bias, seed+2)
	return op
}

// naiveForward is the triple-loop oracle, accumulated in float64.
func naiveForward(s tensor.Shape, inp, weight, bias []float32) []float64 {
	out := make([]float64, s.OutputLen())
	for b := 0; b < s.B; b++ {
		for t := 0; t < s.T; t++ {
			for o := 0; o < s.OC; o++ {
				var sum float64
				if bias != nil {
					sum = float64(bias[o])
				}
				for i := 0; i < s.C; i++ {
					sum += float64(inp[(b*s.T+t)*s.C+i]) * float64(weight[o*s.C+i])
				}
				out[(b*s.T+t)*s.OC+o] = sum
			}
		}
	}
	return out
}

func TestForwardDeviceIdentity(t *testing.T) {
	t.Parallel()
	s := tensor.Shape{B: 1, T: 1, C: 2, OC: 2}
	sess := newEmuSession(t, s, 0)

	out := make([]float32, 2)
	if err := ForwardDevice(sess, out, []float32{1, 2}, []float32{1, 0, 0, 1}, 1, 1, 2, 2); err != nil {
		t.Fatalf("ForwardDevice: %v", err)
	}
	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("got %v want [1 2]", out)
	}
	if sess.GlobalSize != 2 {
		t.Fatalf("GlobalSize: got %d want 2", sess.GlobalSize)
	}
}

func TestForwardDeviceMatchesHostWithoutBias(t *testing.T) {
	t.Parallel()

	shapes := []tensor.Shape{
		{B: 1, T: 1, C: 1, OC: 1},
		{B: 2, T: 3, C: 5, OC: 7},
		{B: 4, T: 9, C: 33, OC: 10},
	}
	for i, s := range shapes {
		op := randomOperands(s, int64(10*i))
		sess := newEmuSession(t, s, 8)

		dev := make([]float32, s.OutputLen())
		if err := ForwardDevice(sess, dev, op.inp, op.weight, s.B, s.T, s.C, s.OC); err != nil {
			t.Fatalf("%s: ForwardDevice: %v", s, err)
		}
		biased := make([]float32, s.OutputLen())
		ForwardHostBiased(biased, op.inp, op.weight, op.bias, s.B, s.T, s.C, s.OC)

		for j := range dev {
			want := biased[j] - op.bias[j%s.OC]
			if !tensor.Close(dev[j], want, 1e-5, 1e-5) {
				t.Fatalf("%s: index %d: device %v, host-bias %v", s, j, dev[j], want)
			}
		}

		zero := make([]float32, s.OutputLen())
		ForwardHostBiased(zero, op.inp, op.weight, make([]float32, s.OC), s.B, s.T, s.C, s.OC)
		for j := range dev {
			if dev[j] != zero[j] {
				t.Fatalf("%s: index %d: device %v != zero-bias host %v", s, j, dev[j], zero[j])
			}
		}
	}
}

func TestForwardDeviceLargeBatchAgainstOracle(t *testing.T) {
	t.Parallel()
	s := tensor.Shape{B: 8, T: 16, C: 64, OC: 32}
	op := randomOperands(s, 99)
	sess := newEmuSession(t, s, 64)

	dev := make([]float32, s.OutputLen())
	if err := ForwardDevice(sess, dev, op.inp, op.weight, s.B, s.T, s.C, s.OC); err != nil {
		t.Fatalf("ForwardDevice: %v", err)
	}
	host := make([]float32, s.OutputLen())
	ForwardHostBiased(host, op.inp, op.weight, op.bias, s.B, s.T, s.C, s.OC)

	want := naiveForward(s, op.inp, op.weight, nil)
	wantBiased := naiveForward(s, op.inp, op.weight, op.bias)
	for i := range dev {
		if d := math.Abs(float64(dev[i]) - want[i]); d > 1e-4+1e-4*math.Abs(want[i]) {
			t.Fatalf("device index %d: got %v want %v", i, dev[i], want[i])
		}
		if d := math.Abs(float64(host[i]) - wantBiased[i]); d > 1e-4+1e-4*math.Abs(wantBiased[i]) {
			t.Fatalf("host index %d: got %v want %v", i, host[i], wantBiased[i])
		}
	}
}

func TestForwardDeviceOverwritesOutput(t *testing.T) {
	t.Parallel()
	s := tensor.Shape{B: 2, T: 2, C: 4, OC: 3}
	op := randomOperands(s, 5)
	sess := newEmuSession(t, s, 0)

	clean := make([]float32, s.OutputLen())
	dirty := make([]float32, s.OutputLen())
	tensor.Fill(dirty, float32(math.NaN()))
	if err := ForwardDevice(sess, clean, op.inp, op.weight, s.B, s.T, s.C, s.OC); err != nil {
		t.Fatal(err)
	}
	if err := ForwardDevice(sess, dirty, op.inp, op.weight, s.B, s.T, s.C, s.OC); err != nil {
		t.Fatal(err)
	}
	if d := tensor.MaxAbsDiff(clean, dirty); d != 0 {
		t.Fatalf("prior output content leaked into result: %g", d)
	}
}

func TestForwardDeviceSmallerShapeInLargerSession(t *testing.T) {
	t.Parallel()
	sess, err := emu.New(emu.Options{}).NewSessionCapacity(1024, 1024, 1024, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sess.Release() }()

	s := tensor.Shape{B: 2, T: 3, C: 4, OC: 5}
	op := randomOperands(s, 21)
	out := make([]float32, s.OutputLen()+3)
	tensor.Fill(out[s.OutputLen():], 7)
	if err := ForwardDevice(sess, out, op.inp, op.weight, s.B, s.T, s.C, s.OC); err != nil {
		t.Fatal(err)
	}
	want := make([]float32, s.OutputLen())
	ForwardHost(want, op.inp, op.weight, s.B, s.T, s.C, s.OC)
	if d := tensor.MaxAbsDiff(out[:s.OutputLen()], want); d != 0 {
		t.Fatalf("mismatch %g", d)
	}
	for _, v := range out[s.OutputLen():] {
		if v != 7 {
			t.Fatalf("wrote past B*T*OC: %v", out)
		}
	}
}

// faultQueue fails at one configured stage and records what ran.
type faultQueue struct {
	failWrite, failLaunch, failFinish, failRead int
	writes, launches, finishes, reads           int
}

var errInjected = errors.New("injected")

func (q *faultQueue) WriteBuffer(dst device.Buffer, src []float32) error {
	q.writes++
	if q.writes == q.failWrite {
		return errInjected
	}
	return nil
}

func (q *faultQueue) ReadBuffer(src device.Buffer, dst []float32) error {
	q.reads++
	if q.reads == q.failRead {
		return errInjected
	}
	return nil
}

func (q *faultQueue) EnqueueKernel(k device.Kernel, global, local int) error {
	q.launches++
	if q.launches == q.failLaunch {
		return errInjected
	}
	return nil
}

func (q *faultQueue) Finish() error {
	q.finishes++
	if q.finishes == q.failFinish {
		return errInjected
	}
	return nil
}

type faultKernel struct {
	failArg int
	args    map[int]int32
}

func (k *faultKernel) Name() string { return "fault" }

func (k *faultKernel) SetArg(index int, value int32) error {
	if index == k.failArg {
		return errInjected
	}
	k.args[index] = value
	return nil
}

type sizedBuffer int

func (b sizedBuffer) Len() int { return int(b) }

func TestForwardDeviceFailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		queue    faultQueue
		failArg  int
		kind     Kind
		sentinel error
		reads    int
	}{
		{"input write", faultQueue{failWrite: 1}, -1, TransferFailure, ErrTransfer, 0},
		{"weight write", faultQueue{failWrite: 2}, -1, TransferFailure, ErrTransfer, 0},
		{"bind T", faultQueue{}, device.ArgT, KernelArgBindFailure, ErrKernelArgBind, 0},
		{"enqueue", faultQueue{failLaunch: 1}, -1, LaunchFailure, ErrLaunch, 0},
		{"finish", faultQueue{failFinish: 1}, -1, LaunchFailure, ErrLaunch, 0},
		{"readback", faultQueue{failRead: 1}, -1, ReadbackFailure, ErrReadback, 1},
	}

	for _, tc := range tests {
		q := tc.queue
		k := &faultKernel{failArg: tc.failArg, args: map[int]int32{}}
		sess := device.NewSession(&q, sizedBuffer(4), sizedBuffer(4), sizedBuffer(4), k, 2, nil)

		err := ForwardDevice(sess, make([]float32, 4), make([]float32, 4), make([]float32, 4), 1, 2, 2, 2)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if KindOf(err) != tc.kind {
			t.Errorf("%s: kind %v want %v", tc.name, KindOf(err), tc.kind)
		}
		if !errors.Is(err, tc.sentinel) {
			t.Errorf("%s: errors.Is(%v) false", tc.name, tc.sentinel)
		}
		if !errors.Is(err, errInjected) {
			t.Errorf("%s: cause not wrapped: %v", tc.name, err)
		}
		if q.reads != tc.reads {
			t.Errorf("%s: %d readbacks after failure, want %d", tc.name, q.reads, tc.reads)
		}
		if !strings.Contains(err.Error(), tc.kind.sentinel().Error()) {
			t.Errorf("%s: message %q lacks kind", tc.name, err)
		}
	}
}

func TestForwardDeviceBindsShapeScalars(t *testing.T) {
	t.Parallel()
	var q faultQueue
	k := &faultKernel{failArg: -1, args: map[int]int32{}}
	sess := device.NewSession(&q, sizedBuffer(64), sizedBuffer(64), sizedBuffer(64), k, 4, nil)

	if err := ForwardDevice(sess, make([]float32, 30), make([]float32, 24), make([]float32, 20), 2, 3, 4, 5); err != nil {
		t.Fatal(err)
	}
	want := map[int]int32{device.ArgB: 2, device.ArgT: 3, device.ArgC: 4, device.ArgOC: 5}
	for idx, v := range want {
		if k.args[idx] != v {
			t.Errorf("arg %d: got %d want %d", idx, k.args[idx], v)
		}
	}
	if sess.GlobalSize != 30 {
		t.Errorf("GlobalSize: got %d want 30", sess.GlobalSize)
	}
	if q.writes != 2 || q.launches != 1 || q.finishes != 1 || q.reads != 1 {
		t.Errorf("unexpected call counts: %+v", q)
	}
}

func TestForwardDeviceReleasedSession(t *testing.T) {
	t.Parallel()
	s := tensor.Shape{B: 1, T: 1, C: 2, OC: 2}
	sess, err := emu.New(emu.Options{}).NewSession(s, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Release(); err != nil {
		t.Fatal(err)
	}
	err = ForwardDevice(sess, make([]float32, 2), []float32{1, 2}, []float32{1, 0, 0, 1}, 1, 1, 2, 2)
	if KindOf(err) != TransferFailure || !errors.Is(err, device.ErrReleased) {
		t.Fatalf("got %v", err)
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	if LaunchFailure.String() != "LaunchFailure" {
		t.Fatalf("got %q", LaunchFailure.String())
	}
	if Kind(0).String() != "Kind(0)" {
		t.Fatalf("got %q", Kind(0).String())
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Fatal("plain error reported a kind")
	}
}
