package tensor

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape is wrapped by every shape or buffer-length validation failure.
var ErrInvalidShape = errors.New("invalid shape")

// MaxElements bounds every element count a shape may imply. Device kernels
// receive dimensions and indices as 32-bit integers.
const MaxElements = math.MaxInt32

// Shape describes one dense linear forward call.
//
// The input activation is (B, T, C), the weight is (OC, C) and the output is
// (B, T, OC). All buffers are flat, contiguous and row-major.
type Shape struct {
	B  int `json:"B" yaml:"B"`
	T  int `json:"T" yaml:"T"`
	C  int `json:"C" yaml:"C"`
	OC int `json:"OC" yaml:"OC"`
}

func (s Shape) InputLen() int  { return s.B * s.T * s.C }
func (s Shape) WeightLen() int { return s.OC * s.C }
func (s Shape) BiasLen() int   { return s.OC }
func (s Shape) OutputLen() int { return s.B * s.T * s.OC }

// Global is the number of independent work items a device launch needs:
// one per output element.
func (s Shape) Global() int { return s.B * s.T * s.OC }

func (s Shape) String() string {
	return fmt.Sprintf("B=%d T=%d C=%d OC=%d", s.B, s.T, s.C, s.OC)
}

// Validate reports whether every dimension is at least 1 and every element
// count the shape implies fits in MaxElements.
func (s Shape) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"B", s.B}, {"T", s.T}, {"C", s.C}, {"OC", s.OC},
	}
	for _, d := range dims {
		if d.v < 1 {
			return fmt.Errorf("%w: %s=%d must be >= 1", ErrInvalidShape, d.name, d.v)
		}
	}
	counts := []struct {
		name    string
		factors []int
	}{
		{"input B*T*C", []int{s.B, s.T, s.C}},
		{"weight OC*C", []int{s.OC, s.C}},
		{"output B*T*OC", []int{s.B, s.T, s.OC}},
	}
	for _, c := range counts {
		if !fitsElements(c.factors...) {
			return fmt.Errorf("%w: %s exceeds %d elements for %s", ErrInvalidShape, c.name, MaxElements, s)
		}
	}
	return nil
}

// fitsElements reports whether the product of positive factors is at most
// MaxElements, without overflowing.
func fitsElements(factors ...int) bool {
	n := 1
	for _, f := range factors {
		if f > MaxElements/n {
			return false
		}
		n *= f
	}
	return true
}

// Check validates the shape and verifies that each buffer holds at least the
// number of elements the shape requires. A nil bias is not checked.
func (s Shape) Check(out, inp, weight, bias []float32) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(inp) < s.InputLen() {
		return fmt.Errorf("%w: inp has %d elements, need %d", ErrInvalidShape, len(inp), s.InputLen())
	}
	if len(weight) < s.WeightLen() {
		return fmt.Errorf("%w: weight has %d elements, need %d", ErrInvalidShape, len(weight), s.WeightLen())
	}
	if len(out) < s.OutputLen() {
		return fmt.Errorf("%w: out has %d elements, need %d", ErrInvalidShape, len(out), s.OutputLen())
	}
	if bias != nil && len(bias) < s.BiasLen() {
		return fmt.Errorf("%w: bias has %d elements, need %d", ErrInvalidShape, len(bias), s.BiasLen())
	}
	return nil
}
