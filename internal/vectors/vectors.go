// Package vectors builds, stores and checks reference cases for the linear
// forward pass.
package vectors

import (
	"fmt"

	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/tensor"
)

// Case is one reference input with its expected outputs. Expected includes
// the bias; ExpectedNoBias is the bias-free contract of the device path.
type Case struct {
	Name           string       `json:"name" yaml:"name"`
	Shape          tensor.Shape `json:"shape" yaml:"shape"`
	Seed           int64        `json:"seed,omitempty" yaml:"seed,omitempty"`
	Input          []float32    `json:"input" yaml:"input"`
	Weight         []float32    `json:"weight" yaml:"weight"`
	Bias           []float32    `json:"bias,omitempty" yaml:"bias,omitempty"`
	Expected       []float32    `json:"expected" yaml:"expected"`
	ExpectedNoBias []float32    `json:"expected_no_bias" yaml:"expected_no_bias"`
}

// Suite is the on-disk collection of cases.
type Suite struct {
	Version int    `json:"version" yaml:"version"`
	Cases   []Case `json:"cases" yaml:"cases"`
}

const SuiteVersion = 1

// Generate fills a case with deterministic operands derived from seed and
// computes both expectations with the host path.
func Generate(name string, shape tensor.Shape, seed int64) (Case, error) {
	if err := shape.Validate(); err != nil {
		return Case{}, err
	}
	c := Case{
		Name:   name,
		Shape:  shape,
		Seed:   seed,
		Input:  make([]float32, shape.InputLen()),
		Weight: make([]float32, shape.WeightLen()),
		Bias:   make([]float32, shape.BiasLen()),
	}
	tensor.FillRand(c.Input, seed)
	tensor.FillRand(c.Weight, seed+1)
	tensor.FillRand(c.Bias, seed+2)
	c.compute()
	return c, nil
}

func (c *Case) compute() {
	s := c.Shape
	c.Expected = make([]float32, s.OutputLen())
	c.ExpectedNoBias = make([]float32, s.OutputLen())
	bias := c.Bias
	if bias == nil {
		bias = make([]float32, s.BiasLen())
	}
	linear.ForwardHostBiased(c.Expected, c.Input, c.Weight, bias, s.B, s.T, s.C, s.OC)
	linear.ForwardHost(c.ExpectedNoBias, c.Input, c.Weight, s.B, s.T, s.C, s.OC)
}

// Validate checks that the operand and expectation lengths match the shape.
func (c *Case) Validate() error {
	if err := c.Shape.Validate(); err != nil {
		return fmt.Errorf("case %q: %w", c.Name, err)
	}
	if err := c.Shape.Check(c.Expected, c.Input, c.Weight, c.Bias); err != nil {
		return fmt.Errorf("case %q: %w", c.Name, err)
	}
	if len(c.ExpectedNoBias) != c.Shape.OutputLen() {
		return fmt.Errorf("case %q: %w: expected_no_bias has %d elements, want %d",
			c.Name, tensor.ErrInvalidShape, len(c.ExpectedNoBias), c.Shape.OutputLen())
	}
	return nil
}

// Mismatch describes the first element that disagrees with the expectation.
type Mismatch struct {
	Case    string
	Index   int
	Got     float32
	Want    float32
	MaxDiff float64
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("case %q: out[%d] = %g, want %g (max abs diff %g)", m.Case, m.Index, m.Got, m.Want, m.MaxDiff)
}

// Check compares got against the biased or bias-free expectation. tol is used
// as both the relative and absolute tolerance; 0 demands exact equality.
func Check(c *Case, got []float32, withBias bool, tol float64) *Mismatch {
	want := c.ExpectedNoBias
	if withBias {
		want = c.Expected
	}
	idx := tensor.AllClose(got, want, tol, tol)
	if idx < 0 {
		return nil
	}
	m := &Mismatch{Case: c.Name, Index: idx, MaxDiff: tensor.MaxAbsDiff(got, want)}
	if idx < len(got) {
		m.Got = got[idx]
	}
	if idx < len(want) {
		m.Want = want[idx]
	}
	return m
}
