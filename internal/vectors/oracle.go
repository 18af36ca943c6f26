package vectors

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/samcharles93/matfwd/internal/tensor"
)

// Oracle computes out = inp * weightᵀ + bias with a BLAS GEMM. Its
// accumulation order differs from the host loops, so comparisons against it
// need a tolerance. A nil bias is treated as zero.
func Oracle(shape tensor.Shape, inp, weight, bias []float32) ([]float32, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	out := make([]float32, shape.OutputLen())
	if err := shape.Check(out, inp, weight, bias); err != nil {
		return nil, err
	}
	rows := shape.B * shape.T

	var beta float32
	if bias != nil {
		for r := 0; r < rows; r++ {
			copy(out[r*shape.OC:(r+1)*shape.OC], bias[:shape.OC])
		}
		beta = 1
	}

	a := blas32.General{Rows: rows, Cols: shape.C, Stride: shape.C, Data: inp[:shape.InputLen()]}
	w := blas32.General{Rows: shape.OC, Cols: shape.C, Stride: shape.C, Data: weight[:shape.WeightLen()]}
	c := blas32.General{Rows: rows, Cols: shape.OC, Stride: shape.OC, Data: out}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, a, w, beta, c)
	return out, nil
}
