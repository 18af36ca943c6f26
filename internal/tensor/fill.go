package tensor

import (
	"math"
	"math/rand"
)

// FillRand fills dst with deterministic values in [-1, 1) derived from seed.
func FillRand(dst []float32, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = rng.Float32()*2 - 1
	}
}

// Fill sets every element of dst to v.
func Fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}

// MaxAbsDiff returns the largest absolute elementwise difference over the
// common prefix of a and b.
func MaxAbsDiff(a, b []float32) float64 {
	n := min(len(a), len(b))
	var maxAbs float64
	for i := 0; i < n; i++ {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}

// Close reports whether a and b agree within |a-b| <= atol + rtol*|b|.
func Close(a, b float32, rtol, atol float64) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return false
	}
	d := math.Abs(float64(a) - float64(b))
	return d <= atol+rtol*math.Abs(float64(b))
}

// AllClose returns -1 when a and b have equal length and agree elementwise
// within tolerance, otherwise the first offending index (len(a) on a length
// mismatch).
func AllClose(a, b []float32, rtol, atol float64) int {
	if len(a) != len(b) {
		return min(len(a), len(b))
	}
	for i := range a {
		if !Close(a[i], b[i], rtol, atol) {
			return i
		}
	}
	return -1
}
