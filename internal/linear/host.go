package linear

// ForwardHostBiased computes out = inp · weightᵀ + bias on the calling
// goroutine.
//
// Each output element starts from bias[o] and accumulates inp[b,t,i]*weight[o,i]
// for i ascending. Every product is rounded to float32 before it is added, so
// the result is bit-identical on every architecture. The function has no
// shared state and is safe to call concurrently on independent buffers.
func ForwardHostBiased(out, inp, weight, bias []float32, B, T, C, OC int) {
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			outBT := out[b*T*OC+t*OC : b*T*OC+t*OC+OC]
			inpBT := inp[b*T*C+t*C : b*T*C+t*C+C]
			for o := 0; o < OC; o++ {
				val := bias[o]
				wrow := weight[o*C : o*C+C]
				for i := 0; i < C; i++ {
					val += float32(inpBT[i] * wrow[i])
				}
				outBT[o] = val
			}
		}
	}
}

// ForwardHost is the bias-free host computation, accumulating in the same
// order as ForwardHostBiased from a zero seed. It matches ForwardDevice's
// contract and is what the executor uses when no device session is present.
func ForwardHost(out, inp, weight []float32, B, T, C, OC int) {
	for bt := 0; bt < B*T; bt++ {
		outBT := out[bt*OC : bt*OC+OC]
		inpBT := inp[bt*C : bt*C+C]
		for o := 0; o < OC; o++ {
			var val float32
			wrow := weight[o*C : o*C+C]
			for i := 0; i < C; i++ {
				val += float32(inpBT[i] * wrow[i])
			}
			outBT[o] = val
		}
	}
}

// AddBias adds bias[o] to every (b,t,o) element of out in place.
func AddBias(out, bias []float32, B, T, OC int) {
	for bt := 0; bt < B*T; bt++ {
		row := out[bt*OC : bt*OC+OC]
		for o := range row {
			row[o] += bias[o]
		}
	}
}
