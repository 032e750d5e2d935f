package nn

import (
	"math"
	"math/rand"
)

// Linear is a fully-connected projection y = x @ W + b.
// Weight layout is [in][out] flattened row-major.
type Linear struct {
	In, Out int
	Weight  *Tensor[float32]
	Bias    *Tensor[float32]
}

// NewLinear creates a linear layer with Xavier-uniform weights.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:     in,
		Out:    out,
		Weight: NewTensor[float32](in, out),
		Bias:   NewTensor[float32](out),
	}
	limit := float32(math.Sqrt(6.0 / float64(in+out)))
	for i := range l.Weight.Data {
		l.Weight.Data[i] = (rng.Float32()*2 - 1) * limit
	}
	return l
}

// Forward applies the projection to x ([rows, in]) producing [rows, out].
func (l *Linear) Forward(x *Tensor[float32]) *Tensor[float32] {
	rows := x.Shape[0]
	out := NewTensor[float32](rows, l.Out)
	for r := 0; r < rows; r++ {
		in := x.Row(r)
		dst := out.Row(r)
		for o := 0; o < l.Out; o++ {
			sum := float64(l.Bias.Data[o])
			for i := 0; i < l.In; i++ {
				sum += float64(in[i]) * float64(l.Weight.Data[i*l.Out+o])
			}
			dst[o] = float32(sum)
		}
	}
	return out
}
