package nn

import (
	"math"
)

// LayerNorm normalizes each row to zero mean and unit variance, then
// applies the learned affine transform gamma*x + beta.
type LayerNorm struct {
	Dim   int
	Gamma *Tensor[float32]
	Beta  *Tensor[float32]
	Eps   float64
}

// NewLayerNorm creates a layer norm with identity affine parameters.
func NewLayerNorm(dim int) *LayerNorm {
	ln := &LayerNorm{
		Dim:   dim,
		Gamma: NewTensor[float32](dim),
		Beta:  NewTensor[float32](dim),
		Eps:   1e-5,
	}
	for i := range ln.Gamma.Data {
		ln.Gamma.Data[i] = 1
	}
	return ln
}

// Forward normalizes x ([rows, dim]) row by row into a fresh tensor.
func (ln *LayerNorm) Forward(x *Tensor[float32]) *Tensor[float32] {
	rows := x.Shape[0]
	out := NewTensor[float32](rows, ln.Dim)
	for r := 0; r < rows; r++ {
		row := x.Row(r)
		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		mean := sum / float64(ln.Dim)

		var variance float64
		for _, v := range row {
			diff := float64(v) - mean
			variance += diff * diff
		}
		variance /= float64(ln.Dim)
		invStd := 1.0 / math.Sqrt(variance+ln.Eps)

		dst := out.Row(r)
		for i, v := range row {
			normalized := (float64(v) - mean) * invStd
			dst[i] = float32(normalized)*ln.Gamma.Data[i] + ln.Beta.Data[i]
		}
	}
	return out
}
