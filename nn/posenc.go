package nn

import (
	"math"
)

// PositionalEncoding adds the standard sinusoidal position signal.
// The offset parameter keeps positions continuous across successive
// chunks of one streaming session: chunk N+1 starts where chunk N
// ended, so cached keys/values stay position-consistent.
type PositionalEncoding struct {
	DModel int
	XScale float32
}

// NewPositionalEncoding creates the encoding for model width dModel.
// Inputs are scaled by sqrt(dModel) before the signal is added.
func NewPositionalEncoding(dModel int) *PositionalEncoding {
	return &PositionalEncoding{
		DModel: dModel,
		XScale: float32(math.Sqrt(float64(dModel))),
	}
}

// At returns the encoding value for absolute position pos, dimension d.
func (p *PositionalEncoding) At(pos, d int) float32 {
	angle := float64(pos) / math.Pow(10000, float64(2*(d/2))/float64(p.DModel))
	if d%2 == 0 {
		return float32(math.Sin(angle))
	}
	return float32(math.Cos(angle))
}

// Apply scales x ([rows, dModel]) by sqrt(dModel) and adds the position
// signal for absolute positions offset..offset+rows-1, in place.
func (p *PositionalEncoding) Apply(x *Tensor[float32], offset int) {
	rows := x.Shape[0]
	for r := 0; r < rows; r++ {
		row := x.Row(r)
		for d := 0; d < p.DModel; d++ {
			row[d] = row[d]*p.XScale + p.At(offset+r, d)
		}
	}
}
