package nn

import (
	"math"
)

// ActivationType selects the nonlinearity applied by a kernel.
type ActivationType int

const (
	ActivationNone    ActivationType = 0 // identity
	ActivationReLU    ActivationType = 1 // max(0, v)
	ActivationSigmoid ActivationType = 2 // 1 / (1 + exp(-v))
	ActivationSwish   ActivationType = 3 // v * sigmoid(v)
	ActivationTanh    ActivationType = 4 // tanh(v)
)

// Activate applies the activation function to a single value.
func Activate(v float32, activation ActivationType) float32 {
	switch activation {
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	case ActivationSigmoid:
		return float32(1.0 / (1.0 + math.Exp(float64(-v))))
	case ActivationSwish:
		return v * float32(1.0/(1.0+math.Exp(float64(-v))))
	case ActivationTanh:
		return float32(math.Tanh(float64(v)))
	default:
		return v
	}
}

// ActivateInPlace applies the activation over a whole tensor.
func ActivateInPlace(t *Tensor[float32], activation ActivationType) {
	for i, v := range t.Data {
		t.Data[i] = Activate(v, activation)
	}
}

// GLU splits each row of x ([rows, 2*dim]) in half and gates the first
// half with the sigmoid of the second: out = a * sigmoid(b).
func GLU(x *Tensor[float32]) *Tensor[float32] {
	rows, cols := x.Shape[0], x.Shape[1]
	dim := cols / 2
	out := NewTensor[float32](rows, dim)
	for r := 0; r < rows; r++ {
		row := x.Row(r)
		for d := 0; d < dim; d++ {
			out.Data[r*dim+d] = row[d] * Activate(row[dim+d], ActivationSigmoid)
		}
	}
	return out
}
