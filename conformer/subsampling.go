package conformer

import (
	"math/rand"

	"github.com/openfluke/chorale/nn"
)

// Subsampling constants for the two stride-2 convolutions: an output
// frame at subsampled position j covers input frames 4j .. 4j+6.
const (
	SubsamplingRate  = 4
	SubsamplingRight = 6 // right context in input frames
)

// Conv2dSubsampling4 is the conformer frontend: two 3x3 stride-2
// convolutions over (time, frequency) followed by a linear projection
// to the model width. Time shrinks by a factor of four.
type Conv2dSubsampling4 struct {
	InputDim  int
	OutputDim int

	conv1 *nn.Conv2D // 1 -> outputDim channels
	conv2 *nn.Conv2D // outputDim -> outputDim channels
	out   *nn.Linear

	freqOut int
}

// NewConv2dSubsampling4 builds the frontend. inputDim must be at least
// 7 so the frequency axis survives both convolutions.
func NewConv2dSubsampling4(inputDim, outputDim int, rng *rand.Rand) (*Conv2dSubsampling4, error) {
	if inputDim < 7 {
		return nil, configErrf("input_dim", "subsampling frontend needs input_dim >= 7, got %d", inputDim)
	}
	s := &Conv2dSubsampling4{
		InputDim:  inputDim,
		OutputDim: outputDim,
		conv1:     nn.NewConv2D(1, outputDim, 3, 2, rng),
		conv2:     nn.NewConv2D(outputDim, outputDim, 3, 2, rng),
	}
	s.freqOut = s.conv2.OutDim(s.conv1.OutDim(inputDim))
	s.out = nn.NewLinear(outputDim*s.freqOut, outputDim, rng)
	return s, nil
}

// OutLen maps an input frame count to the subsampled frame count.
func (s *Conv2dSubsampling4) OutLen(t int) int {
	return s.conv2.OutDim(s.conv1.OutDim(t))
}

// MinInput is the smallest input frame count producing one output.
func (s *Conv2dSubsampling4) MinInput() int {
	return SubsamplingRight + 1
}

// Forward subsamples one example's features ([t, inputDim]) into
// [OutLen(t), outputDim].
func (s *Conv2dSubsampling4) Forward(x *nn.Tensor[float32]) *nn.Tensor[float32] {
	t := x.Shape[0]

	img := x.Reshape(1, t, s.InputDim)
	h1 := s.conv1.Forward(img)
	nn.ActivateInPlace(h1, nn.ActivationReLU)
	h2 := s.conv2.Forward(h1)
	nn.ActivateInPlace(h2, nn.ActivationReLU)

	// [ch, t', f'] -> [t', ch*f'] keeping channel-major feature order.
	ch, tOut, fOut := h2.Shape[0], h2.Shape[1], h2.Shape[2]
	flat := nn.NewTensor[float32](tOut, ch*fOut)
	for c := 0; c < ch; c++ {
		for i := 0; i < tOut; i++ {
			for f := 0; f < fOut; f++ {
				flat.Data[i*ch*fOut+c*fOut+f] = h2.Data[(c*tOut+i)*fOut+f]
			}
		}
	}
	return s.out.Forward(flat)
}
