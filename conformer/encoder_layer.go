package conformer

import (
	"math/rand"

	"github.com/openfluke/chorale/nn"
)

// PositionwiseFeedForward is the two-layer Swish feed-forward block.
type PositionwiseFeedForward struct {
	w1 *nn.Linear
	w2 *nn.Linear
}

// NewPositionwiseFeedForward builds a d -> units -> d block.
func NewPositionwiseFeedForward(dModel, units int, rng *rand.Rand) *PositionwiseFeedForward {
	return &PositionwiseFeedForward{
		w1: nn.NewLinear(dModel, units, rng),
		w2: nn.NewLinear(units, dModel, rng),
	}
}

// Forward applies the block to x ([t, dModel]).
func (f *PositionwiseFeedForward) Forward(x *nn.Tensor[float32]) *nn.Tensor[float32] {
	h := f.w1.Forward(x)
	nn.ActivateInPlace(h, nn.ActivationSwish)
	return f.w2.Forward(h)
}

// ConvolutionModule is the conformer convolution block: pointwise
// expansion with GLU gating, depthwise convolution over time, layer
// norm, Swish, pointwise projection. In causal mode the depthwise
// convolution sees only past frames, which is what makes the chunked
// and full-sequence paths agree.
type ConvolutionModule struct {
	DModel int
	pw1    *nn.Linear // d -> 2d, gated down to d
	dw     *nn.DepthwiseConv1D
	norm   *nn.LayerNorm
	pw2    *nn.Linear
}

// NewConvolutionModule builds the block for the given kernel.
func NewConvolutionModule(dModel, kernel int, causal bool, rng *rand.Rand) *ConvolutionModule {
	return &ConvolutionModule{
		DModel: dModel,
		pw1:    nn.NewLinear(dModel, 2*dModel, rng),
		dw:     nn.NewDepthwiseConv1D(dModel, kernel, causal, rng),
		norm:   nn.NewLayerNorm(dModel),
		pw2:    nn.NewLinear(dModel, dModel, rng),
	}
}

// Forward processes a full sequence ([t, dModel]).
func (m *ConvolutionModule) Forward(x *nn.Tensor[float32]) *nn.Tensor[float32] {
	gated := nn.GLU(m.pw1.Forward(x))
	h := m.norm.Forward(m.dw.Forward(gated))
	nn.ActivateInPlace(h, nn.ActivationSwish)
	return m.pw2.Forward(h)
}

// ForwardWithCache processes one chunk, threading the depthwise-conv
// left-context cache ([kernel-1, dModel] of gated activations).
func (m *ConvolutionModule) ForwardWithCache(x, cache *nn.Tensor[float32]) (*nn.Tensor[float32], *nn.Tensor[float32]) {
	gated := nn.GLU(m.pw1.Forward(x))
	conv, next := m.dw.ForwardWithCache(gated, cache)
	h := m.norm.Forward(conv)
	nn.ActivateInPlace(h, nn.ActivationSwish)
	return m.pw2.Forward(h), next
}

// ConformerEncoderLayer is one macaron-style conformer block:
// half-weighted feed-forward, self-attention, convolution module,
// half-weighted feed-forward, final layer norm. Normalization happens
// before each sub-block (pre-norm residual).
type ConformerEncoderLayer struct {
	ffn1, ffn2 *PositionwiseFeedForward
	selfAttn   *nn.MultiHeadAttention
	conv       *ConvolutionModule

	normFF1   *nn.LayerNorm
	normMHA   *nn.LayerNorm
	normConv  *nn.LayerNorm
	normFF2   *nn.LayerNorm
	normFinal *nn.LayerNorm
}

// NewConformerEncoderLayer builds one block.
func NewConformerEncoderLayer(cfg *EncoderConfig, causal bool, rng *rand.Rand) *ConformerEncoderLayer {
	d := cfg.OutputSize
	return &ConformerEncoderLayer{
		ffn1:      NewPositionwiseFeedForward(d, cfg.LinearUnits, rng),
		ffn2:      NewPositionwiseFeedForward(d, cfg.LinearUnits, rng),
		selfAttn:  nn.NewMultiHeadAttention(cfg.AttentionHeads, d, rng),
		conv:      NewConvolutionModule(d, cfg.CNNModuleKernel, causal, rng),
		normFF1:   nn.NewLayerNorm(d),
		normMHA:   nn.NewLayerNorm(d),
		normConv:  nn.NewLayerNorm(d),
		normFF2:   nn.NewLayerNorm(d),
		normFinal: nn.NewLayerNorm(d),
	}
}

// Forward processes one example ([t, dModel]) under an attention mask
// ([t, t], nil for full attention).
func (l *ConformerEncoderLayer) Forward(x *nn.Tensor[float32], mask *nn.Mask) *nn.Tensor[float32] {
	x = addScaled(x, l.ffn1.Forward(l.normFF1.Forward(x)), 0.5)

	h := l.normMHA.Forward(x)
	x = addScaled(x, l.selfAttn.Forward(h, h, mask), 1)

	x = addScaled(x, l.conv.Forward(l.normConv.Forward(x)), 1)
	x = addScaled(x, l.ffn2.Forward(l.normFF2.Forward(x)), 0.5)
	return l.normFinal.Forward(x)
}

// ForwardChunk processes one chunk with attention and convolution
// caches threaded through. The returned attention cache is untrimmed;
// the encoder applies the required-cache-size window.
func (l *ConformerEncoderLayer) ForwardChunk(x, attCache, cnnCache *nn.Tensor[float32]) (out, newAtt, newCnn *nn.Tensor[float32]) {
	x = addScaled(x, l.ffn1.Forward(l.normFF1.Forward(x)), 0.5)

	h := l.normMHA.Forward(x)
	attOut, newAtt := l.selfAttn.ForwardWithCache(h, attCache)
	x = addScaled(x, attOut, 1)

	convOut, newCnn := l.conv.ForwardWithCache(l.normConv.Forward(x), cnnCache)
	x = addScaled(x, convOut, 1)

	x = addScaled(x, l.ffn2.Forward(l.normFF2.Forward(x)), 0.5)
	return l.normFinal.Forward(x), newAtt, newCnn
}

// addScaled returns x + scale*y without mutating either input.
func addScaled(x, y *nn.Tensor[float32], scale float32) *nn.Tensor[float32] {
	out := x.Clone()
	for i, v := range y.Data {
		out.Data[i] += scale * v
	}
	return out
}
