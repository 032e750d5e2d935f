package conformer

import (
	"math/rand"

	"github.com/openfluke/chorale/nn"
)

// DecoderLayer is one pre-norm transformer decoder block: causal
// self-attention, cross-attention over the encoder memory, and a
// feed-forward block.
type DecoderLayer struct {
	selfAttn *nn.MultiHeadAttention
	srcAttn  *nn.MultiHeadAttention
	ff       *PositionwiseFeedForward

	normSelf *nn.LayerNorm
	normSrc  *nn.LayerNorm
	normFF   *nn.LayerNorm
}

// NewDecoderLayer builds one block.
func NewDecoderLayer(dModel, heads, units int, rng *rand.Rand) *DecoderLayer {
	return &DecoderLayer{
		selfAttn: nn.NewMultiHeadAttention(heads, dModel, rng),
		srcAttn:  nn.NewMultiHeadAttention(heads, dModel, rng),
		ff:       NewPositionwiseFeedForward(dModel, units, rng),
		normSelf: nn.NewLayerNorm(dModel),
		normSrc:  nn.NewLayerNorm(dModel),
		normFF:   nn.NewLayerNorm(dModel),
	}
}

// Forward processes one example's target states ([lt, d]) against the
// encoder memory ([tm, d]). tgtMask is the causal [lt, lt] mask.
func (l *DecoderLayer) Forward(x, memory *nn.Tensor[float32], tgtMask *nn.Mask) *nn.Tensor[float32] {
	h := l.normSelf.Forward(x)
	x = addScaled(x, l.selfAttn.Forward(h, h, tgtMask), 1)

	h = l.normSrc.Forward(x)
	x = addScaled(x, l.srcAttn.Forward(h, memory, nil), 1)

	x = addScaled(x, l.ff.Forward(l.normFF.Forward(x)), 1)
	return x
}

// TransformerDecoder is an autoregressive attention decoder over
// encoder output. Position i of the target may only attend to
// positions <= i of itself: the causality invariant.
type TransformerDecoder struct {
	embed     *nn.Embedding
	posEnc    *nn.PositionalEncoding
	layers    []*DecoderLayer
	afterNorm *nn.LayerNorm
	output    *nn.Linear

	calls int // forward invocations, for cost accounting
}

// NewTransformerDecoder builds a decoder with numBlocks layers.
func NewTransformerDecoder(vocabSize, dModel int, cfg *DecoderConfig, numBlocks int, rng *rand.Rand) *TransformerDecoder {
	d := &TransformerDecoder{
		embed:     nn.NewEmbedding(vocabSize, dModel, rng),
		posEnc:    nn.NewPositionalEncoding(dModel),
		afterNorm: nn.NewLayerNorm(dModel),
		output:    nn.NewLinear(dModel, vocabSize, rng),
	}
	for i := 0; i < numBlocks; i++ {
		d.layers = append(d.layers, NewDecoderLayer(dModel, cfg.AttentionHeads, cfg.LinearUnits, rng))
	}
	return d
}

// forwardOne decodes one example: tokens (already sos-prefixed) against
// its valid encoder memory, returning [len(tokens), vocab] logits.
func (d *TransformerDecoder) forwardOne(memory *nn.Tensor[float32], tokens []int) *nn.Tensor[float32] {
	d.calls++
	x := d.embed.Forward(tokens)
	d.posEnc.Apply(x, 0)
	mask := nn.SubsequentMask(len(tokens))
	for _, layer := range d.layers {
		x = layer.Forward(x, memory, mask)
	}
	return d.output.Forward(d.afterNorm.Forward(x))
}

// BiTransformerDecoder runs a left-to-right decoder always and a
// right-to-left decoder over the reversed targets when requested.
type BiTransformerDecoder struct {
	left  *TransformerDecoder
	right *TransformerDecoder // nil when r_num_blocks == 0
	vocab int
}

// NewBiTransformerDecoder builds the pair. RNumBlocks == 0 leaves the
// reverse decoder out entirely.
func NewBiTransformerDecoder(vocabSize, dModel int, cfg *DecoderConfig, rng *rand.Rand) *BiTransformerDecoder {
	d := &BiTransformerDecoder{
		left:  NewTransformerDecoder(vocabSize, dModel, cfg, cfg.NumBlocks, rng),
		vocab: vocabSize,
	}
	if cfg.RNumBlocks > 0 {
		d.right = NewTransformerDecoder(vocabSize, dModel, cfg, cfg.RNumBlocks, rng)
	}
	return d
}

// Forward decodes the batch in both directions. encOut is [batch, tm,
// d] with per-example valid lengths; ysIn/rYsIn are the sos-prefixed
// forward and reversed targets with per-example lengths ysInLens. The
// reverse logits are all-zero when reverseWeight is zero — the reverse
// pass is skipped, not merely zero-weighted.
func (d *BiTransformerDecoder) Forward(encOut *nn.Tensor[float32], encLens []int, ysIn [][]int, ysInLens []int, rYsIn [][]int, reverseWeight float32) (*nn.Tensor[float32], *nn.Tensor[float32], error) {
	batch, tm, dim := encOut.Shape[0], encOut.Shape[1], encOut.Shape[2]
	if len(ysIn) != batch || len(ysInLens) != batch {
		return nil, nil, shapeErrf("decode", "encoder batch %d but %d target rows", batch, len(ysIn))
	}
	width := 0
	for _, row := range ysIn {
		if len(row) > width {
			width = len(row)
		}
	}

	lOut := nn.NewTensor[float32](batch, width, d.vocab)
	rOut := nn.NewTensor[float32](batch, width, d.vocab)
	for b := 0; b < batch; b++ {
		if ysInLens[b] <= 0 || ysInLens[b] > len(ysIn[b]) {
			return nil, nil, lengthErrf("decode", "example %d target length %d outside (0, %d]", b, ysInLens[b], len(ysIn[b]))
		}
		memory := nn.Slice2D(encOut.Reshape(batch*tm, dim), b*tm, b*tm+encLens[b])

		logits := d.left.forwardOne(memory, ysIn[b][:ysInLens[b]])
		copy(lOut.Data[b*width*d.vocab:], logits.Data)

		if reverseWeight > 0 && d.right != nil {
			rLogits := d.right.forwardOne(memory, rYsIn[b][:ysInLens[b]])
			copy(rOut.Data[b*width*d.vocab:], rLogits.Data)
		}
	}
	return lOut, rOut, nil
}
