package conformer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/chorale/nn"
)

// LabelSmoothingLoss is the attention-branch criterion: KL divergence
// between a smoothed target distribution and the decoder's predicted
// distribution. The smoothed target puts 1-smoothing on the true token
// and spreads smoothing uniformly over the remaining vocabulary, so a
// smoothing of zero reduces it to plain cross-entropy.
type LabelSmoothingLoss struct {
	Size       int // vocabulary size
	PaddingIdx int // ignored target id
	Smoothing  float32

	// NormalizeLength divides by the number of non-ignored tokens
	// instead of the batch size.
	NormalizeLength bool
}

// NewLabelSmoothingLoss builds the criterion.
func NewLabelSmoothingLoss(size, paddingIdx int, smoothing float32, normalizeLength bool) *LabelSmoothingLoss {
	return &LabelSmoothingLoss{
		Size:            size,
		PaddingIdx:      paddingIdx,
		Smoothing:       smoothing,
		NormalizeLength: normalizeLength,
	}
}

// Forward computes the loss over logits ([batch, width, vocab]) against
// a padded target batch. Positions equal to the padding id contribute
// zero loss and zero count.
func (c *LabelSmoothingLoss) Forward(logits *nn.Tensor[float32], target [][]int) (float32, error) {
	batch, width, vocab := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	if vocab != c.Size {
		return 0, shapeErrf("attention loss", "logits vocab %d != criterion size %d", vocab, c.Size)
	}
	if len(target) != batch {
		return 0, shapeErrf("attention loss", "logits batch %d != target batch %d", batch, len(target))
	}

	confidence := 1.0 - float64(c.Smoothing)
	low := float64(c.Smoothing) / float64(c.Size-1)

	var total float64
	count := 0
	for b := 0; b < batch; b++ {
		for i, tok := range target[b] {
			if tok == c.PaddingIdx {
				continue
			}
			if i >= width {
				return 0, shapeErrf("attention loss", "target row %d longer than logit width %d", b, width)
			}
			if tok < 0 || tok >= vocab {
				return 0, lengthErrf("attention loss", "token %d outside vocabulary %d", tok, vocab)
			}
			logp := nn.LogSoftmax(logits.Data[(b*width+i)*vocab : (b*width+i+1)*vocab])

			// KL(smoothed target || prediction), constant terms included
			// so smoothing=0 lands exactly on -log p(target).
			total += confidence * (math.Log(confidence) - logp[tok])
			if low > 0 {
				offTargetLogP := floats.Sum(logp) - logp[tok]
				total += low*float64(c.Size-1)*math.Log(low) - low*offTargetLogP
			}
			count++
		}
	}
	denom := float64(batch)
	if c.NormalizeLength {
		denom = float64(count)
	}
	if denom == 0 {
		return 0, nil
	}
	return float32(total / denom), nil
}
