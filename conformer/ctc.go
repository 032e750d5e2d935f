package conformer

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/chorale/nn"
)

// BlankID is the CTC blank token, fixed at index 0 of the vocabulary.
const BlankID = 0

// CTC is the CTC head and loss: a linear projection from encoder output
// to vocabulary logits plus the alignment-marginalizing forward
// algorithm.
type CTC struct {
	VocabSize int
	Proj      *nn.Linear
}

// NewCTC builds the head for the given encoder width.
func NewCTC(vocabSize, encoderDim int, rng *rand.Rand) *CTC {
	return &CTC{VocabSize: vocabSize, Proj: nn.NewLinear(encoderDim, vocabSize, rng)}
}

// Loss computes the batch CTC loss over encoder output ([batch, tMax,
// dim]) with per-example valid lengths, against unpadded labels. Per
// example the loss marginalizes over every monotonic alignment between
// encoder frames and the label sequence. Any example whose label is
// longer than its encoder output makes the whole call fail with an
// InvalidLengthError; per-example losses are summed and divided by the
// batch size.
func (c *CTC) Loss(encOut *nn.Tensor[float32], encLens []int, ys [][]int, ysLens []int) (float32, error) {
	batch, tMax, dim := encOut.Shape[0], encOut.Shape[1], encOut.Shape[2]
	if len(encLens) != batch || len(ys) != batch || len(ysLens) != batch {
		return 0, shapeErrf("ctc loss", "batch sizes disagree: enc %d lens %d ys %d ysLens %d",
			batch, len(encLens), len(ys), len(ysLens))
	}
	for b := 0; b < batch; b++ {
		if encLens[b] <= 0 || encLens[b] > tMax {
			return 0, lengthErrf("ctc loss", "example %d encoder length %d outside (0, %d]", b, encLens[b], tMax)
		}
		if ysLens[b] > len(ys[b]) {
			return 0, lengthErrf("ctc loss", "example %d label length %d beyond row size %d", b, ysLens[b], len(ys[b]))
		}
		if encLens[b] < ysLens[b] {
			return 0, lengthErrf("ctc loss", "example %d label length %d exceeds encoder output length %d",
				b, ysLens[b], encLens[b])
		}
	}

	var total float64
	for b := 0; b < batch; b++ {
		// Log-probabilities over the valid frames of this example.
		frames := nn.Slice2D(encOut.Reshape(batch*tMax, dim), b*tMax, b*tMax+encLens[b])
		logits := c.Proj.Forward(frames)
		logp := make([][]float64, encLens[b])
		for t := 0; t < encLens[b]; t++ {
			logp[t] = nn.LogSoftmax(logits.Row(t))
		}
		total += ctcForward(logp, ys[b][:ysLens[b]])
	}
	return float32(total / float64(batch)), nil
}

// ctcForward runs the standard CTC forward recursion in log space and
// returns the negative log-likelihood of the label sequence.
func ctcForward(logp [][]float64, labels []int) float64 {
	T := len(logp)
	S := 2*len(labels) + 1
	ext := make([]int, S)
	for i, l := range labels {
		ext[2*i+1] = l
	}

	negInf := math.Inf(-1)
	alpha := make([]float64, S)
	next := make([]float64, S)
	for s := range alpha {
		alpha[s] = negInf
	}
	alpha[0] = logp[0][BlankID]
	if S > 1 {
		alpha[1] = logp[0][ext[1]]
	}

	for t := 1; t < T; t++ {
		for s := 0; s < S; s++ {
			terms := []float64{alpha[s]}
			if s > 0 {
				terms = append(terms, alpha[s-1])
			}
			if s > 1 && ext[s] != BlankID && ext[s] != ext[s-2] {
				terms = append(terms, alpha[s-2])
			}
			next[s] = floats.LogSumExp(terms) + logp[t][ext[s]]
		}
		alpha, next = next, alpha
	}

	tail := []float64{alpha[S-1]}
	if S > 1 {
		tail = append(tail, alpha[S-2])
	}
	return -floats.LogSumExp(tail)
}

// Softmax returns per-frame posteriors over the vocabulary for encoder
// output ([batch, tMax, dim]) -> [batch, tMax, vocab].
func (c *CTC) Softmax(encOut *nn.Tensor[float32]) *nn.Tensor[float32] {
	batch, tMax, dim := encOut.Shape[0], encOut.Shape[1], encOut.Shape[2]
	logits := c.Proj.Forward(encOut.Reshape(batch*tMax, dim))
	out := nn.NewTensor[float32](batch, tMax, c.VocabSize)
	for r := 0; r < batch*tMax; r++ {
		copy(out.Data[r*c.VocabSize:(r+1)*c.VocabSize], nn.Softmax(logits.Row(r)))
	}
	return out
}
