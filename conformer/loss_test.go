package conformer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfluke/chorale/nn"
)

func randomLogits(rng *rand.Rand, batch, width, vocab int) *nn.Tensor[float32] {
	x := nn.NewTensor[float32](batch, width, vocab)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

func TestLabelSmoothingZeroIsCrossEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	batch, width, vocab := 2, 4, 5
	logits := randomLogits(rng, batch, width, vocab)
	target := [][]int{
		{1, 3, IgnoreID, IgnoreID},
		{2, 0, 4, IgnoreID},
	}

	crit := NewLabelSmoothingLoss(vocab, IgnoreID, 0, true)
	got, err := crit.Forward(logits, target)
	require.NoError(t, err)

	// With no smoothing the criterion is token-averaged negative
	// log-likelihood.
	var want float64
	count := 0
	for b := 0; b < batch; b++ {
		for i, tok := range target[b] {
			if tok == IgnoreID {
				continue
			}
			logp := nn.LogSoftmax(logits.Data[(b*width+i)*vocab : (b*width+i+1)*vocab])
			want -= logp[tok]
			count++
		}
	}
	require.InDelta(t, want/float64(count), float64(got), 1e-5)
}

func TestLabelSmoothingNormalizationSwitch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	batch, width, vocab := 3, 5, 7
	logits := randomLogits(rng, batch, width, vocab)
	target := [][]int{
		{1, 2, 3, IgnoreID, IgnoreID},
		{4, IgnoreID, IgnoreID, IgnoreID, IgnoreID},
		{5, 6, 0, 1, 2},
	}
	tokens := 9

	byLen := NewLabelSmoothingLoss(vocab, IgnoreID, 0.1, true)
	byBatch := NewLabelSmoothingLoss(vocab, IgnoreID, 0.1, false)

	lossLen, err := byLen.Forward(logits, target)
	require.NoError(t, err)
	lossBatch, err := byBatch.Forward(logits, target)
	require.NoError(t, err)

	// Same accumulated sum, different denominator.
	require.InDelta(t, float64(lossLen)*float64(tokens), float64(lossBatch)*float64(batch), 1e-4)
}

func TestLabelSmoothingIgnoresPaddingEntirely(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	logits := randomLogits(rng, 1, 4, 5)
	crit := NewLabelSmoothingLoss(5, IgnoreID, 0.1, true)

	short, err := crit.Forward(logits, [][]int{{2, 4, IgnoreID, IgnoreID}})
	require.NoError(t, err)
	padded, err := crit.Forward(logits, [][]int{{2, 4, IgnoreID, IgnoreID, IgnoreID, IgnoreID}})
	require.NoError(t, err)

	require.Equal(t, short, padded)
}

func TestLabelSmoothingRejectsVocabMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	logits := randomLogits(rng, 1, 2, 5)
	crit := NewLabelSmoothingLoss(6, IgnoreID, 0.1, true)

	_, err := crit.Forward(logits, [][]int{{1, 2}})
	var shapeErr *ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
}

func TestAccuracyCountsArgMaxHits(t *testing.T) {
	// [1, 3, 4] logits with a clear arg-max per position.
	logits := nn.NewTensorFromSlice([]float32{
		0, 9, 0, 0, // predicts 1
		0, 0, 9, 0, // predicts 2
		9, 0, 0, 0, // predicts 0
	}, 1, 3, 4)
	target := [][]int{{1, 3, IgnoreID}}

	got := Accuracy(logits, target, IgnoreID)
	require.InDelta(t, 0.5, got, 1e-12)
}
