package nn

import (
	"math"
	"math/rand"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	p := Softmax([]float32{1, 2, 3, 4})
	var sum float64
	for _, v := range p {
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("softmax sums to %f", sum)
	}
	if !(p[3] > p[2] && p[2] > p[1] && p[1] > p[0]) {
		t.Errorf("softmax not monotone: %v", p)
	}
}

func TestMaskedSoftmaxZeroesMaskedPositions(t *testing.T) {
	p := MaskedSoftmax([]float32{5, 1, 100, 2}, []bool{true, true, false, true})
	if p[2] != 0 {
		t.Fatalf("masked position got probability %f", p[2])
	}
	var sum float64
	for _, v := range p {
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("masked softmax sums to %f", sum)
	}

	// Fully masked row stays zero.
	p = MaskedSoftmax([]float32{1, 2}, []bool{false, false})
	if p[0] != 0 || p[1] != 0 {
		t.Errorf("fully masked row should be zero, got %v", p)
	}
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	logits := []float32{0.3, -1.2, 2.5}
	p := Softmax(logits)
	lp := LogSoftmax(logits)
	for i := range p {
		if math.Abs(math.Exp(lp[i])-float64(p[i])) > 1e-6 {
			t.Errorf("exp(logsoftmax) != softmax at %d: %f vs %f", i, math.Exp(lp[i]), p[i])
		}
	}
}

func TestLayerNormRow(t *testing.T) {
	ln := NewLayerNorm(4)
	x := NewTensorFromSlice([]float32{1, 2, 3, 4}, 1, 4)
	out := ln.Forward(x)

	var mean float64
	for _, v := range out.Row(0) {
		mean += float64(v)
	}
	mean /= 4
	if math.Abs(mean) > 1e-5 {
		t.Errorf("normalized mean = %f, want ~0", mean)
	}
}

// TestCausalDepthwiseConvChunkEquivalence checks that chunked causal
// convolution with a threaded cache reproduces the full-sequence
// output, the convolution-level half of the streaming property.
func TestCausalDepthwiseConvChunkEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	conv := NewDepthwiseConv1D(3, 5, true, rng)

	x := NewTensor[float32](12, 3)
	for i := range x.Data {
		x.Data[i] = rng.Float32()*2 - 1
	}
	full := conv.Forward(x)

	var cache *Tensor[float32]
	var got []float32
	for lo := 0; lo < 12; lo += 4 {
		chunk := Slice2D(x, lo, lo+4)
		out, next := conv.ForwardWithCache(chunk, cache)
		got = append(got, out.Data...)
		cache = next
	}
	if diff := MaxAbsDiff(full.Data, got); diff > 1e-5 {
		t.Errorf("chunked conv diverges from full sequence by %g", diff)
	}
}

func TestGLU(t *testing.T) {
	x := NewTensorFromSlice([]float32{2, 3, 0, 0}, 1, 4)
	out := GLU(x)
	// sigmoid(0) = 0.5, so out = [1, 1.5].
	if math.Abs(float64(out.Data[0])-1.0) > 1e-6 || math.Abs(float64(out.Data[1])-1.5) > 1e-6 {
		t.Errorf("GLU = %v, want [1, 1.5]", out.Data)
	}
}

func TestArgMax(t *testing.T) {
	if got := ArgMax([]float32{0.1, 0.9, 0.3}); got != 1 {
		t.Errorf("ArgMax = %d, want 1", got)
	}
	if got := ArgMax(nil); got != -1 {
		t.Errorf("ArgMax(nil) = %d, want -1", got)
	}
}
