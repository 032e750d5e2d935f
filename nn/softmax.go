package nn

import (
	"math"
)

// Softmax computes a numerically stable softmax over a single row of
// logits, returning a fresh slice.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxv))
		out[i] = float32(e)
		sum += e
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}

// LogSoftmax computes log(softmax(logits)) over a single row in float64
// for downstream log-space accumulation.
func LogSoftmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > maxv {
			maxv = float64(v)
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxv)
	}
	logZ := maxv + math.Log(sum)
	for i, v := range logits {
		out[i] = float64(v) - logZ
	}
	return out
}

// MaskedSoftmax computes softmax over scores where mask is true.
// Masked-out positions receive exactly zero probability. If every
// position is masked out the row is left all-zero.
func MaskedSoftmax(scores []float32, mask []bool) []float32 {
	out := make([]float32, len(scores))
	maxv := math.Inf(-1)
	for i, v := range scores {
		if mask[i] && float64(v) > maxv {
			maxv = float64(v)
		}
	}
	if math.IsInf(maxv, -1) {
		return out
	}
	var sum float64
	for i, v := range scores {
		if mask[i] {
			e := math.Exp(float64(v) - maxv)
			out[i] = float32(e)
			sum += e
		}
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}
