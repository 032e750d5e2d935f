// Package nn provides the CPU numeric kernels used by the conformer
// acoustic model: flat row-major tensors, linear projections, layer
// normalization, depthwise/2D convolution, multi-head attention with an
// optional key/value cache, sinusoidal positional encoding with offset
// continuity, softmax variants and sequence masks.
//
// All kernels store float32 and accumulate in float64. There is no
// internal concurrency: a call computes synchronously on the goroutine
// that made it, and batching is the only parallelism across examples.
//
// Example usage:
//
//	mask, _ := nn.MakePadMask([]int{5, 3}, 5)
//	att := nn.NewMultiHeadAttention(4, 256, rng)
//	out := att.Forward(x, x, chunkMask)
package nn
