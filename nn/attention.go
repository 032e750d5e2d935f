package nn

import (
	"math"
	"math/rand"
)

// MultiHeadAttention implements scaled dot-product attention with
// separate query/key/value/output projections. One call processes a
// single example; batching loops outside.
type MultiHeadAttention struct {
	NumHeads int
	DModel   int
	HeadDim  int
	WQ       *Linear
	WK       *Linear
	WV       *Linear
	WO       *Linear
}

// NewMultiHeadAttention creates an attention block. dModel must be
// divisible by numHeads.
func NewMultiHeadAttention(numHeads, dModel int, rng *rand.Rand) *MultiHeadAttention {
	return &MultiHeadAttention{
		NumHeads: numHeads,
		DModel:   dModel,
		HeadDim:  dModel / numHeads,
		WQ:       NewLinear(dModel, dModel, rng),
		WK:       NewLinear(dModel, dModel, rng),
		WV:       NewLinear(dModel, dModel, rng),
		WO:       NewLinear(dModel, dModel, rng),
	}
}

// Forward computes attention of q ([Tq, dModel]) over kv ([Tkv, dModel])
// under an optional [Tq, Tkv] mask (nil means full attention). Rows of q
// whose mask admits no key at all produce zero output rows.
func (a *MultiHeadAttention) Forward(q, kv *Tensor[float32], mask *Mask) *Tensor[float32] {
	Q := a.WQ.Forward(q)
	K := a.WK.Forward(kv)
	V := a.WV.Forward(kv)
	return a.WO.Forward(a.attend(Q, K, V, mask))
}

// ForwardWithCache computes attention of the current chunk x over the
// cached history plus x itself, full attention (chunk-internal masking
// is the caller's concern via chunk sizing). cache has shape
// [numHeads, cachedT, 2*headDim] holding projected keys then values;
// a nil or zero-sized cache starts a session. The returned cache is the
// untrimmed concatenation of old and new entries.
func (a *MultiHeadAttention) ForwardWithCache(x, cache *Tensor[float32]) (*Tensor[float32], *Tensor[float32]) {
	t := x.Shape[0]
	K := a.WK.Forward(x)
	V := a.WV.Forward(x)

	cachedT := 0
	if cache != nil && cache.Size() > 0 {
		cachedT = cache.Shape[1]
	}
	total := cachedT + t

	// Per-head [total, headDim] keys/values with history first.
	newCache := NewTensor[float32](a.NumHeads, total, 2*a.HeadDim)
	for h := 0; h < a.NumHeads; h++ {
		for s := 0; s < cachedT; s++ {
			src := cache.Data[(h*cachedT+s)*2*a.HeadDim : (h*cachedT+s+1)*2*a.HeadDim]
			dst := newCache.Data[(h*total+s)*2*a.HeadDim : (h*total+s+1)*2*a.HeadDim]
			copy(dst, src)
		}
		for s := 0; s < t; s++ {
			dst := newCache.Data[(h*total+cachedT+s)*2*a.HeadDim : (h*total+cachedT+s+1)*2*a.HeadDim]
			copy(dst[:a.HeadDim], K.Row(s)[h*a.HeadDim:(h+1)*a.HeadDim])
			copy(dst[a.HeadDim:], V.Row(s)[h*a.HeadDim:(h+1)*a.HeadDim])
		}
	}

	Q := a.WQ.Forward(x)
	scale := 1.0 / math.Sqrt(float64(a.HeadDim))
	ctx := NewTensor[float32](t, a.DModel)
	scores := make([]float32, total)
	for h := 0; h < a.NumHeads; h++ {
		for i := 0; i < t; i++ {
			qRow := Q.Row(i)[h*a.HeadDim : (h+1)*a.HeadDim]
			for s := 0; s < total; s++ {
				kRow := newCache.Data[(h*total+s)*2*a.HeadDim : (h*total+s)*2*a.HeadDim+a.HeadDim]
				var dot float64
				for d := 0; d < a.HeadDim; d++ {
					dot += float64(qRow[d]) * float64(kRow[d])
				}
				scores[s] = float32(dot * scale)
			}
			weights := Softmax(scores)
			dst := ctx.Row(i)[h*a.HeadDim : (h+1)*a.HeadDim]
			for s := 0; s < total; s++ {
				w := float64(weights[s])
				if w == 0 {
					continue
				}
				vRow := newCache.Data[(h*total+s)*2*a.HeadDim+a.HeadDim : (h*total+s+1)*2*a.HeadDim]
				for d := 0; d < a.HeadDim; d++ {
					dst[d] += float32(w * float64(vRow[d]))
				}
			}
		}
	}
	return a.WO.Forward(ctx), newCache
}

// attend runs per-head masked scaled dot-product attention over already
// projected Q/K/V ([T, dModel] each).
func (a *MultiHeadAttention) attend(Q, K, V *Tensor[float32], mask *Mask) *Tensor[float32] {
	tq, tk := Q.Shape[0], K.Shape[0]
	scale := 1.0 / math.Sqrt(float64(a.HeadDim))
	ctx := NewTensor[float32](tq, a.DModel)
	scores := make([]float32, tk)
	for h := 0; h < a.NumHeads; h++ {
		for i := 0; i < tq; i++ {
			qRow := Q.Row(i)[h*a.HeadDim : (h+1)*a.HeadDim]
			for j := 0; j < tk; j++ {
				kRow := K.Row(j)[h*a.HeadDim : (h+1)*a.HeadDim]
				var dot float64
				for d := 0; d < a.HeadDim; d++ {
					dot += float64(qRow[d]) * float64(kRow[d])
				}
				scores[j] = float32(dot * scale)
			}
			var weights []float32
			if mask != nil {
				weights = MaskedSoftmax(scores, mask.Row(i))
			} else {
				weights = Softmax(scores)
			}
			dst := ctx.Row(i)[h*a.HeadDim : (h+1)*a.HeadDim]
			for j := 0; j < tk; j++ {
				w := float64(weights[j])
				if w == 0 {
					continue
				}
				vRow := V.Row(j)[h*a.HeadDim : (h+1)*a.HeadDim]
				for d := 0; d < a.HeadDim; d++ {
					dst[d] += float32(w * float64(vRow[d]))
				}
			}
		}
	}
	return ctx
}
