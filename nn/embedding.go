package nn

import (
	"math/rand"
)

// Embedding maps token ids to dense vectors. Weight layout is
// [vocab][dim] flattened row-major.
type Embedding struct {
	Vocab, Dim int
	Weight     *Tensor[float32]
}

// NewEmbedding creates an embedding table with small random weights.
func NewEmbedding(vocab, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{Vocab: vocab, Dim: dim, Weight: NewTensor[float32](vocab, dim)}
	for i := range e.Weight.Data {
		e.Weight.Data[i] = (rng.Float32()*2 - 1) * 0.1
	}
	return e
}

// Forward looks up a sequence of token ids, producing [len(ids), dim].
// Out-of-range ids map to the zero vector.
func (e *Embedding) Forward(ids []int) *Tensor[float32] {
	out := NewTensor[float32](len(ids), e.Dim)
	for r, id := range ids {
		if id < 0 || id >= e.Vocab {
			continue
		}
		copy(out.Row(r), e.Weight.Row(id))
	}
	return out
}
