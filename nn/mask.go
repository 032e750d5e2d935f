package nn

import (
	"errors"
	"fmt"
)

// Canonical kernel-level errors. Callers wrap these into their own
// taxonomies with %w.
var (
	ErrShapeMismatch = errors.New("nn: shape mismatch")
	ErrInvalidLength = errors.New("nn: invalid length")
)

// Mask is a boolean tensor. True marks a valid (attendable) position,
// false a padded or masked-out one.
type Mask struct {
	Data  []bool
	Shape []int
}

// NewMask allocates an all-false mask with the given shape.
func NewMask(shape ...int) *Mask {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Mask{Data: make([]bool, n), Shape: shape}
}

// MakePadMask builds a [batch, 1, maxLen] padding mask from per-example
// lengths: position t of example b is true iff t < lengths[b].
func MakePadMask(lengths []int, maxLen int) (*Mask, error) {
	for b, l := range lengths {
		if l <= 0 {
			return nil, fmt.Errorf("%w: example %d has length %d", ErrInvalidLength, b, l)
		}
		if l > maxLen {
			return nil, fmt.Errorf("%w: example %d declares length %d beyond axis size %d",
				ErrInvalidLength, b, l, maxLen)
		}
	}
	m := NewMask(len(lengths), 1, maxLen)
	for b, l := range lengths {
		for t := 0; t < l; t++ {
			m.Data[b*maxLen+t] = true
		}
	}
	return m, nil
}

// MaskLengths reduces a [batch, 1, maxLen] padding mask back to its
// per-example length vector by counting valid positions.
func MaskLengths(m *Mask) ([]int, error) {
	if len(m.Shape) != 3 || m.Shape[1] != 1 {
		return nil, fmt.Errorf("%w: want [batch, 1, time] mask, got %v", ErrShapeMismatch, m.Shape)
	}
	batch, maxLen := m.Shape[0], m.Shape[2]
	lengths := make([]int, batch)
	for b := 0; b < batch; b++ {
		n := 0
		for t := 0; t < maxLen; t++ {
			if m.Data[b*maxLen+t] {
				n++
			}
		}
		lengths[b] = n
	}
	return lengths, nil
}

// SubsequentMask builds a [size, size] causal mask: position i may
// attend to positions j <= i.
func SubsequentMask(size int) *Mask {
	m := NewMask(size, size)
	for i := 0; i < size; i++ {
		for j := 0; j <= i; j++ {
			m.Data[i*size+j] = true
		}
	}
	return m
}

// ChunkMask builds a [size, size] chunked attention mask. Position i
// may attend within its own chunk and every earlier position inside the
// left-context window. numLeftChunks < 0 keeps the full left history.
func ChunkMask(size, chunkSize, numLeftChunks int) *Mask {
	m := NewMask(size, size)
	for i := 0; i < size; i++ {
		end := ((i / chunkSize) + 1) * chunkSize
		if end > size {
			end = size
		}
		start := 0
		if numLeftChunks >= 0 {
			start = (i/chunkSize - numLeftChunks) * chunkSize
			if start < 0 {
				start = 0
			}
		}
		for j := start; j < end; j++ {
			m.Data[i*size+j] = true
		}
	}
	return m
}

// At reads a mask element, row-major.
func (m *Mask) At(idx ...int) bool {
	flat := 0
	stride := 1
	for i := len(m.Shape) - 1; i >= 0; i-- {
		flat += idx[i] * stride
		stride *= m.Shape[i]
	}
	return m.Data[flat]
}

// Row returns the flat slice for row r of a 2D mask.
func (m *Mask) Row(r int) []bool {
	cols := m.Shape[len(m.Shape)-1]
	return m.Data[r*cols : (r+1)*cols]
}
