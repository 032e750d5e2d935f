package nn

// Numeric constrains the element types tensors can hold.
type Numeric interface {
	~float32 | ~float64
}

// Tensor is a dense row-major numeric array. Shape is the logical
// dimensionality; Data is the flat backing slice.
type Tensor[T Numeric] struct {
	Data    []T
	Shape   []int
	Strides []int
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor[T Numeric](shape ...int) *Tensor[T] {
	n := 1
	for _, d := range shape {
		n *= d
	}
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return &Tensor[T]{Data: make([]T, n), Shape: shape, Strides: strides}
}

// NewTensorFromSlice wraps an existing slice. The slice is not copied;
// its length must equal the product of the shape.
func NewTensorFromSlice[T Numeric](data []T, shape ...int) *Tensor[T] {
	t := NewTensor[T](shape...)
	if len(data) != len(t.Data) {
		return nil
	}
	t.Data = data
	return t
}

// Size returns the total number of elements.
func (t *Tensor[T]) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	c := &Tensor[T]{
		Data:    make([]T, len(t.Data)),
		Shape:   make([]int, len(t.Shape)),
		Strides: make([]int, len(t.Strides)),
	}
	copy(c.Data, t.Data)
	copy(c.Shape, t.Shape)
	copy(c.Strides, t.Strides)
	return c
}

// Reshape returns a view with a new shape sharing the same data, or nil
// if the element counts disagree.
func (t *Tensor[T]) Reshape(shape ...int) *Tensor[T] {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(t.Data) {
		return nil
	}
	v := NewTensor[T](shape...)
	v.Data = t.Data
	return v
}

// At reads the element at the given multi-dimensional index.
func (t *Tensor[T]) At(idx ...int) T {
	return t.Data[t.flatIndex(idx)]
}

// Set writes the element at the given multi-dimensional index.
func (t *Tensor[T]) Set(v T, idx ...int) {
	t.Data[t.flatIndex(idx)] = v
}

func (t *Tensor[T]) flatIndex(idx []int) int {
	flat := 0
	for i, ix := range idx {
		flat += ix * t.Strides[i]
	}
	return flat
}

// Row returns the flat slice for row r of a 2D tensor [rows, cols].
// The slice aliases the tensor's data.
func (t *Tensor[T]) Row(r int) []T {
	cols := t.Shape[len(t.Shape)-1]
	return t.Data[r*cols : (r+1)*cols]
}

// ZerosLike returns a zero tensor with the same shape as t.
func ZerosLike[T Numeric](t *Tensor[T]) *Tensor[T] {
	return NewTensor[T](t.Shape...)
}

// Concat2D stacks a and b along the row axis. Both must be 2D with the
// same column count. Either may have zero rows.
func Concat2D[T Numeric](a, b *Tensor[T]) *Tensor[T] {
	if a == nil || a.Size() == 0 {
		return b.Clone()
	}
	if b == nil || b.Size() == 0 {
		return a.Clone()
	}
	cols := a.Shape[1]
	out := NewTensor[T](a.Shape[0]+b.Shape[0], cols)
	copy(out.Data, a.Data)
	copy(out.Data[len(a.Data):], b.Data)
	return out
}

// Slice2D copies rows [lo, hi) of a 2D tensor.
func Slice2D[T Numeric](t *Tensor[T], lo, hi int) *Tensor[T] {
	cols := t.Shape[1]
	out := NewTensor[T](hi-lo, cols)
	copy(out.Data, t.Data[lo*cols:hi*cols])
	return out
}
