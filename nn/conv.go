package nn

import (
	"math"
	"math/rand"
)

// DepthwiseConv1D convolves each channel independently over the time
// axis of x ([T, channels]). In causal mode the receptive field covers
// only the kernelSize-1 past frames, so streaming chunks reproduce the
// full-sequence output once those frames are carried in a cache.
type DepthwiseConv1D struct {
	Channels   int
	KernelSize int
	Causal     bool
	Weight     *Tensor[float32] // [channels, kernelSize]
	Bias       *Tensor[float32] // [channels]
}

// NewDepthwiseConv1D creates a depthwise convolution. Non-causal mode
// requires an odd kernel for symmetric padding.
func NewDepthwiseConv1D(channels, kernelSize int, causal bool, rng *rand.Rand) *DepthwiseConv1D {
	c := &DepthwiseConv1D{
		Channels:   channels,
		KernelSize: kernelSize,
		Causal:     causal,
		Weight:     NewTensor[float32](channels, kernelSize),
		Bias:       NewTensor[float32](channels),
	}
	limit := float32(math.Sqrt(1.0 / float64(kernelSize)))
	for i := range c.Weight.Data {
		c.Weight.Data[i] = (rng.Float32()*2 - 1) * limit
	}
	return c
}

// Forward convolves a full sequence with implicit zero padding: left
// only (kernelSize-1) when causal, symmetric otherwise.
func (c *DepthwiseConv1D) Forward(x *Tensor[float32]) *Tensor[float32] {
	return c.forward(x, nil)
}

// ForwardWithCache convolves one chunk using cache ([kernelSize-1,
// channels]) as the left context. A nil or zero-sized cache stands for
// leading zeros (session start). The returned cache holds the last
// kernelSize-1 rows feeding the next chunk. Causal mode only.
func (c *DepthwiseConv1D) ForwardWithCache(x, cache *Tensor[float32]) (*Tensor[float32], *Tensor[float32]) {
	lorder := c.KernelSize - 1
	if cache == nil || cache.Size() == 0 {
		cache = NewTensor[float32](lorder, c.Channels)
	}
	out := c.forward(x, cache)

	// Next cache: trailing lorder rows of (cache ++ x).
	ext := Concat2D(cache, x)
	next := Slice2D(ext, ext.Shape[0]-lorder, ext.Shape[0])
	return out, next
}

func (c *DepthwiseConv1D) forward(x, left *Tensor[float32]) *Tensor[float32] {
	t := x.Shape[0]
	out := NewTensor[float32](t, c.Channels)
	pad := c.KernelSize - 1
	if !c.Causal {
		pad = (c.KernelSize - 1) / 2
	}
	leftRows := 0
	if left != nil {
		leftRows = left.Shape[0]
	}
	for i := 0; i < t; i++ {
		dst := out.Row(i)
		for ch := 0; ch < c.Channels; ch++ {
			sum := float64(c.Bias.Data[ch])
			for k := 0; k < c.KernelSize; k++ {
				pos := i + k - pad
				var v float32
				switch {
				case pos >= 0 && pos < t:
					v = x.Data[pos*c.Channels+ch]
				case pos < 0 && leftRows+pos >= 0:
					v = left.Data[(leftRows+pos)*c.Channels+ch]
				default:
					continue
				}
				sum += float64(v) * float64(c.Weight.Data[ch*c.KernelSize+k])
			}
			dst[ch] = float32(sum)
		}
	}
	return out
}

// Conv2D is a strided 2D convolution without padding, used by the
// subsampling frontend. Input layout is [inCh, h, w]; weights are
// [outCh, inCh, kernel, kernel].
type Conv2D struct {
	InCh, OutCh    int
	Kernel, Stride int
	Weight         *Tensor[float32]
	Bias           *Tensor[float32]
}

// NewConv2D creates a 2D convolution with Xavier-uniform weights.
func NewConv2D(inCh, outCh, kernel, stride int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		InCh:   inCh,
		OutCh:  outCh,
		Kernel: kernel,
		Stride: stride,
		Weight: NewTensor[float32](outCh, inCh, kernel, kernel),
		Bias:   NewTensor[float32](outCh),
	}
	fanIn := inCh * kernel * kernel
	limit := float32(math.Sqrt(6.0 / float64(fanIn+outCh)))
	for i := range c.Weight.Data {
		c.Weight.Data[i] = (rng.Float32()*2 - 1) * limit
	}
	return c
}

// OutDim returns the output size of one spatial axis of length n.
func (c *Conv2D) OutDim(n int) int {
	return (n-c.Kernel)/c.Stride + 1
}

// Forward convolves x ([inCh, h, w]) into [outCh, h', w'].
func (c *Conv2D) Forward(x *Tensor[float32]) *Tensor[float32] {
	h, w := x.Shape[1], x.Shape[2]
	oh, ow := c.OutDim(h), c.OutDim(w)
	out := NewTensor[float32](c.OutCh, oh, ow)
	for f := 0; f < c.OutCh; f++ {
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				sum := float64(c.Bias.Data[f])
				for ic := 0; ic < c.InCh; ic++ {
					for ki := 0; ki < c.Kernel; ki++ {
						for kj := 0; kj < c.Kernel; kj++ {
							vi := i*c.Stride + ki
							vj := j*c.Stride + kj
							xv := x.Data[(ic*h+vi)*w+vj]
							wv := c.Weight.Data[((f*c.InCh+ic)*c.Kernel+ki)*c.Kernel+kj]
							sum += float64(xv) * float64(wv)
						}
					}
				}
				out.Data[(f*oh+i)*ow+j] = float32(sum)
			}
		}
	}
	return out
}
